package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/prefsense/server/service/preference"
	"github.com/hrygo/prefsense/store"
)

// preferenceView is the printed form of a stored row.
type preferenceView struct {
	ID         string          `json:"id"`
	Slug       string          `json:"slug"`
	LocationID string          `json:"locationId,omitempty"`
	Value      json.RawMessage `json:"value"`
	Status     string          `json:"status"`
	SourceType string          `json:"sourceType"`
	Confidence float64         `json:"confidence"`
	Evidence   json.RawMessage `json:"evidence,omitempty"`
	CreatedTs  int64           `json:"createdTs"`
	UpdatedTs  int64           `json:"updatedTs"`
}

func toView(p *store.Preference) *preferenceView {
	v := &preferenceView{
		ID:         p.ID,
		Slug:       p.Slug,
		LocationID: p.LocationID,
		Value:      json.RawMessage(p.Value),
		Status:     p.Status.String(),
		SourceType: string(p.SourceType),
		Confidence: p.Confidence,
		CreatedTs:  p.CreatedTs,
		UpdatedTs:  p.UpdatedTs,
	}
	if p.Evidence != "" {
		v.Evidence = json.RawMessage(p.Evidence)
	}
	return v
}

func toViews(list []*store.Preference) []*preferenceView {
	views := make([]*preferenceView, 0, len(list))
	for _, p := range list {
		views = append(views, toView(p))
	}
	return views
}

// parseValueArg accepts a JSON literal; anything else is taken as a bare string.
func parseValueArg(arg string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(arg)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	raw, err := json.Marshal(arg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode value")
	}
	return raw, nil
}

func parseStatus(s string) (*store.PreferenceStatus, error) {
	if s == "" {
		return nil, nil
	}
	status := store.PreferenceStatus(strings.ToUpper(s))
	switch status {
	case store.PreferenceActive, store.PreferenceSuggested, store.PreferenceRejected:
		return &status, nil
	default:
		return nil, errors.Errorf("unknown status %q", s)
	}
}

var setCmd = &cobra.Command{
	Use:   "set <slug> <value>",
	Short: "Store a preference value as ACTIVE.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseValueArg(args[1])
		if err != nil {
			return err
		}
		locationID, _ := cmd.Flags().GetString("location")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			p, err := a.prefs.SetPreference(ctx, a.userID, args[0], value, locationID)
			if err != nil {
				return err
			}
			return printJSON(cmd, toView(p))
		})
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <slug> <value>",
	Short: "Store an inferred preference value as SUGGESTED.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseValueArg(args[1])
		if err != nil {
			return err
		}
		locationID, _ := cmd.Flags().GetString("location")
		confidence, _ := cmd.Flags().GetFloat64("confidence")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			p, err := a.prefs.SuggestPreference(ctx, &preference.SuggestRequest{
				UserID:     a.userID,
				Slug:       args[0],
				Value:      value,
				Confidence: confidence,
				LocationID: locationID,
			})
			if err != nil {
				return err
			}
			if p == nil {
				return printJSON(cmd, map[string]any{"suppressed": true, "slug": args[0]})
			}
			return printJSON(cmd, toView(p))
		})
	},
}

func transitionCmd(use, short string, fn func(preference.Service, context.Context, string, int32) (*store.Preference, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				p, err := fn(a.prefs, ctx, args[0], a.userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, toView(p))
			})
		},
	}
}

var acceptCmd = transitionCmd("accept", "Promote a suggestion to ACTIVE.", preference.Service.AcceptSuggestion)

var rejectCmd = transitionCmd("reject", "Reject a suggestion and suppress it from now on.", preference.Service.RejectSuggestion)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List merged ACTIVE or SUGGESTED preferences.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		locationID, _ := cmd.Flags().GetString("location")
		suggested, _ := cmd.Flags().GetBool("suggested")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				list []*store.Preference
				err  error
			)
			if suggested {
				list, err = a.prefs.GetSuggestedPreferences(ctx, a.userID, locationID)
			} else {
				list, err = a.prefs.GetActivePreferences(ctx, a.userID, locationID)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, toViews(list))
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one stored preference.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			p, err := a.prefs.GetPreference(ctx, args[0], a.userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, toView(p))
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored preference.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.prefs.DeletePreference(ctx, args[0], a.userID)
		})
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count stored preferences, optionally by status.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, _ := cmd.Flags().GetString("status")
		status, err := parseStatus(raw)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.prefs.CountPreferences(ctx, a.userID, status)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"count": n})
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{setCmd, suggestCmd, listCmd} {
		c.Flags().String("location", "", "location id; empty means global")
	}
	suggestCmd.Flags().Float64("confidence", 0.5, "confidence of the suggestion, 0 to 1")
	listCmd.Flags().Bool("suggested", false, "list pending suggestions instead of ACTIVE rows")
	countCmd.Flags().String("status", "", "ACTIVE, SUGGESTED or REJECTED")
}
