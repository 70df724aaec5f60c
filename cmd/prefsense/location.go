package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hrygo/prefsense/internal/util"
	"github.com/hrygo/prefsense/plugin/preference/catalog"
	"github.com/hrygo/prefsense/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the preference catalog in the form handed to the model.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printJSON(cmd, catalog.PromptSchema())
	},
}

var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "Manage the locations location-scoped preferences attach to.",
}

var locationAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a location, or rename it when --id is given.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = util.GenUUID()
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			location, err := a.store.UpsertLocation(ctx, &store.UpsertLocation{
				ID:     id,
				UserID: a.userID,
				Name:   args[0],
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, location)
		})
	},
}

var locationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the user's locations.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			list, err := a.store.ListLocations(ctx, &store.FindLocation{UserID: &a.userID})
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		})
	},
}

func init() {
	locationAddCmd.Flags().String("id", "", "id of an existing location to rename")
	locationCmd.AddCommand(locationAddCmd, locationListCmd)
}
