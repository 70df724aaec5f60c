// Package catalog holds the compiled-in registry of preference types.
//
// The registry is built once when the package is initialized and never
// mutated afterwards, so every lookup is safe for concurrent use without
// locking. Unknown slugs are always rejected; nothing in this package can
// register a new type at runtime.
package catalog

import (
	"regexp"
	"sort"
	"strings"
)

// ValueType is the JSON shape a preference value must have.
type ValueType string

const (
	ValueTypeString  ValueType = "string"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeEnum    ValueType = "enum"
	ValueTypeArray   ValueType = "array"
)

// Scope tells whether a preference is global to the user or tied to a location.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeLocation Scope = "location"
)

// Entry describes one allowed preference type.
type Entry struct {
	Slug        string
	Category    string
	Description string
	ValueType   ValueType
	// Options lists the allowed values for ValueTypeEnum entries.
	Options []string
	Scope   Scope
}

var slugPattern = regexp.MustCompile(`^[a-z]+(\.[a-z0-9_]+)+$`)

var definitions = []Entry{
	{
		Slug:        "food.dietary_restrictions",
		Description: "Foods or ingredients the user cannot or will not eat, such as allergies or vegetarianism",
		ValueType:   ValueTypeArray,
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "food.cuisine_preferences",
		Description: "Cuisines the user enjoys",
		ValueType:   ValueTypeArray,
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "food.spice_tolerance",
		Description: "How spicy the user likes food",
		ValueType:   ValueTypeEnum,
		Options:     []string{"none", "mild", "medium", "hot"},
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "food.meal_budget",
		Description: "Typical budget for a meal",
		ValueType:   ValueTypeEnum,
		Options:     []string{"low", "medium", "high"},
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "system.response_tone",
		Description: "Tone of voice the assistant should use",
		ValueType:   ValueTypeEnum,
		Options:     []string{"casual", "formal", "neutral"},
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "system.response_length",
		Description: "Preferred length of assistant responses",
		ValueType:   ValueTypeEnum,
		Options:     []string{"short", "medium", "long"},
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "system.language",
		Description: "Language the assistant should answer in, as a BCP 47 tag",
		ValueType:   ValueTypeString,
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "system.use_emoji",
		Description: "Whether the assistant may use emoji",
		ValueType:   ValueTypeBoolean,
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "notification.email_enabled",
		Description: "Whether the user wants email notifications",
		ValueType:   ValueTypeBoolean,
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "notification.digest_frequency",
		Description: "How often the user wants a summary digest",
		ValueType:   ValueTypeEnum,
		Options:     []string{"daily", "weekly", "never"},
		Scope:       ScopeGlobal,
	},
	{
		Slug:        "location.default_temperature",
		Description: "Preferred thermostat temperature at this location",
		ValueType:   ValueTypeString,
		Scope:       ScopeLocation,
	},
	{
		Slug:        "location.quiet_hours",
		Description: "Hours during which this location should stay quiet, e.g. 22:00-07:00",
		ValueType:   ValueTypeString,
		Scope:       ScopeLocation,
	},
	{
		Slug:        "location.accessibility_needs",
		Description: "Accessibility requirements at this location",
		ValueType:   ValueTypeArray,
		Scope:       ScopeLocation,
	},
	{
		Slug:        "location.preferred_seating",
		Description: "Preferred seating at this location",
		ValueType:   ValueTypeEnum,
		Options:     []string{"indoor", "outdoor", "no_preference"},
		Scope:       ScopeLocation,
	},
}

// registry is populated by init and read-only afterwards.
var (
	registry map[string]*Entry
	slugs    []string
)

func init() {
	registry = make(map[string]*Entry, len(definitions))
	for i := range definitions {
		def := &definitions[i]
		if !slugPattern.MatchString(def.Slug) {
			panic("catalog: malformed slug " + def.Slug)
		}
		if _, exists := registry[def.Slug]; exists {
			panic("catalog: duplicate slug " + def.Slug)
		}
		def.Category = def.Slug[:strings.Index(def.Slug, ".")]
		registry[def.Slug] = def
		slugs = append(slugs, def.Slug)
	}
	sort.Strings(slugs)
}

// ValidateSlugFormat reports whether slug matches the `category.subkey` format.
func ValidateSlugFormat(slug string) bool {
	return slugPattern.MatchString(slug)
}

// IsKnownSlug reports whether slug is registered.
func IsKnownSlug(slug string) bool {
	_, ok := registry[slug]
	return ok
}

// GetDefinition returns a copy of the entry registered for slug.
func GetDefinition(slug string) (*Entry, bool) {
	def, ok := registry[slug]
	if !ok {
		return nil, false
	}
	clone := *def
	clone.Options = append([]string(nil), def.Options...)
	return &clone, true
}

// Slugs returns every registered slug in lexical order.
func Slugs() []string {
	return append([]string(nil), slugs...)
}

// Entries returns a copy of every entry, ordered by slug.
func Entries() []Entry {
	list := make([]Entry, 0, len(slugs))
	for _, slug := range slugs {
		def, _ := GetDefinition(slug)
		list = append(list, *def)
	}
	return list
}

// HasOption reports whether value is one of the entry's enum options.
func (e *Entry) HasOption(value string) bool {
	for _, option := range e.Options {
		if option == value {
			return true
		}
	}
	return false
}
