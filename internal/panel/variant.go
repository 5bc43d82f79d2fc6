package panel

import (
	"errors"
	"strings"
)

var ErrUnknownVariant = errors.New("unknown panel variant")

type layout string

const (
	layoutDivs  layout = "divs"
	layoutTable layout = "table"
)

// Variant captures what differs between the UI generations. Reading and
// writing variables is the same for all of them.
type Variant struct {
	Name     string
	IDPrefix string
	layout   layout
	// Bootstrap adds the ALTUI form classes.
	Bootstrap bool
	// Nested shows the export and generator groups only when enabled.
	Nested bool
	// LiveUpdate writes each control on change instead of through a Save button.
	LiveUpdate bool
	// TwoTierWrites writes user_data and status explicitly.
	TwoTierWrites      bool
	UpdateFrequency    bool
	LogLevels          []Option
	GeneratorIntervals []Option
}

var (
	UI7 = Variant{
		Name:               "ui7",
		IDPrefix:           "rbSM_",
		layout:             layoutDivs,
		Nested:             true,
		UpdateFrequency:    true,
		LogLevels:          logLevels("11"),
		GeneratorIntervals: generatorIntervals(true),
	}

	ALTUI = Variant{
		Name:               "altui",
		IDPrefix:           "rbSM_",
		layout:             layoutDivs,
		Bootstrap:          true,
		Nested:             true,
		UpdateFrequency:    true,
		LogLevels:          logLevels("11"),
		GeneratorIntervals: generatorIntervals(true),
	}

	UI5 = Variant{
		Name:               "ui5",
		IDPrefix:           "smID_",
		layout:             layoutTable,
		LiveUpdate:         true,
		TwoTierWrites:      true,
		LogLevels:          logLevels("10"),
		GeneratorIntervals: generatorIntervals(false),
	}
)

// LookupVariant resolves a variant by name; empty means ui7.
func LookupVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ui7":
		return UI7, nil
	case "altui":
		return ALTUI, nil
	case "ui5", "ui6":
		return UI5, nil
	default:
		return Variant{}, ErrUnknownVariant
	}
}
