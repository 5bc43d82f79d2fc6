package panel

import (
	"sort"
	"strconv"
)

// Option is one entry of a pulldown.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type FieldKind int

const (
	KindPulldown FieldKind = iota
	KindInput
)

// Group names used to nest fields on the variants that show/hide them.
const (
	GroupExport    = "export"
	GroupGenerator = "generator"
)

// Field describes one settings control and the variable behind it.
type Field struct {
	Name      string
	Label     string
	ServiceID string
	Kind      FieldKind
	Options   []Option
	Multiple  bool
	Width     int
	Group     string
}

var (
	yesNo = []Option{{"0", "No"}, {"1", "Yes"}}

	updateFrequencies = []Option{
		{"0", "Instant"}, {"10", "10 Seconds"}, {"30", "30 Seconds"},
		{"60", "60 Seconds"}, {"300", "5 Minutes"},
	}

	generatorOffsets = []Option{
		{"0", "None"}, {"1", "10 seconds"}, {"2", "20 seconds"}, {"3", "30 seconds"},
		{"4", "40 seconds"}, {"5", "50 seconds"}, {"6", "60 seconds"},
	}
)

func logLevels(debug string) []Option {
	return []Option{{"1", "Error"}, {"2", "Warning"}, {"8", "Info"}, {debug, "Debug"}}
}

func generatorIntervals(extended bool) []Option {
	opts := []Option{
		{"0", "Real-time"}, {"30", "30 seconds"}, {"60", "1 Minute"},
		{"120", "2 minutes"}, {"180", "3 minutes"}, {"240", "4 minutes"},
		{"300", "5 minutes"}, {"360", "6 minutes"}, {"420", "7 minutes"},
		{"480", "8 minutes"}, {"540", "9 minutes"}, {"600", "10 minutes"},
	}
	if extended {
		opts = append(opts, Option{"900", "15 minutes"}, Option{"1800", "30 minutes"})
	}
	return opts
}

// PowerSources filters the devices that can feed the generator reading:
// power meters that are not the panel's own device or one of its children,
// and plain binary lights (they report Watts too).
func PowerSources(devices []Device, deviceID int) []Option {
	var out []Option
	for _, d := range devices {
		if d.Category == CategoryPowerMeter && d.ParentID != deviceID && d.ID != deviceID {
			out = append(out, Option{Value: strconv.Itoa(d.ID), Label: d.Name})
		}
		if d.Category == CategorySwitch && d.DeviceType == DeviceTypeBinaryLight {
			out = append(out, Option{Value: strconv.Itoa(d.ID), Label: d.Name})
		}
	}
	return out
}

// Fields lists the settings controls for a variant in display order. The
// generator group is left out when there is nothing to pick as a source.
func Fields(v Variant, sources []Option) []Field {
	fields := []Field{
		{Name: "ShowMultiTariff", Label: "Show High and Low Tariff meters", Options: yesNo},
		{Name: "ShowLines", Label: "Show Line 1-3 meters", Options: yesNo},
		{Name: "ShowExport", Label: "Show Export meter(s)", Options: yesNo},
	}
	if len(sources) > 0 {
		fields = append(fields,
			Field{Name: "UseGeneratedPower", Label: "Include Power Generator", Options: yesNo, Group: GroupExport},
			Field{Name: "GeneratedPowerSource", Label: "Power Generator device", Options: sources, Group: GroupGenerator},
			Field{Name: "GeneratorInterval", Label: "Power Generator Update interval", Options: v.GeneratorIntervals, Group: GroupGenerator},
			Field{Name: "GeneratorOffset", Label: "Power Generator Update offset", Options: generatorOffsets, Group: GroupGenerator},
		)
	}
	fields = append(fields,
		Field{Name: "ShowGas", Label: "Show Gas meter", Options: yesNo},
		Field{Name: "LogLevel", Label: "Log level", Options: v.LogLevels},
	)
	if v.UpdateFrequency {
		fields = append(fields, Field{Name: "UpdateFrequency", Label: "Update Frequency", Options: updateFrequencies})
	}
	fields = append(fields, Field{Name: "Syslog", Label: "Syslog server IP Address:Port", Kind: KindInput, Width: 30})
	for i := range fields {
		fields[i].ServiceID = ServiceSmartMeter
	}
	return fields
}

// FieldNames returns the variable names of fields, sorted.
func FieldNames(fields []Field) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}
