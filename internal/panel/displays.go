package panel

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var displayTmpl = template.Must(template.New("displays").Parse(`
{{define "meter"}}<div class='text-muted' style='font-size:11px'><br>Meter Type : {{.MeterType}}<br>Active Tariff: {{.Tariff}} (1=low, 2=high)</div>{{end}}
{{define "gas"}}<div class='altui-watts '>{{.}} <small>l/h</small></div>{{end}}
`))

// Displays renders the ALTUI device tiles.
type Displays struct {
	acc *Accessor
}

func NewDisplays(acc *Accessor) *Displays {
	return &Displays{acc: acc}
}

// SmartMeter shows the meter type and the active tariff.
func (d *Displays) SmartMeter(ctx context.Context, deviceID int) template.HTML {
	data := struct{ MeterType, Tariff string }{
		MeterType: d.acc.GetService(ctx, deviceID, ServiceSmartMeter, "MeterType"),
		Tariff:    d.acc.GetService(ctx, deviceID, ServiceSmartMeter, "ActiveTariff"),
	}
	return executeDisplay("meter", data)
}

// Gas shows the current gas flow, or nothing when the reading is not numeric.
func (d *Displays) Gas(ctx context.Context, deviceID int) template.HTML {
	flow, ok := ParseLeadingFloat(d.acc.GetService(ctx, deviceID, ServiceGas, "Flow"))
	if !ok {
		return ""
	}
	return executeDisplay("gas", FormatNumber(flow))
}

var leadingFloat = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// ParseLeadingFloat parses the longest numeric prefix of s after leading
// white space, so "12.5 l/h" reads as 12.5 and "abc" is rejected.
func ParseLeadingFloat(s string) (float64, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	m := leadingFloat.FindString(s[i:])
	if m == "" {
		return 0, false
	}
	switch m {
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FormatNumber prints f the way a browser prints a number: shortest
// round-trip digits, exponent notation below 1e-6 and from 1e21 up.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		i := strings.IndexByte(s, 'e') + 2
		exp := strings.TrimLeft(s[i:], "0")
		return s[:i] + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func executeDisplay(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := displayTmpl.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("display template failed", "template", name, "error", err)
		return ""
	}
	return template.HTML(buf.String())
}
