package panel

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"strconv"
	"strings"
)

// Renderer builds the markup of individual settings controls for one variant.
type Renderer struct {
	acc *Accessor
	v   Variant
}

func NewRenderer(acc *Accessor, v Variant) *Renderer {
	return &Renderer{acc: acc, v: v}
}

type optionView struct {
	Value    string
	Label    string
	Selected bool
}

type controlView struct {
	ID        string
	Name      string
	Label     string
	Service   string
	Bootstrap bool
	Multiple  bool
	Live      bool
	Options   []optionView
	Size      int
	Value     string
}

type buttonView struct {
	DeviceID int
	Callback string
}

type groupView struct {
	ID      string
	Visible bool
	Items   []template.HTML
}

// ElementID is the DOM id of a control, unique per device.
func (r *Renderer) ElementID(deviceID int, name string) string {
	return r.v.IDPrefix + name + strconv.Itoa(deviceID)
}

// Pulldown renders a labeled select for a smart meter variable. The option
// matching the stored value is selected; an unknown value selects nothing.
func (r *Renderer) Pulldown(ctx context.Context, deviceID int, label, name string, options []Option) template.HTML {
	return r.pulldown(ctx, deviceID, Field{Name: name, Label: label, ServiceID: ServiceSmartMeter, Options: options})
}

type inputConfig struct {
	serviceID  string
	def        string
	hasDefault bool
}

type InputOption func(*inputConfig)

// WithService reads the input's value from another service.
func WithService(serviceID string) InputOption {
	return func(c *inputConfig) { c.serviceID = serviceID }
}

// WithDefault shows def instead of the stored value. It is never written back
// by itself.
func WithDefault(def string) InputOption {
	return func(c *inputConfig) {
		c.def = def
		c.hasDefault = true
	}
}

// Input renders a labeled text box.
func (r *Renderer) Input(ctx context.Context, deviceID int, label string, width int, name string, opts ...InputOption) template.HTML {
	cfg := inputConfig{serviceID: ServiceSmartMeter}
	for _, o := range opts {
		o(&cfg)
	}
	val := cfg.def
	if !cfg.hasDefault {
		val = r.acc.GetService(ctx, deviceID, cfg.serviceID, name)
	}
	view := controlView{
		ID:        r.ElementID(deviceID, name),
		Name:      name,
		Label:     label,
		Service:   cfg.serviceID,
		Bootstrap: r.v.Bootstrap,
		Live:      r.v.LiveUpdate,
		Size:      width,
		Value:     val,
	}
	return r.execute("input", view)
}

// Button renders the save trigger. callback names the panel action it fires.
func (r *Renderer) Button(deviceID int, callback string) template.HTML {
	return r.execute("button", buttonView{DeviceID: deviceID, Callback: callback})
}

// Field renders f with the control matching its kind.
func (r *Renderer) Field(ctx context.Context, deviceID int, f Field) template.HTML {
	if f.Kind == KindInput {
		return r.Input(ctx, deviceID, f.Label, f.Width, f.Name, WithService(f.ServiceID))
	}
	return r.pulldown(ctx, deviceID, f)
}

func (r *Renderer) group(id string, visible bool, items []template.HTML) template.HTML {
	return r.execute("group", groupView{ID: id, Visible: visible, Items: items})
}

func (r *Renderer) pulldown(ctx context.Context, deviceID int, f Field) template.HTML {
	current := r.acc.GetService(ctx, deviceID, f.ServiceID, f.Name)
	view := controlView{
		ID:        r.ElementID(deviceID, f.Name),
		Name:      f.Name,
		Label:     f.Label,
		Service:   f.ServiceID,
		Bootstrap: r.v.Bootstrap,
		Multiple:  f.Multiple,
		Live:      r.v.LiveUpdate,
		Options:   make([]optionView, 0, len(f.Options)),
	}
	for _, o := range f.Options {
		view.Options = append(view.Options, optionView{
			Value:    o.Value,
			Label:    o.Label,
			Selected: isSelected(o.Value, current, f.Multiple),
		})
	}
	return r.execute("pulldown", view)
}

func isSelected(value, current string, multiple bool) bool {
	if !multiple {
		return value == current
	}
	for _, part := range strings.Split(current, ",") {
		if part == value {
			return true
		}
	}
	return false
}

func (r *Renderer) execute(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, string(r.v.layout)+"."+name, data); err != nil {
		slog.Error("panel template failed", "variant", r.v.Name, "template", name, "error", err)
		return ""
	}
	return template.HTML(buf.String())
}
