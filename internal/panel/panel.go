package panel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strconv"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceDisabled = errors.New("plugin is disabled in attributes")
)

// Links are the endpoints the rendered page talks back to.
type Links struct {
	Save      string
	Variables string
	Events    string
}

type Options struct {
	// Devices lists controller devices; defaults to the host.
	Devices      DeviceLister
	Orchestrator OrchestratorOptions
}

// Service is the settings panel for smart meter devices, independent of the UI
// generation it is shown in.
type Service struct {
	host    Host
	devices DeviceLister
	orch    *Orchestrator
}

func NewService(host Host, opts Options) *Service {
	devices := opts.Devices
	if devices == nil {
		devices = host
	}
	return &Service{
		host:    host,
		devices: devices,
		orch:    NewOrchestrator(host, opts.Orchestrator),
	}
}

func (s *Service) lookup(ctx context.Context, deviceID int) (Device, []Device, error) {
	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		return Device{}, nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.ID == deviceID {
			return d, devices, nil
		}
	}
	return Device{}, devices, ErrDeviceNotFound
}

// PowerSources lists the devices a smart meter can take generated power from.
func (s *Service) PowerSources(ctx context.Context, deviceID int) ([]Option, error) {
	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return PowerSources(devices, deviceID), nil
}

// FieldsFor returns the fields shown for a device in variant v.
func (s *Service) FieldsFor(ctx context.Context, deviceID int, v Variant) (Device, []Field, error) {
	dev, devices, err := s.lookup(ctx, deviceID)
	if err != nil {
		return Device{}, nil, err
	}
	return dev, Fields(v, PowerSources(devices, deviceID)), nil
}

type toggleView struct {
	Control string `json:"control"`
	Target  string `json:"target"`
}

type scriptView struct {
	DeviceID     int          `json:"device_id"`
	Variant      string       `json:"variant"`
	FormID       string       `json:"form_id"`
	BusyID       string       `json:"busy_id"`
	SaveURL      string       `json:"save_url"`
	VariablesURL string       `json:"variables_url"`
	EventsURL    string       `json:"events_url,omitempty"`
	Toggles      []toggleView `json:"toggles,omitempty"`
}

type pageView struct {
	DeviceID   int
	DeviceName string
	Disabled   bool
	FormID     string
	Body       []template.HTML
	Script     scriptView
}

// SettingsPage renders the settings tab of a device.
func (s *Service) SettingsPage(ctx context.Context, deviceID int, v Variant, links Links) (template.HTML, error) {
	dev, fields, err := s.FieldsFor(ctx, deviceID, v)
	if err != nil {
		return "", err
	}
	name := s.deviceName(ctx, dev)

	acc := NewAccessor(s.host).TwoTier(v.TwoTierWrites)
	r := NewRenderer(acc, v)
	prefix := v.IDPrefix + strconv.Itoa(deviceID)
	view := pageView{
		DeviceID:   deviceID,
		DeviceName: name,
		Disabled:   dev.Disabled,
		FormID:     prefix + "_form",
		Script: scriptView{
			DeviceID:     deviceID,
			Variant:      v.Name,
			FormID:       prefix + "_form",
			BusyID:       prefix + "_busy",
			SaveURL:      links.Save,
			VariablesURL: links.Variables,
			EventsURL:    links.Events,
		},
	}
	if !dev.Disabled {
		view.Body, view.Script.Toggles = s.composeBody(ctx, r, deviceID, v, fields, prefix)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, string(v.layout)+".page", view); err != nil {
		return "", fmt.Errorf("render settings page: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// deviceName prefers the cached listing and asks the controller only for
// devices listed without a name.
func (s *Service) deviceName(ctx context.Context, dev Device) string {
	if dev.Name != "" {
		return dev.Name
	}
	name, err := s.host.DisplayedDeviceName(ctx, dev.ID)
	if err != nil {
		slog.Warn("device name lookup failed", "device_id", dev.ID, "error", err)
		return ""
	}
	return name
}

func (s *Service) composeBody(ctx context.Context, r *Renderer, deviceID int, v Variant, fields []Field, prefix string) ([]template.HTML, []toggleView) {
	var body, exportItems, genItems []template.HTML
	exportAt := -1
	for _, f := range fields {
		html := r.Field(ctx, deviceID, f)
		if !v.Nested {
			body = append(body, html)
			continue
		}
		switch f.Group {
		case GroupExport:
			exportItems = append(exportItems, html)
		case GroupGenerator:
			genItems = append(genItems, html)
		default:
			body = append(body, html)
			if f.Name == "ShowExport" {
				exportAt = len(body)
			}
		}
	}

	var toggles []toggleView
	if len(exportItems) > 0 && exportAt >= 0 {
		expID, genID := prefix+"_exp_div", prefix+"_gen_div"
		showExport := r.acc.Get(ctx, deviceID, "ShowExport") == "1"
		showGen := r.acc.Get(ctx, deviceID, "UseGeneratedPower") == "1"
		exportItems = append(exportItems, r.group(genID, showGen, genItems))
		group := r.group(expID, showExport, exportItems)

		body = append(body[:exportAt], append([]template.HTML{group}, body[exportAt:]...)...)
		toggles = []toggleView{
			{Control: r.ElementID(deviceID, "ShowExport"), Target: expID},
			{Control: r.ElementID(deviceID, "UseGeneratedPower"), Target: genID},
		}
	}
	if !v.LiveUpdate {
		body = append(body, r.Button(deviceID, "UpdateSettings"))
	}
	return body, toggles
}

// Save reads the posted form back into the device's variables and starts the
// reload cycle. It returns the fields that were written.
func (s *Service) Save(ctx context.Context, deviceID int, v Variant, form url.Values) ([]Field, error) {
	dev, fields, err := s.FieldsFor(ctx, deviceID, v)
	if err != nil {
		return nil, err
	}
	if dev.Disabled {
		return nil, ErrDeviceDisabled
	}
	if err := s.orch.Save(ctx, deviceID, v, fields, ReadForm(fields, form)); err != nil {
		return nil, err
	}
	return fields, nil
}

// Variable reads one variable; see Accessor.GetService.
func (s *Service) Variable(ctx context.Context, deviceID int, serviceID, name string) string {
	return NewAccessor(s.host).GetService(ctx, deviceID, serviceID, name)
}

// SetVariable writes one variable right away, the way the live-update variant
// does on every change. No reload is requested.
func (s *Service) SetVariable(ctx context.Context, deviceID int, v Variant, serviceID, name, value string) error {
	return NewAccessor(s.host).TwoTier(v.TwoTierWrites).SetService(ctx, deviceID, serviceID, name, value)
}

func (s *Service) Phase(deviceID int) Phase {
	return s.orch.Phase(deviceID)
}

func (s *Service) Displays() *Displays {
	return NewDisplays(NewAccessor(s.host))
}
