package panel

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

type hostCall struct {
	Op      string
	Device  int
	Service string
	Name    string
	Value   string
	Tier    Tier
}

// fakeHost is an in-memory controller. Variables are keyed by
// device/service/name.
type fakeHost struct {
	mu       sync.Mutex
	vars     map[string]string
	devices  []Device
	calls    []hostCall
	getErr   error
	setErr   map[string]error
	saveErr  error
	readyErr error
	ready    int
	names    int
	// afterSet runs after every successful persistent write.
	afterSet func(name string)
}

func newFakeHost(devices ...Device) *fakeHost {
	return &fakeHost{vars: map[string]string{}, devices: devices, setErr: map[string]error{}}
}

func varKey(deviceID int, serviceID, name string) string {
	return strconv.Itoa(deviceID) + "/" + serviceID + "/" + name
}

func (h *fakeHost) put(deviceID int, name, value string) {
	h.putService(deviceID, ServiceSmartMeter, name, value)
}

func (h *fakeHost) putService(deviceID int, serviceID, name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vars[varKey(deviceID, serviceID, name)] = value
}

func (h *fakeHost) value(deviceID int, name string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.vars[varKey(deviceID, ServiceSmartMeter, name)]
	return v, ok
}

func (h *fakeHost) callsOf(op string) []hostCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hostCall
	for _, c := range h.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (h *fakeHost) record(c hostCall) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, c)
}

func (h *fakeHost) GetDeviceState(_ context.Context, deviceID int, serviceID, name string) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.getErr != nil {
		return "", false, h.getErr
	}
	v, ok := h.vars[varKey(deviceID, serviceID, name)]
	return v, ok, nil
}

func (h *fakeHost) SetDeviceStateVariablePersistent(ctx context.Context, deviceID int, serviceID, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.record(hostCall{Op: "set", Device: deviceID, Service: serviceID, Name: name, Value: value})
	h.mu.Lock()
	if err := h.setErr[name]; err != nil {
		h.mu.Unlock()
		return err
	}
	h.vars[varKey(deviceID, serviceID, name)] = value
	after := h.afterSet
	h.mu.Unlock()
	if after != nil {
		after(name)
	}
	return nil
}

func (h *fakeHost) ListDevices(context.Context) ([]Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Device(nil), h.devices...), nil
}

func (h *fakeHost) DisplayedDeviceName(_ context.Context, deviceID int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.names++
	for _, d := range h.devices {
		if d.ID == deviceID {
			return d.Name, nil
		}
	}
	return "", ErrDeviceNotFound
}

func (h *fakeHost) PerformAction(ctx context.Context, deviceID int, serviceID, action string, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.record(hostCall{Op: "action", Device: deviceID, Service: serviceID, Name: action})
	return nil
}

func (h *fakeHost) SaveUserData(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.record(hostCall{Op: "save_user_data"})
	return h.saveErr
}

// tieredHost adds the two-tier setter on top of fakeHost.
type tieredHost struct {
	*fakeHost
}

func (h tieredHost) SetDeviceState(_ context.Context, deviceID int, serviceID, name, value string, tier Tier) error {
	h.record(hostCall{Op: "set_tier", Device: deviceID, Service: serviceID, Name: name, Value: value, Tier: tier})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vars[varKey(deviceID, serviceID, name)] = value
	return nil
}

// readyHost adds a readiness probe.
type readyHost struct {
	*fakeHost
}

func (h readyHost) WaitReady(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready++
	return h.readyErr
}

type uiEvent struct {
	Device  int
	Busy    *bool
	Message string
}

type recordingUI struct {
	mu     sync.Mutex
	events []uiEvent
}

func (u *recordingUI) ShowBusy(deviceID int, busy bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	b := busy
	u.events = append(u.events, uiEvent{Device: deviceID, Busy: &b})
}

func (u *recordingUI) Notify(deviceID int, message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, uiEvent{Device: deviceID, Message: message})
}

func (u *recordingUI) snapshot() []uiEvent {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]uiEvent(nil), u.events...)
}

// manualTimer captures scheduled callbacks so tests can fire them.
type manualTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
}

func (m *manualTimer) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.funcs = append(m.funcs, f)
}

func (m *manualTimer) fireAll() {
	m.mu.Lock()
	funcs := m.funcs
	m.funcs = nil
	m.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

type memRecorder struct {
	mu   sync.Mutex
	recs []SaveRecord
}

func (r *memRecorder) RecordSave(_ context.Context, rec SaveRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	values map[int]map[string]string
	err    error
}

func (p *memPublisher) PublishSettings(deviceID int, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.values == nil {
		p.values = map[int]map[string]string{}
	}
	p.values[deviceID] = values
	return p.err
}

var errHost = errors.New("controller unreachable")

func meterDevices() []Device {
	return []Device{
		{ID: 42, Name: "Smart Meter", Category: CategoryPowerMeter},
		{ID: 43, Name: "Smart Meter L1", Category: CategoryPowerMeter, ParentID: 42},
		{ID: 50, Name: "Solar Inverter", Category: CategoryPowerMeter},
		{ID: 51, Name: "Lamp", Category: CategorySwitch, DeviceType: DeviceTypeBinaryLight},
		{ID: 52, Name: "Dimmer", Category: CategorySwitch, DeviceType: "urn:schemas-upnp-org:device:DimmableLight:1"},
	}
}
