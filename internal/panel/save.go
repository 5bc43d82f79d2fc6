package panel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/observability"
)

// Phase is where a device is in the save cycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseSaving        Phase = "saving"
	PhaseReloadPending Phase = "reload_pending"
)

const (
	// DefaultReloadDelay outlasts a typical controller reload. It is not tied to
	// any acknowledgment.
	DefaultReloadDelay = 3 * time.Second

	SavedMessage = "Device details saved successfully."
	ReloadAction = "Reload"
)

const (
	SaveStatusCompleted = "completed"
	SaveStatusFailed    = "failed"
)

// SaveRecord describes one finished save cycle.
type SaveRecord struct {
	DeviceID    int
	Variant     string
	Values      map[string]string
	Status      string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Recorder keeps a history of save cycles.
type Recorder interface {
	RecordSave(ctx context.Context, rec SaveRecord) error
}

// Publisher announces saved settings to other consumers.
type Publisher interface {
	PublishSettings(deviceID int, values map[string]string) error
}

type OrchestratorOptions struct {
	UI           UI
	Recorder     Recorder
	Publisher    Publisher
	ReloadDelay  time.Duration
	ReadyTimeout time.Duration
	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())
}

// Orchestrator runs the save cycle: write every field, persist, request a
// controller reload, then clear the busy indicator and confirm after a delay.
// Saves are not debounced and not transactional.
type Orchestrator struct {
	host         Host
	ui           UI
	recorder     Recorder
	publisher    Publisher
	delay        time.Duration
	readyTimeout time.Duration
	afterFunc    func(time.Duration, func())
	now          func() time.Time

	mu        sync.Mutex
	saving    map[int]int
	reloading map[int]int
}

func NewOrchestrator(host Host, opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		host:         host,
		ui:           opts.UI,
		recorder:     opts.Recorder,
		publisher:    opts.Publisher,
		delay:        opts.ReloadDelay,
		readyTimeout: opts.ReadyTimeout,
		afterFunc:    opts.AfterFunc,
		now:          func() time.Time { return time.Now().UTC() },
		saving:       map[int]int{},
		reloading:    map[int]int{},
	}
	if o.ui == nil {
		o.ui = nopUI{}
	}
	if o.delay <= 0 {
		o.delay = DefaultReloadDelay
	}
	if o.afterFunc == nil {
		o.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return o
}

// Phase reports the furthest-behind save cycle for a device.
func (o *Orchestrator) Phase(deviceID int) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.saving[deviceID] > 0:
		return PhaseSaving
	case o.reloading[deviceID] > 0:
		return PhaseReloadPending
	default:
		return PhaseIdle
	}
}

// Save writes values for fields and starts the reload cycle. It returns once
// the reload has been requested; the confirmation follows asynchronously.
// A started cycle runs to completion even if ctx is cancelled.
func (o *Orchestrator) Save(ctx context.Context, deviceID int, v Variant, fields []Field, values map[string]string) error {
	ctx = context.WithoutCancel(ctx)
	started := o.now()
	o.transition(deviceID, PhaseIdle, PhaseSaving)
	o.ui.ShowBusy(deviceID, true)

	acc := NewAccessor(o.host).TwoTier(v.TwoTierWrites)
	if err := WriteFields(ctx, acc, deviceID, fields, values); err != nil {
		o.abort(ctx, deviceID, v, values, started, err)
		return err
	}
	if err := o.host.SaveUserData(ctx); err != nil {
		err = fmt.Errorf("save user data: %w", err)
		o.abort(ctx, deviceID, v, values, started, err)
		return err
	}

	if err := o.host.PerformAction(ctx, 0, ServiceGateway, ReloadAction, map[string]string{}); err != nil {
		slog.Warn("reload request failed", "device_id", deviceID, "error", err)
	}
	o.transition(deviceID, PhaseSaving, PhaseReloadPending)
	slog.Info("settings saved, reload requested", "device_id", deviceID, "variant", v.Name, "fields", len(fields))

	o.afterFunc(o.delay, func() {
		o.complete(deviceID, v, values, started)
	})
	return nil
}

func (o *Orchestrator) complete(deviceID int, v Variant, values map[string]string, started time.Time) {
	ctx := context.Background()
	if w, ok := o.host.(ReadyWaiter); ok && o.readyTimeout > 0 {
		wctx, cancel := context.WithTimeout(ctx, o.readyTimeout)
		if err := w.WaitReady(wctx); err != nil {
			slog.Warn("controller not ready after reload", "device_id", deviceID, "error", err)
		}
		cancel()
	}

	o.transition(deviceID, PhaseReloadPending, PhaseIdle)
	o.ui.ShowBusy(deviceID, false)
	o.ui.Notify(deviceID, SavedMessage)
	observability.SettingsSaves.WithLabelValues(v.Name, SaveStatusCompleted).Inc()

	o.record(ctx, SaveRecord{
		DeviceID:    deviceID,
		Variant:     v.Name,
		Values:      values,
		Status:      SaveStatusCompleted,
		StartedAt:   started,
		CompletedAt: o.now(),
	})
	if o.publisher != nil {
		if err := o.publisher.PublishSettings(deviceID, values); err != nil {
			slog.Warn("settings publish failed", "device_id", deviceID, "error", err)
		}
	}
}

func (o *Orchestrator) abort(ctx context.Context, deviceID int, v Variant, values map[string]string, started time.Time, cause error) {
	slog.Error("settings save failed", "device_id", deviceID, "variant", v.Name, "error", cause)
	o.transition(deviceID, PhaseSaving, PhaseIdle)
	o.ui.ShowBusy(deviceID, false)
	observability.SettingsSaves.WithLabelValues(v.Name, SaveStatusFailed).Inc()
	o.record(ctx, SaveRecord{
		DeviceID:    deviceID,
		Variant:     v.Name,
		Values:      values,
		Status:      SaveStatusFailed,
		Error:       cause.Error(),
		StartedAt:   started,
		CompletedAt: o.now(),
	})
}

func (o *Orchestrator) record(ctx context.Context, rec SaveRecord) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordSave(ctx, rec); err != nil {
		slog.Warn("save history write failed", "device_id", rec.DeviceID, "error", err)
	}
}

func (o *Orchestrator) transition(deviceID int, from, to Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch from {
	case PhaseSaving:
		o.saving[deviceID]--
		if o.saving[deviceID] <= 0 {
			delete(o.saving, deviceID)
		}
	case PhaseReloadPending:
		o.reloading[deviceID]--
		if o.reloading[deviceID] <= 0 {
			delete(o.reloading, deviceID)
		}
	}
	switch to {
	case PhaseSaving:
		o.saving[deviceID]++
	case PhaseReloadPending:
		o.reloading[deviceID]++
	}
}
