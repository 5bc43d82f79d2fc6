package panel

import (
	"context"
	"fmt"
	"log/slog"
)

// Accessor reads and writes plugin variables on the host.
type Accessor struct {
	host    Host
	twoTier bool
}

func NewAccessor(host Host) *Accessor {
	return &Accessor{host: host}
}

// TwoTier returns a copy that writes user_data and status separately when the
// host supports it.
func (a *Accessor) TwoTier(on bool) *Accessor {
	cp := *a
	cp.twoTier = on
	return &cp
}

// Get reads a smart meter variable.
func (a *Accessor) Get(ctx context.Context, deviceID int, name string) string {
	return a.GetService(ctx, deviceID, ServiceSmartMeter, name)
}

// GetService never fails: missing values, the "null" sentinel and host errors
// all read as "".
func (a *Accessor) GetService(ctx context.Context, deviceID int, serviceID, name string) string {
	if serviceID == "" {
		serviceID = ServiceSmartMeter
	}
	v, found, err := a.host.GetDeviceState(ctx, deviceID, serviceID, name)
	if err != nil {
		slog.Warn("variable read failed", "device_id", deviceID, "service", serviceID, "variable", name, "error", err)
		return ""
	}
	if !found || v == "null" {
		return ""
	}
	return v
}

func (a *Accessor) Set(ctx context.Context, deviceID int, name, value string) error {
	return a.SetService(ctx, deviceID, ServiceSmartMeter, name, value)
}

func (a *Accessor) SetService(ctx context.Context, deviceID int, serviceID, name, value string) error {
	if serviceID == "" {
		serviceID = ServiceSmartMeter
	}
	if a.twoTier {
		if th, ok := a.host.(TieredHost); ok {
			// user_data first so the value is there after the next reload, then
			// status so other readers see it now.
			if err := th.SetDeviceState(ctx, deviceID, serviceID, name, value, TierUserData); err != nil {
				return fmt.Errorf("set %s user_data: %w", name, err)
			}
			if err := th.SetDeviceState(ctx, deviceID, serviceID, name, value, TierStatus); err != nil {
				return fmt.Errorf("set %s status: %w", name, err)
			}
			return nil
		}
	}
	if err := a.host.SetDeviceStateVariablePersistent(ctx, deviceID, serviceID, name, value); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}
