package panel

import "context"

// Service identifiers. Keep in sync with the plugin's controller-side code.
const (
	ServiceSmartMeter = "urn:rboer-com:serviceId:SmartMeter1"
	ServiceGas        = "urn:rboer-com:serviceId:SmartMeterGAS1"
	ServiceGateway    = "urn:micasaverde-com:serviceId:HomeAutomationGateway1"
)

const (
	DeviceTypeBinaryLight = "urn:schemas-upnp-org:device:BinaryLight:1"

	CategorySwitch     = 3
	CategoryPowerMeter = 21
)

// Device is the controller's view of a device, as far as the panels care.
type Device struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Disabled   bool   `json:"disabled"`
	Category   int    `json:"category_num"`
	DeviceType string `json:"device_type"`
	ParentID   int    `json:"id_parent"`
}

// Host is the controller API the panels are built on.
type Host interface {
	// GetDeviceState returns found=false when the variable does not exist.
	GetDeviceState(ctx context.Context, deviceID int, serviceID, name string) (value string, found bool, err error)
	SetDeviceStateVariablePersistent(ctx context.Context, deviceID int, serviceID, name, value string) error
	ListDevices(ctx context.Context) ([]Device, error)
	DisplayedDeviceName(ctx context.Context, deviceID int) (string, error)
	// PerformAction is fire-and-forget: a nil error only means the request was accepted.
	PerformAction(ctx context.Context, deviceID int, serviceID, action string, params map[string]string) error
	SaveUserData(ctx context.Context) error
}

// Tier selects which copy of a variable a TieredHost writes.
type Tier int

const (
	// TierUserData survives a controller reload.
	TierUserData Tier = iota
	// TierStatus is the in-memory copy other readers see right away.
	TierStatus
)

// TieredHost is implemented by hosts that keep user_data and status apart.
type TieredHost interface {
	SetDeviceState(ctx context.Context, deviceID int, serviceID, name, value string, tier Tier) error
}

// ReadyWaiter is implemented by hosts that can tell when a reload has finished.
type ReadyWaiter interface {
	WaitReady(ctx context.Context) error
}

// DeviceLister is the subset of Host used to enumerate devices. The device
// cache implements it too.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]Device, error)
}

// UI receives the indicator and notification events a panel raises.
type UI interface {
	ShowBusy(deviceID int, busy bool)
	Notify(deviceID int, message string)
}

type nopUI struct{}

func (nopUI) ShowBusy(int, bool) {}
func (nopUI) Notify(int, string) {}
