package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/panel"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// Store holds the last device list fetched from the controller.
type Store interface {
	Get(ctx context.Context) ([]panel.Device, bool, error)
	Set(ctx context.Context, devices []panel.Device) error
}

type Memory struct {
	mu        sync.RWMutex
	devices   []panel.Device
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now}
}

func (c *Memory) Get(context.Context) ([]panel.Device, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.devices == nil || c.now().After(c.expiresAt) {
		return nil, false, nil
	}
	return append([]panel.Device(nil), c.devices...), true, nil
}

func (c *Memory) Set(_ context.Context, devices []panel.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = append([]panel.Device{}, devices...)
	c.expiresAt = c.now().Add(c.ttl)
	return nil
}

const redisKey = "smartmeter:devices"

// Redis shares the device list between panel instances.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context) ([]panel.Device, bool, error) {
	b, err := c.rdb.Get(ctx, redisKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var devices []panel.Device
	if err := json.Unmarshal(b, &devices); err != nil {
		return nil, false, err
	}
	return devices, true, nil
}

func (c *Redis) Set(ctx context.Context, devices []panel.Device) error {
	b, err := json.Marshal(devices)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, redisKey, b, c.ttl).Err()
}

// Devices serves the device list from a Store, falling back to the controller
// on a miss. Cache failures are logged and bypassed.
type Devices struct {
	source panel.DeviceLister
	store  Store
}

func NewDevices(source panel.DeviceLister, store Store) *Devices {
	return &Devices{source: source, store: store}
}

func (d *Devices) ListDevices(ctx context.Context) ([]panel.Device, error) {
	devices, ok, err := d.store.Get(ctx)
	if err != nil {
		slog.Warn("device cache read failed", "error", err)
	}
	if ok {
		return devices, nil
	}
	return d.Refresh(ctx)
}

// Refresh fetches the device list from the controller and stores it.
func (d *Devices) Refresh(ctx context.Context) ([]panel.Device, error) {
	devices, err := d.source.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.store.Set(ctx, devices); err != nil {
		slog.Warn("device cache write failed", "error", err)
	}
	return devices, nil
}

// StartRefresher refreshes the cache on a cron schedule, e.g. "@every 5m".
// The returned cron must be stopped by the caller.
func StartRefresher(spec string, d *Devices) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		devices, err := d.Refresh(ctx)
		if err != nil {
			slog.Warn("device cache refresh failed", "error", err)
			return
		}
		slog.Debug("device cache refreshed", "devices", len(devices))
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
