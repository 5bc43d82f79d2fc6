package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type publishCall struct {
	topic   string
	payload []byte
	retain  bool
}

type fakeClient struct {
	calls []publishCall
	err   error
}

func (f *fakeClient) Publish(topic string, payload []byte, retain bool) error {
	f.calls = append(f.calls, publishCall{topic: topic, payload: payload, retain: retain})
	return f.err
}

func TestSettingsPublisher_PublishesRetainedJSON(t *testing.T) {
	fc := &fakeClient{}
	p := NewSettingsPublisher(fc, "/home/meters/")
	p.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }

	if err := p.PublishSettings(42, map[string]string{"ShowGas": "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fc.calls) != 1 {
		t.Fatalf("calls=%d", len(fc.calls))
	}
	call := fc.calls[0]
	if call.topic != "home/meters/42/settings" || !call.retain {
		t.Fatalf("unexpected publish: topic=%q retain=%v", call.topic, call.retain)
	}
	var msg struct {
		DeviceID int               `json:"device_id"`
		Values   map[string]string `json:"values"`
		SavedAt  time.Time         `json:"saved_at"`
	}
	if err := json.Unmarshal(call.payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.DeviceID != 42 || msg.Values["ShowGas"] != "1" || !msg.SavedAt.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected payload: %+v", msg)
	}
}

func TestSettingsPublisher_DefaultPrefixAndErrors(t *testing.T) {
	fc := &fakeClient{err: errors.New("not connected")}
	p := NewSettingsPublisher(fc, "  ")
	if got := p.Topic(7); got != "smartmeter/7/settings" {
		t.Fatalf("topic=%q", got)
	}
	if err := p.PublishSettings(7, nil); err == nil {
		t.Fatalf("expected broker error")
	}
}
