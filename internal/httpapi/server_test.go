package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/panel"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/realtime"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type memHost struct {
	mu      sync.Mutex
	vars    map[string]string
	devices []panel.Device
	actions int
	// listLimit makes ListDevices fail once it has answered that many calls.
	listLimit int
	lists     int
}

func newMemHost() *memHost {
	return &memHost{
		vars: map[string]string{},
		devices: []panel.Device{
			{ID: 42, Name: "Smart Meter", Category: panel.CategoryPowerMeter},
			{ID: 50, Name: "Solar Inverter", Category: panel.CategoryPowerMeter},
			{ID: 60, Name: "Old Meter", Category: panel.CategoryPowerMeter, Disabled: true},
		},
	}
}

func key(deviceID int, serviceID, name string) string {
	return strconv.Itoa(deviceID) + "/" + serviceID + "/" + name
}

func (h *memHost) GetDeviceState(_ context.Context, deviceID int, serviceID, name string) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.vars[key(deviceID, serviceID, name)]
	return v, ok, nil
}

func (h *memHost) SetDeviceStateVariablePersistent(_ context.Context, deviceID int, serviceID, name, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vars[key(deviceID, serviceID, name)] = value
	return nil
}

func (h *memHost) ListDevices(context.Context) ([]panel.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lists++
	if h.listLimit > 0 && h.lists > h.listLimit {
		return nil, errors.New("controller busy")
	}
	return h.devices, nil
}

func (h *memHost) DisplayedDeviceName(_ context.Context, deviceID int) (string, error) {
	for _, d := range h.devices {
		if d.ID == deviceID {
			return d.Name, nil
		}
	}
	return "", panel.ErrDeviceNotFound
}

func (h *memHost) PerformAction(context.Context, int, string, string, map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions++
	return nil
}

func (h *memHost) SaveUserData(context.Context) error { return nil }

func (h *memHost) get(deviceID int, name string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.vars[key(deviceID, panel.ServiceSmartMeter, name)]
}

type testEnv struct {
	host *memHost
	hub  *realtime.Hub
	repo *store.Repo
	fire func()
	ts   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.OpenSQLite("file:memdb_" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}

	env := &testEnv{host: newMemHost(), hub: realtime.NewHub(), repo: repo}
	var (
		mu      sync.Mutex
		pending []func()
	)
	env.fire = func() {
		mu.Lock()
		fs := pending
		pending = nil
		mu.Unlock()
		for _, f := range fs {
			f()
		}
	}
	svc := panel.NewService(env.host, panel.Options{Orchestrator: panel.OrchestratorOptions{
		UI:       env.hub,
		Recorder: repo,
		AfterFunc: func(_ time.Duration, f func()) {
			mu.Lock()
			defer mu.Unlock()
			pending = append(pending, f)
		},
	}})

	r := chi.NewRouter()
	NewServer(svc, repo, env.hub).Register(r)
	env.ts = httptest.NewServer(r)
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return res, string(b)
}

func TestSettingsPage(t *testing.T) {
	env := newTestEnv(t)
	env.host.vars[key(42, panel.ServiceSmartMeter, "ShowGas")] = "1"

	res, body := env.do(t, http.MethodGet, "/panel/42/settings?variant=altui", "", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", res.StatusCode, body)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content-type=%q", ct)
	}
	for _, want := range []string{`id="rbSM_ShowGas42"`, `<option value="1" selected>Yes</option>`, "form-control"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q", want)
		}
	}

	cases := map[string]int{
		"/panel/99/settings":             http.StatusNotFound,
		"/panel/abc/settings":            http.StatusBadRequest,
		"/panel/42/settings?variant=ui4": http.StatusBadRequest,
	}
	for path, want := range cases {
		if res, body := env.do(t, http.MethodGet, path, "", ""); res.StatusCode != want {
			t.Fatalf("%s: status=%d want %d body=%s", path, res.StatusCode, want, body)
		}
	}
}

func TestSettingsSave_ReloadCycleAndHistory(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	form := url.Values{"ShowGas": {"1"}, "GeneratedPowerSource": {"50"}, "Syslog": {"10.0.0.2:514"}}
	res, body := env.do(t, http.MethodPost, "/panel/42/settings?variant=ui7", "application/x-www-form-urlencoded", form.Encode())
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", res.StatusCode, body)
	}
	var saved struct {
		Phase  string   `json:"phase"`
		Fields []string `json:"fields"`
	}
	if err := json.Unmarshal([]byte(body), &saved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if saved.Phase != string(panel.PhaseReloadPending) || len(saved.Fields) == 0 {
		t.Fatalf("unexpected response: %s", body)
	}
	if env.host.get(42, "ShowGas") != "1" || env.host.get(42, "Syslog") != "10.0.0.2:514" {
		t.Fatalf("values not written")
	}

	readEvent := func() realtime.Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read ws: %v", err)
		}
		var ev realtime.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	}
	if ev := readEvent(); ev.Type != realtime.EventBusy || !ev.Busy || ev.DeviceID != 42 {
		t.Fatalf("expected busy on, got %+v", ev)
	}

	env.fire()
	if ev := readEvent(); ev.Type != realtime.EventBusy || ev.Busy {
		t.Fatalf("expected busy off, got %+v", ev)
	}
	if ev := readEvent(); ev.Type != realtime.EventNotify || ev.Message != panel.SavedMessage {
		t.Fatalf("expected notify, got %+v", ev)
	}

	res, body = env.do(t, http.MethodGet, "/api/devices/42/save-status", "", "")
	if res.StatusCode != http.StatusOK || !strings.Contains(body, `"phase":"idle"`) {
		t.Fatalf("save-status: %d %s", res.StatusCode, body)
	}
	res, body = env.do(t, http.MethodGet, "/api/devices/42/saves?limit=5", "", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("saves: %d %s", res.StatusCode, body)
	}
	var saves []store.SaveRecord
	if err := json.Unmarshal([]byte(body), &saves); err != nil {
		t.Fatalf("decode saves: %v", err)
	}
	if len(saves) != 1 || saves[0].Status != panel.SaveStatusCompleted {
		t.Fatalf("unexpected saves: %s", body)
	}
}

func TestSettingsSave_DisabledDevice(t *testing.T) {
	env := newTestEnv(t)
	res, body := env.do(t, http.MethodPost, "/panel/60/settings", "application/x-www-form-urlencoded", "ShowGas=1")
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status=%d body=%s", res.StatusCode, body)
	}
	if env.host.actions != 0 {
		t.Fatalf("no reload expected")
	}
}

func TestSettingsSave_ListsDevicesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.host.listLimit = 1

	res, body := env.do(t, http.MethodPost, "/panel/42/settings?variant=ui7", "application/x-www-form-urlencoded", "ShowGas=1")
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", res.StatusCode, body)
	}
	if !strings.Contains(body, `"ShowGas"`) {
		t.Fatalf("written fields missing: %s", body)
	}
	if env.host.lists != 1 || env.host.actions != 1 {
		t.Fatalf("lists=%d actions=%d", env.host.lists, env.host.actions)
	}
}

func TestVariables(t *testing.T) {
	env := newTestEnv(t)

	res, body := env.do(t, http.MethodPut, "/api/devices/42/variables/ShowLines?variant=ui5", "application/json", `{"value":"1"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put: %d %s", res.StatusCode, body)
	}
	if env.host.get(42, "ShowLines") != "1" || env.host.actions != 0 {
		t.Fatalf("live write should store without reload")
	}

	res, body = env.do(t, http.MethodGet, "/api/devices/42/variables/ShowLines", "", "")
	if res.StatusCode != http.StatusOK || strings.TrimSpace(body) != `{"value":"1"}` {
		t.Fatalf("get: %d %s", res.StatusCode, body)
	}

	res, _ = env.do(t, http.MethodPut, "/api/devices/42/variables/ShowLines", "application/json", `{"val":"1"}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field should be rejected, status=%d", res.StatusCode)
	}
}

func TestDisplaysAndPowerSources(t *testing.T) {
	env := newTestEnv(t)
	env.host.vars[key(42, panel.ServiceGas, "Flow")] = "abc"

	res, body := env.do(t, http.MethodGet, "/api/devices/42/display/gas", "", "")
	if res.StatusCode != http.StatusOK || body != "" {
		t.Fatalf("gas: %d %q", res.StatusCode, body)
	}
	env.host.vars[key(42, panel.ServiceGas, "Flow")] = "250"
	if _, body := env.do(t, http.MethodGet, "/api/devices/42/display/gas", "", ""); !strings.Contains(body, "250 <small>l/h</small>") {
		t.Fatalf("gas: %q", body)
	}
	if _, body := env.do(t, http.MethodGet, "/api/devices/42/display/meter", "", ""); !strings.Contains(body, "Meter Type :") {
		t.Fatalf("meter: %q", body)
	}

	res, body = env.do(t, http.MethodGet, "/api/devices/power-sources?for=42", "", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sources: %d %s", res.StatusCode, body)
	}
	var sources []panel.Option
	if err := json.Unmarshal([]byte(body), &sources); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sources) != 2 || sources[0].Value != "50" {
		t.Fatalf("sources=%+v", sources)
	}
}
