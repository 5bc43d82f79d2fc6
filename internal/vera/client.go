package vera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/observability"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/panel"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrControllerError is returned when the controller answers a request with an
// "ERROR:" body.
var ErrControllerError = errors.New("controller returned an error")

// Client talks to a Vera or openLuup controller through its data_request API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pollEvery  time.Duration
}

type httpStatusError struct {
	status int
	body   string
}

func (e httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("controller returned status %d", e.status)
	}
	return fmt.Sprintf("controller returned status %d: %s", e.status, e.body)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval sets how often WaitReady probes the controller.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollEvery = d }
}

// New returns a client for baseURL, e.g. http://192.168.1.10:3480.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		pollEvery: time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ panel.Host = (*Client)(nil)
var _ panel.ReadyWaiter = (*Client)(nil)

func (c *Client) GetDeviceState(ctx context.Context, deviceID int, serviceID, name string) (string, bool, error) {
	body, err := c.dataRequest(ctx, "variableget", url.Values{
		"DeviceNum": {strconv.Itoa(deviceID)},
		"serviceId": {serviceID},
		"Variable":  {name},
	})
	if err != nil {
		return "", false, err
	}
	if len(body) == 0 {
		return "", false, nil
	}
	return string(body), true, nil
}

func (c *Client) SetDeviceStateVariablePersistent(ctx context.Context, deviceID int, serviceID, name, value string) error {
	_, err := c.dataRequest(ctx, "variableset", url.Values{
		"DeviceNum": {strconv.Itoa(deviceID)},
		"serviceId": {serviceID},
		"Variable":  {name},
		"Value":     {value},
	})
	return err
}

func (c *Client) ListDevices(ctx context.Context) ([]panel.Device, error) {
	ud, err := c.userData(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]panel.Device, 0, len(ud.Devices))
	for _, d := range ud.Devices {
		out = append(out, d.device())
	}
	return out, nil
}

// DisplayedDeviceName falls back to "#<id>" for unnamed devices, like the
// controller UI does.
func (c *Client) DisplayedDeviceName(ctx context.Context, deviceID int) (string, error) {
	ud, err := c.userData(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range ud.Devices {
		if int(d.ID) != deviceID {
			continue
		}
		if name := strings.TrimSpace(d.Name); name != "" {
			return name, nil
		}
		return "#" + strconv.Itoa(deviceID), nil
	}
	return "", fmt.Errorf("device %d: %w", deviceID, panel.ErrDeviceNotFound)
}

func (c *Client) PerformAction(ctx context.Context, deviceID int, serviceID, action string, params map[string]string) error {
	q := url.Values{
		"DeviceNum": {strconv.Itoa(deviceID)},
		"serviceId": {serviceID},
		"action":    {action},
	}
	for k, v := range params {
		q.Set(k, v)
	}
	_, err := c.dataRequest(ctx, "action", q)
	return err
}

// SaveUserData is a no-op: variableset is persisted by the controller itself.
func (c *Client) SaveUserData(context.Context) error {
	observability.HostRequests.WithLabelValues("save_user_data", "ok").Inc()
	return nil
}

// WaitReady polls the controller until it answers "OK" to an alive probe or
// ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	t := time.NewTicker(c.pollEvery)
	defer t.Stop()
	for {
		body, err := c.dataRequest(ctx, "alive", url.Values{})
		if err == nil && strings.TrimSpace(string(body)) == "OK" {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("wait for controller: %w", err)
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) userData(ctx context.Context) (userData, error) {
	body, err := c.dataRequest(ctx, "user_data", url.Values{"output_format": {"json"}})
	if err != nil {
		return userData{}, err
	}
	var ud userData
	if err := json.Unmarshal(body, &ud); err != nil {
		return userData{}, fmt.Errorf("decode user_data: %w", err)
	}
	return ud, nil
}

func (c *Client) dataRequest(ctx context.Context, id string, q url.Values) ([]byte, error) {
	ctx, span := otel.Tracer("smartmeter-panel/vera").Start(ctx, "data_request "+id)
	defer span.End()
	span.SetAttributes(attribute.String("vera.request", id))

	body, err := c.do(ctx, id, q)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.HostRequests.WithLabelValues(id, result).Inc()
	return body, err
}

func (c *Client) do(ctx context.Context, id string, q url.Values) ([]byte, error) {
	q.Set("id", id)
	u := c.baseURL + "/data_request?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	if msg, ok := strings.CutPrefix(strings.TrimSpace(string(body)), "ERROR:"); ok {
		return nil, fmt.Errorf("%s: %w:%s", id, ErrControllerError, msg)
	}
	return body, nil
}
