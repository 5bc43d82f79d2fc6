package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ClientAPI is the broker surface the publisher needs, so it can be faked.
type ClientAPI interface {
	Publish(topic string, payload []byte, retain bool) error
}

type Client struct {
	client mqtt.Client
}

func Connect(brokerURL, clientID string) (*Client, error) {
	opts := mqtt.NewClientOptions()
	url := strings.TrimSpace(brokerURL)
	if url == "" {
		url = "mqtt://mosquitto:1883"
	}
	if strings.HasPrefix(url, "mqtt://") {
		url = "tcp://" + strings.TrimPrefix(url, "mqtt://")
	}
	opts.AddBroker(url)
	if strings.TrimSpace(clientID) == "" {
		clientID = "smartmeter-panel-" + time.Now().Format("150405.000")
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	if strings.HasPrefix(url, "ssl://") || strings.HasPrefix(url, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	}
	opts.OnConnect = func(_ mqtt.Client) {
		slog.Info("mqtt connected", "broker", url)
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if ok := tok.WaitTimeout(15 * time.Second); !ok {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

func (c *Client) Publish(topic string, payload []byte, retain bool) error {
	tok := c.client.Publish(topic, 1, retain, payload)
	if !tok.WaitTimeout(5 * time.Second) {
		return errors.New("mqtt publish timed out")
	}
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(1000)
}

// SettingsPublisher announces saved smart meter settings, retained, on
// <prefix>/<device id>/settings.
type SettingsPublisher struct {
	client ClientAPI
	prefix string
	now    func() time.Time
}

func NewSettingsPublisher(client ClientAPI, prefix string) *SettingsPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "smartmeter"
	}
	return &SettingsPublisher{client: client, prefix: prefix, now: time.Now}
}

type settingsMessage struct {
	DeviceID int               `json:"device_id"`
	Values   map[string]string `json:"values"`
	SavedAt  time.Time         `json:"saved_at"`
}

func (p *SettingsPublisher) Topic(deviceID int) string {
	return p.prefix + "/" + strconv.Itoa(deviceID) + "/settings"
}

func (p *SettingsPublisher) PublishSettings(deviceID int, values map[string]string) error {
	b, err := json.Marshal(settingsMessage{DeviceID: deviceID, Values: values, SavedAt: p.now().UTC()})
	if err != nil {
		return err
	}
	return p.client.Publish(p.Topic(deviceID), b, true)
}
