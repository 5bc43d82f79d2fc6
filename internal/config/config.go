package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DBConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

type Config struct {
	Port     string
	LogLevel string

	// VeraURL is the controller's data_request endpoint base, e.g. http://vera:3480.
	VeraURL      string
	ReloadDelay  time.Duration
	ReadyTimeout time.Duration

	DeviceCacheTTL     time.Duration
	DeviceCacheRefresh string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTTopicPrefix string

	// DBDriver is "sqlite", "postgres" or "none".
	DBDriver   string
	SQLitePath string
	Postgres   DBConfig

	JWTPublicKeyPath string
	JWTRequiredRole  string
	CORSOrigins      []string
	OTLPEndpoint     string
}

var defaults = map[string]any{
	"smartmeter_panel_port": "8099",
	"log_level":             "info",
	"vera_url":              "http://127.0.0.1:3480",
	"reload_delay":          "3s",
	"reload_ready_timeout":  "30s",
	"device_cache_ttl":      "5m",
	"device_cache_refresh":  "@every 5m",
	"redis_addr":            "",
	"redis_password":        "",
	"redis_db":              0,
	"mqtt_broker_url":       "",
	"mqtt_client_id":        "smartmeter-panel",
	"mqtt_topic_prefix":     "smartmeter",
	"db_driver":             "sqlite",
	"sqlite_path":           "smartmeter-panel.db",
	"postgres_user":         "postgres",
	"postgres_password":     "",
	"postgres_db":           "smartmeter",
	"postgres_host":         "postgres",
	"postgres_port":         "5432",
	"postgres_sslmode":      "disable",
	"jwt_public_key_path":   "",
	"jwt_required_role":     "resident",
	"cors_origins":          "*",

	"otel_exporter_otlp_endpoint": "",
}

// Load reads the configuration from the environment, optionally layered over a
// YAML file named by CONFIG_PATH. Keys in the file are the lower-case
// environment names.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// PORT wins when set, the way container platforms expect.
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = v.GetString("smartmeter_panel_port")
	}

	cfg := &Config{
		Port:               port,
		LogLevel:           v.GetString("log_level"),
		VeraURL:            strings.TrimRight(strings.TrimSpace(v.GetString("vera_url")), "/"),
		ReloadDelay:        v.GetDuration("reload_delay"),
		ReadyTimeout:       v.GetDuration("reload_ready_timeout"),
		DeviceCacheTTL:     v.GetDuration("device_cache_ttl"),
		DeviceCacheRefresh: strings.TrimSpace(v.GetString("device_cache_refresh")),
		RedisAddr:          strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:      v.GetString("redis_password"),
		RedisDB:            v.GetInt("redis_db"),
		MQTTBrokerURL:      strings.TrimSpace(v.GetString("mqtt_broker_url")),
		MQTTClientID:       v.GetString("mqtt_client_id"),
		MQTTTopicPrefix:    v.GetString("mqtt_topic_prefix"),
		DBDriver:           strings.ToLower(strings.TrimSpace(v.GetString("db_driver"))),
		SQLitePath:         v.GetString("sqlite_path"),
		Postgres: DBConfig{
			User:     strings.TrimSpace(v.GetString("postgres_user")),
			Password: v.GetString("postgres_password"),
			DBName:   strings.TrimSpace(v.GetString("postgres_db")),
			Host:     strings.TrimSpace(v.GetString("postgres_host")),
			Port:     strings.TrimSpace(v.GetString("postgres_port")),
			SSLMode:  v.GetString("postgres_sslmode"),
		},
		JWTPublicKeyPath: strings.TrimSpace(v.GetString("jwt_public_key_path")),
		JWTRequiredRole:  strings.ToLower(strings.TrimSpace(v.GetString("jwt_required_role"))),
		CORSOrigins:      splitList(v.GetString("cors_origins")),
		OTLPEndpoint:     strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint")),
	}

	if cfg.VeraURL == "" {
		return nil, fmt.Errorf("missing required setting %q", "VERA_URL")
	}
	if cfg.ReloadDelay <= 0 {
		cfg.ReloadDelay = 3 * time.Second
	}
	if cfg.DeviceCacheTTL <= 0 {
		cfg.DeviceCacheTTL = 5 * time.Minute
	}
	switch cfg.DBDriver {
	case "sqlite", "postgres", "none":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	slog.Info("smartmeter-panel config loaded", "port", cfg.Port, "vera", cfg.VeraURL, "db", cfg.DBDriver, "redis", cfg.RedisAddr != "", "mqtt", cfg.MQTTBrokerURL)
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
