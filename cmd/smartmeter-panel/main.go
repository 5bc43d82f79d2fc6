package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/cache"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/config"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/httpapi"
	appmw "github.com/reneboer/Vera-Dutch-Smartmeter/internal/middleware"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/mqtt"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/observability"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/panel"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/realtime"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/store"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/vera"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const serviceName = "smartmeter-panel"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	shutdownTelemetry, promHandler, tracer := observability.Setup(serviceName, cfg.OTLPEndpoint)
	defer shutdownTelemetry()

	host := vera.New(cfg.VeraURL)

	devices := cache.NewDevices(host, setupDeviceStore(cfg))
	refresher, err := cache.StartRefresher(cfg.DeviceCacheRefresh, devices)
	if err != nil {
		slog.Error("invalid device cache schedule", "schedule", cfg.DeviceCacheRefresh, "error", err)
		os.Exit(1)
	}
	defer refresher.Stop()

	hub := realtime.NewHub()
	orch := panel.OrchestratorOptions{
		UI:           hub,
		ReloadDelay:  cfg.ReloadDelay,
		ReadyTimeout: cfg.ReadyTimeout,
	}

	var history httpapi.SaveHistory
	if repo := setupRepo(cfg); repo != nil {
		orch.Recorder = repo
		history = repo
	}

	if cfg.MQTTBrokerURL != "" {
		mq, err := mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
		if err != nil {
			slog.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()
		orch.Publisher = mqtt.NewSettingsPublisher(mq, cfg.MQTTTopicPrefix)
	}

	svc := panel.NewService(host, panel.Options{Devices: devices, Orchestrator: orch})
	srv := httpapi.NewServer(svc, history, hub)

	var auth *appmw.Authenticator
	if cfg.JWTPublicKeyPath != "" {
		pubKey, err := appmw.LoadRSAPublicKey(cfg.JWTPublicKeyPath)
		if err != nil {
			slog.Error("failed to load jwt public key", "path", cfg.JWTPublicKeyPath, "error", err)
			os.Exit(1)
		}
		if auth, err = appmw.NewAuthenticator(pubKey, cfg.JWTRequiredRole); err != nil {
			slog.Error("invalid jwt settings", "error", err)
			os.Exit(1)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(observability.Middleware(tracer, serviceName))
	r.Use(cors.Handler(corsOptions(cfg.CORSOrigins)))

	r.Handle("/metrics", promHandler)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Middleware)
		}
		srv.Register(r)
	})

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("smartmeter-panel listening", "addr", httpSrv.Addr, "auth", auth != nil)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
	}
}

// corsOptions never combines a wildcard origin with credentials.
func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}
}

func setupDeviceStore(cfg *config.Config) cache.Store {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(cfg.DeviceCacheTTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if pong, err := client.Ping(context.Background()).Result(); err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	} else {
		slog.Info("connected to redis", "pong", pong)
	}
	return cache.NewRedis(client, cfg.DeviceCacheTTL)
}

func setupRepo(cfg *config.Config) *store.Repo {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "none":
		return nil
	case "postgres":
		p := cfg.Postgres
		db, err = store.OpenPostgres(p.User, p.Password, p.DBName, p.Host, p.Port, p.SSLMode)
	default:
		db, err = store.OpenSQLite(cfg.SQLitePath)
	}
	if err != nil {
		slog.Error("db connect failed", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}
	return repo
}

func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}
