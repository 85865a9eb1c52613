// Package main runs the chess session server: the REST API, the optional
// web client with its websocket endpoint, and the journal CLI.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chessmatch/cmd/chess-server/cli"
	"chessmatch/internal/server/archive"
	"chessmatch/internal/server/config"
	"chessmatch/internal/server/http"
	"chessmatch/internal/server/obslog"
	"chessmatch/internal/server/processor"
	"chessmatch/internal/server/redisbus"
	"chessmatch/internal/server/service"
	"chessmatch/internal/server/storage"
	"chessmatch/internal/server/webserver"
)

const (
	gracefulShutdownTimeout = time.Second * 5
	devSecret               = "dev-secret-minimum-32-characters-long"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "db" {
		if err := cli.Run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "CLI error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "Optional YAML config file")
	apiHost := flag.String("api-host", "localhost", "API server host")
	apiPort := flag.Int("api-port", 8080, "API server port")
	dev := flag.Bool("dev", false, "Development mode (relaxed rate limits, fixed token secret)")
	storagePath := flag.String("storage-path", "", "Path to SQLite journal (disables persistence if empty)")
	redisURL := flag.String("redis-url", "", "Redis URL for the event mirror (disabled if empty)")
	databaseURL := flag.String("database-url", "", "PostgreSQL URL for the results archive (disabled if empty)")
	pidPath := flag.String("pid", "", "Optional path to write PID file")
	pidLock := flag.Bool("pid-lock", false, "Lock PID file to allow only one instance (requires -pid)")
	serve := flag.Bool("serve", false, "Enable web UI server")
	webHost := flag.String("web-host", "localhost", "Web UI server host")
	webPort := flag.Int("web-port", 9090, "Web UI server port")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	// explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api-host":
			cfg.API.Host = *apiHost
		case "api-port":
			cfg.API.Port = *apiPort
		case "dev":
			cfg.Dev = *dev
		case "storage-path":
			cfg.Storage.Path = *storagePath
		case "redis-url":
			cfg.Redis.URL = *redisURL
		case "database-url":
			cfg.Archive.DatabaseURL = *databaseURL
		case "pid":
			cfg.PIDFile = *pidPath
		case "pid-lock":
			cfg.PIDLock = *pidLock
		case "serve":
			cfg.Web.Serve = *serve
		case "web-host":
			cfg.Web.Host = *webHost
		case "web-port":
			cfg.Web.Port = *webPort
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := obslog.Init(obslog.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer obslog.Sync()
	log := obslog.L()

	if cfg.PIDFile != "" {
		pid, err := acquirePIDFile(cfg.PIDFile, cfg.PIDLock)
		if err != nil {
			return err
		}
		defer pid.Release()
		log.Info("pid_file", zap.String("path", cfg.PIDFile), zap.Bool("lock", cfg.PIDLock))
	}

	// 1. Journal (optional)
	var store *storage.Store
	if cfg.Storage.Path != "" {
		store, err = storage.NewStore(cfg.Storage.Path, cfg.Dev)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		if err := store.InitDB(); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn("storage_close", zap.Error(err))
			}
		}()
		log.Info("storage_enabled", zap.String("path", cfg.Storage.Path))
	} else {
		log.Info("storage_disabled")
	}

	secret, err := tokenSecret(cfg)
	if err != nil {
		return err
	}

	// 2. Registry
	svc := service.New(store, service.Config{
		WaitingTTL:   cfg.Session.WaitingTTL,
		InitialClock: cfg.Session.InitialClock,
		Secret:       secret,
		TokenTTL:     cfg.Auth.TokenTTL,
	})
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go svc.RunCleanupJob(cleanupCtx, cfg.Session.ReapInterval)

	// 3. Event fan-out
	events := processor.NewEventQueue(cfg.Events.Workers, cfg.Events.QueueSize)
	hub := webserver.NewHub()
	events.Subscribe(hub)

	if cfg.Redis.URL != "" {
		pub, err := redisbus.Dial(cfg.Redis.URL, cfg.Redis.SnapshotTTL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer pub.Close()
		events.Subscribe(pub)
		log.Info("redis_mirror_enabled")
	}

	if cfg.Archive.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.Archive.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect archive: %w", err)
		}
		defer repo.Close()
		migrateCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		err = repo.Migrate(migrateCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}
		events.Subscribe(repo)
		log.Info("archive_enabled")
	}

	// 4. Processor and REST app
	proc := processor.New(svc, events)
	app := http.NewFiberApp(proc, svc, http.AppConfig{DevMode: cfg.Dev, AccessLog: cfg.Dev})

	apiAddr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	go func() {
		log.Info("api_listen",
			zap.String("addr", apiAddr),
			zap.Bool("dev", cfg.Dev),
			zap.String("sessions", fmt.Sprintf("http://%s/api/v1/sessions", apiAddr)))
		if err := app.Listen(apiAddr); err != nil {
			log.Error("api_listen_failed", zap.Error(err))
		}
	}()

	// 5. Web UI and websocket server (optional)
	webCtx, webCancel := context.WithCancel(context.Background())
	defer webCancel()
	if cfg.Web.Serve {
		web, err := webserver.New(proc, svc, hub, fmt.Sprintf("http://%s", apiAddr))
		if err != nil {
			return err
		}
		webAddr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
		go func() {
			log.Info("web_listen", zap.String("addr", webAddr))
			if err := webserver.ListenAndServe(webCtx, webAddr, web.Handler()); err != nil {
				log.Error("web_listen_failed", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutdown", zap.Stringer("signal", sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()

	// stop intake first, then drain events, then wake pollers
	hub.Close()
	webCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("api_forced_shutdown", zap.Error(err))
	}
	cleanupCancel()
	if err := proc.Close(); err != nil {
		log.Warn("event_queue_close", zap.Error(err))
	}
	if err := svc.Shutdown(gracefulShutdownTimeout); err != nil {
		log.Warn("service_shutdown", zap.Error(err))
	}

	log.Info("server_exited")
	return nil
}

// tokenSecret picks the participant token key: configured, fixed in dev
// mode, or random per process
func tokenSecret(cfg config.Config) ([]byte, error) {
	switch {
	case cfg.Auth.Secret != "":
		return []byte(cfg.Auth.Secret), nil
	case cfg.Dev:
		obslog.L().Info("token_secret", zap.String("source", "dev"))
		return []byte(devSecret), nil
	default:
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		obslog.L().Info("token_secret", zap.String("source", "random"), zap.String("note", "tokens valid until restart"))
		return secret, nil
	}
}
