package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/folio/internal/api"
	"github.com/mattjoyce/folio/internal/auth"
	"github.com/mattjoyce/folio/internal/config"
	"github.com/mattjoyce/folio/internal/export"
	"github.com/mattjoyce/folio/internal/lock"
	"github.com/mattjoyce/folio/internal/log"
	"github.com/mattjoyce/folio/internal/scheduler"
	"github.com/mattjoyce/folio/internal/storage"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	envFile := fs.String("env", ".env", "Dotenv file to load before the config")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		return 1
	}
	if *configPath == "" {
		*configPath = config.DiscoverConfigPath()
		if *configPath != "" {
			fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	fingerprint, _ := cfg.Fingerprint()
	logger.Info("folio starting", "version", currentVersionInfo().Version, "config", cfg.SourceFile, "fingerprint", fingerprint)

	if err := storage.RequireLocalFilesystem(cfg.Service.PIDFile, "service.pid_file"); err != nil {
		logger.Error("refusing to start", "error", err)
		return 1
	}
	if err := storage.RequireLocalFilesystem(cfg.Sessions.BaseDir, "sessions.base_dir"); err != nil {
		logger.Warn("session workspaces may be unreliable", "error", err)
	}

	pidLock, err := lock.AcquirePIDLock(cfg.Service.PIDFile)
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			logger.Error("another instance is running", "pid", held.PID, "path", held.Path)
		} else {
			logger.Error("failed to acquire PID lock", "path", cfg.Service.PIDFile, "error", err)
		}
		return 1
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := buildServices(ctx, cfg, log.Get())
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		return 1
	}
	defer svc.Close()

	// Sessions never survive a restart; anything left on disk is debris.
	if n, err := svc.roots.Cleanup(ctx, 0); err != nil {
		logger.Warn("failed to clear stale session directories", "base_dir", cfg.Sessions.BaseDir, "error", err)
	} else if n > 0 {
		logger.Info("cleared stale session directories", "count", n)
	}

	authn, err := buildAuthenticator(cfg.API.Auth)
	if err != nil {
		logger.Error("failed to configure authentication", "error", err)
		return 1
	}

	deps := api.Deps{
		Sessions: svc.sessions,
		Ops:      svc.dispatcher,
		Events:   svc.hub,
		Logger:   log.Get(),
	}
	if svc.journal != nil {
		deps.Journal = svc.journal
	}
	if cfg.Export.Enabled {
		exporter, err := export.NewS3(export.Config{
			Endpoint:  cfg.Export.Endpoint,
			AccessKey: cfg.Export.AccessKey,
			SecretKey: cfg.Export.SecretKey,
			Bucket:    cfg.Export.Bucket,
			Region:    cfg.Export.Region,
			UseSSL:    cfg.Export.UseSSL,
			Prefix:    cfg.Export.Prefix,
		})
		if err != nil {
			logger.Error("failed to configure export", "error", err)
			return 1
		}
		deps.Export = exporter
		logger.Info("bundle export enabled", "endpoint", cfg.Export.Endpoint, "bucket", cfg.Export.Bucket)
	}

	schedCfg := scheduler.Config{Interval: cfg.Service.SweepInterval, JournalRetention: cfg.Journal.Retention}
	var pruner scheduler.JournalPruner
	if svc.journal != nil {
		pruner = svc.journal
	}
	sched := scheduler.New(schedCfg, svc.sessions, pruner, svc.hub, log.Get())

	server := api.New(api.Config{
		Listen:       cfg.API.Listen,
		Auth:         authn,
		CORSOrigins:  cfg.API.CORSOrigins,
		RateLimit:    cfg.API.RateLimit,
		WriteTimeout: cfg.API.WriteTimeout,
	}, deps)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}

	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	logger.Info("folio running (press Ctrl+C to stop)",
		"listen", cfg.API.Listen,
		"session_ttl", cfg.Sessions.TTL,
		"max_concurrent", svc.dispatcher.Capacity(),
	)

	code := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = 1
	}
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	svc.sessions.Shutdown(shutdownCtx)

	logger.Info("folio stopped")
	return code
}

func buildAuthenticator(cfg config.APIAuthConfig) (auth.Authenticator, error) {
	a := auth.Authenticator{APIKey: cfg.APIKey}
	for _, t := range cfg.Tokens {
		a.Tokens = append(a.Tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	if cfg.JWT.Secret == "" {
		return a, nil
	}

	clients := make([]auth.ClientConfig, 0, len(cfg.JWT.Clients))
	for _, c := range cfg.JWT.Clients {
		clients = append(clients, auth.ClientConfig{ID: c.ID, Secret: c.Secret, Scopes: c.Scopes})
	}
	issuer, err := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL, clients)
	if err != nil {
		return auth.Authenticator{}, err
	}
	a.JWT = issuer
	return a, nil
}
