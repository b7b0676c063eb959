package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/torfleet/cmd"
	"github.com/smazurov/torfleet/internal/api"
	"github.com/smazurov/torfleet/internal/config"
	"github.com/smazurov/torfleet/internal/events"
	"github.com/smazurov/torfleet/internal/fleet"
	"github.com/smazurov/torfleet/internal/logging"
	"github.com/smazurov/torfleet/internal/metrics/exporters"
)

// service is the HTTP API mode: supervisor, server and config watcher.
type service struct {
	logger     *slog.Logger
	supervisor *fleet.Supervisor
	server     *api.Server
	watcher    *config.Watcher
	configPath string
	killGrace  time.Duration
}

// newService wires the API mode. base holds defaults and flags only; on a
// config change the affected settings are resolved from it again so flag
// and env values keep their precedence.
func newService(opts *Options, base Options, source *config.Source, fleetCfg cmd.FleetConfig) *service {
	logger := logging.GetLogger("main")
	eventBus := events.New()

	// Publish application logs for the system log stream
	logging.SetLogCallback(func(entry logging.LogEntry) {
		eventBus.Publish(events.NewLogEntryEvent(entry))
	})

	sink := logging.NewSink(0)
	supervisor := fleetCfg.NewSupervisor(sink, eventBus)

	defaults := config.NewDefaults(config.DaemonDefaults{
		Path:  opts.DaemonPath,
		Count: opts.DaemonCount,
	})

	apiOpts := &api.Options{
		AuthUsername:   opts.AuthUsername,
		AuthPassword:   opts.AuthPassword,
		AllowedOrigins: config.SplitList(opts.ServerAllowedOrigins),
		Fleet:          supervisor,
		Defaults:       defaults,
		EventBus:       eventBus,
	}
	if opts.FeaturesMetrics {
		apiOpts.PrometheusHandler = exporters.HTTPHandler()
	}

	configLogger := logging.GetLogger("config")
	resolve := func() (Options, bool) {
		fresh, err := config.Resolve(source, base)
		if err != nil {
			configLogger.Warn("Ignoring config change", "error", err)
			return fresh, false
		}
		return fresh, true
	}

	watcher := config.NewWatcher(source.Path(), configLogger)
	watcher.OnSection("daemon", func() {
		if fresh, ok := resolve(); ok {
			defaults.Set(config.DaemonDefaults{Path: fresh.DaemonPath, Count: fresh.DaemonCount})
			configLogger.Info("Daemon defaults reloaded", "path", fresh.DaemonPath, "count", fresh.DaemonCount)
		}
	})
	watcher.OnSection("logging", func() {
		if fresh, ok := resolve(); ok {
			logging.Initialize(fresh.loggingConfig())
			configLogger.Info("Logging levels reloaded", "level", fresh.LoggingLevel)
		}
	})

	return &service{
		logger:     logger,
		supervisor: supervisor,
		server:     api.NewServer(apiOpts),
		watcher:    watcher,
		configPath: source.Path(),
		killGrace:  fleetCfg.KillGrace,
	}
}

// run starts the watcher, tells systemd we are ready and serves until shutdown.
func (s *service) run(port string) {
	if err := s.watcher.Start(); err != nil {
		s.logger.Warn("Config watcher disabled", "path", s.configPath, "error", err)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		s.logger.Warn("Failed to notify systemd", "error", err)
	}

	s.logger.Info("Starting HTTP server", "port", port)
	if err := s.server.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Failed to start HTTP server", "error", err)
		os.Exit(1)
	}
}

// shutdown stops accepting requests, then stops every daemon.
func (s *service) shutdown() {
	s.logger.Info("Shutting down server")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if err := s.server.Stop(); err != nil {
		s.logger.Error("Error stopping HTTP server", "error", err)
	}
	_ = s.watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), s.killGrace+10*time.Second)
	defer cancel()
	if err := s.supervisor.Close(ctx); err != nil {
		s.logger.Error("Error stopping instances", "error", err)
	}
}
