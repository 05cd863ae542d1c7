// gazed: gaze-interaction service
// Accepts eye-tracker streams over WebSocket and MQTT and publishes
// selection, navigation and attention events
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

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/mqttbridge"
	"github.com/teslashibe/go-gaze/pkg/server"
	"github.com/teslashibe/go-gaze/pkg/session"
	"github.com/teslashibe/go-gaze/pkg/telemetry"
)

var (
	version = "1.0.0"
	envFile = flag.String("env", "", "Path to a .env file (default .env)")
	addr    = flag.String("addr", "", "HTTP listen address, overrides GAZED_ADDR")
	debug   = flag.Bool("debug", false, "Enable request logging and debug level")
)

func main() {
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)

	fmt.Println()
	fmt.Println("👁  gazed v" + version)
	fmt.Println("   Gaze interaction service")
	fmt.Println()

	if err := run(cfg); err != nil {
		log.Error("gazed stopped", "error", err)
		os.Exit(1)
	}
	log.Info("goodbye")
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := telemetry.NewProvider(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, version, 0)
	if err != nil {
		return err
	}
	provider.SetGlobal()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := provider.Shutdown(sctx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()
	recorder, err := telemetry.NewRecorder(provider.MeterProvider)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	orch, err := session.New(sessCfg,
		session.WithLogger(log.Component("session")),
		session.WithObserver(recorder),
	)
	if err != nil {
		return err
	}
	defer orch.Shutdown()
	go orch.Run(ctx)

	events := hub.New("events", log.Component("hub"))
	go events.Run(ctx)
	go func() {
		if err := events.Feed(ctx, orch.Bus()); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("event feed stopped", "error", err)
		}
	}()

	srv := server.New(orch, events, cfg.ServerConfig(version), log.Component("server"))
	errc := make(chan error, 2)
	go func() {
		log.Info("starting server",
			"addr", cfg.Addr,
			"devices", "/ws/gaze/:user",
			"events", "/ws/events",
			"api", "/api/sessions")
		if err := srv.Start(); err != nil {
			errc <- fmt.Errorf("server: %w", err)
		}
	}()

	if cfg.MQTTEnabled() {
		bridge, err := mqttbridge.Connect(cfg.MQTTConfig(), orch, log.Component("mqtt"))
		if err != nil {
			return err
		}
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("mqtt: %w", err)
			}
		}()
		log.Info("mqtt bridge connected", "broker", cfg.MQTTBroker)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
		log.Error("component failed", "error", err)
		cancel()
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if serr := srv.Shutdown(sctx); serr != nil {
		log.Warn("server shutdown", "error", serr)
	}
	return err
}
