package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

// Entry point for the pin control agent.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pinagent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		port       int
		driverName string
		checkOnly  bool
	)
	flagSet := pflag.NewFlagSet("pinagent", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")
	flagSet.IntVarP(&port, "port", "p", 0, "listen port (overrides config and PORT)")
	flagSet.StringVar(&driverName, "driver", "", "GPIO driver: periph or memory (overrides config)")
	flagSet.BoolVar(&checkOnly, "check", false, "validate the configuration and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := ApplyEnvOverrides(cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if port != 0 {
		cfg.Port = port
	}
	if driverName != "" {
		cfg.Driver = driverName
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if checkOnly {
		fmt.Println("configuration ok")
		return nil
	}

	logger, closeLog, err := newLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()
	events := NewEventLogger(cfg.EventLog)

	shutdownTracing, err := setupTracing(cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	reg, err := NewLineRegistry(cfg.EnabledPins, cfg.GPIOMap)
	if err != nil {
		return err
	}
	tlsConfig, clientCAs, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	driver, err := openDriver(cfg.Driver, reg)
	if err != nil {
		return fmt.Errorf("gpio: %w", err)
	}

	lc := NewLifecycle(driver, reg, Polarity{ActiveLow: cfg.ActiveLow}, cfg.DrainTimeout, logger, events)
	srv := NewServer(cfg, reg, driver, lc, clientCAs, logger, events)
	lc.OnDrain(srv.Shutdown)
	// Release runs on every exit path; a second call is a no-op.
	defer lc.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("claiming pins", "pins", cfg.EnabledPins, "driver", cfg.Driver, "active_low", cfg.ActiveLow)
	if err := lc.Start(ctx); err != nil {
		return fmt.Errorf("claim pins: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(tlsConfig) }()

	var result error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			result = fmt.Errorf("server: %w", err)
		}
	}
	if err := lc.Shutdown(context.Background()); err != nil && result == nil {
		result = err
	}
	return result
}
