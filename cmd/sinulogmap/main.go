package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sinulogmap/internal/capture"
	"sinulogmap/internal/config"
	appLog "sinulogmap/internal/log"
)

const version = "0.1.0"

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath   string
	envFile      string
	listen       string
	schedule     string
	logLevel     string
	snapshot     string
	snapshotDate string
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		os.Exit(hashPassword(os.Args[2:]))
	}

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.LoadEnv(envFiles(flags.envFile)...); err != nil {
		appLog.Error("failed to load environment", err)
		os.Exit(1)
	}

	// CLI flags override the config file when set.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.schedule != "" {
		conf.ScheduleFile = flags.schedule
	}
	if flags.logLevel != "" {
		conf.Log.Level = flags.logLevel
	}
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Setup(os.Stderr, appLog.ParseFormat(conf.Log.Format), appLog.ParseLevel(conf.Log.Level))
	appLog.Info("sinulogmap starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"schedule", conf.ScheduleFile,
		"import_ics", len(conf.ImportICS),
		"timezone", conf.Timezone,
		"venues", len(conf.Venues),
		"travel_mode", conf.Directions.TravelMode,
		"maps_key", conf.MapsAPIKey != "",
		"basic_auth", conf.BasicAuth != nil,
		"snapshot", flags.snapshot != "",
	)
	if conf.MapsAPIKey == "" {
		appLog.Warn("no maps API key configured; map and directions are disabled", "env", config.MapsKeyEnv)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	a, err := newApp(ctx, conf)
	if err != nil {
		appLog.Error("startup failed", err)
		os.Exit(1)
	}
	defer a.close()

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		appLog.Error("failed to listen", err, "listen", conf.Listen)
		os.Exit(1)
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	exitCode := 0
	if flags.snapshot != "" {
		err := capture.SchedulePNG(ctx, capture.Options{
			BaseURL:    "http://" + ln.Addr().String(),
			Date:       flags.snapshotDate,
			OutputPath: flags.snapshot,
		})
		if err != nil {
			appLog.Error("snapshot failed", err, "path", flags.snapshot)
			exitCode = 1
		}
		cancel()
	}

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			appLog.Error("HTTP server failed", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
	appLog.Info("sinulogmap exiting")
	if exitCode != 0 {
		a.close()
		os.Exit(exitCode)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to an optional .env file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.schedule, "schedule", "", "Schedule JSON path or URL (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Write a PNG of the schedule page to this path and exit")
	flag.StringVar(&cfg.snapshotDate, "snapshot-date", "", "Schedule date shown in the snapshot")

	flag.Parse()

	return cfg
}

func envFiles(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path}
}
