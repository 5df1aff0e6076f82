// Command etymond runs the etymology synthesis daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odvcencio/etymon/pkg/api"
	"github.com/odvcencio/etymon/pkg/budget"
	"github.com/odvcencio/etymon/pkg/cache"
	"github.com/odvcencio/etymon/pkg/config"
	"github.com/odvcencio/etymon/pkg/coordination"
	"github.com/odvcencio/etymon/pkg/kv"
	"github.com/odvcencio/etymon/pkg/logging"
	"github.com/odvcencio/etymon/pkg/model"
	"github.com/odvcencio/etymon/pkg/pipeline"
	"github.com/odvcencio/etymon/pkg/research"
	"github.com/odvcencio/etymon/pkg/sources"
	"github.com/odvcencio/etymon/pkg/synthesis"
	"github.com/odvcencio/etymon/pkg/telemetry"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to yaml config")
		listen      = flag.String("listen", "", "listen address override")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("etymond %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(*configPath, *listen); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listenOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenOverride != "" {
		cfg.Server.Listen = listenOverride
	}
	if cfg.Model.APIKey == "" {
		return fmt.Errorf("no model API key configured (set ETYMON_API_KEY or OPENROUTER_API_KEY)")
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("open logs: %w", err)
	}
	defer log.Close()

	store, err := kv.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer store.Close()

	metrics := telemetry.NewRegistry()
	cacheStore := cache.New(store, cfg.Cache, log, metrics)
	ledger := budget.New(store, cfg.Budget, log, metrics)
	coordinator := coordination.New(store, cfg.Lock, log, metrics)

	fetchers, err := sources.ForNames(cfg.Research.PrimarySources, cfg.Research.SourceTimeout)
	if err != nil {
		return fmt.Errorf("configure sources: %w", err)
	}

	client := model.NewClient(cfg.Model, log)
	researcher := research.New(fetchers, cacheStore, client, cfg, log, metrics)
	synthesizer := synthesis.New(client, cfg.Model, log, metrics)
	pipe := pipeline.New(cfg, cacheStore, ledger, coordinator, researcher, synthesizer, log, metrics)

	server := api.New(cfg.Server, pipe, ledger, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info(logging.CategoryAPI, "shutdown", "", map[string]any{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	var log *logging.Logger
	if cfg.Dir != "" {
		var err error
		log, err = logging.NewLogger(cfg.Dir)
		if err != nil {
			return nil, err
		}
	} else {
		log = logging.NewWriterLogger(os.Stderr)
	}
	if cfg.Level != "" {
		log.SetMinLevel(logging.Level(cfg.Level))
	}
	return log, nil
}
