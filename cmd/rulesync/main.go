package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/rulesync/internal/rulesync/common/clock"
	"github.com/haukened/rulesync/internal/rulesync/common/log"
	"github.com/haukened/rulesync/internal/rulesync/common/metrics"
	"github.com/haukened/rulesync/internal/rulesync/config"
	"github.com/haukened/rulesync/internal/rulesync/gateways/adguard"
	"github.com/haukened/rulesync/internal/rulesync/repos/cachestore/lru"
	"github.com/haukened/rulesync/internal/rulesync/repos/store"
	"github.com/haukened/rulesync/internal/rulesync/repos/store/bolt"
	"github.com/haukened/rulesync/internal/rulesync/services/backend"
	"github.com/haukened/rulesync/internal/rulesync/services/rulesync"
)

const (
	version = "0.1.0-dev"
	appName = "rulesync"
)

// errUsage marks command line mistakes; main exits with status 2 for them.
var errUsage = errors.New("usage error")

// Application holds all the components of the sync tool
type Application struct {
	config  *config.AppConfig
	store   store.Store
	caches  *lru.Cache
	service *rulesync.Service
	metrics *metrics.Metrics
	logger  log.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Debug(map[string]any{
		"version":     version,
		"env":         cfg.Env,
		"db_path":     cfg.DBPath,
		"write_delay": cfg.WriteDelay,
	}, "Starting rulesync")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = app.Run(ctx, os.Args[1:], os.Stdout)
	stop()
	if cerr := app.Close(); cerr != nil {
		log.Warn(map[string]any{"error": cerr}, "Error closing store")
	}

	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprintln(os.Stderr, err)
		usage(os.Stderr)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	st, err := bolt.New(cfg.DBPath, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// Safely convert uint to int with bounds check
	if cfg.CacheSize > uint(^uint(0)>>1) {
		_ = st.Close()
		return nil, fmt.Errorf("cache size too large: %d (max %d)", cfg.CacheSize, ^uint(0)>>1)
	}
	caches, err := lru.New(int(cfg.CacheSize), st)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	client := adguard.NewClient(adguard.Options{
		Timeout: cfg.HTTPTimeout,
		Logger:  log.With(logger, map[string]any{"component": "adguard"}),
	})

	be, err := backend.New(backend.Options{
		Inventory: st,
		Caches:    caches,
		Client:    client,
		Clock:     clk,
		Logger:    log.With(logger, map[string]any{"component": "backend"}),
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to build backend: %w", err)
	}

	m := metrics.New()
	svc, err := rulesync.NewService(rulesync.Options{
		Backend:    be,
		Snapshots:  be,
		Clock:      clk,
		Logger:     log.With(logger, map[string]any{"component": "rulesync"}),
		Metrics:    m,
		WriteDelay: cfg.WriteDelay,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to build sync service: %w", err)
	}

	return &Application{
		config:  cfg,
		store:   st,
		caches:  caches,
		service: svc,
		metrics: m,
		logger:  logger,
	}, nil
}

// Run executes one subcommand and writes its report to out. The metrics
// textfile, when configured, is written even if the command failed.
func (app *Application) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", errUsage)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	err := cmd.run(ctx, app, args[1:], out)

	if app.config.MetricsFile != "" {
		if merr := app.metrics.WriteTextfile(app.config.MetricsFile); merr != nil {
			app.logger.Warn(map[string]any{"error": merr, "path": app.config.MetricsFile}, "Failed to write metrics textfile")
		}
	}
	return err
}

// Close releases the store.
func (app *Application) Close() error {
	return app.store.Close()
}
