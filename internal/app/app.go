// Package app wires the configured components into a running gateway.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/JamesDodds/ipmi-api-gateway/internal/config"
	"github.com/JamesDodds/ipmi-api-gateway/internal/dispatch"
	"github.com/JamesDodds/ipmi-api-gateway/internal/executor"
	"github.com/JamesDodds/ipmi-api-gateway/internal/history"
	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

type App struct {
	Logger     *slog.Logger
	Config     *config.Config
	Registry   *target.Registry
	Resolver   *target.Resolver
	Dispatcher *dispatch.Dispatcher
	Journal    *history.Writer
	Store      *history.Store
}

func New(cfg *config.Config) (*App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	descriptors, err := cfg.Targets()
	if err != nil {
		return nil, fmt.Errorf("loading targets: %w", err)
	}
	registry, err := target.NewRegistry(descriptors)
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	var exec executor.Executor
	if cfg.Proxy.Enabled() {
		exec = executor.NewSSHProxy(executor.SSHProxyOptions{
			Address:          cfg.Proxy.Address,
			User:             cfg.Proxy.User,
			KeyPath:          cfg.Proxy.SSHKey,
			KnownHostsPath:   cfg.Proxy.KnownHostsPath,
			UseAgent:         cfg.Proxy.UseAgent,
			HandshakeTimeout: cfg.Proxy.HandshakeTimeout,
		}, logger)
	} else {
		exec = executor.NewIpmitool(logger)
	}

	a := &App{
		Logger:     logger,
		Config:     cfg,
		Registry:   registry,
		Resolver:   target.NewResolver(registry),
		Dispatcher: dispatch.New(exec, cfg.CommandTimeout, cfg.MaxInFlight, logger),
	}

	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("opening history journal: %w", err)
		}
		a.Store = store
		a.Journal = history.NewWriter(store, 2*time.Second, 20, logger)
	}

	return a, nil
}

// Close flushes the journal and releases the database handle.
func (a *App) Close() {
	if a.Journal != nil {
		a.Journal.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
