package main

import (
	"context"
	"fmt"

	"fms/internal/cli/config"
	"fms/internal/execution"
	"fms/internal/ledger"
	"fms/internal/sandbox/engine"
	"fms/internal/sandbox/observer"
)

// app wires the configured collaborators together.
type app struct {
	cfg      config.Config
	metrics  *observer.Prometheus
	store    ledger.Store
	accounts *ledger.Accounts
	orch     *execution.Orchestrator
	close    func() error
}

type appOptions struct {
	// engine is needed only by commands that run jobs.
	engine         bool
	runtimeMetrics bool
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	metrics := observer.NewPrometheus(opts.runtimeMetrics)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var archiver ledger.Archiver
	if cfg.Ledger.ArchiveDir != "" {
		archiver = ledger.NewZstdArchiver(cfg.Ledger.ArchiveDir)
	}
	accounts := ledger.NewAccounts(store, ledger.Options{Archiver: archiver, Recorder: metrics})

	a := &app{
		cfg:      cfg,
		metrics:  metrics,
		store:    store,
		accounts: accounts,
		close:    closeStore,
	}
	if opts.engine {
		eng, err := engine.NewEngine(cfg.Engine, engine.Deps{Recorder: metrics})
		if err != nil {
			_ = closeStore()
			return nil, err
		}
		a.orch = execution.New(eng, execution.Options{Recorder: metrics})
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config) (ledger.Store, func() error, error) {
	switch cfg.Ledger.Backend {
	case config.BackendRedis:
		store, err := ledger.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendFile:
		return ledger.NewFileStore(cfg.Ledger.Dir), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

// session builds the accounting context for one-shot commands: the
// configured or requested payment mode, else the session quota.
func (a *app) session(ctx context.Context, modeName string, quotaSeconds float64) (*execution.Session, error) {
	if modeName == "" {
		modeName = a.cfg.Ledger.Mode
	}
	if modeName == "" {
		if quotaSeconds <= 0 {
			quotaSeconds = a.cfg.Session.QuotaSeconds
		}
		if quotaSeconds > 0 {
			return execution.NewQuotaSession(quotaSeconds), nil
		}
		return &execution.Session{}, nil
	}
	mode, err := ledger.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	l, err := a.accounts.Get(ctx, a.cfg.Ledger.User)
	if err != nil {
		return nil, err
	}
	return execution.NewLedgerSession(l, mode), nil
}
