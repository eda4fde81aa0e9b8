package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/aquadecl/releve-core/internal/consolidate"
	"github.com/aquadecl/releve-core/internal/db"
	"github.com/aquadecl/releve-core/internal/ingest"
	"github.com/aquadecl/releve-core/internal/ledger"
	"github.com/aquadecl/releve-core/internal/meta"
	"github.com/aquadecl/releve-core/internal/series"
	"github.com/aquadecl/releve-core/pkg/annuaire"
)

// engine bundles the stores and processors behind every command.
type engine struct {
	pool         db.Pool
	meta         *meta.Store
	series       *series.Store
	ledger       *ledger.Store
	orchestrator *consolidate.Orchestrator
	processor    *ingest.Processor
}

func initEngine(ctx context.Context) (*engine, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store database URL is required (RELEVE_STORE_DATABASE_URL)")
	}

	pool, err := db.NewPool(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	if err != nil {
		return nil, eris.Wrap(err, "init store pool")
	}

	metaStore := meta.NewStore(pool)
	seriesStore := series.NewStore(pool)
	ledgerStore := ledger.NewStore(pool)

	directory := annuaire.NewClient(cfg.Directory.BaseURL, cfg.Directory.APIKey,
		annuaire.WithRateLimit(cfg.Directory.RatePerSec))

	orchestrator := consolidate.New(metaStore, seriesStore, ledgerStore, directory, zap.L())
	processor := ingest.NewProcessor(metaStore, seriesStore, ingest.NewWorkbookParser(), zap.L())

	return &engine{
		pool:         pool,
		meta:         metaStore,
		series:       seriesStore,
		ledger:       ledgerStore,
		orchestrator: orchestrator,
		processor:    processor,
	}, nil
}

func (e *engine) Close() {
	e.pool.Close()
}

func initTemporal() (client.Client, error) {
	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "dial temporal")
	}
	return tc, nil
}
