package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariffwatch/internal/alert"
	"github.com/sells-group/tariffwatch/internal/db/schema"
	"github.com/sells-group/tariffwatch/internal/impact"
	"github.com/sells-group/tariffwatch/internal/ingest"
	"github.com/sells-group/tariffwatch/internal/store"
	"github.com/sells-group/tariffwatch/internal/tariff"
)

// env bundles the wired components a command needs. pg is nil when the
// sqlite driver is active; rate resolution requires postgres.
type env struct {
	store  store.Store
	pg     *store.PostgresStore
	engine *tariff.Engine
	proc   *ingest.Processor
}

func (e *env) Close() {
	_ = e.store.Close()
}

func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	guard, err := schema.Load()
	if err != nil {
		return nil, err
	}

	e := &env{}
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil, guard)
		if err != nil {
			return nil, err
		}
		e.store = pg
		e.pg = pg

		cache := tariff.NewCache(time.Duration(cfg.Tariff.CacheTTLMins) * time.Minute)
		e.engine = tariff.NewEngine(tariff.NewPostgresSource(pg.Pool(), guard), cache, cfg.Tariff.Country)
	case "sqlite":
		sq, err := store.NewSQLite(cfg.Store.SQLitePath, guard)
		if err != nil {
			return nil, err
		}
		e.store = sq
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	matcher := impact.NewMatcher(e.store, cfg.Impact.Workers)
	gate := alert.NewGate(e.store)
	e.proc = ingest.NewProcessor(matcher, gate, e.store)

	return e, nil
}

// requireEngine returns the resolver or a driver error. The resolution
// cascade queries the Postgres classification tables directly.
func (e *env) requireEngine() (*tariff.Engine, error) {
	if e.engine == nil {
		return nil, eris.New("rate resolution requires the postgres driver")
	}
	return e.engine, nil
}
