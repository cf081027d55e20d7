package dataset

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariffwatch/internal/db"
	"github.com/sells-group/tariffwatch/internal/fetcher"
)

// Engine runs dataset loads.
type Engine struct {
	pool    db.Pool
	fetcher fetcher.Fetcher
	reg     *Registry
	tempDir string
}

// NewEngine creates a load engine. tempDir is the parent for per-run
// working directories; empty means the system default.
func NewEngine(pool db.Pool, f fetcher.Fetcher, reg *Registry, tempDir string) *Engine {
	return &Engine{pool: pool, fetcher: f, reg: reg, tempDir: tempDir}
}

// Run loads the named datasets in order, or all registered datasets when
// names is empty. One failing dataset aborts the run; schedules are
// interdependent and a partial load would leave the resolver lying.
func (e *Engine) Run(ctx context.Context, names []string) error {
	log := zap.L().With(zap.String("component", "dataset.engine"))

	datasets, err := e.reg.Select(names)
	if err != nil {
		return err
	}

	tempDir, err := os.MkdirTemp(e.tempDir, "tariffwatch-dataset-*")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp dir")
	}
	defer os.RemoveAll(tempDir) //nolint:errcheck

	for _, ds := range datasets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		log.Info("loading dataset", zap.String("dataset", ds.Name()), zap.String("table", ds.Table()))

		result, err := ds.Sync(ctx, e.pool, e.fetcher, tempDir)
		if err != nil {
			return eris.Wrapf(err, "dataset: sync %s", ds.Name())
		}

		log.Info("dataset loaded",
			zap.String("dataset", ds.Name()),
			zap.Int64("rows", result.RowsSynced),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}
