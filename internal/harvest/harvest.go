// Package harvest orchestrates a full grid sweep: partition the bounds,
// fetch each cell, validate, enrich, persist, and checkpoint.
package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/opencamp/harvester/internal/config"
	"github.com/opencamp/harvester/internal/model"
	"github.com/opencamp/harvester/internal/progress"
	"github.com/opencamp/harvester/internal/region"
)

// Fetcher pulls every listing page of one grid cell.
type Fetcher interface {
	FetchRegion(ctx context.Context, r region.Region, maxPages, pageSize int) ([]map[string]any, error)
}

// Persister enriches and stores a validated batch.
type Persister interface {
	Persist(ctx context.Context, batch []model.Campground) (int, error)
}

// Checkpointer loads and saves harvest progress.
type Checkpointer interface {
	Load() *progress.Progress
	Save(p *progress.Progress) error
	Reset() error
}

// Harvester runs grid sweeps sequentially, one cell at a time.
type Harvester struct {
	fetcher    Fetcher
	persister  Persister
	checkpoint Checkpointer
	cfg        config.HarvestConfig
	log        *zap.Logger
}

func New(f Fetcher, p Persister, cp Checkpointer, cfg config.HarvestConfig) *Harvester {
	return &Harvester{
		fetcher:    f,
		persister:  p,
		checkpoint: cp,
		cfg:        cfg,
		log:        zap.L().With(zap.String("service", "harvest")),
	}
}

// Result summarizes one Run invocation.
type Result struct {
	RunID        string
	Stored       int
	CellsVisited int
	CellsSkipped int
	CellsFailed  int
}

// Run sweeps the configured bounds. Cells already checkpointed are
// skipped when resume is on. A cell whose fetch fails is logged and
// left unmarked so the next run retries it; a persistence failure
// aborts the run. Returns the count stored by this invocation.
func (h *Harvester) Run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	log := h.log.With(zap.String("run_id", runID))
	res := Result{RunID: runID}

	bounds := region.Bounds{
		North: h.cfg.North,
		South: h.cfg.South,
		East:  h.cfg.East,
		West:  h.cfg.West,
	}
	cells, err := region.Partition(bounds, h.cfg.GridSize)
	if err != nil {
		return res, eris.Wrap(err, "harvest: partition bounds")
	}

	if !h.cfg.Resume {
		if err := h.checkpoint.Reset(); err != nil {
			return res, err
		}
	}
	prog := h.checkpoint.Load()

	log.Info("starting sweep",
		zap.Int("grid_size", h.cfg.GridSize),
		zap.Int("cells", len(cells)),
		zap.Int("already_processed", len(prog.ProcessedCells)))

	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "harvest: sweep interrupted")
		}
		if prog.Completed(cell.ID) {
			res.CellsSkipped++
			continue
		}

		stored, err := h.harvestCell(ctx, cell, prog)
		if err != nil {
			if ctx.Err() != nil || isFatal(err) {
				return res, err
			}
			// Fetch failures leave the cell unmarked so the next
			// run picks it up again.
			log.Warn("cell failed, continuing", zap.String("cell", cell.ID), zap.Error(err))
			res.CellsFailed++
			continue
		}
		res.Stored += stored
		res.CellsVisited++

		if err := h.pause(ctx); err != nil {
			return res, err
		}
	}

	log.Info("sweep finished",
		zap.Int("stored", res.Stored),
		zap.Int("visited", res.CellsVisited),
		zap.Int("skipped", res.CellsSkipped),
		zap.Int("failed", res.CellsFailed),
		zap.Int("total_campgrounds", prog.TotalCampgrounds))
	return res, nil
}

func (h *Harvester) harvestCell(ctx context.Context, cell region.Region, prog *progress.Progress) (int, error) {
	raws, err := h.fetcher.FetchRegion(ctx, cell, h.cfg.MaxPagesPerCell, h.cfg.PageSize)
	if err != nil {
		return 0, eris.Wrapf(err, "harvest: fetch cell %s", cell.ID)
	}

	valid, dropped := model.ValidateBatch(raws)
	if dropped > 0 {
		h.log.Warn("dropped invalid records", zap.String("cell", cell.ID), zap.Int("dropped", dropped))
	}

	stored := 0
	if len(valid) > 0 {
		stored, err = h.persister.Persist(ctx, valid)
		if err != nil {
			return 0, &fatalError{eris.Wrapf(err, "harvest: persist cell %s", cell.ID)}
		}
	}

	// Empty cells are checkpointed too; an empty stretch of ocean
	// should not be refetched on resume.
	prog.MarkCompleted(cell.ID, stored)
	if err := h.checkpoint.Save(prog); err != nil {
		return 0, &fatalError{err}
	}
	h.log.Info("cell done", zap.String("cell", cell.ID), zap.Int("stored", stored))
	return stored, nil
}

func (h *Harvester) pause(ctx context.Context) error {
	d := h.cfg.CellPause()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "harvest: sweep interrupted")
	case <-timer.C:
		return nil
	}
}

// fatalError marks failures that must abort the sweep instead of
// moving on to the next cell.
type fatalError struct {
	err error
}

func (f *fatalError) Error() string { return f.err.Error() }

func (f *fatalError) Unwrap() error { return f.err }

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
