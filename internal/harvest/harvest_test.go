package harvest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencamp/harvester/internal/config"
	"github.com/opencamp/harvester/internal/model"
	"github.com/opencamp/harvester/internal/progress"
	"github.com/opencamp/harvester/internal/region"
)

type fakeFetcher struct {
	byCell  map[string][]map[string]any
	failing map[string]error
	calls   []string
}

func (f *fakeFetcher) FetchRegion(_ context.Context, r region.Region, _, _ int) ([]map[string]any, error) {
	f.calls = append(f.calls, r.ID)
	if err, ok := f.failing[r.ID]; ok {
		return nil, err
	}
	return f.byCell[r.ID], nil
}

type fakePersister struct {
	batches [][]model.Campground
	err     error
}

func (f *fakePersister) Persist(_ context.Context, batch []model.Campground) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, batch)
	return len(batch), nil
}

type fakeCheckpoint struct {
	state  *progress.Progress
	saves  int
	resets int
}

func newFakeCheckpoint() *fakeCheckpoint {
	return &fakeCheckpoint{state: &progress.Progress{}}
}

func (f *fakeCheckpoint) Load() *progress.Progress { return f.state }

func (f *fakeCheckpoint) Save(p *progress.Progress) error {
	f.state = p
	f.saves++
	return nil
}

func (f *fakeCheckpoint) Reset() error {
	f.state = &progress.Progress{}
	f.resets++
	return nil
}

func testConfig() config.HarvestConfig {
	return config.HarvestConfig{
		GridSize:        2,
		PageSize:        100,
		MaxPagesPerCell: 10,
		Resume:          true,
		North:           49.0,
		South:           24.0,
		East:            -66.0,
		West:            -125.0,
	}
}

func rawRecord(id, name string) map[string]any {
	return map[string]any{
		"id":        id,
		"name":      name,
		"latitude":  40.5,
		"longitude": -74.0,
	}
}

func TestRunSweepsEveryCell(t *testing.T) {
	fetcher := &fakeFetcher{byCell: map[string][]map[string]any{
		"0-0": {rawRecord("a", "Alpha"), rawRecord("b", "Beta")},
		"1-1": {rawRecord("c", "Gamma")},
	}}
	persister := &fakePersister{}
	cp := newFakeCheckpoint()

	h := New(fetcher, persister, cp, testConfig())
	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Stored)
	assert.Equal(t, 4, res.CellsVisited)
	assert.ElementsMatch(t, []string{"0-0", "0-1", "1-0", "1-1"}, fetcher.calls)

	// Empty cells checkpoint too, so a resume never refetches them.
	assert.ElementsMatch(t, []string{"0-0", "0-1", "1-0", "1-1"}, cp.state.ProcessedCells)
	assert.Equal(t, 3, cp.state.TotalCampgrounds)
	assert.Equal(t, 4, cp.saves, "checkpoint must be written after every cell")
}

func TestRunSkipsCheckpointedCells(t *testing.T) {
	fetcher := &fakeFetcher{byCell: map[string][]map[string]any{
		"0-1": {rawRecord("a", "Alpha")},
	}}
	cp := newFakeCheckpoint()
	cp.state.MarkCompleted("0-0", 7)
	cp.state.MarkCompleted("1-0", 0)

	h := New(fetcher, &fakePersister{}, cp, testConfig())
	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.CellsSkipped)
	assert.Equal(t, 2, res.CellsVisited)
	assert.Equal(t, 1, res.Stored, "stored counts this invocation only")
	assert.ElementsMatch(t, []string{"0-1", "1-1"}, fetcher.calls)
	assert.Equal(t, 8, cp.state.TotalCampgrounds, "total accumulates across runs")
}

func TestRunFreshStartResetsCheckpoint(t *testing.T) {
	cp := newFakeCheckpoint()
	cp.state.MarkCompleted("0-0", 7)

	cfg := testConfig()
	cfg.Resume = false

	h := New(&fakeFetcher{}, &fakePersister{}, cp, cfg)
	_, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, cp.resets)
	assert.Equal(t, 0, cp.state.TotalCampgrounds)
	assert.Len(t, cp.state.ProcessedCells, 4)
}

func TestRunContinuesPastFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		byCell:  map[string][]map[string]any{"1-1": {rawRecord("a", "Alpha")}},
		failing: map[string]error{"0-0": errors.New("boom")},
	}
	cp := newFakeCheckpoint()

	h := New(fetcher, &fakePersister{}, cp, testConfig())
	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.CellsFailed)
	assert.Equal(t, 3, res.CellsVisited)
	assert.False(t, cp.state.Completed("0-0"), "failed cell stays unmarked for retry")
	assert.True(t, cp.state.Completed("1-1"))
}

func TestRunAbortsOnPersistFailure(t *testing.T) {
	fetcher := &fakeFetcher{byCell: map[string][]map[string]any{
		"0-0": {rawRecord("a", "Alpha")},
	}}
	persister := &fakePersister{err: errors.New("connection refused")}
	cp := newFakeCheckpoint()

	h := New(fetcher, persister, cp, testConfig())
	_, err := h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist cell 0-0")
	assert.Equal(t, []string{"0-0"}, fetcher.calls, "sweep stops at the failing cell")
	assert.False(t, cp.state.Completed("0-0"))
}

func TestRunDropsInvalidRecords(t *testing.T) {
	fetcher := &fakeFetcher{byCell: map[string][]map[string]any{
		"0-0": {
			rawRecord("a", "Alpha"),
			{"name": "No ID", "latitude": 1.0, "longitude": 1.0},
		},
	}}
	persister := &fakePersister{}

	h := New(fetcher, persister, newFakeCheckpoint(), testConfig())
	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stored)
	require.Len(t, persister.batches, 1)
	require.Len(t, persister.batches[0], 1)
	assert.Equal(t, "a", persister.batches[0][0].ID)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := New(&fakeFetcher{}, &fakePersister{}, newFakeCheckpoint(), testConfig())
	_, err := h.Run(ctx)
	require.Error(t, err)
}

func TestRunRejectsBadGridSize(t *testing.T) {
	cfg := testConfig()
	cfg.GridSize = 0

	h := New(&fakeFetcher{}, &fakePersister{}, newFakeCheckpoint(), cfg)
	_, err := h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partition bounds")
}
