// Package progress checkpoints harvest state to a JSON file so an
// interrupted run can resume without refetching finished grid cells.
package progress

import (
	"encoding/json"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Progress is the on-disk checkpoint. ProcessedCells holds grid cell
// ids in completion order; TotalCampgrounds accumulates across runs.
type Progress struct {
	TotalCampgrounds int      `json:"total_campgrounds"`
	ProcessedCells   []string `json:"processed_cells"`
}

// Completed reports whether the cell id is already checkpointed.
func (p *Progress) Completed(cellID string) bool {
	return slices.Contains(p.ProcessedCells, cellID)
}

// MarkCompleted records a finished cell and its contribution to the
// running total. Marking the same cell twice is a no-op for the cell
// list but still counts the campgrounds.
func (p *Progress) MarkCompleted(cellID string, campgrounds int) {
	p.TotalCampgrounds += campgrounds
	if !p.Completed(cellID) {
		p.ProcessedCells = append(p.ProcessedCells, cellID)
	}
}

// File loads and saves Progress at a fixed path.
type File struct {
	path string
	log  *zap.Logger
}

func NewFile(path string) *File {
	return &File{
		path: path,
		log:  zap.L().With(zap.String("service", "progress"), zap.String("path", path)),
	}
}

// Load reads the checkpoint. A missing or unreadable file yields a
// fresh zero state rather than an error so a first run needs no setup.
func (f *File) Load() *Progress {
	p := &Progress{}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn("read checkpoint", zap.Error(err))
		}
		return p
	}
	if err := json.Unmarshal(data, p); err != nil {
		f.log.Warn("corrupt checkpoint, starting fresh", zap.Error(err))
		return &Progress{}
	}
	return p
}

// Save writes the whole checkpoint, replacing any previous content.
func (f *File) Save(p *Progress) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return eris.Wrap(err, "progress: encode checkpoint")
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return eris.Wrap(err, "progress: write checkpoint")
	}
	return nil
}

// Reset removes the checkpoint file. Absence is not an error.
func (f *File) Reset() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "progress: remove checkpoint")
	}
	return nil
}
