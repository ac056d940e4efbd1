// Package region partitions a geographic bounding box into a deterministic
// grid of sub-regions so each remote search stays under the source's
// per-request result ceiling.
package region

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Bounds is a geographic bounding rectangle.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// USBounds covers the continental United States.
var USBounds = Bounds{North: 49.0, South: 24.0, East: -66.0, West: -125.0}

// String encodes the bounds the way the source API expects them:
// "south,west,north,east".
func (b Bounds) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.South, b.West, b.North, b.East)
}

// Region is one grid cell. The ID is derived from the cell's row and column
// so the same grid size always reproduces the same IDs; resumable runs
// depend on that stability.
type Region struct {
	ID     string `json:"id"`
	Bounds Bounds `json:"bounds"`
}

// Partition tiles b into an n-by-n grid in row-major order. The cells
// exactly cover b with no gaps or overlaps; cell (i, j) gets ID "i-j".
func Partition(b Bounds, n int) ([]Region, error) {
	if n < 1 {
		return nil, eris.Errorf("region: grid size must be >= 1, got %d", n)
	}

	latStep := (b.North - b.South) / float64(n)
	lonStep := (b.East - b.West) / float64(n)

	regions := make([]Region, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cell := Bounds{
				South: b.South + float64(i)*latStep,
				North: b.South + float64(i+1)*latStep,
				West:  b.West + float64(j)*lonStep,
				East:  b.West + float64(j+1)*lonStep,
			}
			regions = append(regions, Region{
				ID:     fmt.Sprintf("%d-%d", i, j),
				Bounds: cell,
			})
		}
	}

	return regions, nil
}
