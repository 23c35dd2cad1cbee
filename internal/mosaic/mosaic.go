// Package mosaic merges per-branch extent rasters onto the branch-zero grid.
package mosaic

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/hand"
	"github.com/sells-group/catfim/internal/raster"
)

// ErrNoInputs is returned when there is nothing to merge.
var ErrNoInputs = eris.New("mosaic: no branch rasters")

// BranchOf returns the branch id that ends a branch raster name,
// "{lid}_{key}_extent_{huc}_{branch}.tif".
func BranchOf(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndexByte(stem, '_'); i >= 0 {
		return stem[i+1:]
	}
	return stem
}

// Order sorts branch rasters so that branch zero comes first.
func Order(paths []string) []string {
	ids := make([]string, len(paths))
	byID := make(map[string]string, len(paths))
	for i, p := range paths {
		ids[i] = BranchOf(p)
		byID[ids[i]] = p
	}
	hand.SortBranches(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out
}

// Merge writes the union of the branch rasters to out. The first raster
// after ordering (branch zero when present) defines the output grid; the
// others are resampled onto it with nearest neighbour. The result is 1
// wherever any branch is wet.
func Merge(paths []string, out string) error {
	if len(paths) == 0 {
		return ErrNoInputs
	}
	paths = Order(paths)

	base, err := raster.Open(paths[0])
	if err != nil {
		return err
	}
	grid := base.Grid()
	sum, err := raster.ReadAll[uint8](base)
	_ = base.Close()
	if err != nil {
		return err
	}

	for _, p := range paths[1:] {
		vals, err := onGrid(p, grid)
		if err != nil {
			return err
		}
		for i, v := range vals {
			if v > 0 && sum[i] < 255 {
				sum[i]++
			}
		}
	}
	for i, v := range sum {
		if v > 1 {
			sum[i] = 1
		}
	}
	return raster.WriteMask(out, grid, sum)
}

func onGrid(path string, grid raster.Grid) ([]uint8, error) {
	ds, err := raster.Open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close() //nolint:errcheck
	if ds.Grid().Same(grid) {
		return raster.ReadAll[uint8](ds)
	}
	return raster.WarpMask(path, grid)
}

// MergeAndClean merges paths into out and then removes the branch rasters.
func MergeAndClean(paths []string, out string) error {
	if err := Merge(paths, out); err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("mosaic: remove branch raster", zap.String("path", p), zap.Error(err))
		}
	}
	return nil
}
