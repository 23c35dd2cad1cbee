package inundate

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catfim/internal/hand"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/raster"
)

// Options tunes raster processing.
type Options struct {
	// Windowed processes block-sized tiles instead of whole bands.
	Windowed  bool
	BlockSize int
	DepthCapM float64
}

// DefaultOptions matches the configuration defaults.
var DefaultOptions = Options{Windowed: true, BlockSize: raster.BlockSize, DepthCapM: 30}

// Branch computes the extent of one branch under m and writes it to out.
// Nothing is written when no pixel is inundated; written reports which
// case happened.
func Branch(ctx context.Context, b hand.Branch, m Mask, out string, opt Options) (written bool, err error) {
	rem, err := raster.Open(b.REM)
	if err != nil {
		return false, err
	}
	defer rem.Close() //nolint:errcheck
	cat, err := raster.Open(b.Catchments)
	if err != nil {
		return false, err
	}
	defer cat.Close() //nolint:errcheck

	g := rem.Grid()
	if g.Width != cat.Grid().Width || g.Height != cat.Grid().Height {
		return false, eris.Errorf("inundate: branch %s REM %dx%d and catchments %dx%d differ",
			b.ID, g.Width, g.Height, cat.Grid().Width, cat.Grid().Height)
	}

	remND, hasRemND := rem.NoData()
	catND := model.DefaultCatchmentsNoData
	if v, ok := cat.NoData(); ok {
		catND = int32(v)
	}

	windows := []raster.Window{{W: g.Width, H: g.Height}}
	if opt.Windowed {
		block := opt.BlockSize
		if block <= 0 {
			block = raster.BlockSize
		}
		windows = raster.Windows(g.Width, g.Height, block)
	}

	extent := make([]uint8, g.Width*g.Height)
	wet := false
	var tileOut []uint8
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		remVals, err := raster.Read[float32](rem, w)
		if err != nil {
			return false, err
		}
		catVals, err := raster.Read[int32](cat, w)
		if err != nil {
			return false, err
		}
		if cap(tileOut) < w.W*w.H {
			tileOut = make([]uint8, w.W*w.H)
		}
		tileOut = tileOut[:w.W*w.H]
		tile := Tile{REM: remVals, REMNoData: remND, HasREMNoData: hasRemND, Catchments: catVals, CatNoData: catND}
		if !m.Apply(tile, tileOut) {
			continue
		}
		wet = true
		for row := 0; row < w.H; row++ {
			copy(extent[(w.Y+row)*g.Width+w.X:], tileOut[row*w.W:(row+1)*w.W])
		}
	}
	if !wet {
		return false, nil
	}
	if err := raster.WriteMask(out, g, extent); err != nil {
		return false, err
	}
	return true, nil
}

// MaskBuilder derives the mask of a branch from its hydro-table.
type MaskBuilder func(ht hand.HydroTable) (Mask, error)

// StageMasks floods the non-lake HydroIDs of segments to handStageM.
func StageMasks(segments map[int64]bool, handStageM float64) MaskBuilder {
	return func(ht hand.HydroTable) (Mask, error) {
		ids, err := ht.HydroIDs(segments)
		if err != nil {
			return nil, err
		}
		return NewStageMask(handStageM, ids), nil
	}
}

// FlowMasks floods each non-lake HydroID to the stage its rating curve
// gives at the segment flow (cms).
func FlowMasks(flows map[int64]float64, depthCapM float64) MaskBuilder {
	return func(ht hand.HydroTable) (Mask, error) {
		stages, err := ht.StagesForFlows(flows)
		if err != nil {
			return nil, err
		}
		return NewFlowMask(stages, depthCapM), nil
	}
}

// Request is one (gauge, product) inundation over the branches of a HUC.
type Request struct {
	Branches []hand.Branch
	Build    MaskBuilder
	// OutPath names the raster of a branch.
	OutPath func(branch string) string
	Workers int
}

// Outcome lists what a Request produced.
type Outcome struct {
	// Written holds the branch rasters in branch order.
	Written  []string
	Skipped  int
	Warnings []string
}

// Run inundates every branch of req with at most req.Workers in flight.
// Missing artifacts and lake-only branches are warnings; the remaining
// branches still run.
func Run(ctx context.Context, req Request, opt Options) (Outcome, error) {
	log := zap.L().With(zap.String("component", "inundate"))
	paths := make([]string, len(req.Branches))
	warnings := make([]string, len(req.Branches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(req.Workers, 1))
	var mu sync.Mutex
	skipped := 0
	for i, b := range req.Branches {
		g.Go(func() error {
			if err := b.Check(); err != nil {
				warnings[i] = err.Error()
				log.Warn("skipping branch", zap.String("huc", b.HUC), zap.String("branch", b.ID), zap.Error(err))
				return nil
			}
			ht, err := hand.LoadHydroTable(b.HydroTable)
			if err != nil {
				return err
			}
			m, err := req.Build(ht)
			if errors.Is(err, hand.ErrEmptyAfterLakes) {
				warnings[i] = "branch " + b.ID + ": " + err.Error()
				log.Warn("skipping branch", zap.String("huc", b.HUC), zap.String("branch", b.ID), zap.Error(err))
				return nil
			}
			if err != nil {
				return err
			}
			out := req.OutPath(b.ID)
			written, err := Branch(gctx, b, m, out, opt)
			if err != nil {
				return eris.Wrapf(err, "inundate: branch %s", b.ID)
			}
			if written {
				paths[i] = out
			} else {
				mu.Lock()
				skipped++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	var o Outcome
	for i := range req.Branches {
		if paths[i] != "" {
			o.Written = append(o.Written, paths[i])
		}
		if warnings[i] != "" {
			o.Warnings = append(o.Warnings, warnings[i])
		}
	}
	o.Skipped = skipped
	return o, nil
}
