package catfim

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catfim/internal/catkey"
	"github.com/sells-group/catfim/internal/hand"
	"github.com/sells-group/catfim/internal/inundate"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/mosaic"
	"github.com/sells-group/catfim/internal/stages"
)

// hucJob is the work of one HUC worker.
type hucJob struct {
	huc      string
	gauges   []*model.SiteMetadata
	branches []hand.Branch
	msgs     *Messages
	log      *zap.Logger
}

// segmentIDs filters the gauge segments by its own stream order and parses
// the survivors.
func (r *Runner) segmentIDs(m *model.SiteMetadata, log *zap.Logger) []int64 {
	segs := m.Segments()
	if r.deps.StreamOrders != nil && m.NWMFeatureData.StreamOrder.Valid {
		segs = r.deps.StreamOrders.Filter(segs, int(m.NWMFeatureData.StreamOrder.Value))
	}
	out := make([]int64, 0, len(segs))
	for _, s := range segs {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			log.Debug("skipping non-numeric segment", zap.String("segment", s))
			continue
		}
		out = append(out, id)
	}
	return out
}

// inundateProduct runs one product over the HUC branches and mosaics the
// result into the gauge directory. It reports whether a mosaic was written.
func (r *Runner) inundateProduct(ctx context.Context, job *hucJob, lid string, k catkey.Key, build inundate.MaskBuilder) (bool, error) {
	lidDir := r.layout.LID(job.huc, lid)
	if err := os.MkdirAll(lidDir, 0o755); err != nil {
		return false, eris.Wrapf(err, "catfim: create %s", lidDir)
	}
	req := inundate.Request{
		Branches: job.branches,
		Build:    build,
		OutPath: func(branch string) string {
			return filepath.Join(lidDir, catkey.BranchExtentName(lid, k, job.huc, branch))
		},
		Workers: r.opts.JobsInundate,
	}
	out, err := inundate.Run(ctx, req, r.inundation)
	if err != nil {
		return false, err
	}
	r.deps.Metrics.ObserveBranches(len(out.Written), out.Skipped)
	for _, w := range out.Warnings {
		if w != "" {
			job.log.Warn("branch skipped", zap.String("lid", lid), zap.String("product", k.String()), zap.String("warning", w))
		}
	}
	if len(out.Written) == 0 {
		job.log.Info("no branch produced an extent", zap.String("lid", lid), zap.String("product", k.String()))
		return false, nil
	}
	if err := mosaic.MergeAndClean(out.Written, filepath.Join(lidDir, catkey.ExtentName(lid, k))); err != nil {
		return false, err
	}
	return true, nil
}

// stageGauge processes one gauge in stage mode and returns its status.
// An empty status means success.
func (r *Runner) stageGauge(ctx context.Context, job *hucJob, m *model.SiteMetadata, elevRows []hand.ElevRow) (string, error) {
	lid := m.LID()
	log := job.log.With(zap.String("lid", lid))

	th, err := r.deps.Thresholds.FetchThresholds(ctx, lid)
	if err != nil || th == nil {
		log.Warn("threshold lookup failed", zap.Error(err))
		return model.StatusThresholdFetch, nil
	}
	table, warning, ok := stages.Build(th.Stages)
	if !ok {
		return warning, nil
	}

	elev, status := r.acceptance.GaugeElevation(elevRows, lid)
	if status != "" {
		return status, nil
	}
	alt := m.USGSData.Altitude
	if !alt.Valid || alt.Value == 0 {
		return model.StatusBadAltitude, nil
	}
	if ok, reason := r.acceptance.CheckMetadata(m); !ok {
		return model.StatusAcceptancePrefix + reason, nil
	}
	adj, status, ok := r.deps.Datums.Adjust(ctx, m, th.FlowSource)
	if !ok {
		return status, nil
	}

	segs := r.segmentIDs(m, log)
	if len(segs) == 0 {
		return model.StatusNoSegments, nil
	}
	if math.Abs(elev-alt.Value*model.FeetToMeters) > r.cfg.Acceptance.ElevDiscrepancyM {
		log.Warn("gauge elevation disagrees with HAND",
			zap.Float64("hand_elev_m", elev), zap.Float64("altitude_ft", alt.Value))
		return model.StatusElevDiscrepancy, nil
	}

	table, repaired := table.RepairWSE(alt.Value, r.cfg.Inundation.WSERepairFloorFt)
	if repaired {
		log.Info("stages published as water surface elevation, altitude removed", zap.Float64("altitude_ft", alt.Value))
	}
	table = table.WithIntervals(r.opts.IntervalCapFt)

	segSet := make(map[int64]bool, len(segs))
	for _, s := range segs {
		segSet[s] = true
	}
	product := func(ctx context.Context, row stages.Row) (stages.StageDetail, bool, error) {
		wseFt := row.Stage + adj.Feet + alt.Value
		d := stages.StageDetail{
			Category:   row.Category,
			DatumAdjFt: adj.Feet,
			WSEFt:      wseFt,
			WSEM:       wseFt * model.FeetToMeters,
			AltitudeFt: alt.Value,
		}
		handStage := d.WSEM - elev
		k := catkey.Stage(row.Category, row.Stage, row.Interval)
		written, err := r.inundateProduct(ctx, job, lid, k, inundate.StageMasks(segSet, handStage))
		return d, written, err
	}

	var details []stages.StageDetail
	produced := false
	for _, row := range table.Categories() {
		d, written, err := product(ctx, row)
		if err != nil {
			return "", err
		}
		details = append(details, d)
		produced = produced || written
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.JobsIntervals)
	for _, row := range table.Intervals() {
		g.Go(func() error {
			_, written, err := product(gCtx, row)
			if err != nil {
				return err
			}
			mu.Lock()
			produced = produced || written
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	site := stages.SiteFromMetadata(m, job.huc)
	rows := stages.StageAttributes(site, th, details)
	if err := stages.WriteAttributes(stages.AttributesPath(r.layout.Attributes(), lid), rows); err != nil {
		return "", err
	}
	if !produced {
		return model.StatusAllStagesFailed, nil
	}
	return warning, nil
}
