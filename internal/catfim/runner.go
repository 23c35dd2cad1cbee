package catfim

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catfim/internal/config"
	"github.com/sells-group/catfim/internal/datum"
	"github.com/sells-group/catfim/internal/hand"
	"github.com/sells-group/catfim/internal/inundate"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/monitoring"
	"github.com/sells-group/catfim/internal/nwm"
	"github.com/sells-group/catfim/internal/sites"
	"github.com/sells-group/catfim/internal/stages"
	"github.com/sells-group/catfim/internal/vectorize"
)

// ErrNoEligibleHUCs is returned when no selected HUC has both HAND outputs
// and at least one gauge.
var ErrNoEligibleHUCs = eris.New("catfim: no eligible HUCs to process")

// ThresholdSource returns the threshold record of a gauge.
type ThresholdSource interface {
	FetchThresholds(ctx context.Context, lid string) (*model.ThresholdSet, error)
}

// DatumAdjuster resolves the NAVD88 adjustment of a gauge.
type DatumAdjuster interface {
	Adjust(ctx context.Context, site *model.SiteMetadata, ratingSource string) (datum.Adjustment, string, bool)
}

// Catalog returns the gauge metadata of the run.
type Catalog interface {
	Sites(ctx context.Context) ([]model.SiteMetadata, error)
}

// CatalogFunc adapts a function to Catalog.
type CatalogFunc func(ctx context.Context) ([]model.SiteMetadata, error)

// Sites calls f.
func (f CatalogFunc) Sites(ctx context.Context) ([]model.SiteMetadata, error) { return f(ctx) }

// Watersheds assigns gauges to HUC8 watersheds.
type Watersheds interface {
	Assign(records []*model.SiteMetadata) (map[string][]*model.SiteMetadata, error)
}

var _ DatumAdjuster = (*datum.Normalizer)(nil)

// Deps are the collaborators of a run.
type Deps struct {
	Thresholds   ThresholdSource
	Datums       DatumAdjuster
	Catalog      Catalog
	Watersheds   Watersheds
	StreamOrders nwm.StreamOrders
	Restricted   *sites.Registry
	Metrics      *monitoring.Metrics
	Clock        clockwork.Clock
}

// Summary reports what a run produced.
type Summary struct {
	RunID       string
	LogPath     string
	HUCs        []string
	HUCFailures int
	Library     int
	Sites       []model.SiteRecord
	Alerts      []monitoring.Alert
}

// Runner executes one CatFIM run.
type Runner struct {
	opts Options
	cfg  *config.Config
	deps Deps

	layout     Layout
	hand       hand.RunDir
	acceptance sites.Acceptance
	inundation inundate.Options
	versions   vectorize.Versions
	runLog     *RunLog

	hucFailures atomic.Int64
}

// New validates opts and returns a Runner.
func New(opts Options, cfg *config.Config, deps Deps) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Runner{
		opts:       opts,
		cfg:        cfg,
		deps:       deps,
		layout:     Layout{Root: opts.OutputDir(), Mode: opts.Mode},
		acceptance: sites.NewAcceptance(cfg.Acceptance),
		inundation: inundate.Options{
			Windowed:  cfg.Inundation.Windowed,
			BlockSize: cfg.Inundation.BlockSize,
			DepthCapM: cfg.Inundation.DepthCapM,
		},
		versions: vectorize.NewVersions(opts.HANDVersion, opts.CatFIMVersion),
	}, nil
}

// Layout returns the output layout of the run.
func (r *Runner) Layout() Layout { return r.layout }

// Run executes the configured step. Missing inputs and an empty HUC
// selection are fatal; per-gauge and per-HUC failures are recorded as
// statuses and do not stop the run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	run, err := hand.Open(r.opts.HANDDir)
	if err != nil {
		return nil, err
	}
	r.hand = run
	if err := r.layout.Prepare(r.opts.Step, r.opts.Overwrite); err != nil {
		return nil, err
	}

	level, err := zapcore.ParseLevel(r.cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	runID := uuid.NewString()
	runLog, restore, err := OpenRunLog(r.layout.Logs(), r.opts.Mode, r.deps.Clock, runID, level)
	if err != nil {
		return nil, err
	}
	defer restore()
	defer runLog.Close() //nolint:errcheck
	r.runLog = runLog

	log := zap.L().With(zap.String("component", "catfim"))
	start := r.deps.Clock.Now()
	log.Info("run started",
		zap.String("mode", string(r.opts.Mode)),
		zap.Int("step", r.opts.Step),
		zap.String("hand_dir", r.opts.HANDDir),
		zap.String("output_dir", r.layout.Root),
		zap.Int("jobs_huc", r.opts.JobsHUC),
		zap.Int("jobs_inundate", r.opts.JobsInundate),
		zap.Int("jobs_intervals", r.opts.JobsIntervals),
	)
	sum := &Summary{RunID: runID, LogPath: runLog.Path}

	var groups map[string][]*model.SiteMetadata
	if r.opts.Step != StepStatus {
		groups, err = r.assign(ctx)
		if err != nil {
			return nil, err
		}
		sum.HUCs, err = r.eligible(groups)
		if err != nil {
			return nil, err
		}
		log.Info("HUCs selected", zap.Int("count", len(sum.HUCs)), zap.Strings("hucs", sum.HUCs))
	}

	if r.opts.Step == StepAll || r.opts.Step == StepGenerate {
		if err := r.generate(ctx, sum.HUCs, groups); err != nil {
			return nil, err
		}
		if err := runLog.Merge(stepGenerate); err != nil {
			log.Warn("merge worker logs", zap.Error(err))
		}
	}
	if r.opts.Step == StepAll || r.opts.Step == StepVectorize {
		n, err := r.vectorize(ctx, sum.HUCs)
		if err != nil {
			return nil, err
		}
		sum.Library = n
	}

	if err := r.finish(ctx, sum, groups); err != nil {
		return nil, err
	}
	sum.HUCFailures = int(r.hucFailures.Load())
	log.Info("run finished",
		zap.Duration("elapsed", r.deps.Clock.Since(start)),
		zap.Int("sites", len(sum.Sites)),
		zap.Int("library_rows", sum.Library),
		zap.Int("huc_failures", sum.HUCFailures),
	)
	return sum, nil
}

// assign loads the catalog and groups its gauges by HUC8.
func (r *Runner) assign(ctx context.Context) (map[string][]*model.SiteMetadata, error) {
	records, err := r.deps.Catalog.Sites(ctx)
	if err != nil {
		return nil, err
	}
	ptrs := make([]*model.SiteMetadata, len(records))
	for i := range records {
		ptrs[i] = &records[i]
	}
	return r.deps.Watersheds.Assign(ptrs)
}

// eligible intersects the selected HUCs with the HAND run and the HUCs that
// received at least one gauge.
func (r *Runner) eligible(groups map[string][]*model.SiteMetadata) ([]string, error) {
	available, err := r.hand.HUCs()
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "catfim"))
	inRun := make(map[string]bool, len(available))
	for _, h := range available {
		inRun[h] = true
	}
	selected := available
	if !r.opts.AllHUCs() {
		selected = nil
		for _, h := range r.opts.HUCs {
			if !inRun[h] {
				log.Warn("HUC not in HAND run directory", zap.String("huc", h))
				continue
			}
			selected = append(selected, h)
		}
	}
	seen := make(map[string]bool)
	var out []string
	for _, h := range selected {
		if seen[h] || len(groups[h]) == 0 {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil, ErrNoEligibleHUCs
	}
	sort.Strings(out)
	return out, nil
}

const (
	stepGenerate  = "generate"
	stepVectorize = "vectorize"
)

// generate runs the HUC workers. A failed HUC is logged and counted; only
// cancellation stops the step.
func (r *Runner) generate(ctx context.Context, hucs []string, groups map[string][]*model.SiteMetadata) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.JobsHUC)
	for _, huc := range hucs {
		g.Go(func() error {
			r.processHUC(gCtx, huc, groups[huc])
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// processHUC runs one HUC worker and writes its message file. Panics and
// errors mark the unfinished gauges of the HUC.
func (r *Runner) processHUC(ctx context.Context, huc string, gauges []*model.SiteMetadata) {
	start := r.deps.Clock.Now()
	log, closeLog, err := r.runLog.Child(stepGenerate, huc)
	if err != nil {
		log = zap.L().With(zap.String("huc", huc))
		closeLog = func() error { return nil }
		log.Warn("child log unavailable", zap.Error(err))
	}
	defer closeLog() //nolint:errcheck

	job := &hucJob{huc: huc, gauges: gauges, msgs: &Messages{}, log: log.With(zap.String("component", "catfim.huc"))}
	done := make(map[string]bool, len(gauges))

	var runErr error
	func() {
		defer func() {
			if p := recover(); p != nil {
				runErr = eris.Errorf("panic: %v", p)
				job.log.Error("HUC worker panicked",
					zap.Any("panic", p), zap.String("stack", string(debug.Stack())))
			}
		}()
		runErr = r.runHUC(ctx, job, done)
	}()

	failed := runErr != nil && ctx.Err() == nil
	if failed {
		r.hucFailures.Add(1)
		job.log.Error("HUC failed", zap.Error(runErr))
		for _, m := range gauges {
			if !done[m.LID()] {
				job.msgs.Add(m.LID(), model.StatusHUCFailurePrefix+runErr.Error())
			}
		}
	}
	if err := job.msgs.Write(MessagesPath(r.layout.Messages(), huc)); err != nil {
		job.log.Error("write messages", zap.Error(err))
	}
	r.deps.Metrics.ObserveHUC(r.deps.Clock.Since(start), failed)
	job.log.Info("HUC finished",
		zap.Duration("elapsed", r.deps.Clock.Since(start)),
		zap.Int("gauges", len(gauges)),
		zap.Int("messages", job.msgs.Len()))
}

// runHUC processes the gauges of a HUC in lid order.
func (r *Runner) runHUC(ctx context.Context, job *hucJob, done map[string]bool) error {
	ids, err := r.hand.Branches(job.huc)
	if err != nil {
		return err
	}
	for _, id := range ids {
		job.branches = append(job.branches, r.hand.Branch(job.huc, id))
	}
	var elevRows []hand.ElevRow
	if r.opts.Mode == model.StageBased {
		elevRows, err = hand.LoadElevTable(r.hand.ElevTablePath(job.huc))
		if err != nil {
			return err
		}
	}

	gauges := append([]*model.SiteMetadata(nil), job.gauges...)
	sort.SliceStable(gauges, func(i, j int) bool { return gauges[i].LID() < gauges[j].LID() })
	for _, m := range gauges {
		if err := ctx.Err(); err != nil {
			return err
		}
		lid := m.LID()
		status, err := r.gauge(ctx, job, m, elevRows)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			job.log.Error("gauge failed", zap.String("lid", lid), zap.Error(err))
			status = model.StatusHUCFailurePrefix + err.Error()
		}
		job.msgs.Add(lid, status)
		done[lid] = true
	}
	return nil
}

// gauge applies the checks shared by both modes, then the mode pipeline.
func (r *Runner) gauge(ctx context.Context, job *hucJob, m *model.SiteMetadata, elevRows []hand.ElevRow) (string, error) {
	lid := m.LID()
	if len(lid) != 5 {
		return model.StatusInvalidLID, nil
	}
	if reason, ok := r.deps.Restricted.Lookup(lid, r.opts.Mode.Scope()); ok {
		job.log.Info("restricted site skipped", zap.String("lid", lid), zap.String("reason", reason))
		return reason, nil
	}
	if r.opts.Mode == model.StageBased {
		return r.stageGauge(ctx, job, m, elevRows)
	}
	return r.flowGauge(ctx, job, m)
}

// vectorize polygonizes every HUC mosaic, concatenates the attributes and
// aggregates the library. It returns the number of library rows.
func (r *Runner) vectorize(ctx context.Context, hucs []string) (int, error) {
	log := zap.L().With(zap.String("component", "catfim"), zap.String("step", stepVectorize))
	v := vectorize.Vectorizer{
		AttributesDir: r.layout.Attributes(),
		GPKGDir:       r.layout.GPKG(),
		Versions:      r.versions,
	}

	var files atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.JobsHUC)
	for _, huc := range hucs {
		dir := r.layout.HUC(huc)
		if !exists(dir) {
			continue
		}
		g.Go(func() error {
			written, err := v.HUC(gCtx, huc, dir)
			if err != nil {
				return eris.Wrapf(err, "catfim: vectorize %s", huc)
			}
			files.Add(int64(len(written)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	log.Info("extents vectorized", zap.Int64("files", files.Load()))

	n, err := stages.ConcatAttributes(r.layout.Attributes(), r.layout.AttributesCSV(), r.opts.Mode)
	if err != nil {
		return 0, err
	}
	log.Info("attributes concatenated", zap.Int("rows", n), zap.String("path", r.layout.AttributesCSV()))

	recs, err := vectorize.Aggregate(ctx, r.layout.GPKG(), r.opts.Mode, r.layout.LibraryGPKG(), r.layout.LibraryCSV())
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		log.Warn("library is empty")
	}
	return len(recs), nil
}

// finish builds or reloads the sites table, reconciles it against the
// library files and reports metrics and alerts.
func (r *Runner) finish(ctx context.Context, sum *Summary, groups map[string][]*model.SiteMetadata) error {
	log := zap.L().With(zap.String("component", "catfim"))
	msgs, err := ReadMessages(r.layout.Messages())
	if err != nil {
		return err
	}

	var recs []model.SiteRecord
	if groups == nil {
		recs, err = ReadSites(ctx, r.layout.SitesGPKG())
		if err != nil {
			return err
		}
		for i := range recs {
			if s, ok := msgs[recs[i].AHPSLID]; ok {
				recs[i].Status = s
			}
		}
	} else {
		selected := make(map[string][]*model.SiteMetadata, len(sum.HUCs))
		for _, h := range sum.HUCs {
			selected[h] = groups[h]
		}
		recs, err = SiteRecords(selected, msgs, r.acceptance, r.versions)
		if err != nil {
			return err
		}
	}

	produced, err := ProducedLIDs(r.layout.GPKG())
	if err != nil {
		return err
	}
	Reconcile(recs, produced)
	if err := WriteSites(ctx, r.layout.SitesGPKG(), r.layout.SitesCSV(), recs); err != nil {
		return err
	}
	sum.Sites = recs

	r.deps.Metrics.ObserveSites(recs)
	snap := monitoring.Collect(recs, int(r.hucFailures.Load()))
	alerter := monitoring.NewAlerter(r.cfg.Metrics)
	sum.Alerts = alerter.Evaluate(snap)
	alerter.Log(sum.Alerts)
	log.Info("sites written",
		zap.String("path", r.layout.SitesGPKG()),
		zap.Int("total", snap.Total),
		zap.Int("mapped", snap.Mapped),
		zap.String("unmapped_rate", fmt.Sprintf("%.1f%%", snap.UnmappedRate*100)))

	if r.cfg.Metrics.Enabled && r.deps.Metrics != nil {
		path := filepath.Join(r.layout.Logs(), r.cfg.Metrics.Filename)
		if err := r.deps.Metrics.WriteTextfile(path); err != nil {
			log.Warn("write metrics", zap.Error(err))
		}
	}
	return nil
}
