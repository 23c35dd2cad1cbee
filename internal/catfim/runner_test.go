package catfim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catfim/internal/config"
	"github.com/sells-group/catfim/internal/datum"
	"github.com/sells-group/catfim/internal/hand"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/monitoring"
	"github.com/sells-group/catfim/internal/raster"
	"github.com/sells-group/catfim/internal/sites"
	"github.com/sells-group/catfim/internal/stages"
)

const testHUC = "12090301"

type fakeThresholds map[string]*model.ThresholdSet

func (f fakeThresholds) FetchThresholds(_ context.Context, lid string) (*model.ThresholdSet, error) {
	th, ok := f[lid]
	if !ok {
		return nil, errors.New("wrds: 404")
	}
	return th, nil
}

type fakeDatums struct{ feet float64 }

func (f fakeDatums) Adjust(_ context.Context, _ *model.SiteMetadata, source string) (datum.Adjustment, string, bool) {
	if source == "" {
		return datum.Adjustment{}, model.StatusNoRatingSource, false
	}
	return datum.Adjustment{Feet: f.feet}, "", true
}

// fakeWatersheds places every gauge in huc except those listed in outside.
type fakeWatersheds struct {
	huc     string
	outside map[string]bool
}

func (f fakeWatersheds) Assign(records []*model.SiteMetadata) (map[string][]*model.SiteMetadata, error) {
	out := make(map[string][]*model.SiteMetadata)
	for _, m := range records {
		if f.outside[m.LID()] {
			continue
		}
		m.HUC = f.huc
		out[f.huc] = append(out[f.huc], m)
	}
	return out, nil
}

var (
	fixtureREM = []float32{
		0.2, 0.4, 3, 3,
		0.6, 0.8, 3, -9999,
		1.5, 1.5, 0.1, 0.1,
	}
	fixtureCat = []int32{
		101, 101, 101, 0,
		101, 101, 101, 101,
		102, 102, 102, 102,
	}
)

const fixtureHydro = `HydroID,feature_id,stage,discharge_cms,LakeID,HUC
101,5001,0,0,-999,12090301
101,5001,2,20,-999,12090301
102,5002,0,0,-999,12090301
102,5002,2,20,-999,12090301
`

const fixtureElev = `nws_lid,levpa_id,HydroID,feature_id,dem_adj_elevation,usgs_data_alt_method_code,usgs_data_site_type,usgs_data_alt_accuracy_code
XXXA1,0,101,5001,30.0,D,ST,0.1
XXXA3,0,102,5002,90.0,D,ST,0.1
`

// writeHAND builds a one-branch HAND run with a second, gauge-less HUC.
func writeHAND(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	wkt, err := raster.ProjectionWKT(5070)
	require.NoError(t, err)
	g := raster.Grid{Width: 4, Height: 3, GeoTransform: [6]float64{-100000, 10, 0, 800000, 0, -10}, Projection: wkt}

	run := hand.RunDir{Root: root}
	b := run.Branch(testHUC, hand.BranchZero)
	require.NoError(t, os.MkdirAll(filepath.Dir(b.REM), 0o755))
	require.NoError(t, raster.Write(b.REM, g, fixtureREM, -9999))
	require.NoError(t, raster.Write(b.Catchments, g, fixtureCat, 0))
	require.NoError(t, os.WriteFile(b.HydroTable, []byte(fixtureHydro), 0o644))
	require.NoError(t, os.WriteFile(run.ElevTablePath(testHUC), []byte(fixtureElev), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "12090302", "branches"), 0o755))
	return root
}

func testConfig() *config.Config {
	return &config.Config{
		Log: config.LogConfig{Level: "debug"},
		Acceptance: config.AcceptanceConfig{
			AltMethodCodes:       []string{"D"},
			SiteTypes:            []string{"ST"},
			AltAccuracyThreshold: 1,
			ElevDiscrepancyM:     10,
		},
		Inundation: config.InundationConfig{Windowed: true, BlockSize: 2, DepthCapM: 30, WSERepairFloorFt: 250},
		Metrics:    config.MetricsConfig{Enabled: true, Filename: "metrics.prom", UnmappedRateThreshold: 0.5, MinGauges: 10},
	}
}

func testGauge(lid, feature string) model.SiteMetadata {
	m := gauge(lid, 30.1, -97.9)
	m.Identifiers.NWMFeatureID = model.FlexString(feature)
	m.USGSData.Altitude = model.Float(100)
	m.USGSData.AltMethodCode = "D"
	m.USGSData.SiteType = "ST"
	m.USGSData.AltAccuracyCode = model.Float(0.1)
	return *m
}

func testOptions(t *testing.T, handDir string, mode model.Mode) Options {
	return Options{
		HANDDir:       handDir,
		OutputBase:    filepath.Join(t.TempDir(), "catfim"),
		Mode:          mode,
		JobsHUC:       2,
		JobsInundate:  2,
		JobsIntervals: 2,
		IntervalCapFt: 0,
		CatFIMVersion: "2.2",
		HANDVersion:   "4.5.2.11",
	}
}

func flowThresholds() *model.ThresholdSet {
	th := &model.ThresholdSet{
		StageSource: "NRLDB", FlowSource: model.SourceNRLDB,
		StageUnits: "FT", FlowUnits: "CFS", WRDSTimestamp: "2024-03-01T00:00:00",
	}
	th.Stages.Action = model.Float(5)
	th.Flows.Action = model.Float(200)
	th.Flows.Minor = model.Float(400)
	return th
}

func byLID(recs []model.SiteRecord) map[string]model.SiteRecord {
	out := make(map[string]model.SiteRecord, len(recs))
	for _, r := range recs {
		out[r.AHPSLID] = r
	}
	return out
}

func TestRunFlowBased(t *testing.T) {
	handDir := writeHAND(t)
	restricted, err := sites.ParseRestricted(strings.NewReader(
		"nws_lid,restricted_reason,catfim_type\nXXXA4,Gauge is a reservoir,flow\n"))
	require.NoError(t, err)

	catalog := []model.SiteMetadata{
		testGauge("XXXA1", "5001"),
		testGauge("XXXA2", "5001"),
		testGauge("TOOLONG", "5001"),
		testGauge("XXXA4", "5001"),
		testGauge("XXXZ9", "5001"),
	}
	deps := Deps{
		Thresholds:   fakeThresholds{"xxxa1": flowThresholds(), "xxxa4": flowThresholds()},
		Datums:       fakeDatums{},
		Catalog:      CatalogFunc(func(context.Context) ([]model.SiteMetadata, error) { return catalog, nil }),
		Watersheds:   fakeWatersheds{huc: testHUC, outside: map[string]bool{"xxxz9": true}},
		Restricted:   restricted,
		Metrics:      monitoring.NewMetrics(model.FlowBased),
		Clock:        clockwork.NewFakeClock(),
		StreamOrders: nil,
	}
	opts := testOptions(t, handDir, model.FlowBased)
	r, err := New(opts, testConfig(), deps)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	l := r.Layout()

	assert.Equal(t, []string{testHUC}, sum.HUCs, "HUCs without gauges are not processed")
	assert.Zero(t, sum.HUCFailures)
	assert.Equal(t, 2, sum.Library, "one dissolved row per (lid, magnitude)")

	assert.FileExists(t, stages.FlowFilePath(l.Flows(), testHUC, "xxxa1", model.Action))
	assert.FileExists(t, stages.FlowFilePath(l.Flows(), testHUC, "xxxa1", model.Minor))
	assert.FileExists(t, filepath.Join(l.LID(testHUC, "xxxa1"), "xxxa1_action_extent.tif"))
	assert.NoFileExists(t, filepath.Join(l.LID(testHUC, "xxxa1"), "xxxa1_action_extent_12090301_0.tif"))
	for _, p := range []string{l.LibraryGPKG(), l.LibraryCSV(), l.SitesGPKG(), l.SitesCSV(), l.AttributesCSV()} {
		assert.FileExists(t, p)
	}
	assert.FileExists(t, filepath.Join(l.Logs(), "metrics.prom"))

	recs := byLID(sum.Sites)
	require.Len(t, recs, 4)
	assert.NotContains(t, recs, "xxxz9")
	assert.Equal(t, "yes", recs["xxxa1"].Mapped)
	assert.Equal(t, "Missing flow data for moderate; major; record", recs["xxxa1"].Status)
	assert.Equal(t, "no", recs["xxxa2"].Mapped)
	assert.Equal(t, model.StatusThresholdFetch, recs["xxxa2"].Status)
	assert.Equal(t, model.StatusInvalidLID, recs["toolong"].Status)
	assert.Equal(t, "Gauge is a reservoir", recs["xxxa4"].Status)

	msgs, err := ReadMessages(l.Messages())
	require.NoError(t, err)
	assert.Equal(t, "---Missing flow data for moderate; major; record", msgs["xxxa1"])

	children, err := filepath.Glob(filepath.Join(l.Logs(), "generate_*.log"))
	require.NoError(t, err)
	assert.Empty(t, children, "worker logs are merged into the run log")
	parent, err := os.ReadFile(sum.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(parent), `"msg":"HUC finished"`)
	assert.Contains(t, string(parent), sum.RunID)

	// Step 3 rebuilds the final columns from the files on disk.
	opts.Step = StepStatus
	r, err = New(opts, testConfig(), deps)
	require.NoError(t, err)
	again, err := r.Run(context.Background())
	require.NoError(t, err)
	recs2 := byLID(again.Sites)
	for lid, rec := range recs {
		assert.Equal(t, rec.Mapped, recs2[lid].Mapped, lid)
		assert.Equal(t, rec.Status, recs2[lid].Status, lid)
	}
}

func TestRunStageBased(t *testing.T) {
	handDir := writeHAND(t)
	th := &model.ThresholdSet{StageSource: "NRLDB", FlowSource: model.SourceNRLDB, StageUnits: "FT", FlowUnits: "CFS"}
	th.Stages.Action = model.Float(2)
	th.Stages.Record = model.Float(5)
	far := testGauge("XXXA3", "5002")
	far.USGSData.Altitude = model.Float(100)

	catalog := []model.SiteMetadata{testGauge("XXXA1", "5001"), far, testGauge("XXXA5", "5001")}
	deps := Deps{
		Thresholds: fakeThresholds{"xxxa1": th, "xxxa3": th, "xxxa5": th},
		Datums:     fakeDatums{},
		Catalog:    CatalogFunc(func(context.Context) ([]model.SiteMetadata, error) { return catalog, nil }),
		Watersheds: fakeWatersheds{huc: testHUC},
		Clock:      clockwork.NewFakeClock(),
	}
	opts := testOptions(t, handDir, model.StageBased)
	opts.HUCs = []string{testHUC, "99999999"}
	opts.IntervalCapFt = 2
	r, err := New(opts, testConfig(), deps)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	l := r.Layout()

	lidDir := l.LID(testHUC, "xxxa1")
	assert.FileExists(t, filepath.Join(lidDir, "xxxa1_action_2p0ft_extent.tif"))
	assert.FileExists(t, filepath.Join(lidDir, "xxxa1_record_5p0ft_extent.tif"))

	attrs, err := stages.ReadAttributes(stages.AttributesPath(l.Attributes(), "xxxa1"))
	require.NoError(t, err)
	require.Len(t, attrs, 2, "attribute rows are written for categories only, not intervals")
	assert.Equal(t, "action", attrs[0].Magnitude)
	assert.Equal(t, "record", attrs[1].Magnitude)
	assert.Equal(t, "102", attrs[0].DatumAdjWSE)
	assert.Equal(t, "100", attrs[0].LIDAltFt)

	recs := byLID(sum.Sites)
	assert.Equal(t, "yes", recs["xxxa1"].Mapped)
	assert.Equal(t, "Missing stage data for minor; moderate; major", recs["xxxa1"].Status)
	// HAND puts xxxa3 at 90 m while its altitude is 100 ft.
	assert.Equal(t, model.StatusElevDiscrepancy, recs["xxxa3"].Status)
	assert.Equal(t, model.StatusNoGageData, recs["xxxa5"].Status)
	assert.Equal(t, "HAND 4_5_2_11", recs["xxxa1"].ModelVersion)
}

func TestRunNoEligibleHUCs(t *testing.T) {
	handDir := writeHAND(t)
	deps := Deps{
		Thresholds: fakeThresholds{},
		Datums:     fakeDatums{},
		Catalog:    CatalogFunc(func(context.Context) ([]model.SiteMetadata, error) { return nil, nil }),
		Watersheds: fakeWatersheds{huc: testHUC},
	}
	r, err := New(testOptions(t, handDir, model.FlowBased), testConfig(), deps)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoEligibleHUCs)
}

func TestRunMissingHANDDir(t *testing.T) {
	opts := testOptions(t, filepath.Join(t.TempDir(), "missing"), model.FlowBased)
	r, err := New(opts, testConfig(), Deps{})
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	assert.Error(t, err)
	assert.NoDirExists(t, opts.OutputDir())
}
