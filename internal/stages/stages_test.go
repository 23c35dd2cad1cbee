package stages

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catfim/internal/model"
)

func values(action, minor, moderate, major, record model.OptFloat) model.CategoryValues {
	return model.CategoryValues{Action: action, Minor: minor, Moderate: moderate, Major: major, Record: record}
}

var none = model.OptFloat{}

func stagesOf(rows []Row) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Stage
	}
	return out
}

func TestBuildAndIntervals(t *testing.T) {
	table, status, ok := Build(values(model.Float(5), model.Float(10), model.Float(15), model.Float(20), none))
	require.True(t, ok)
	assert.Equal(t, "---Missing stage data for record", status)
	if diff := cmp.Diff([]float64{5, 10, 15, 20, -1}, stagesOf(table)); diff != "" {
		t.Errorf("stage table mismatch (-want +got):\n%s", diff)
	}

	full := table.WithIntervals(5)
	want := []float64{6, 7, 8, 9, 11, 12, 13, 14, 16, 17, 18, 19, 21, 22, 23, 24}
	if diff := cmp.Diff(want, stagesOf(full.Intervals())); diff != "" {
		t.Errorf("intervals mismatch (-want +got):\n%s", diff)
	}
	for _, r := range full.Intervals() {
		switch {
		case r.Stage < 10:
			assert.Equal(t, model.Action, r.Category)
		case r.Stage > 20:
			assert.Equal(t, model.Major, r.Category)
		}
	}
	assert.Len(t, full, 5+len(want))
}

func TestIntervalsFractionalStages(t *testing.T) {
	table, _, ok := Build(values(model.Float(5.2), none, model.Float(7.4), model.Float(10.7), model.Float(12)))
	require.True(t, ok)
	got := table.WithIntervals(5).Intervals()

	want := []Row{
		{Category: model.Action, Stage: 6, Interval: true, RFCStage: -1},
		{Category: model.Action, Stage: 7, Interval: true, RFCStage: -1},
		{Category: model.Moderate, Stage: 8, Interval: true, RFCStage: -1},
		{Category: model.Moderate, Stage: 9, Interval: true, RFCStage: -1},
		{Category: model.Moderate, Stage: 10, Interval: true, RFCStage: -1},
		{Category: model.Major, Stage: 11, Interval: true, RFCStage: -1},
		{Category: model.Major, Stage: 13, Interval: true, RFCStage: -1},
		{Category: model.Major, Stage: 14, Interval: true, RFCStage: -1},
		{Category: model.Major, Stage: 15, Interval: true, RFCStage: -1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("intervals mismatch (-want +got):\n%s", diff)
	}
}

func TestIntervalsRecordOnly(t *testing.T) {
	table, status, ok := Build(values(none, none, none, none, model.Float(30)))
	require.True(t, ok)
	assert.Equal(t, "---Missing stage data for action; minor; moderate; major", status)
	assert.Empty(t, table.WithIntervals(5).Intervals())
}

func TestIntervalsUnique(t *testing.T) {
	table, _, _ := Build(values(model.Float(3), model.Float(3), model.Float(4.5), none, none))
	seen := map[float64]bool{}
	for _, r := range table.WithIntervals(3).Intervals() {
		assert.False(t, seen[r.Stage], "duplicate interval %v", r.Stage)
		seen[r.Stage] = true
	}
}

func TestBuildNoThresholds(t *testing.T) {
	_, status, ok := Build(values(none, model.Float(0), model.Float(-2), none, none))
	assert.False(t, ok)
	assert.Equal(t, model.StatusNoThresholds, status)
}

func TestRepairWSE(t *testing.T) {
	table, _, _ := Build(values(model.Float(525), model.Float(527), model.Float(530), none, none))
	repaired, changed := table.RepairWSE(520, 250)
	require.True(t, changed)
	assert.Equal(t, 5.0, repaired[0].Stage)
	assert.Equal(t, 525.0, repaired[0].RFCStage)
	assert.Equal(t, 10.0, repaired[2].Stage)
	assert.Equal(t, model.AbsentStage, repaired[3].Stage)
	assert.Equal(t, 525.0, table[0].Stage, "input table is not modified")
}

func TestRepairWSEIdempotent(t *testing.T) {
	tests := []struct {
		name     string
		action   float64
		altitude float64
	}{
		{"below altitude", 500, 520},
		{"equal altitude", 520, 520},
		{"below floor", 200, 100},
		{"at floor", 250, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, _, _ := Build(values(model.Float(tt.action), none, none, none, none))
			got, changed := table.RepairWSE(tt.altitude, 250)
			assert.False(t, changed)
			assert.Equal(t, table, got)
		})
	}
}

func TestResolveFlows(t *testing.T) {
	flows, status, ok := ResolveFlows(values(model.Float(100), none, model.Float(300), model.Float(500), none))
	require.True(t, ok)
	assert.Equal(t, "---Missing flow data for minor; record", status)
	require.Len(t, flows, 3)
	assert.Equal(t, model.Action, flows[0].Category)
	assert.InDelta(t, 2.83168, flows[0].CMS, 1e-9)
	assert.InDelta(t, 8.49504, flows[1].CMS, 1e-9)
	assert.InDelta(t, 14.1584, flows[2].CMS, 1e-9)

	_, status, ok = ResolveFlows(values(model.Float(0), none, none, none, none))
	assert.False(t, ok)
	assert.Equal(t, model.StatusNoFlowValues, status)

	assert.True(t, AllFlowsMissing(values(none, none, none, none, none)))
	assert.False(t, AllFlowsMissing(values(model.Float(0), none, none, none, none)))
}

func TestFlowFile(t *testing.T) {
	dir := t.TempDir()
	path := FlowFilePath(dir, "12090301", "xxxa1", model.Action)
	assert.Equal(t, filepath.Join(dir, "12090301", "xxxa1", "action", "xxxa1_huc_12090301_flows_action.csv"), path)

	require.NoError(t, WriteFlowFile(path, []int64{5001, 5002}, ToCMS(100)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "feature_id,discharge\n5001,2.83168\n5002,2.83168\n", string(data))

	flows, err := ReadFlowFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{5001: 2.83168, 5002: 2.83168}, flows)
}

func testThresholds() *model.ThresholdSet {
	return &model.ThresholdSet{
		Stages:        values(model.Float(5.123), model.Float(10), none, none, none),
		Flows:         values(model.Float(100.456), none, none, none, none),
		StageSource:   "NRLDB",
		FlowSource:    "USGS Rating Depot",
		StageUnits:    "FT",
		FlowUnits:     "CFS",
		WRDSTimestamp: "2024-09-01T00:00:00",
	}
}

func TestAttributes(t *testing.T) {
	dir := t.TempDir()
	site := Site{LID: "xxxa1", Name: "Test Creek", WFO: "TSA", RFC: "ABRFC", HUC: "12090301", State: "OK", Lat: 36.1, Lon: -95.9}

	flowRows := FlowAttributes(site, testThresholds())
	require.Len(t, flowRows, 5)
	assert.Equal(t, "100.46", flowRows[0].Q)
	assert.Equal(t, "5.12", flowRows[0].Stage)
	assert.Equal(t, "", flowRows[1].Q)
	require.NoError(t, WriteAttributes(AttributesPath(dir, "xxxa1"), flowRows))

	stageRows := StageAttributes(site, testThresholds(), []StageDetail{
		{Category: model.Action, DatumAdjFt: 1.5, WSEFt: 106.6, WSEM: 32.49, AltitudeFt: 100},
	})
	require.Len(t, stageRows, 1)
	altM, err := strconv.ParseFloat(stageRows[0].LIDAltM, 64)
	require.NoError(t, err)
	assert.InDelta(t, 30.48, altM, 1e-9)
	require.NoError(t, WriteAttributes(AttributesPath(dir, "xxxb1"), stageRows))

	got, err := ReadAttributes(AttributesPath(dir, "xxxb1"))
	require.NoError(t, err)
	assert.Equal(t, stageRows, got)

	out := filepath.Join(dir, "nws_lid_attributes.csv")
	n, err := ConcatAttributes(dir, out, model.FlowBased)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	header, _, _ := strings.Cut(string(data), "\n")
	assert.NotContains(t, header, "dtm_adj_ft")

	n, err = ConcatAttributes(dir, out, model.StageBased)
	require.NoError(t, err)
	assert.Equal(t, 6, n, "the concatenated file is not read back")
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dtm_adj_ft")
}
