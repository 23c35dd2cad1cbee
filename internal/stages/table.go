// Package stages resolves the per-category targets of a gauge: the stage
// table and its interval stages in stage mode, the flow file in flow mode.
package stages

import (
	"math"
	"sort"

	"github.com/sells-group/catfim/internal/model"
)

// Row is one entry of a stage table. Absent categories carry
// model.AbsentStage.
type Row struct {
	Category model.Category
	Stage    float64
	Interval bool
	// RFCStage is the stage as published, before any WSE repair.
	RFCStage float64
}

// Valid reports whether the row has a usable stage.
func (r Row) Valid() bool { return r.Stage != model.AbsentStage }

// Table is the stage table of a gauge: one row per category in ascending
// severity, followed by interval rows once generated.
type Table []Row

// Build seeds a five-row table from the published stages. ok is false when
// no category has a usable value. status carries the missing-stage warning,
// if any.
func Build(values model.CategoryValues) (t Table, status string, ok bool) {
	t = make(Table, 0, len(model.Categories))
	for _, c := range model.Categories {
		row := Row{Category: c, Stage: model.AbsentStage, RFCStage: model.AbsentStage}
		if v, ok := values.Usable(c); ok {
			row.Stage, row.RFCStage = v, v
		}
		t = append(t, row)
	}
	present, missing := values.Present()
	if len(present) == 0 {
		return t, model.StatusNoThresholds, false
	}
	return t, model.MissingDataStatus("stage", missing), true
}

// Categories returns the valid non-interval rows in severity order.
func (t Table) Categories() []Row {
	var out []Row
	for _, r := range t {
		if !r.Interval && r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// Intervals returns the interval rows of the table.
func (t Table) Intervals() []Row {
	var out []Row
	for _, r := range t {
		if r.Interval {
			out = append(out, r)
		}
	}
	return out
}

// Min returns the smallest valid stage.
func (t Table) Min() (float64, bool) {
	m, ok := math.Inf(1), false
	for _, r := range t.Categories() {
		if r.Stage < m {
			m, ok = r.Stage, true
		}
	}
	return m, ok
}

// RepairWSE detects tables published as water surface elevations: when the
// smallest stage exceeds both the gauge altitude and floor (ft), the
// altitude is subtracted from every stage. RFCStage keeps the published
// value. The returned bool reports whether a repair happened.
func (t Table) RepairWSE(altitude, floor float64) (Table, bool) {
	m, ok := t.Min()
	if !ok || m <= altitude || m <= floor {
		return t, false
	}
	out := make(Table, len(t))
	for i, r := range t {
		if r.Valid() {
			r.Stage -= altitude
		}
		out[i] = r
	}
	return out, true
}

// WithIntervals appends whole-foot interval rows. Between two consecutive
// non-record categories every integer strictly above the lower stage and
// strictly below the upper one is emitted, labelled with the lower
// category. Above the highest non-record category the integers run up to
// ceil(stage)+capFt-1. Values equal to a published whole-foot stage are
// skipped.
func (t Table) WithIntervals(capFt int) Table {
	var base []Row
	claimed := make(map[float64]bool)
	for _, r := range t.Categories() {
		claimed[r.Stage] = true
		if r.Category != model.Record {
			base = append(base, r)
		}
	}
	out := append(Table{}, t...)
	if len(base) == 0 {
		return out
	}
	sort.SliceStable(base, func(i, j int) bool { return base[i].Stage < base[j].Stage })

	emit := func(c model.Category, from float64, last float64) {
		for n := math.Floor(from) + 1; n <= last; n++ {
			if claimed[n] {
				continue
			}
			claimed[n] = true
			out = append(out, Row{Category: c, Stage: n, Interval: true, RFCStage: model.AbsentStage})
		}
	}
	for i := 0; i+1 < len(base); i++ {
		upper := base[i+1].Stage
		last := math.Ceil(upper) - 1
		emit(base[i].Category, base[i].Stage, last)
	}
	top := base[len(base)-1]
	emit(top.Category, top.Stage, math.Ceil(top.Stage)+float64(capFt)-1)
	return out
}
