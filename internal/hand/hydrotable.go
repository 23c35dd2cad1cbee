package hand

import (
	"os"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/interp"

	"github.com/sells-group/catfim/internal/model"
)

// ErrEmptyAfterLakes is returned when every candidate hydro-table row
// belongs to a lake.
var ErrEmptyAfterLakes = eris.New("hydroTable is empty after lake removal")

// HydroRow is one rating-curve point of a branch hydro-table. Columns the
// pipeline does not use are ignored.
type HydroRow struct {
	FeatureID    int64   `csv:"feature_id"`
	HydroID      int64   `csv:"HydroID"`
	Stage        float64 `csv:"stage"`
	DischargeCMS float64 `csv:"discharge_cms"`
	LakeID       int64   `csv:"LakeID"`
	HUC          string  `csv:"HUC,omitempty"`
}

// IsLake reports whether the row belongs to a lake.
func (r HydroRow) IsLake() bool { return r.LakeID != model.NotALake }

// HydroTable is a branch hydro-table.
type HydroTable []HydroRow

// LoadHydroTable decodes a hydroTable_<branch>.csv file.
func LoadHydroTable(path string) (HydroTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "hand: read hydro-table %s", path)
	}
	var rows HydroTable
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "hand: decode hydro-table %s", path)
	}
	return rows, nil
}

// HydroIDs returns the distinct non-lake HydroIDs whose feature_id is one of
// segments, in ascending order.
func (t HydroTable) HydroIDs(segments map[int64]bool) ([]int64, error) {
	seen := make(map[int64]bool)
	candidates := 0
	for _, r := range t {
		if !segments[r.FeatureID] {
			continue
		}
		candidates++
		if r.IsLake() {
			continue
		}
		seen[r.HydroID] = true
	}
	if candidates > 0 && len(seen) == 0 {
		return nil, ErrEmptyAfterLakes
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// StagesForFlows interpolates each non-lake HydroID's rating curve at the
// flow (cms) of its feature. Flows outside the curve clamp to its ends.
func (t HydroTable) StagesForFlows(flows map[int64]float64) (map[int64]float64, error) {
	curves := make(map[int64][]HydroRow)
	candidates := 0
	for _, r := range t {
		if _, ok := flows[r.FeatureID]; !ok {
			continue
		}
		candidates++
		if r.IsLake() {
			continue
		}
		curves[r.HydroID] = append(curves[r.HydroID], r)
	}
	if candidates > 0 && len(curves) == 0 {
		return nil, ErrEmptyAfterLakes
	}

	stages := make(map[int64]float64, len(curves))
	for id, rows := range curves {
		s, err := interpolate(rows, flows[rows[0].FeatureID])
		if err != nil {
			return nil, eris.Wrapf(err, "hand: rating curve for HydroID %d", id)
		}
		stages[id] = s
	}
	return stages, nil
}

func interpolate(rows []HydroRow, q float64) (float64, error) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].DischargeCMS < rows[j].DischargeCMS })
	xs := make([]float64, 0, len(rows))
	ys := make([]float64, 0, len(rows))
	for _, r := range rows {
		if n := len(xs); n > 0 && r.DischargeCMS <= xs[n-1] {
			continue
		}
		xs = append(xs, r.DischargeCMS)
		ys = append(ys, r.Stage)
	}
	if len(xs) == 1 {
		return ys[0], nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return 0, err
	}
	switch {
	case q <= xs[0]:
		return ys[0], nil
	case q >= xs[len(xs)-1]:
		return ys[len(ys)-1], nil
	}
	return pl.Predict(q), nil
}
