package stages

import (
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catfim/internal/model"
)

// Flow is the target of one category in flow mode.
type Flow struct {
	Category model.Category
	CFS      float64
	CMS      float64
}

// round returns v rounded half away from zero to places decimals.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ToCMS converts a published flow (cfs) to the flow-file value. The flow
// is rounded to hundredths first and the result to five decimals.
func ToCMS(cfs float64) float64 {
	return round(round(cfs, 2)*model.CFSToCMS, 5)
}

// ResolveFlows returns the categories with a usable flow. A flow is usable
// when present and non-zero. ok is false when no category qualifies;
// status then holds the rejection, otherwise the missing-flow warning.
func ResolveFlows(values model.CategoryValues) (flows []Flow, status string, ok bool) {
	var missing []model.Category
	for _, c := range model.Categories {
		v := values.Get(c)
		if !v.Valid || v.Value == 0 {
			missing = append(missing, c)
			continue
		}
		flows = append(flows, Flow{Category: c, CFS: round(v.Value, 2), CMS: ToCMS(v.Value)})
	}
	if len(flows) == 0 {
		return nil, model.StatusNoFlowValues, false
	}
	return flows, model.MissingDataStatus("flow", missing), true
}

// AllFlowsMissing reports whether the threshold record has no flow at all.
func AllFlowsMissing(values model.CategoryValues) bool {
	for _, c := range model.Categories {
		if values.Get(c).Valid {
			return false
		}
	}
	return true
}

type flowRow struct {
	FeatureID int64  `csv:"feature_id"`
	Discharge string `csv:"discharge"`
}

// FlowFilePath is flows/<huc>/<lid>/<cat>/<lid>_huc_<huc>_flows_<cat>.csv
// under dir.
func FlowFilePath(dir, huc, lid string, c model.Category) string {
	return filepath.Join(dir, huc, lid, string(c), lid+"_huc_"+huc+"_flows_"+string(c)+".csv")
}

// WriteFlowFile writes one discharge row per segment.
func WriteFlowFile(path string, segments []int64, cms float64) error {
	rows := make([]flowRow, len(segments))
	for i, s := range segments {
		rows[i] = flowRow{FeatureID: s, Discharge: strconv.FormatFloat(cms, 'f', -1, 64)}
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "stages: encode flow file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "stages: create %s", filepath.Dir(path))
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "stages: write %s", path)
}

// ReadFlowFile loads a flow file as feature_id -> discharge (cms).
func ReadFlowFile(path string) (map[int64]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stages: read %s", path)
	}
	var rows []flowRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "stages: decode %s", path)
	}
	out := make(map[int64]float64, len(rows))
	for _, r := range rows {
		q, err := strconv.ParseFloat(r.Discharge, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "stages: discharge of feature %d", r.FeatureID)
		}
		out[r.FeatureID] = q
	}
	return out, nil
}
