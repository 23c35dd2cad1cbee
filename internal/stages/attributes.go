package stages

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catfim/internal/model"
)

// Site is the descriptive part of an attributes row.
type Site struct {
	LID       string
	Name      string
	WFO       string
	RFC       string
	HUC       string
	State     string
	County    string
	Lat       float64
	Lon       float64
	NRLDBTime string
	NWISTime  string
}

// SiteFromMetadata copies the descriptive fields of m.
func SiteFromMetadata(m *model.SiteMetadata, huc string) Site {
	lat, lon, _, _ := m.Location()
	return Site{
		LID:       m.LID(),
		Name:      m.NWSData.Name,
		WFO:       m.NWSData.WFO,
		RFC:       m.NWSData.RFC,
		HUC:       huc,
		State:     m.NWSData.State,
		County:    m.NWSData.County,
		Lat:       lat,
		Lon:       lon,
		NRLDBTime: m.NRLDBTimestamp,
		NWISTime:  m.NWISTimestamp,
	}
}

// StageDetail carries the datum arithmetic of one stage-mode category.
type StageDetail struct {
	Category   model.Category
	DatumAdjFt float64
	WSEFt      float64
	WSEM       float64
	AltitudeFt float64
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatRounded(o model.OptFloat) string {
	if !o.Valid {
		return ""
	}
	return formatFloat(round(o.Value, 2))
}

func baseRow(site Site, th *model.ThresholdSet, c model.Category) model.AttributeRow {
	return model.AttributeRow{
		NWSLID:      site.LID,
		Name:        site.Name,
		WFO:         site.WFO,
		RFC:         site.RFC,
		HUC:         site.HUC,
		State:       site.State,
		County:      site.County,
		Magnitude:   string(c),
		Q:           formatRounded(th.Flows.Get(c)),
		QUnits:      th.FlowUnits,
		QSource:     th.FlowSource,
		Stage:       formatRounded(th.Stages.Get(c)),
		StageUnits:  th.StageUnits,
		StageSource: th.StageSource,
		WRDSTime:    th.WRDSTimestamp,
		NRLDBTime:   site.NRLDBTime,
		NWISTime:    site.NWISTime,
		Lat:         formatFloat(site.Lat),
		Lon:         formatFloat(site.Lon),
	}
}

// FlowAttributes builds one row per category. q and stage are rounded to
// hundredths.
func FlowAttributes(site Site, th *model.ThresholdSet) []model.AttributeRow {
	rows := make([]model.AttributeRow, 0, len(model.Categories))
	for _, c := range model.Categories {
		rows = append(rows, baseRow(site, th, c))
	}
	return rows
}

// StageAttributes builds one row per mapped category with its datum
// columns.
func StageAttributes(site Site, th *model.ThresholdSet, details []StageDetail) []model.StageAttributeRow {
	rows := make([]model.StageAttributeRow, 0, len(details))
	for _, d := range details {
		rows = append(rows, model.StageAttributeRow{
			AttributeRow: baseRow(site, th, d.Category),
			DatumAdjFt:   formatFloat(d.DatumAdjFt),
			DatumAdjWSE:  formatFloat(d.WSEFt),
			DatumAdjWSEM: formatFloat(d.WSEM),
			LIDAltFt:     formatFloat(d.AltitudeFt),
			LIDAltM:      formatFloat(d.AltitudeFt * model.FeetToMeters),
		})
	}
	return rows
}

// AttributesPath is <lid>_attributes.csv under dir.
func AttributesPath(dir, lid string) string {
	return filepath.Join(dir, lid+"_attributes.csv")
}

// WriteAttributes writes rows, a slice of model.AttributeRow or
// model.StageAttributeRow, to path.
func WriteAttributes(path string, rows any) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "stages: encode attributes")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "stages: write %s", path)
}

// ReadAttributes loads an attributes file written in either mode.
func ReadAttributes(path string) ([]model.StageAttributeRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stages: read %s", path)
	}
	var rows []model.StageAttributeRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "stages: decode %s", path)
	}
	return rows, nil
}

// ConcatAttributes merges every per-gauge attributes file of dir into
// out, ordered by file name. Stage columns are kept only in stage mode.
func ConcatAttributes(dir, out string, mode model.Mode) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*_attributes.csv"))
	if err != nil {
		return 0, eris.Wrap(err, "stages: list attributes")
	}
	sort.Strings(paths)
	var all []model.StageAttributeRow
	for _, p := range paths {
		if filepath.Base(p) == filepath.Base(out) {
			continue
		}
		rows, err := ReadAttributes(p)
		if err != nil {
			return 0, err
		}
		all = append(all, rows...)
	}
	if mode == model.StageBased {
		return len(all), WriteAttributes(out, all)
	}
	flow := make([]model.AttributeRow, len(all))
	for i, r := range all {
		flow[i] = r.AttributeRow
	}
	return len(flow), WriteAttributes(out, flow)
}
