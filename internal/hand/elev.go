package hand

import (
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catfim/internal/model"
)

// ElevRow is one gauge/level-path row of usgs_elev_table.csv.
type ElevRow struct {
	NWSLID          string         `csv:"nws_lid"`
	LevpaID         int64          `csv:"levpa_id,omitempty"`
	HydroID         int64          `csv:"HydroID,omitempty"`
	FeatureID       int64          `csv:"feature_id,omitempty"`
	DemAdjElevation model.OptFloat `csv:"dem_adj_elevation"`
	AltMethodCode   string         `csv:"usgs_data_alt_method_code"`
	SiteType        string         `csv:"usgs_data_site_type"`
	AltAccuracyCode model.OptFloat `csv:"usgs_data_alt_accuracy_code"`
}

// LoadElevTable decodes a HUC's usgs_elev_table.csv.
func LoadElevTable(path string) ([]ElevRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(ErrMissingArtifact, "usgs_elev_table %s: %v", path, err)
	}
	var rows []ElevRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "hand: decode %s", path)
	}
	for i := range rows {
		rows[i].NWSLID = strings.ToUpper(strings.TrimSpace(rows[i].NWSLID))
		rows[i].AltMethodCode = strings.TrimSpace(rows[i].AltMethodCode)
		rows[i].SiteType = strings.TrimSpace(rows[i].SiteType)
	}
	return rows, nil
}
