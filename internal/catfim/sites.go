package catfim

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/catkey"
	"github.com/sells-group/catfim/internal/gpkg"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/raster"
	"github.com/sells-group/catfim/internal/sites"
	"github.com/sells-group/catfim/internal/vectorize"
)

// SitesLayer is the feature table of the sites library.
const SitesLayer = "catfim_sites"

type siteColumn struct {
	name string
	typ  gpkg.FieldType
	get  func(r *model.SiteRecord) any
	set  func(r *model.SiteRecord, v any)
}

func textAccess(ref func(r *model.SiteRecord) *string) (func(*model.SiteRecord) any, func(*model.SiteRecord, any)) {
	return func(r *model.SiteRecord) any {
			if s := *ref(r); s != "" {
				return s
			}
			return nil
		}, func(r *model.SiteRecord, v any) {
			if s, ok := v.(string); ok {
				*ref(r) = s
			}
		}
}

func realAccess(ref func(r *model.SiteRecord) *float64) (func(*model.SiteRecord) any, func(*model.SiteRecord, any)) {
	return func(r *model.SiteRecord) any { return *ref(r) },
		func(r *model.SiteRecord, v any) {
			switch n := v.(type) {
			case float64:
				*ref(r) = n
			case int64:
				*ref(r) = float64(n)
			}
		}
}

func textColumn(name string, ref func(r *model.SiteRecord) *string) siteColumn {
	get, set := textAccess(ref)
	return siteColumn{name: name, typ: gpkg.Text, get: get, set: set}
}

func realColumn(name string, ref func(r *model.SiteRecord) *float64) siteColumn {
	get, set := realAccess(ref)
	return siteColumn{name: name, typ: gpkg.Real, get: get, set: set}
}

var siteColumns = []siteColumn{
	textColumn("ahps_lid", func(r *model.SiteRecord) *string { return &r.AHPSLID }),
	textColumn("name", func(r *model.SiteRecord) *string { return &r.Name }),
	textColumn("WFO", func(r *model.SiteRecord) *string { return &r.WFO }),
	textColumn("rfc", func(r *model.SiteRecord) *string { return &r.RFC }),
	textColumn("huc", func(r *model.SiteRecord) *string { return &r.HUC }),
	textColumn("state", func(r *model.SiteRecord) *string { return &r.State }),
	textColumn("county", func(r *model.SiteRecord) *string { return &r.County }),
	realColumn("lat", func(r *model.SiteRecord) *float64 { return &r.Lat }),
	realColumn("lon", func(r *model.SiteRecord) *float64 { return &r.Lon }),
	realColumn("x", func(r *model.SiteRecord) *float64 { return &r.X }),
	realColumn("y", func(r *model.SiteRecord) *float64 { return &r.Y }),
	textColumn("mapped", func(r *model.SiteRecord) *string { return &r.Mapped }),
	textColumn("status", func(r *model.SiteRecord) *string { return &r.Status }),
	textColumn("model_version", func(r *model.SiteRecord) *string { return &r.ModelVersion }),
	textColumn("product_version", func(r *model.SiteRecord) *string { return &r.ProductVersion }),
	textColumn("acceptable_alt_meth_code_list", func(r *model.SiteRecord) *string { return &r.AcceptableAltMethodCodes }),
	textColumn("acceptable_site_type_list", func(r *model.SiteRecord) *string { return &r.AcceptableSiteTypes }),
	realColumn("acceptable_alt_acc_thresh", func(r *model.SiteRecord) *float64 { return &r.AcceptableAltAccThresh }),
}

func sitesLayer() gpkg.Layer {
	fields := make([]gpkg.Field, len(siteColumns))
	for i, c := range siteColumns {
		fields[i] = gpkg.Field{Name: c.name, Type: c.typ}
	}
	return gpkg.Layer{Name: SitesLayer, GeometryType: "POINT", SRSID: model.EPSGWebMercator, Fields: fields}
}

// SiteRecords builds one sites row per assigned gauge, ordered by lid.
// Status comes from msgs; gauges without a message are Good until
// reconciled.
func SiteRecords(groups map[string][]*model.SiteMetadata, msgs map[string]string, acc sites.Acceptance, v vectorize.Versions) ([]model.SiteRecord, error) {
	methods, types := acc.Lists()
	seen := make(map[string]bool)
	var out []model.SiteRecord
	for huc, gauges := range groups {
		for _, m := range gauges {
			lid := m.LID()
			if lid == "" || seen[lid] {
				continue
			}
			seen[lid] = true
			lat, lon, datum, _ := m.Location()
			from := model.EPSGNAD83
			if code, ok := model.HorizontalDatumEPSG(datum); ok {
				from = code
			}
			x, y, err := raster.TransformPoint(raster.EPSG(from), raster.EPSG(model.EPSGWebMercator), lon, lat)
			if err != nil {
				return nil, eris.Wrapf(err, "catfim: project site %s", lid)
			}
			status, ok := msgs[lid]
			if !ok {
				status = model.StatusGood
			}
			out = append(out, model.SiteRecord{
				AHPSLID:        lid,
				Name:           m.NWSData.Name,
				WFO:            m.NWSData.WFO,
				RFC:            m.NWSData.RFC,
				HUC:            huc,
				State:          m.NWSData.State,
				County:         m.NWSData.County,
				Lat:            lat,
				Lon:            lon,
				X:              x,
				Y:              y,
				Status:         status,
				ModelVersion:   v.Model,
				ProductVersion: v.Product,

				AcceptableAltMethodCodes: methods,
				AcceptableSiteTypes:      types,
				AcceptableAltAccThresh:   acc.AltAccuracyThreshold,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AHPSLID < out[j].AHPSLID })
	return out, nil
}

// ProducedLIDs lists the gauges with at least one library file in gpkgDir.
func ProducedLIDs(gpkgDir string) (map[string]bool, error) {
	entries, err := os.ReadDir(gpkgDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, eris.Wrapf(err, "catfim: list %s", gpkgDir)
	}
	out := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if lid, ok := catkey.LIDFromLibraryName(e.Name()); ok {
			out[lid] = true
		}
	}
	return out, nil
}

// Reconcile sets the final mapped and status columns of recs.
func Reconcile(recs []model.SiteRecord, produced map[string]bool) {
	for i := range recs {
		recs[i].Mapped, recs[i].Status = model.FinalStatus(recs[i].Status, produced[recs[i].AHPSLID])
	}
}

// WriteSites writes the sites GeoPackage and its CSV twin.
func WriteSites(ctx context.Context, gpkgPath, csvPath string, recs []model.SiteRecord) error {
	feats := make([]gpkg.Feature, len(recs))
	for i := range recs {
		vals := make([]any, len(siteColumns))
		for j, c := range siteColumns {
			vals[j] = c.get(&recs[i])
		}
		pt := geom.NewPointFlat(geom.XY, []float64{recs[i].X, recs[i].Y}).SetSRID(model.EPSGWebMercator)
		feats[i] = gpkg.Feature{Geometry: pt, Values: vals}
	}
	if err := gpkg.Write(ctx, gpkgPath, sitesLayer(), feats); err != nil {
		return err
	}

	data, err := csvutil.Marshal(recs)
	if err != nil {
		return eris.Wrap(err, "catfim: encode sites csv")
	}
	if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
		return eris.Wrapf(err, "catfim: create %s", filepath.Dir(csvPath))
	}
	return eris.Wrapf(os.WriteFile(csvPath, data, 0o644), "catfim: write %s", csvPath)
}

// ReadSites loads a sites GeoPackage.
func ReadSites(ctx context.Context, path string) ([]model.SiteRecord, error) {
	layer, feats, err := gpkg.Read(ctx, path, SitesLayer)
	if err != nil {
		return nil, err
	}
	out := make([]model.SiteRecord, 0, len(feats))
	for _, f := range feats {
		var r model.SiteRecord
		for _, c := range siteColumns {
			if i := layer.FieldIndex(c.name); i >= 0 {
				c.set(&r, f.Values[i])
			}
		}
		if pt, ok := f.Geometry.(*geom.Point); ok && (r.X == 0 && r.Y == 0) {
			r.X, r.Y = pt.X(), pt.Y()
		}
		out = append(out, r)
	}
	zap.L().Debug("sites loaded", zap.String("component", "catfim.sites"),
		zap.String("path", path), zap.Int("count", len(out)))
	return out, nil
}
