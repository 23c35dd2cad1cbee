package vectorize

import (
	"strconv"

	"github.com/sells-group/catfim/internal/gpkg"
	"github.com/sells-group/catfim/internal/model"
)

// LayerName is the feature table of every library file.
const LayerName = "catfim_library"

type column struct {
	name string
	typ  gpkg.FieldType
	ref  func(r *model.LibraryRecord) *string
}

var columns = []column{
	{"ahps_lid", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.AHPSLID }},
	{"magnitude", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.Magnitude }},
	{"stage", gpkg.Real, func(r *model.LibraryRecord) *string { return &r.Stage }},
	{"interval_stage", gpkg.Real, func(r *model.LibraryRecord) *string { return &r.IntervalStage }},
	{"huc", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.HUC }},
	{"name", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.Name }},
	{"WFO", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.WFO }},
	{"rfc", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.RFC }},
	{"state", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.State }},
	{"county", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.County }},
	{"q", gpkg.Real, func(r *model.LibraryRecord) *string { return &r.Q }},
	{"q_uni", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.QUnits }},
	{"q_src", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.QSource }},
	{"stage_uni", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.StageUnits }},
	{"s_src", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.StageSource }},
	{"wrds_time", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.WRDSTime }},
	{"nrldb_time", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.NRLDBTime }},
	{"nwis_time", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.NWISTime }},
	{"lat", gpkg.Real, func(r *model.LibraryRecord) *string { return &r.Lat }},
	{"lon", gpkg.Real, func(r *model.LibraryRecord) *string { return &r.Lon }},
	{"model_version", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.ModelVersion }},
	{"product_version", gpkg.Text, func(r *model.LibraryRecord) *string { return &r.ProductVersion }},
}

func libraryLayer() gpkg.Layer {
	fields := make([]gpkg.Field, len(columns))
	for i, c := range columns {
		fields[i] = gpkg.Field{Name: c.name, Type: c.typ}
	}
	return gpkg.Layer{Name: LayerName, GeometryType: "MULTIPOLYGON", SRSID: model.EPSGWebMercator, Fields: fields}
}

func toValues(r *model.LibraryRecord) []any {
	vals := make([]any, len(columns))
	for i, c := range columns {
		s := *c.ref(r)
		switch {
		case s == "":
			vals[i] = nil
		case c.typ == gpkg.Real:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				vals[i] = nil
				continue
			}
			vals[i] = f
		default:
			vals[i] = s
		}
	}
	return vals
}

func fromValues(layer gpkg.Layer, vals []any) model.LibraryRecord {
	var r model.LibraryRecord
	for _, c := range columns {
		i := layer.FieldIndex(c.name)
		if i < 0 {
			continue
		}
		var s string
		switch v := vals[i].(type) {
		case nil:
		case string:
			s = v
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			s = strconv.FormatInt(v, 10)
		}
		*c.ref(&r) = s
	}
	return r
}
