// Package wbd assigns gauges to HUC8 watersheds from a Watershed Boundary
// Dataset layer.
package wbd

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/gpkg"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/raster"
)

// Table and field names of the HUC8 layer.
const (
	TableName = "WBDHU8"
	FieldName = "HUC8"
)

type watershed struct {
	huc    string
	rings  []*geom.LinearRing
	bounds *geom.Bounds
}

// Layer is an in-memory set of HUC8 polygons.
type Layer struct {
	CRS        raster.CRS
	watersheds []watershed
}

func (l *Layer) add(huc string, rings []*geom.LinearRing) {
	b := geom.NewBounds(geom.XY)
	for _, r := range rings {
		b.Extend(r)
	}
	l.watersheds = append(l.watersheds, watershed{huc: huc, rings: rings, bounds: b})
}

// Len returns the number of polygons.
func (l *Layer) Len() int { return len(l.watersheds) }

// Load reads a .shp or .gpkg WBD layer.
func Load(ctx context.Context, path string) (*Layer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return readShapefile(path, FieldName)
	case ".gpkg":
		return readGeoPackage(ctx, path)
	default:
		return nil, eris.Errorf("wbd: unsupported layer %s", path)
	}
}

func readGeoPackage(ctx context.Context, path string) (*Layer, error) {
	layer, feats, err := gpkg.Read(ctx, path, TableName)
	if err != nil {
		return nil, eris.Wrap(err, "wbd: read layer")
	}
	idx := -1
	for i, f := range layer.Fields {
		if strings.EqualFold(f.Name, FieldName) {
			idx = i
		}
	}
	if idx < 0 {
		return nil, eris.Errorf("wbd: %s has no %s column", path, FieldName)
	}

	out := &Layer{CRS: raster.EPSG(layer.SRSID)}
	if layer.SRSID <= 0 {
		out.CRS = raster.EPSG(model.EPSGNAD83)
	}
	for _, f := range feats {
		huc, _ := f.Values[idx].(string)
		if huc == "" || f.Geometry == nil {
			continue
		}
		rings := geometryRings(f.Geometry)
		if len(rings) > 0 {
			out.add(huc, rings)
		}
	}
	return out, nil
}

func geometryRings(g geom.T) []*geom.LinearRing {
	var rings []*geom.LinearRing
	switch t := g.(type) {
	case *geom.Polygon:
		for i := 0; i < t.NumLinearRings(); i++ {
			rings = append(rings, t.LinearRing(i))
		}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			rings = append(rings, geometryRings(t.Polygon(i))...)
		}
	}
	return rings
}

// Locate returns the HUC8 whose polygon contains (x, y), given in the layer
// CRS. Holes and multipart shapes follow the even-odd rule.
func (l *Layer) Locate(x, y float64) (string, bool) {
	c := geom.Coord{x, y}
	for _, w := range l.watersheds {
		if !w.bounds.OverlapsPoint(geom.XY, c) {
			continue
		}
		inside := false
		for _, r := range w.rings {
			if xy.IsPointInRing(geom.XY, c, r.FlatCoords()) {
				inside = !inside
			}
		}
		if inside {
			return w.huc, true
		}
	}
	return "", false
}

func datumCRS(name string) raster.CRS {
	if code, ok := model.HorizontalDatumEPSG(name); ok {
		return raster.EPSG(code)
	}
	return raster.EPSG(model.EPSGNAD83)
}

// Assign sets HUC on every record that falls inside the layer and returns
// the assigned records grouped by HUC8. Records without coordinates or
// outside every polygon are logged and left out.
func (l *Layer) Assign(records []*model.SiteMetadata) (map[string][]*model.SiteMetadata, error) {
	log := zap.L().With(zap.String("component", "wbd"))
	out := make(map[string][]*model.SiteMetadata)
	for _, m := range records {
		lat, lon, datum, ok := m.Location()
		if !ok {
			log.Debug("gauge has no coordinates", zap.String("lid", m.LID()))
			continue
		}
		x, y, err := raster.TransformPoint(datumCRS(datum), l.CRS, lon, lat)
		if err != nil {
			return nil, eris.Wrapf(err, "wbd: reproject %s", m.LID())
		}
		huc, ok := l.Locate(x, y)
		if !ok {
			log.Info("gauge outside watershed layer", zap.String("lid", m.LID()),
				zap.Float64("lat", lat), zap.Float64("lon", lon))
			continue
		}
		m.HUC = huc
		out[huc] = append(out[huc], m)
	}
	return out, nil
}

// HUCs returns the sorted keys of an assignment.
func HUCs(groups map[string][]*model.SiteMetadata) []string {
	out := make([]string, 0, len(groups))
	for h := range groups {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
