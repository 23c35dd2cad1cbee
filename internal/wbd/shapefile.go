package wbd

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/raster"
)

// readShapefile loads the polygons of a WBD shapefile. The CRS comes from
// the sidecar .prj and defaults to NAD83.
func readShapefile(path, field string) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "wbd: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, field) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, eris.Errorf("wbd: %s has no %s field", path, field)
	}

	layer := &Layer{CRS: raster.EPSG(model.EPSGNAD83)}
	if prj, err := os.ReadFile(strings.TrimSuffix(path, ".shp") + ".prj"); err == nil && len(strings.TrimSpace(string(prj))) > 0 {
		layer.CRS = raster.WKT(strings.TrimSpace(string(prj)))
	}

	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		huc := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
		poly, ok := shape.(*shp.Polygon)
		if !ok || huc == "" {
			skipped++
			continue
		}
		rings := polygonRings(poly)
		if len(rings) == 0 {
			zap.L().Debug("wbd: empty shape", zap.Int("record", n))
			skipped++
			continue
		}
		layer.add(huc, rings)
	}
	if skipped > 0 {
		zap.L().Debug("wbd: skipped shapefile records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	return layer, nil
}

// polygonRings splits the parts of a shapefile polygon into rings.
func polygonRings(p *shp.Polygon) []*geom.LinearRing {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	rings := make([]*geom.LinearRing, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		rings = append(rings, geom.NewLinearRingFlat(geom.XY, flat))
	}
	return rings
}
