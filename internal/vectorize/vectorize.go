// Package vectorize turns extent rasters into dissolved library polygons and
// aggregates them into the CatFIM library.
package vectorize

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/catkey"
	"github.com/sells-group/catfim/internal/gpkg"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/raster"
	"github.com/sells-group/catfim/internal/stages"
)

// Versions are stamped on every library and sites row.
type Versions struct {
	Model   string
	Product string
}

// NewVersions renders the HAND and CatFIM tags, with dots replaced by
// underscores.
func NewVersions(handVersion, catfimVersion string) Versions {
	return Versions{
		Model:   "HAND " + strings.ReplaceAll(handVersion, ".", "_"),
		Product: "CatFIM " + strings.ReplaceAll(catfimVersion, ".", "_"),
	}
}

// Vectorizer converts the extent rasters of one run.
type Vectorizer struct {
	AttributesDir string
	GPKGDir       string
	Versions      Versions
}

// ToMultiPolygon promotes polygons so that every library geometry has the
// same type.
func ToMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t, nil
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout()).SetSRID(t.SRID())
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "vectorize: promote polygon")
		}
		return mp, nil
	default:
		return nil, eris.Errorf("vectorize: unexpected geometry %T", g)
	}
}

// dissolve collects polygon WKBs into one multipolygon.
func dissolve(polys [][]byte) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(model.EPSGWebMercator)
	for _, b := range polys {
		g, err := wkb.Unmarshal(b)
		if err != nil {
			return nil, eris.Wrap(err, "vectorize: decode polygon")
		}
		part, err := ToMultiPolygon(g)
		if err != nil {
			return nil, err
		}
		for i := 0; i < part.NumPolygons(); i++ {
			if err := mp.Push(part.Polygon(i)); err != nil {
				return nil, eris.Wrap(err, "vectorize: collect polygon")
			}
		}
	}
	return mp, nil
}

func attributesFor(dir, lid, magnitude, huc string) (model.StageAttributeRow, bool) {
	rows, err := stages.ReadAttributes(stages.AttributesPath(dir, lid))
	if err != nil {
		return model.StageAttributeRow{}, false
	}
	for _, r := range rows {
		if strings.EqualFold(r.NWSLID, lid) && r.Magnitude == magnitude && r.HUC == huc {
			return r, true
		}
	}
	return model.StageAttributeRow{}, false
}

// Extent vectorizes one "{lid}_{key}_extent.tif" of huc into a dissolved
// GeoPackage and returns its path, or "" when the raster has no wet pixel.
func (v Vectorizer) Extent(ctx context.Context, huc, path string) (string, error) {
	lid, key, err := catkey.ParseExtentName(path)
	if err != nil {
		return "", err
	}
	polys, err := raster.Polygonize(path, raster.EPSG(model.EPSGWebMercator))
	if err != nil {
		return "", err
	}
	if len(polys) == 0 {
		return "", nil
	}
	mp, err := dissolve(polys)
	if err != nil {
		return "", err
	}

	rec := model.LibraryRecord{
		AHPSLID:        lid,
		Magnitude:      string(key.Category),
		HUC:            huc,
		ModelVersion:   v.Versions.Model,
		ProductVersion: v.Versions.Product,
	}
	if s, ok := key.IntervalStage(); ok {
		rec.IntervalStage = strconv.FormatFloat(s, 'f', -1, 64)
	}
	if a, ok := attributesFor(v.AttributesDir, lid, rec.Magnitude, huc); ok {
		rec.Name, rec.WFO, rec.RFC = a.Name, a.WFO, a.RFC
		rec.State, rec.County = a.State, a.County
		rec.Q, rec.QUnits, rec.QSource = a.Q, a.QUnits, a.QSource
		rec.Stage, rec.StageUnits, rec.StageSource = a.Stage, a.StageUnits, a.StageSource
		rec.WRDSTime, rec.NRLDBTime, rec.NWISTime = a.WRDSTime, a.NRLDBTime, a.NWISTime
		rec.Lat, rec.Lon = a.Lat, a.Lon
	}

	out := filepath.Join(v.GPKGDir, catkey.DissolvedName(huc, lid, key))
	feat := gpkg.Feature{Geometry: mp, Values: toValues(&rec)}
	if err := gpkg.Write(ctx, out, libraryLayer(), []gpkg.Feature{feat}); err != nil {
		return "", err
	}
	return out, nil
}

// HUC vectorizes every gauge mosaic under hucDir ("mapping/<huc>").
func (v Vectorizer) HUC(ctx context.Context, huc, hucDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(hucDir, "*", "*_extent.tif"))
	if err != nil {
		return nil, eris.Wrap(err, "vectorize: list extents")
	}
	sort.Strings(paths)
	log := zap.L().With(zap.String("component", "vectorize"), zap.String("huc", huc))
	var written []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		out, err := v.Extent(ctx, huc, p)
		if err != nil {
			log.Error("vectorize extent", zap.String("path", p), zap.Error(err))
			continue
		}
		if out == "" {
			log.Debug("extent has no polygons", zap.String("path", p))
			continue
		}
		written = append(written, out)
	}
	return written, nil
}

// ReadLibrary loads a library GeoPackage.
func ReadLibrary(ctx context.Context, path string) ([]model.LibraryRecord, error) {
	layer, feats, err := gpkg.Read(ctx, path, "")
	if err != nil {
		return nil, err
	}
	out := make([]model.LibraryRecord, 0, len(feats))
	for _, f := range feats {
		rec := fromValues(layer, f.Values)
		if f.Geometry != nil {
			b, err := wkb.Marshal(f.Geometry, wkb.NDR)
			if err != nil {
				return nil, eris.Wrap(err, "vectorize: encode geometry")
			}
			rec.Geometry = b
		}
		out = append(out, rec)
	}
	return out, nil
}
