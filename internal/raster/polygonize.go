package raster

import (
	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
)

const extentField = "extent"

// Polygonize traces the connected regions of non-zero pixels of the mask
// raster at path and returns them as WKB polygons in dst.
func Polygonize(path string, dst CRS) ([][]byte, error) {
	register()
	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer ds.Close() //nolint:errcheck

	srcSR, err := WKT(ds.Projection()).spatialRef()
	if err != nil {
		return nil, eris.Wrapf(err, "raster: crs of %s", path)
	}
	defer srcSR.Close()

	mem, err := godal.CreateVector(godal.Memory, "")
	if err != nil {
		return nil, eris.Wrap(err, "raster: create memory vector")
	}
	defer mem.Close() //nolint:errcheck

	layer, err := mem.CreateLayer("shapes", srcSR, godal.GTPolygon,
		godal.NewFieldDefinition(extentField, godal.FTInt))
	if err != nil {
		return nil, eris.Wrap(err, "raster: create polygon layer")
	}
	if err := ds.Bands()[0].Polygonize(layer, godal.PixelValueFieldIndex(0)); err != nil {
		return nil, eris.Wrapf(err, "raster: polygonize %s", path)
	}

	var dstSR *godal.SpatialRef
	if !dst.Equal(WKT(ds.Projection())) {
		dstSR, err = dst.spatialRef()
		if err != nil {
			return nil, err
		}
		defer dstSR.Close()
	}

	var out [][]byte
	for feat := layer.NextFeature(); feat != nil; feat = layer.NextFeature() {
		wkb, err := featureWKB(feat, dstSR)
		feat.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "raster: polygon of %s", path)
		}
		if wkb != nil {
			out = append(out, wkb)
		}
	}
	return out, nil
}

func featureWKB(feat *godal.Feature, dst *godal.SpatialRef) ([]byte, error) {
	if feat.Fields()[extentField].Int() <= 0 {
		return nil, nil
	}
	g := feat.Geometry()
	defer g.Close()
	if dst != nil {
		if err := g.Reproject(dst); err != nil {
			return nil, err
		}
	}
	return g.WKB()
}
