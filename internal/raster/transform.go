package raster

import (
	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
)

// CRS identifies a coordinate reference system by EPSG code or WKT.
type CRS struct {
	EPSG int
	WKT  string
}

// EPSG returns the CRS for an EPSG code.
func EPSG(code int) CRS { return CRS{EPSG: code} }

// WKT returns the CRS described by a WKT string.
func WKT(wkt string) CRS { return CRS{WKT: wkt} }

// Equal reports whether both values name the same definition.
func (c CRS) Equal(o CRS) bool { return c == o }

func (c CRS) spatialRef() (*godal.SpatialRef, error) {
	register()
	if c.WKT != "" {
		sr, err := godal.NewSpatialRefFromWKT(c.WKT)
		return sr, eris.Wrap(err, "raster: parse wkt")
	}
	if c.EPSG == 0 {
		return nil, eris.New("raster: empty crs")
	}
	sr, err := godal.NewSpatialRefFromEPSG(c.EPSG)
	return sr, eris.Wrapf(err, "raster: epsg %d", c.EPSG)
}

// TransformPoints reprojects the coordinates in place. Geographic
// coordinates are x=longitude, y=latitude.
func TransformPoints(from, to CRS, xs, ys []float64) error {
	if len(xs) != len(ys) {
		return eris.Errorf("raster: %d x values for %d y values", len(xs), len(ys))
	}
	if from.Equal(to) || len(xs) == 0 {
		return nil
	}
	src, err := from.spatialRef()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := to.spatialRef()
	if err != nil {
		return err
	}
	defer dst.Close()

	trn, err := godal.NewTransform(src, dst)
	if err != nil {
		return eris.Wrap(err, "raster: create transform")
	}
	defer trn.Close()

	zs := make([]float64, len(xs))
	ok := make([]bool, len(xs))
	if err := trn.TransformEx(xs, ys, zs, ok); err != nil {
		return eris.Wrap(err, "raster: transform points")
	}
	for i, good := range ok {
		if !good {
			return eris.Errorf("raster: point %d (%f, %f) could not be transformed", i, xs[i], ys[i])
		}
	}
	return nil
}

// TransformPoint reprojects a single coordinate.
func TransformPoint(from, to CRS, x, y float64) (float64, float64, error) {
	xs, ys := []float64{x}, []float64{y}
	if err := TransformPoints(from, to, xs, ys); err != nil {
		return 0, 0, err
	}
	return xs[0], ys[0], nil
}

// ProjectionWKT returns the WKT definition of an EPSG code.
func ProjectionWKT(code int) (string, error) {
	sr, err := EPSG(code).spatialRef()
	if err != nil {
		return "", err
	}
	defer sr.Close()
	wkt, err := sr.WKT()
	if err != nil {
		return "", eris.Wrapf(err, "raster: wkt of epsg %d", code)
	}
	return wkt, nil
}
