package raster

import (
	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
)

// UnionWKB merges WKB geometries that share a CRS into one geometry.
func UnionWKB(geoms [][]byte) ([]byte, error) {
	register()
	if len(geoms) == 0 {
		return nil, eris.New("raster: union of nothing")
	}
	acc, err := godal.NewGeometryFromWKB(geoms[0], nil)
	if err != nil {
		return nil, eris.Wrap(err, "raster: parse wkb")
	}
	for _, b := range geoms[1:] {
		g, err := godal.NewGeometryFromWKB(b, nil)
		if err != nil {
			acc.Close()
			return nil, eris.Wrap(err, "raster: parse wkb")
		}
		u, err := acc.Union(g)
		g.Close()
		acc.Close()
		if err != nil {
			return nil, eris.Wrap(err, "raster: union")
		}
		acc = u
	}
	defer acc.Close()
	out, err := acc.WKB()
	return out, eris.Wrap(err, "raster: encode union")
}
