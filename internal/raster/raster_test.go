package raster

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

func testGrid(t *testing.T, w, h int) Grid {
	t.Helper()
	wkt, err := ProjectionWKT(5070)
	require.NoError(t, err)
	return Grid{
		Width:        w,
		Height:       h,
		GeoTransform: [6]float64{1000000, 10, 0, 2000000, 0, -10},
		Projection:   wkt,
	}
}

func TestWindows(t *testing.T) {
	ws := Windows(600, 300, 256)
	require.Len(t, ws, 6)
	assert.Equal(t, Window{X: 0, Y: 0, W: 256, H: 256}, ws[0])
	assert.Equal(t, Window{X: 512, Y: 0, W: 88, H: 256}, ws[2])
	assert.Equal(t, Window{X: 512, Y: 256, W: 88, H: 44}, ws[5])

	total := 0
	for _, w := range ws {
		total += w.W * w.H
	}
	assert.Equal(t, 600*300, total)
	assert.Len(t, Windows(10, 10, 0), 1)
	assert.Empty(t, Windows(0, 10, 256))
}

func TestGridBounds(t *testing.T) {
	g := Grid{Width: 4, Height: 2, GeoTransform: [6]float64{100, 10, 0, 50, 0, -10}}
	minX, minY, maxX, maxY := g.Bounds()
	assert.Equal(t, []float64{100, 30, 140, 50}, []float64{minX, minY, maxX, maxY})
	assert.True(t, g.Same(g))
	other := g
	other.GeoTransform[0] = 101
	assert.False(t, g.Same(other))
}

func TestWriteReadMask(t *testing.T) {
	g := testGrid(t, 4, 3)
	path := filepath.Join(t.TempDir(), "mask.tif")
	data := []uint8{
		0, 1, 1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	}
	require.NoError(t, WriteMask(path, g, data))

	ds, err := Open(path)
	require.NoError(t, err)
	defer ds.Close() //nolint:errcheck

	assert.Equal(t, g.Width, ds.Grid().Width)
	assert.Equal(t, g.GeoTransform, ds.Grid().GeoTransform)
	nd, ok := ds.NoData()
	assert.True(t, ok)
	assert.Equal(t, 0.0, nd)

	got, err := ReadAll[uint8](ds)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	win, err := Read[uint8](ds, Window{X: 1, Y: 0, W: 2, H: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 1, 1, 0}, win)
}

func TestWriteLengthMismatch(t *testing.T) {
	g := Grid{Width: 2, Height: 2}
	err := Write(filepath.Join(t.TempDir(), "bad.tif"), g, []float32{1, 2, 3}, -9999)
	assert.Error(t, err)
}

func TestWarpMaskSameGrid(t *testing.T) {
	g := testGrid(t, 3, 3)
	path := filepath.Join(t.TempDir(), "src.tif")
	data := []uint8{1, 0, 0, 0, 1, 0, 0, 0, 1}
	require.NoError(t, WriteMask(path, g, data))

	got, err := WarpMask(path, g)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWarpMaskOffsetGrid(t *testing.T) {
	src := testGrid(t, 2, 2)
	path := filepath.Join(t.TempDir(), "src.tif")
	require.NoError(t, WriteMask(path, src, []uint8{1, 1, 1, 1}))

	// Reference grid shifted one pixel left so the source covers its right half.
	ref := testGrid(t, 3, 2)
	ref.GeoTransform[0] -= 10
	got, err := WarpMask(path, ref)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 1, 1, 0, 1, 1}, got)
}

func TestPolygonize(t *testing.T) {
	g := testGrid(t, 4, 4)
	path := filepath.Join(t.TempDir(), "mask.tif")
	require.NoError(t, WriteMask(path, g, []uint8{
		1, 1, 0, 0,
		1, 1, 0, 0,
		0, 0, 0, 1,
		0, 0, 0, 1,
	}))

	polys, err := Polygonize(path, WKT(g.Projection))
	require.NoError(t, err)
	require.Len(t, polys, 2)

	var area float64
	for _, b := range polys {
		geomT, err := wkb.Unmarshal(b)
		require.NoError(t, err)
		p, ok := geomT.(interface{ Area() float64 })
		require.True(t, ok)
		area += p.Area()
	}
	assert.InDelta(t, 600.0, area, 1e-6)

	merc, err := Polygonize(path, EPSG(3857))
	require.NoError(t, err)
	assert.Len(t, merc, 2)
}

func TestTransformPoint(t *testing.T) {
	x, y, err := TransformPoint(EPSG(4326), EPSG(3857), 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	x, y, err = TransformPoint(EPSG(4269), EPSG(4267), -95.9, 36.1)
	require.NoError(t, err)
	assert.InDelta(t, -95.9, x, 0.01)
	assert.InDelta(t, 36.1, y, 0.01)

	x, y, err = TransformPoint(EPSG(4326), EPSG(4326), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, []float64{x, y})
}

func TestUnionWKB(t *testing.T) {
	square := func(x, y float64) []byte {
		p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{x, y}, {x + 10, y}, {x + 10, y + 10}, {x, y + 10}, {x, y}}})
		b, err := wkb.Marshal(p, wkb.NDR)
		require.NoError(t, err)
		return b
	}
	out, err := UnionWKB([][]byte{square(0, 0), square(5, 0), square(100, 100)})
	require.NoError(t, err)
	g, err := wkb.Unmarshal(out)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
	assert.InDelta(t, 150+100, mp.Area(), 1e-6)

	_, err = UnionWKB(nil)
	assert.Error(t, err)
}
