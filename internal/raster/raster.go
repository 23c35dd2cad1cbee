// Package raster wraps the GDAL bindings used by the pipeline: tiled
// GeoTIFF reads and writes, nearest-neighbour warps onto a reference grid,
// polygonizing extent masks and point reprojection.
package raster

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
)

// BlockSize is the tile edge of every raster written by this package.
const BlockSize = 256

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

// Pixel is the set of band types the pipeline reads and writes.
type Pixel interface {
	~uint8 | ~int32 | ~float32
}

// Grid is the georeferencing of a raster.
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	Projection   string
}

// Bounds returns the extent of a north-up grid.
func (g Grid) Bounds() (minX, minY, maxX, maxY float64) {
	gt := g.GeoTransform
	x0, y0 := gt[0], gt[3]
	x1 := gt[0] + float64(g.Width)*gt[1]
	y1 := gt[3] + float64(g.Height)*gt[5]
	return min(x0, x1), min(y0, y1), max(x0, x1), max(y0, y1)
}

// Same reports whether g and o describe the same pixels.
func (g Grid) Same(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		g.GeoTransform == o.GeoTransform && g.Projection == o.Projection
}

// Window is a pixel rectangle of a raster.
type Window struct {
	X, Y, W, H int
}

// Windows tiles a width x height raster into block x block windows in row
// major order. Edge windows are clipped.
func Windows(width, height, block int) []Window {
	if block <= 0 {
		block = BlockSize
	}
	var out []Window
	for y := 0; y < height; y += block {
		h := min(block, height-y)
		for x := 0; x < width; x += block {
			out = append(out, Window{X: x, Y: y, W: min(block, width-x), H: h})
		}
	}
	return out
}

// Dataset is an open single-band raster.
type Dataset struct {
	path      string
	ds        *godal.Dataset
	band      godal.Band
	grid      Grid
	nodata    float64
	hasNoData bool
	blockX    int
	blockY    int
}

// Open opens the first band of the raster at path.
func Open(path string) (*Dataset, error) {
	register()
	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		_ = ds.Close()
		return nil, eris.Errorf("raster: %s has no bands", path)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		_ = ds.Close()
		return nil, eris.Wrapf(err, "raster: geotransform of %s", path)
	}

	band := bands[0]
	st := band.Structure()
	nd, ok := band.NoData()
	return &Dataset{
		path: path,
		ds:   ds,
		band: band,
		grid: Grid{
			Width:        st.SizeX,
			Height:       st.SizeY,
			GeoTransform: gt,
			Projection:   ds.Projection(),
		},
		nodata:    nd,
		hasNoData: ok,
		blockX:    st.BlockSizeX,
		blockY:    st.BlockSizeY,
	}, nil
}

// Path returns the file the dataset was opened from.
func (d *Dataset) Path() string { return d.path }

// Grid returns the georeferencing of the dataset.
func (d *Dataset) Grid() Grid { return d.grid }

// NoData returns the band nodata value, if one is set.
func (d *Dataset) NoData() (float64, bool) { return d.nodata, d.hasNoData }

// BlockSize returns the native tile size of the band.
func (d *Dataset) BlockSize() (int, int) { return d.blockX, d.blockY }

// Close releases the underlying GDAL handle.
func (d *Dataset) Close() error {
	if d.ds == nil {
		return nil
	}
	err := d.ds.Close()
	d.ds = nil
	if err != nil {
		return eris.Wrapf(err, "raster: close %s", d.path)
	}
	return nil
}

// Read reads window w of d converted to T.
func Read[T Pixel](d *Dataset, w Window) ([]T, error) {
	buf := make([]T, w.W*w.H)
	var err error
	switch b := any(buf).(type) {
	case []uint8:
		err = d.band.Read(w.X, w.Y, b, w.W, w.H)
	case []int32:
		err = d.band.Read(w.X, w.Y, b, w.W, w.H)
	case []float32:
		err = d.band.Read(w.X, w.Y, b, w.W, w.H)
	default:
		return nil, eris.Errorf("raster: unsupported buffer type %T", buf)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read %s window %+v", d.path, w)
	}
	return buf, nil
}

// ReadAll reads the whole band of d.
func ReadAll[T Pixel](d *Dataset) ([]T, error) {
	return Read[T](d, Window{W: d.grid.Width, H: d.grid.Height})
}

func dataType[T Pixel]() godal.DataType {
	var zero T
	switch any(zero).(type) {
	case int32:
		return godal.Int32
	case float32:
		return godal.Float32
	default:
		return godal.Byte
	}
}

// Write creates a single-band, 256x256 tiled, LZW compressed GeoTIFF on g
// holding data.
func Write[T Pixel](path string, g Grid, data []T, nodata float64) error {
	register()
	if len(data) != g.Width*g.Height {
		return eris.Errorf("raster: %s: %d values for a %dx%d grid", path, len(data), g.Width, g.Height)
	}
	ds, err := godal.Create(godal.GTiff, path, 1, dataType[T](), g.Width, g.Height,
		godal.CreationOption(
			"TILED=YES",
			fmt.Sprintf("BLOCKXSIZE=%d", BlockSize),
			fmt.Sprintf("BLOCKYSIZE=%d", BlockSize),
			"COMPRESS=LZW",
		))
	if err != nil {
		return eris.Wrapf(err, "raster: create %s", path)
	}
	if err := writeBand(ds, g, data, nodata); err != nil {
		_ = ds.Close()
		return eris.Wrapf(err, "raster: write %s", path)
	}
	if err := ds.Close(); err != nil {
		return eris.Wrapf(err, "raster: flush %s", path)
	}
	return nil
}

func writeBand[T Pixel](ds *godal.Dataset, g Grid, data []T, nodata float64) error {
	if err := ds.SetGeoTransform(g.GeoTransform); err != nil {
		return err
	}
	if g.Projection != "" {
		if err := ds.SetProjection(g.Projection); err != nil {
			return err
		}
	}
	band := ds.Bands()[0]
	if err := band.SetNoData(nodata); err != nil {
		return err
	}
	return band.Write(0, 0, data, g.Width, g.Height)
}

// WriteMask writes an extent raster: uint8 with nodata 0.
func WriteMask(path string, g Grid, data []uint8) error {
	return Write(path, g, data, 0)
}
