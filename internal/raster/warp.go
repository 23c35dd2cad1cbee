package raster

import (
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
)

// WarpMask resamples the mask raster at src onto g with nearest neighbour.
// Pixels outside src come back as 0.
func WarpMask(src string, g Grid) ([]uint8, error) {
	register()
	in, err := godal.Open(src)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	minX, minY, maxX, maxY := g.Bounds()
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	switches := []string{
		"-of", "MEM",
		"-te", f(minX), f(minY), f(maxX), f(maxY),
		"-ts", strconv.Itoa(g.Width), strconv.Itoa(g.Height),
		"-r", "near",
		"-dstnodata", "0",
		"-ot", "Byte",
	}
	if g.Projection != "" {
		switches = append(switches, "-t_srs", g.Projection)
	}

	out, err := in.Warp("", switches)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: warp %s", src)
	}
	defer out.Close() //nolint:errcheck

	buf := make([]uint8, g.Width*g.Height)
	if err := out.Bands()[0].Read(0, 0, buf, g.Width, g.Height); err != nil {
		return nil, eris.Wrapf(err, "raster: read warped %s", src)
	}
	return buf, nil
}
