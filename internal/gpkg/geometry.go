package gpkg

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Standard geometry blob header flags: little endian, xy envelope.
const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x02
	flagEmpty        = 0x10
)

// EncodeGeometry wraps g in the GeoPackage binary header for srsID.
func EncodeGeometry(g geom.T, srsID int) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode wkb")
	}

	flags := byte(flagLittleEndian)
	empty := len(g.FlatCoords()) == 0
	if empty {
		flags |= flagEmpty
	} else {
		flags |= flagEnvelopeXY
	}

	buf := make([]byte, 0, 8+32+len(body))
	buf = append(buf, 'G', 'P', 0, flags)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(srsID)))
	if !empty {
		b := g.Bounds()
		for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return append(buf, body...), nil
}

// DecodeGeometry parses a GeoPackage geometry blob.
func DecodeGeometry(blob []byte) (geom.T, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, eris.New("gpkg: not a geometry blob")
	}
	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int(int32(order.Uint32(blob[4:8])))

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, 0, eris.Errorf("gpkg: bad envelope flag in %08b", flags)
	}
	start := 8 + envelope
	if len(blob) < start {
		return nil, 0, eris.New("gpkg: truncated geometry blob")
	}
	g, err := wkb.Unmarshal(blob[start:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode wkb")
	}
	return g, srsID, nil
}
