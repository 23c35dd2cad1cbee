package datum

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/vdatum"
)

type fakeConverter struct {
	feet  float64
	err   error
	calls int
	crs   string
}

func (f *fakeConverter) NGVDToNAVDFeet(_ context.Context, _, _ float64, crs string) (float64, error) {
	f.calls++
	f.crs = crs
	return f.feet, f.err
}

func site(lid string) *model.SiteMetadata {
	return &model.SiteMetadata{
		Identifiers: model.Identifiers{NWSLID: lid},
		NWSData: model.NWSData{
			ZeroDatum:           model.Float(600),
			VerticalDatumName:   "NGVD29",
			HorizontalDatumName: "NAD83",
			Latitude:            model.Float(36.1),
			Longitude:           model.Float(-95.9),
		},
		USGSData: model.USGSData{
			Altitude:        model.Float(601),
			AltDatumCode:    "NAVD88",
			LatLonDatumName: "NAD83",
			Latitude:        model.Float(36.1),
			Longitude:       model.Float(-95.9),
		},
	}
}

func TestDefaultOverrides(t *testing.T) {
	o := DefaultOverrides()
	assert.Len(t, o.CRS["NAD83"], 17)
	assert.Equal(t, "NRLDB", o.RatingSource("BMBP1", model.SourceUSGSRatingDepot))
	assert.Equal(t, model.SourceUSGSRatingDepot, o.RatingSource("xxxa1", model.SourceUSGSRatingDepot))

	d := o.Apply("wlln7", model.DatumInfo{CRS: "NAD29", VCS: "NAVD88"})
	assert.Equal(t, "NAD83", d.CRS)
	assert.Equal(t, "NGVD29", d.VCS)

	d = o.Apply("bmbp1", model.DatumInfo{CRS: "NAD29"})
	assert.Equal(t, "NAD27", d.CRS)

	for _, n := range []string{"NGVD29", "NGVD 1929", "NGVD,1929", "NGVD OF 1929", "NGVD"} {
		assert.True(t, o.IsNGVD(n), n)
	}
	assert.False(t, o.IsNGVD("NAVD88"))
}

func TestAdjust_USGSSourceNoConversion(t *testing.T) {
	conv := &fakeConverter{}
	n := NewNormalizer(nil, conv)

	adj, status, ok := n.Adjust(context.Background(), site("xxxa1"), model.SourceUSGSRatingDepot)
	require.True(t, ok, status)
	assert.Equal(t, 0.0, adj.Feet)
	assert.Equal(t, "usgs_data", adj.Datum.Source)
	assert.Equal(t, 0, conv.calls)
}

func TestAdjust_NRLDBConvertsNGVD(t *testing.T) {
	conv := &fakeConverter{feet: 0.42}
	n := NewNormalizer(nil, conv)

	adj, _, ok := n.Adjust(context.Background(), site("xxxa1"), model.SourceNRLDB)
	require.True(t, ok)
	assert.Equal(t, 0.42, adj.Feet)
	assert.Equal(t, "nws_data", adj.Datum.Source)
	assert.Equal(t, 1, conv.calls)
	assert.Equal(t, "NAD83", conv.crs)
}

func TestAdjust_VCSOverrideSkipsConversion(t *testing.T) {
	conv := &fakeConverter{feet: 1}
	n := NewNormalizer(nil, conv)

	_, _, ok := n.Adjust(context.Background(), site("fatw3"), model.SourceNRLDB)
	require.True(t, ok)
	assert.Equal(t, 0, conv.calls)
}

func TestAdjust_Failures(t *testing.T) {
	n := NewNormalizer(nil, &fakeConverter{})

	_, status, ok := n.Adjust(context.Background(), site("xxxa1"), "")
	assert.False(t, ok)
	assert.Equal(t, model.StatusNoRatingSource, status)

	s := site("xxxa1")
	s.USGSData.Altitude = model.OptFloat{}
	_, status, ok = n.Adjust(context.Background(), s, model.SourceUSGSRatingDepot)
	assert.False(t, ok)
	assert.Equal(t, model.StatusDatumUnavailable, status)
}

func TestAdjust_ConversionErrors(t *testing.T) {
	conv := &fakeConverter{err: &vdatum.DatumConversionError{Reason: "CRS is missing", Cause: vdatum.ErrCRSMissing}}
	_, status, ok := NewNormalizer(nil, conv).Adjust(context.Background(), site("xxxa1"), model.SourceNRLDB)
	assert.False(t, ok)
	assert.Equal(t, model.StatusCRSMissing, status)

	conv = &fakeConverter{err: errors.New("boom")}
	_, status, ok = NewNormalizer(nil, conv).Adjust(context.Background(), site("xxxa1"), model.SourceNRLDB)
	assert.False(t, ok)
	assert.Equal(t, "NOAA VDatum adjustment error, boom", status)
}

func TestAdjust_BMBP1UsesNRLDBRecord(t *testing.T) {
	conv := &fakeConverter{feet: 0.1}
	s := site("bmbp1")
	s.USGSData.Altitude = model.OptFloat{}
	s.NWSData.HorizontalDatumName = "NAD29"

	adj, _, ok := NewNormalizer(nil, conv).Adjust(context.Background(), s, model.SourceUSGSRatingDepot)
	require.True(t, ok)
	assert.Equal(t, "nws_data", adj.Datum.Source)
	assert.Equal(t, "NAD27", conv.crs)
}
