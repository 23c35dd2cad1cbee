package wrds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catfim/internal/fetcher"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/resilience"
)

const metadataBody = `{
  "_metrics": {"location_count": 2},
  "locations": [
    {
      "identifiers": {"nws_lid": "XXXA1", "usgs_site_code": "01234567", "nwm_feature_id": "5791828"},
      "nws_data": {"name": "Test Creek", "wfo": "ABC", "rfc": "ABRFC", "state": "Oklahoma", "county": "Tulsa",
                   "latitude": 36.1, "longitude": -95.9, "zero_datum": 600.5,
                   "vertical_datum_name": "NGVD29", "horizontal_datum_name": "NAD83", "rfc_forecast_point": true},
      "usgs_data": {"active": true, "state": "OK", "latitude": 36.1, "longitude": -95.9, "altitude": 601.2,
                    "alt_datum_code": "NAVD88", "alt_accuracy_code": "0.01", "alt_method_code": "L", "site_type": "ST",
                    "latlon_datum_name": "NAD83"},
      "nwm_feature_data": {"stream_order": 4},
      "upstream_nwm_features": ["5791830"],
      "downstream_nwm_features": ["5791826"]
    },
    {
      "identifiers": {"nws_lid": "YYYB2"},
      "nws_data": {}, "usgs_data": {}, "nwm_feature_data": {}
    }
  ],
  "data_sources": {"metadata_sources": ["NWIS 2024-10-01", "NRLDB 2024-10-02"]}
}`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     5 * time.Second,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	})
	return NewClient(srv.URL+"/api/location/v3.0/", f, nil), srv
}

func TestFetchMetadata(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/location/v3.0/metadata/nws_lid/all", r.URL.Path)
		assert.Equal(t, "nws_data.rfc_forecast_point", r.URL.Query().Get("must_include"))
		assert.Equal(t, "5", r.URL.Query().Get("upstream_trace_distance"))
		assert.Equal(t, "5", r.URL.Query().Get("downstream_trace_distance"))
		w.Header().Set("Date", "Mon, 07 Oct 2024 12:00:00 GMT")
		w.Write([]byte(metadataBody))
	})

	var outcomes []string
	c.Observe = func(endpoint, outcome string) { outcomes = append(outcomes, endpoint+":"+outcome) }

	recs, err := c.FetchMetadata(context.Background(), MetadataQuery{
		SelectBy:        "nws_lid",
		Selector:        []string{"all"},
		MustInclude:     "nws_data.rfc_forecast_point",
		UpstreamMiles:   5,
		DownstreamMiles: 5,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	r := recs[0]
	assert.Equal(t, "xxxa1", r.LID())
	assert.Equal(t, "Mon, 07 Oct 2024 12:00:00 GMT", r.WRDSTimestamp)
	assert.Equal(t, "NWIS 2024-10-01", r.NWISTimestamp)
	assert.Equal(t, "NRLDB 2024-10-02", r.NRLDBTimestamp)
	assert.Equal(t, model.Float(0.01), r.USGSData.AltAccuracyCode)
	assert.Equal(t, model.Float(4), r.NWMFeatureData.StreamOrder)
	assert.Equal(t, []string{"5791828", "5791830", "5791826"}, r.Segments())
	assert.Equal(t, []string{"metadata:ok"}, outcomes)
}

func TestFetchMetadata_CommaSelector(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.EscapedPath(), "/metadata/state/HI%2CPR%2CAK"), r.URL.EscapedPath())
		w.Write([]byte(`{"_metrics": {"location_count": 0}, "locations": [], "data_sources": {}}`))
	})
	recs, err := c.FetchMetadata(context.Background(), MetadataQuery{SelectBy: "state", Selector: OCONUSStates})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFetchMetadata_HTTPErrorIsEmpty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	recs, err := c.FetchMetadata(context.Background(), MetadataQuery{SelectBy: "nws_lid", Selector: []string{"all"}})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

const thresholdBody = `{
  "value_set": [
    {
      "metadata": {"threshold_source": "NWS-NRLDB", "nws_lid": "XXXA1", "usgs_site_code": "01234567",
                   "stage_units": "FT", "calc_flow_units": "CFS"},
      "stage_values": {"action": 1, "minor": 2, "moderate": 3, "major": 4, "record": null},
      "calc_flow_values": {"action": 10, "minor": 20, "moderate": 30, "major": 40, "record": null,
                           "rating_curve": {"source": "NRLDB"}}
    },
    {
      "metadata": {"threshold_source": "NWS-NRLDB", "nws_lid": "XXXA1", "usgs_site_code": "01234567",
                   "stage_units": "FT", "calc_flow_units": "CFS"},
      "stage_values": {"action": 5, "minor": 10, "moderate": 15, "major": 20, "record": null},
      "calc_flow_values": {"action": 100, "minor": null, "moderate": 300, "major": 500, "record": "",
                           "rating_curve": {"source": "USGS Rating Depot"}}
    }
  ]
}`

func TestFetchThresholds_PrefersUSGSRatingDepot(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/location/v3.0/nws_threshold/nws_lid/xxxa1", r.URL.Path)
		assert.Equal(t, "all", r.URL.Query().Get("threshold"))
		w.Header().Set("Date", "Tue, 08 Oct 2024 00:00:00 GMT")
		w.Write([]byte(thresholdBody))
	})

	ts, err := c.FetchThresholds(context.Background(), "xxxa1")
	require.NoError(t, err)

	assert.Equal(t, model.SourceUSGSRatingDepot, ts.FlowSource)
	assert.Equal(t, "NWS-NRLDB", ts.StageSource)
	assert.Equal(t, "Tue, 08 Oct 2024 00:00:00 GMT", ts.WRDSTimestamp)
	assert.Equal(t, "CFS", ts.FlowUnits)

	v, ok := ts.Stages.Usable(model.Action)
	assert.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9)

	_, ok = ts.Flows.Usable(model.Minor)
	assert.False(t, ok)
	_, ok = ts.Flows.Usable(model.Record)
	assert.False(t, ok)
	v, _ = ts.Flows.Usable(model.Major)
	assert.InDelta(t, 500.0, v, 1e-9)
}

func TestPickThresholdEntry(t *testing.T) {
	mk := func(src string, action float64) thresholdEntry {
		var e thresholdEntry
		e.CalcFlowValues.RatingCurve.Source = src
		e.StageValues.Set(model.Action, model.Float(action))
		return e
	}
	assert.InDelta(t, 2.0, pickThresholdEntry([]thresholdEntry{mk("other", 1), mk("NRLDB", 2)}).StageValues.Action.Value, 1e-9)
	assert.InDelta(t, 1.0, pickThresholdEntry([]thresholdEntry{mk("other", 1), mk("other2", 2)}).StageValues.Action.Value, 1e-9)
}

func TestFetchThresholds_Failures(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/empty1"):
			w.Write([]byte(`{"value_set": []}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	_, err := c.FetchThresholds(context.Background(), "empty1")
	assert.ErrorIs(t, err, ErrNoThresholds)

	ts, err := c.FetchThresholds(context.Background(), "bad01")
	assert.Error(t, err)
	assert.Nil(t, ts)
}

func TestClient_CircuitBreakerStopsCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	addr := srv.URL
	srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1, BackoffBase: time.Millisecond})
	c := NewClient(addr, f, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}))

	_, err := c.FetchThresholds(context.Background(), "xxxa1")
	require.Error(t, err)
	_, err = c.FetchThresholds(context.Background(), "xxxa1")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestMetafileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nwm_metafile.cbor")
	recs := []model.SiteMetadata{
		{Identifiers: model.Identifiers{NWSLID: "XXXA1", NWMFeatureID: "101"}, USGSData: model.USGSData{Altitude: model.Float(12.5)}},
		{Identifiers: model.Identifiers{NWSLID: "YYYB2"}},
	}
	require.NoError(t, SaveMetafile(path, recs))

	got, err := LoadMetafile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "xxxa1", got[0].LID())
	assert.Equal(t, model.Float(12.5), got[0].USGSData.Altitude)
	assert.Equal(t, []string{"101"}, got[0].Segments())
}

func TestLoadMetafile_RejectsNonSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nwm_metafile.cbor")
	data, err := cbor.Marshal(map[string]string{"nws_lid": "XXXA1"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = LoadMetafile(path)
	assert.ErrorIs(t, err, ErrMetafileNotSequence)
}

func TestCheckMetafileExtension(t *testing.T) {
	assert.NoError(t, CheckMetafileExtension("/data/nwm_metafile.pkl"))
	assert.NoError(t, CheckMetafileExtension("/data/nwm_metafile.CBOR"))
	assert.Error(t, CheckMetafileExtension("/data/nwm_metafile.json"))
}

func TestDedupe(t *testing.T) {
	recs := []model.SiteMetadata{
		{Identifiers: model.Identifiers{NWSLID: "XXXA1"}, NWSData: model.NWSData{Name: "first"}},
		{Identifiers: model.Identifiers{NWSLID: ""}},
		{Identifiers: model.Identifiers{NWSLID: "xxxa1"}, NWSData: model.NWSData{Name: "second"}},
		{Identifiers: model.Identifiers{NWSLID: "YYYB2"}},
	}
	got := Dedupe(recs)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].NWSData.Name)
	assert.Equal(t, "yyyb2", got[1].LID())
}

func TestLoadOrBuild(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if strings.Contains(r.URL.Path, "/metadata/state/") {
			w.Write([]byte(`{"_metrics": {"location_count": 1}, "locations": [{"identifiers": {"nws_lid": "XXXA1"}}], "data_sources": {}}`))
			return
		}
		w.Write([]byte(metadataBody))
	})

	path := filepath.Join(t.TempDir(), "meta", "nwm_metafile.cbor")
	recs, built, err := LoadOrBuild(context.Background(), c, path, 5)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Len(t, recs, 2)
	assert.Equal(t, int32(2), calls.Load())

	recs, built, err = LoadOrBuild(context.Background(), c, path, 5)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Len(t, recs, 2)
	assert.Equal(t, int32(2), calls.Load())
}
