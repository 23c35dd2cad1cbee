// Package wrds talks to the gauge location service: metadata records and
// flood thresholds.
package wrds

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/fetcher"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/resilience"
)

// ErrNoThresholds is returned when the service knows no threshold for a gauge.
var ErrNoThresholds = eris.New("wrds: empty threshold response")

// Client queries the metadata and threshold endpoints.
type Client struct {
	base    string
	fetch   fetcher.Fetcher
	breaker *resilience.CircuitBreaker

	// Observe, when set, is called once per request with the endpoint name
	// and an outcome of "ok", "http_error" or "error".
	Observe func(endpoint, outcome string)
}

// NewClient creates a client for the service rooted at baseURL. breaker may
// be nil.
func NewClient(baseURL string, f fetcher.Fetcher, breaker *resilience.CircuitBreaker) *Client {
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		fetch:   f,
		breaker: breaker,
	}
}

func (c *Client) observe(endpoint, outcome string) {
	if c.Observe != nil {
		c.Observe(endpoint, outcome)
	}
}

func (c *Client) get(ctx context.Context, rawURL string, q url.Values) (*fetcher.Response, error) {
	if c.breaker == nil {
		return c.fetch.Get(ctx, rawURL, q)
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*fetcher.Response, error) {
		return c.fetch.Get(ctx, rawURL, q)
	})
}

// MetadataQuery selects gauges from the metadata endpoint.
type MetadataQuery struct {
	SelectBy        string
	Selector        []string
	MustInclude     string
	UpstreamMiles   float64
	DownstreamMiles float64
}

type metadataResponse struct {
	Metrics struct {
		LocationCount int `json:"location_count"`
	} `json:"_metrics"`
	Locations   []model.SiteMetadata `json:"locations"`
	DataSources struct {
		MetadataSources []string `json:"metadata_sources"`
	} `json:"data_sources"`
}

// FetchMetadata returns the records matching q, annotated with retrieval
// timestamps. A non-2xx answer yields an empty list and is only logged.
func (c *Client) FetchMetadata(ctx context.Context, q MetadataQuery) ([]model.SiteMetadata, error) {
	rawURL := c.base + "/metadata/" + url.PathEscape(q.SelectBy) + "/" + url.PathEscape(strings.Join(q.Selector, ","))
	params := url.Values{}
	if q.MustInclude != "" {
		params.Set("must_include", q.MustInclude)
	}
	params.Set("upstream_trace_distance", strconv.FormatFloat(q.UpstreamMiles, 'f', -1, 64))
	params.Set("downstream_trace_distance", strconv.FormatFloat(q.DownstreamMiles, 'f', -1, 64))

	resp, err := c.get(ctx, rawURL, params)
	if err != nil {
		c.observe("metadata", "error")
		return nil, eris.Wrap(err, "wrds: fetch metadata")
	}
	if !resp.OK() {
		c.observe("metadata", "http_error")
		zap.L().Warn("wrds: metadata request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", resp.URL),
		)
		return []model.SiteMetadata{}, nil
	}

	body, err := fetcher.DecodeJSON[metadataResponse](resp)
	if err != nil {
		c.observe("metadata", "error")
		return nil, eris.Wrap(err, "wrds: decode metadata")
	}
	c.observe("metadata", "ok")

	wrdsTime := resp.Header.Get("Date")
	nwis, nrldb := "Not available", "Not available"
	for _, s := range body.DataSources.MetadataSources {
		if strings.Contains(s, "NWIS") {
			nwis = s
		}
		if strings.Contains(s, "NRLDB") {
			nrldb = s
		}
	}
	for i := range body.Locations {
		loc := &body.Locations[i]
		loc.WRDSTimestamp = wrdsTime
		loc.NWISTimestamp = nwis
		loc.NRLDBTimestamp = nrldb
		loc.MetadataSources = body.DataSources.MetadataSources
	}

	zap.L().Debug("wrds: metadata fetched",
		zap.String("select_by", q.SelectBy),
		zap.Int("location_count", body.Metrics.LocationCount),
		zap.Int("records", len(body.Locations)),
	)
	return body.Locations, nil
}

type thresholdResponse struct {
	ValueSet []thresholdEntry `json:"value_set"`
}

type thresholdEntry struct {
	Metadata struct {
		ThresholdSource string `json:"threshold_source"`
		NWSLID          string `json:"nws_lid"`
		USGSSiteCode    string `json:"usgs_site_code"`
		StageUnits      string `json:"stage_units"`
		CalcFlowUnits   string `json:"calc_flow_units"`
	} `json:"metadata"`
	StageValues    model.CategoryValues `json:"stage_values"`
	CalcFlowValues struct {
		model.CategoryValues
		RatingCurve struct {
			Source string `json:"source"`
		} `json:"rating_curve"`
	} `json:"calc_flow_values"`
}

// FetchThresholds returns the stage and flow thresholds of one gauge. The
// entry computed from the USGS Rating Depot wins over NRLDB, which wins over
// the first entry.
func (c *Client) FetchThresholds(ctx context.Context, lid string) (*model.ThresholdSet, error) {
	rawURL := c.base + "/nws_threshold/nws_lid/" + url.PathEscape(lid)
	resp, err := c.get(ctx, rawURL, url.Values{"threshold": {"all"}})
	if err != nil {
		c.observe("threshold", "error")
		return nil, eris.Wrapf(err, "wrds: fetch thresholds for %s", lid)
	}
	if !resp.OK() {
		c.observe("threshold", "http_error")
		return nil, eris.Errorf("wrds: thresholds for %s: status %d from %s", lid, resp.StatusCode, resp.URL)
	}

	body, err := fetcher.DecodeJSON[thresholdResponse](resp)
	if err != nil {
		c.observe("threshold", "error")
		return nil, eris.Wrapf(err, "wrds: decode thresholds for %s", lid)
	}
	c.observe("threshold", "ok")
	if len(body.ValueSet) == 0 {
		return nil, eris.Wrapf(ErrNoThresholds, "lid %s", lid)
	}

	entry := pickThresholdEntry(body.ValueSet)
	return &model.ThresholdSet{
		Stages:        entry.StageValues,
		Flows:         entry.CalcFlowValues.CategoryValues,
		StageSource:   entry.Metadata.ThresholdSource,
		FlowSource:    entry.CalcFlowValues.RatingCurve.Source,
		StageUnits:    entry.Metadata.StageUnits,
		FlowUnits:     entry.Metadata.CalcFlowUnits,
		WRDSTimestamp: resp.Header.Get("Date"),
		NWSLID:        entry.Metadata.NWSLID,
		USGSSiteCode:  entry.Metadata.USGSSiteCode,
	}, nil
}

func pickThresholdEntry(entries []thresholdEntry) thresholdEntry {
	// Later entries with the same source overwrite earlier ones.
	bySource := make(map[string]int, len(entries))
	for i, e := range entries {
		bySource[e.CalcFlowValues.RatingCurve.Source] = i
	}
	if i, ok := bySource[model.SourceUSGSRatingDepot]; ok {
		return entries[i]
	}
	if i, ok := bySource[model.SourceNRLDB]; ok {
		return entries[i]
	}
	return entries[0]
}
