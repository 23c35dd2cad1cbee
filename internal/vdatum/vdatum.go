// Package vdatum converts NGVD29 heights to NAVD88 through the NOAA VDatum
// tidal endpoint.
package vdatum

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/fetcher"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/raster"
	"github.com/sells-group/catfim/internal/resilience"
)

// DefaultBaseURL is the public VDatum API root.
const DefaultBaseURL = "https://vdatum.noaa.gov/vdatumweb/api"

// DefaultRetryDelay is the pause before the single retry on pool exhaustion.
const DefaultRetryDelay = 10 * time.Second

// Failure reasons carried by DatumConversionError.
var (
	ErrCRSMissing = eris.New("CRS is missing")
	ErrAPI        = eris.New("possible API issue")
)

// DatumConversionError reports why a gauge datum could not be moved to
// NAVD88. Reason is the text appended to the gauge status.
type DatumConversionError struct {
	Reason string
	Cause  error
}

func (e *DatumConversionError) Error() string {
	if e.Cause == nil {
		return "vdatum: " + e.Reason
	}
	return "vdatum: " + e.Reason + ": " + e.Cause.Error()
}

func (e *DatumConversionError) Unwrap() error { return e.Cause }

// Status renders the error as a gauge status.
func (e *DatumConversionError) Status() string {
	return model.DatumErrorStatus(e.Reason)
}

// Reprojector moves a geographic coordinate between two EPSG codes.
type Reprojector func(lon, lat float64, fromEPSG, toEPSG int) (float64, float64, error)

func gdalReproject(lon, lat float64, fromEPSG, toEPSG int) (float64, float64, error) {
	return raster.TransformPoint(raster.EPSG(fromEPSG), raster.EPSG(toEPSG), lon, lat)
}

// Client calls the VDatum tidal conversion.
type Client struct {
	base      string
	region    string
	fetch     fetcher.Fetcher
	retry     resilience.RetryConfig
	reproject Reprojector

	// Observe, when set, is called once per conversion with "ok" or "error".
	Observe func(outcome string)
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the clock used for the retry pause.
func WithClock(c clockwork.Clock) Option {
	return func(cl *Client) { cl.retry.Clock = c }
}

// WithRetryDelay changes the pause before the retry.
func WithRetryDelay(d time.Duration) Option {
	return func(cl *Client) {
		cl.retry.Wait = d
	}
}

// WithReprojector replaces the GDAL point reprojection.
func WithReprojector(r Reprojector) Option {
	return func(cl *Client) { cl.reproject = r }
}

// NewFetcher returns the HTTP fetcher the client expects: a single attempt
// per call, so the only retry is the client's own pause on pool exhaustion.
func NewFetcher(userAgent string, timeout time.Duration, insecure bool) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:          userAgent,
		Timeout:            timeout,
		MaxRetries:         1,
		InsecureSkipVerify: insecure,
	})
}

// NewClient returns a client for the API at baseURL. region defaults to
// "contiguous".
func NewClient(baseURL, region string, f fetcher.Fetcher, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if region == "" {
		region = "contiguous"
	}
	c := &Client{
		base:      strings.TrimRight(baseURL, "/"),
		region:    region,
		fetch:     f,
		retry:     resilience.FixedDelay(1, DefaultRetryDelay, resilience.IsPoolExhaustion),
		reproject: gdalReproject,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tidalResponse struct {
	TarHeight model.OptFloat `json:"tar_height"`
}

// NGVDToNAVDFeet returns the height in feet to add to an NGVD29 value at
// (lat, lon) to express it in NAVD88. crs names the horizontal datum of the
// coordinate; it is moved to NAD27 first when needed.
func (c *Client) NGVDToNAVDFeet(ctx context.Context, lat, lon float64, crs string) (float64, error) {
	d, err := c.convert(ctx, lat, lon, crs)
	if c.Observe != nil {
		if err != nil {
			c.Observe("error")
		} else {
			c.Observe("ok")
		}
	}
	return d, err
}

func (c *Client) convert(ctx context.Context, lat, lon float64, crs string) (float64, error) {
	if strings.TrimSpace(crs) == "" {
		return 0, &DatumConversionError{Reason: ErrCRSMissing.Error(), Cause: ErrCRSMissing}
	}
	epsg, ok := model.HorizontalDatumEPSG(crs)
	if !ok {
		return 0, &DatumConversionError{Reason: "invalid projection: crs=" + crs}
	}
	if epsg != model.EPSGNAD27 {
		x, y, err := c.reproject(lon, lat, epsg, model.EPSGNAD27)
		if err != nil {
			return 0, &DatumConversionError{Reason: "invalid projection: crs=" + crs, Cause: err}
		}
		lon, lat = x, y
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("region", c.region)
	q.Set("s_h_frame", "NAD27")
	q.Set("s_v_frame", "NGVD29")
	q.Set("s_vertical_unit", "m")
	q.Set("src_height", "0.0")
	q.Set("t_v_frame", "NAVD88")
	q.Set("tar_vertical_unit", "m")

	log := zap.L().With(zap.String("component", "vdatum"))
	retry := c.retry
	retry.OnRetry = func(attempt int, err error) {
		log.Warn("vdatum request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}

	heightM, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (float64, error) {
		resp, err := c.fetch.Get(ctx, c.base+"/tidal", q)
		if err != nil {
			return 0, err
		}
		if !resp.OK() {
			return 0, eris.Errorf("vdatum: status %d from %s", resp.StatusCode, resp.URL)
		}
		body, err := fetcher.DecodeJSON[tidalResponse](resp)
		if err != nil {
			return 0, err
		}
		if !body.TarHeight.Valid {
			return 0, eris.New("vdatum: response has no tar_height")
		}
		return body.TarHeight.Value, nil
	})
	if err != nil {
		if resilience.IsPoolExhaustion(err) || errors.Is(err, context.DeadlineExceeded) {
			return 0, &DatumConversionError{Reason: ErrAPI.Error(), Cause: err}
		}
		return 0, &DatumConversionError{Reason: "request failed", Cause: err}
	}
	return math.Round(heightM*model.MetersToFeet*100) / 100, nil
}
