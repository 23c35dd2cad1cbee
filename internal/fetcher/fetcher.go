// Package fetcher performs rate-limited, retrying HTTP GETs against the
// gauge metadata, threshold and datum services.
package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher issues GET requests and returns the buffered response.
type Fetcher interface {
	// Get requests rawURL with query appended. Non-2xx statuses are returned
	// as a Response, not as an error; errors are reserved for requests that
	// never produced a response.
	Get(ctx context.Context, rawURL string, query url.Values) (*Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the response body into a T.
func DecodeJSON[T any](r *Response) (T, error) {
	var v T
	if r == nil {
		return v, eris.New("json: nil response")
	}
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return v, eris.Wrapf(err, "json: decode response from %s", r.URL)
	}
	return v, nil
}
