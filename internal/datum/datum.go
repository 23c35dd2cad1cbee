// Package datum resolves the datum record of a gauge and the adjustment
// that brings its stages to NAVD88 feet.
package datum

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/vdatum"
)

//go:embed overrides.yaml
var defaultOverrides []byte

// Overrides holds the per-gauge datum corrections. Each map goes from the
// forced value to the lids it applies to.
type Overrides struct {
	CRS           map[string][]string `yaml:"crs"`
	VCS           map[string][]string `yaml:"vcs"`
	RatingSources map[string][]string `yaml:"rating_source"`
	NGVDNames     []string            `yaml:"ngvd_names"`

	crs, vcs, source map[string]string
	ngvd             map[string]bool
}

// ParseOverrides decodes an override table.
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, eris.Wrap(err, "datum: parse overrides")
	}
	o.crs = invert(o.CRS)
	o.vcs = invert(o.VCS)
	o.source = invert(o.RatingSources)
	o.ngvd = make(map[string]bool, len(o.NGVDNames))
	for _, n := range o.NGVDNames {
		o.ngvd[n] = true
	}
	return &o, nil
}

// DefaultOverrides returns the embedded override table.
func DefaultOverrides() *Overrides {
	o, err := ParseOverrides(defaultOverrides)
	if err != nil {
		panic(err)
	}
	return o
}

func invert(m map[string][]string) map[string]string {
	out := make(map[string]string)
	for value, lids := range m {
		for _, lid := range lids {
			out[strings.ToLower(lid)] = value
		}
	}
	return out
}

// RatingSource returns the rating-curve source to use for lid.
func (o *Overrides) RatingSource(lid, source string) string {
	if forced, ok := o.source[strings.ToLower(lid)]; ok {
		return forced
	}
	return source
}

// Apply returns d with the CRS and VCS corrections for lid applied.
func (o *Overrides) Apply(lid string, d model.DatumInfo) model.DatumInfo {
	lid = strings.ToLower(lid)
	if crs, ok := o.crs[lid]; ok {
		d.CRS = crs
	}
	if vcs, ok := o.vcs[lid]; ok {
		d.VCS = vcs
	}
	return d
}

// IsNGVD reports whether vcs names the NGVD29 datum.
func (o *Overrides) IsNGVD(vcs string) bool {
	return o.ngvd[strings.TrimSpace(vcs)]
}

// Converter turns an NGVD29 location into a NAVD88 offset in feet.
type Converter interface {
	NGVDToNAVDFeet(ctx context.Context, lat, lon float64, crs string) (float64, error)
}

// Normalizer computes per-gauge datum adjustments.
type Normalizer struct {
	overrides *Overrides
	conv      Converter
}

// NewNormalizer returns a normalizer using o, or the embedded table when o
// is nil.
func NewNormalizer(o *Overrides, conv Converter) *Normalizer {
	if o == nil {
		o = DefaultOverrides()
	}
	return &Normalizer{overrides: o, conv: conv}
}

// Adjustment is the resolved datum of a gauge.
type Adjustment struct {
	Datum model.DatumInfo
	// Feet is added to stages to express them in NAVD88.
	Feet float64
}

// Adjust selects the datum record matching the rating-curve source and
// converts it to NAVD88 when needed. On failure the returned status is the
// gauge status to record and ok is false.
func (n *Normalizer) Adjust(ctx context.Context, site *model.SiteMetadata, ratingSource string) (adj Adjustment, status string, ok bool) {
	lid := site.LID()
	log := zap.L().With(zap.String("component", "datum"), zap.String("lid", lid))

	if strings.TrimSpace(ratingSource) == "" {
		log.Warn("no rating curve source")
		return adj, model.StatusNoRatingSource, false
	}
	ratingSource = n.overrides.RatingSource(lid, ratingSource)

	nws, usgs := site.Datums()
	d := nws
	if ratingSource == model.SourceUSGSRatingDepot {
		d = usgs
	}
	if !d.Datum.Valid {
		log.Warn("datum unavailable", zap.String("source", d.Source))
		return adj, model.StatusDatumUnavailable, false
	}
	d = n.overrides.Apply(lid, d)
	adj.Datum = d

	if !n.overrides.IsNGVD(d.VCS) {
		return adj, "", true
	}
	if !d.Lat.Valid || !d.Lon.Valid {
		return adj, model.DatumErrorStatus("coordinates are missing"), false
	}

	feet, err := n.conv.NGVDToNAVDFeet(ctx, d.Lat.Value, d.Lon.Value, d.CRS)
	if err != nil {
		log.Error("ngvd to navd conversion failed", zap.Error(err))
		var dce *vdatum.DatumConversionError
		if errors.As(err, &dce) {
			return adj, dce.Status(), false
		}
		return adj, model.DatumErrorStatus(err.Error()), false
	}
	adj.Feet = feet
	log.Debug("datum adjusted", zap.String("vcs", d.VCS), zap.Float64("adj_ft", feet))
	return adj, "", true
}
