package wrds

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/model"
)

// ErrMetafileNotSequence is returned when a metadata blob decodes to
// something other than a list of records.
var ErrMetafileNotSequence = eris.New("wrds: metadata blob is not a sequence")

// MetafileExtensions are the accepted metadata blob extensions.
var MetafileExtensions = []string{".cbor", ".pkl"}

// OCONUSStates are queried separately because they are not forecast points.
var OCONUSStates = []string{"HI", "PR", "AK"}

// CheckMetafileExtension rejects blob paths with an unknown extension.
func CheckMetafileExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, ok := range MetafileExtensions {
		if ext == ok {
			return nil
		}
	}
	return eris.Errorf("wrds: metadata blob %s must end with one of %v", path, MetafileExtensions)
}

// LoadMetafile decodes a metadata blob written by SaveMetafile.
func LoadMetafile(path string) ([]model.SiteMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "wrds: read metadata blob %s", path)
	}

	var probe any
	if err := cbor.Unmarshal(data, &probe); err != nil {
		return nil, eris.Wrapf(err, "wrds: decode metadata blob %s", path)
	}
	if _, ok := probe.([]any); !ok {
		return nil, eris.Wrapf(ErrMetafileNotSequence, "%s", path)
	}

	var records []model.SiteMetadata
	if err := cbor.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrapf(err, "wrds: decode metadata records %s", path)
	}
	return records, nil
}

// SaveMetafile writes records to path through a temporary file.
func SaveMetafile(path string, records []model.SiteMetadata) error {
	if records == nil {
		records = []model.SiteMetadata{}
	}
	data, err := cbor.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "wrds: encode metadata blob")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "wrds: create directory for %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "wrds: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "wrds: rename %s", tmp)
	}
	return nil
}

// BuildCatalog queries every forecast point plus the OCONUS states and
// returns their union. Records without a lid are dropped and duplicates keep
// their first occurrence.
func (c *Client) BuildCatalog(ctx context.Context, searchMiles float64) ([]model.SiteMetadata, error) {
	forecast, err := c.FetchMetadata(ctx, MetadataQuery{
		SelectBy:        "nws_lid",
		Selector:        []string{"all"},
		MustInclude:     "nws_data.rfc_forecast_point",
		UpstreamMiles:   searchMiles,
		DownstreamMiles: searchMiles,
	})
	if err != nil {
		return nil, err
	}
	oconus, err := c.FetchMetadata(ctx, MetadataQuery{
		SelectBy:        "state",
		Selector:        OCONUSStates,
		UpstreamMiles:   searchMiles,
		DownstreamMiles: searchMiles,
	})
	if err != nil {
		return nil, err
	}
	return Dedupe(append(forecast, oconus...)), nil
}

// Dedupe drops records with a blank lid and keeps the first record per lid.
func Dedupe(records []model.SiteMetadata) []model.SiteMetadata {
	seen := make(map[string]bool, len(records))
	out := make([]model.SiteMetadata, 0, len(records))
	for _, r := range records {
		lid := r.LID()
		if lid == "" || lid == "none" || seen[lid] {
			continue
		}
		seen[lid] = true
		out = append(out, r)
	}
	return out
}

// LoadOrBuild returns the catalog stored at path when it can be read and
// otherwise rebuilds it from the service and stores it. built reports which
// happened.
func LoadOrBuild(ctx context.Context, c *Client, path string, searchMiles float64) (records []model.SiteMetadata, built bool, err error) {
	log := zap.L().With(zap.String("component", "wrds.metafile"), zap.String("path", path))

	if _, statErr := os.Stat(path); statErr == nil {
		records, err = LoadMetafile(path)
		if err == nil {
			log.Info("loaded metadata blob", zap.Int("records", len(records)))
			return records, false, nil
		}
		log.Warn("metadata blob unreadable, rebuilding", zap.Error(err))
	}

	records, err = c.BuildCatalog(ctx, searchMiles)
	if err != nil {
		return nil, false, err
	}
	if err := SaveMetafile(path, records); err != nil {
		return nil, false, err
	}
	log.Info("built metadata blob", zap.Int("records", len(records)))
	return records, true, nil
}
