// Package nwm reads National Water Model reach attributes used to narrow a
// gauge's segment list.
package nwm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catfim/internal/gpkg"
)

// StreamOrders maps an NWM feature id to its stream order. A nil map keeps
// every segment.
type StreamOrders map[string]int

type orderRow struct {
	ID    string  `csv:"ID"`
	Order float64 `csv:"order_"`
}

// LoadStreamOrders reads ID and order_ from a CSV file or from the feature
// table of a GeoPackage.
func LoadStreamOrders(ctx context.Context, path string) (StreamOrders, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".gpkg":
		return loadGPKG(ctx, path)
	default:
		return nil, eris.Errorf("nwm: unsupported streams layer %s", path)
	}
}

func loadCSV(path string) (StreamOrders, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "nwm: read %s", path)
	}
	var rows []orderRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "nwm: decode %s", path)
	}
	out := make(StreamOrders, len(rows))
	for _, r := range rows {
		out[normalizeID(r.ID)] = int(r.Order)
	}
	return out, nil
}

func loadGPKG(ctx context.Context, path string) (StreamOrders, error) {
	layer, features, err := gpkg.Read(ctx, path, "")
	if err != nil {
		return nil, err
	}
	idIdx, orderIdx := layer.FieldIndex("ID"), layer.FieldIndex("order_")
	if idIdx < 0 || orderIdx < 0 {
		return nil, eris.Errorf("nwm: %s lacks ID or order_ columns", path)
	}
	out := make(StreamOrders, len(features))
	for _, f := range features {
		order, ok := toInt(f.Values[orderIdx])
		if !ok {
			continue
		}
		out[normalizeID(fmt.Sprint(f.Values[idIdx]))] = order
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return int(f), err == nil
	}
	return 0, false
}

// normalizeID drops a trailing ".0" so float-typed ids match metadata ids.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	return strings.TrimSuffix(id, ".0")
}

// Filter keeps the segments whose stream order equals order. Segments
// missing from the table are dropped. A nil table returns segments as is.
func (s StreamOrders) Filter(segments []string, order int) []string {
	if s == nil {
		return segments
	}
	var out []string
	for _, seg := range segments {
		if o, ok := s[normalizeID(seg)]; ok && o == order {
			out = append(out, seg)
		}
	}
	return out
}
