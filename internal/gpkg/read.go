package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Read loads the first feature table of path. tableName selects a table
// by name when non-empty.
func Read(ctx context.Context, path, tableName string) (Layer, []Feature, error) {
	if _, err := os.Stat(path); err != nil {
		return Layer{}, nil, eris.Wrapf(err, "gpkg: read %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Layer{}, nil, eris.Wrapf(err, "gpkg: open %s", path)
	}
	defer db.Close() //nolint:errcheck

	layer, geomCol, err := describe(ctx, db, tableName)
	if err != nil {
		return Layer{}, nil, eris.Wrapf(err, "gpkg: read %s", path)
	}

	names := []string{quote(geomCol)}
	for _, f := range layer.Fields {
		names = append(names, quote(f.Name))
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY fid",
		strings.Join(names, ", "), quote(layer.Name)))
	if err != nil {
		return Layer{}, nil, eris.Wrapf(err, "gpkg: query %s", layer.Name)
	}
	defer rows.Close() //nolint:errcheck

	var features []Feature
	for rows.Next() {
		var blob []byte
		vals := make([]any, len(layer.Fields))
		dest := []any{&blob}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return Layer{}, nil, eris.Wrap(err, "gpkg: scan")
		}
		var feat Feature
		if blob != nil {
			g, _, err := DecodeGeometry(blob)
			if err != nil {
				return Layer{}, nil, err
			}
			feat.Geometry = g
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		feat.Values = vals
		features = append(features, feat)
	}
	return layer, features, eris.Wrap(rows.Err(), "gpkg: rows")
}

func describe(ctx context.Context, db *sql.DB, tableName string) (Layer, string, error) {
	q := `SELECT c.table_name, g.column_name, g.geometry_type_name, g.srs_id
		FROM gpkg_contents c JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'`
	args := []any{}
	if tableName != "" {
		q += " AND lower(c.table_name) = lower(?)"
		args = append(args, tableName)
	}
	q += " ORDER BY c.table_name LIMIT 1"

	var layer Layer
	var geomCol string
	err := db.QueryRowContext(ctx, q, args...).Scan(&layer.Name, &geomCol, &layer.GeometryType, &layer.SRSID)
	if err == sql.ErrNoRows {
		return Layer{}, "", eris.Errorf("no feature table %q", tableName)
	}
	if err != nil {
		return Layer{}, "", eris.Wrap(err, "contents")
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(layer.Name)))
	if err != nil {
		return Layer{}, "", eris.Wrap(err, "table info")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return Layer{}, "", eris.Wrap(err, "table info")
		}
		if pk > 0 || strings.EqualFold(name, geomCol) {
			continue
		}
		layer.Fields = append(layer.Fields, Field{Name: name, Type: fieldType(typ)})
	}
	return layer, geomCol, eris.Wrap(rows.Err(), "table info")
}

func fieldType(decl string) FieldType {
	d := strings.ToUpper(decl)
	switch {
	case strings.Contains(d, "INT"):
		return Integer
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return Real
	default:
		return Text
	}
}
