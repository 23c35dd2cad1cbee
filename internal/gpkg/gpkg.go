// Package gpkg reads and writes single-layer GeoPackage files on top of the
// pure-Go SQLite driver.
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"
)

// FieldType is the SQLite type of an attribute column.
type FieldType string

// Attribute column types.
const (
	Text    FieldType = "TEXT"
	Real    FieldType = "REAL"
	Integer FieldType = "INTEGER"
)

// Field is an attribute column of a layer.
type Field struct {
	Name string
	Type FieldType
}

// Layer describes the single feature table of a file.
type Layer struct {
	Name string
	// GeometryType is the GeoPackage geometry type name, e.g. MULTIPOLYGON.
	GeometryType string
	SRSID        int
	Fields       []Field
}

// FieldIndex returns the position of the named field, or -1.
func (l Layer) FieldIndex(name string) int {
	for i, f := range l.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Feature is one row. Values line up with Layer.Fields; nil is NULL.
type Feature struct {
	Geometry geom.T
	Values   []any
}

const geometryColumn = "geom"

type srsDef struct {
	name       string
	definition string
}

var knownSRS = map[int]srsDef{
	4326: {"WGS 84", `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`},
	3857: {"WGS 84 / Pseudo-Mercator", `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs"],AUTHORITY["EPSG","3857"]]`},
}

const schema = `
PRAGMA application_id = 1196444487;
PRAGMA user_version = 10300;
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL,
	srs_id INTEGER PRIMARY KEY,
	organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT
);
CREATE TABLE gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY,
	data_type TEXT NOT NULL,
	identifier TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
	srs_id INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL,
	z TINYINT NOT NULL,
	m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
);
INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Write creates path holding layer and features, replacing any existing
// file. The file is built next to path and renamed into place.
func Write(ctx context.Context, path string, layer Layer, features []Feature) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	if err := write(ctx, tmp, layer, features); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "gpkg: write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "gpkg: rename %s", tmp)
	}
	return nil
}

func write(ctx context.Context, path string, layer Layer, features []Feature) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "open")
	}
	defer func() {
		if cerr := db.Close(); err == nil && cerr != nil {
			err = eris.Wrap(cerr, "close")
		}
	}()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "create schema")
	}
	if err := insertSRS(ctx, db, 4326); err != nil {
		return err
	}
	if layer.SRSID != 4326 {
		if err := insertSRS(ctx, db, layer.SRSID); err != nil {
			return err
		}
	}

	cols := []string{"fid INTEGER PRIMARY KEY AUTOINCREMENT", geometryColumn + " " + layer.GeometryType}
	names := []string{geometryColumn}
	for _, f := range layer.Fields {
		cols = append(cols, quote(f.Name)+" "+string(f.Type))
		names = append(names, quote(f.Name))
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quote(layer.Name), strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return eris.Wrap(err, "create feature table")
	}

	bounds := geom.NewBounds(geom.XY)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(layer.Name), strings.Join(names, ", "), placeholders))
	if err != nil {
		return eris.Wrap(err, "prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, feat := range features {
		if len(feat.Values) != len(layer.Fields) {
			return eris.Errorf("feature %d has %d values for %d fields", i, len(feat.Values), len(layer.Fields))
		}
		args := make([]any, 0, len(names))
		if feat.Geometry == nil {
			args = append(args, nil)
		} else {
			blob, err := EncodeGeometry(feat.Geometry, layer.SRSID)
			if err != nil {
				return err
			}
			args = append(args, blob)
			if len(feat.Geometry.FlatCoords()) > 0 {
				bounds.Extend(feat.Geometry)
			}
		}
		args = append(args, feat.Values...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "insert feature %d", i)
		}
	}

	var minX, minY, maxX, maxY any
	if !bounds.IsEmpty() {
		minX, minY, maxX, maxY = bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, last_change, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?)`,
		layer.Name, layer.Name, time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		minX, minY, maxX, maxY, layer.SRSID); err != nil {
		return eris.Wrap(err, "insert contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, 0, 0)`,
		layer.Name, geometryColumn, layer.GeometryType, layer.SRSID); err != nil {
		return eris.Wrap(err, "insert geometry column")
	}
	return eris.Wrap(tx.Commit(), "commit")
}

func insertSRS(ctx context.Context, db *sql.DB, id int) error {
	def, ok := knownSRS[id]
	if !ok {
		def = srsDef{name: fmt.Sprintf("EPSG:%d", id), definition: "undefined"}
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES (?, ?, 'EPSG', ?, ?, '')`,
		def.name, id, id, def.definition)
	return eris.Wrapf(err, "insert srs %d", id)
}
