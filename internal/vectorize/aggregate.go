package vectorize

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/catkey"
	"github.com/sells-group/catfim/internal/gpkg"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/raster"
)

type libraryRow struct {
	rec  model.LibraryRecord
	geom *geom.MultiPolygon
}

// LibraryFiles lists the dissolved GeoPackages of dir whose names follow
// the "{huc}_{lid}_{key}_extent_dissolved.gpkg" grammar. Other .gpkg files
// are logged and ignored.
func LibraryFiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.gpkg"))
	if err != nil {
		return nil, eris.Wrap(err, "vectorize: list library files")
	}
	sort.Strings(paths)
	var out []string
	for _, p := range paths {
		if _, _, _, err := catkey.ParseDissolvedName(p); err != nil {
			zap.L().Warn("vectorize: ignoring library file", zap.String("path", p), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Aggregate concatenates the dissolved files of gpkgDir into the library
// GeoPackage outGPKG and its attribute-only CSV twin outCSV. A non-empty
// interval_stage replaces stage. In flow mode rows are further dissolved
// by (ahps_lid, magnitude).
func Aggregate(ctx context.Context, gpkgDir string, mode model.Mode, outGPKG, outCSV string) ([]model.LibraryRecord, error) {
	files, err := LibraryFiles(gpkgDir)
	if err != nil {
		return nil, err
	}
	var rows []libraryRow
	for _, p := range files {
		layer, feats, err := gpkg.Read(ctx, p, "")
		if err != nil {
			return nil, err
		}
		for _, f := range feats {
			if f.Geometry == nil {
				continue
			}
			mp, err := ToMultiPolygon(f.Geometry)
			if err != nil {
				return nil, eris.Wrapf(err, "vectorize: %s", p)
			}
			rec := fromValues(layer, f.Values)
			if rec.IntervalStage != "" {
				rec.Stage = rec.IntervalStage
			}
			rows = append(rows, libraryRow{rec: rec, geom: mp})
		}
	}

	if mode == model.FlowBased {
		rows, err = dissolveFlows(rows)
		if err != nil {
			return nil, err
		}
	}
	sortRows(rows)

	layer := libraryLayer()
	feats := make([]gpkg.Feature, len(rows))
	recs := make([]model.LibraryRecord, len(rows))
	for i := range rows {
		feats[i] = gpkg.Feature{Geometry: rows[i].geom, Values: toValues(&rows[i].rec)}
		b, err := wkb.Marshal(rows[i].geom, wkb.NDR)
		if err != nil {
			return nil, eris.Wrap(err, "vectorize: encode geometry")
		}
		recs[i] = rows[i].rec
		recs[i].Geometry = b
	}
	if err := gpkg.Write(ctx, outGPKG, layer, feats); err != nil {
		return nil, err
	}
	if err := writeCSV(outCSV, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func dissolveFlows(rows []libraryRow) ([]libraryRow, error) {
	type key struct{ lid, magnitude string }
	var order []key
	groups := make(map[key][]libraryRow)
	for _, r := range rows {
		k := key{r.rec.AHPSLID, r.rec.Magnitude}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	out := make([]libraryRow, 0, len(order))
	for _, k := range order {
		g := groups[k]
		if len(g) == 1 {
			out = append(out, g[0])
			continue
		}
		parts := make([][]byte, len(g))
		for i, r := range g {
			b, err := wkb.Marshal(r.geom, wkb.NDR)
			if err != nil {
				return nil, eris.Wrap(err, "vectorize: encode geometry")
			}
			parts[i] = b
		}
		merged, err := raster.UnionWKB(parts)
		if err != nil {
			return nil, eris.Wrapf(err, "vectorize: dissolve %s %s", k.lid, k.magnitude)
		}
		t, err := wkb.Unmarshal(merged)
		if err != nil {
			return nil, eris.Wrap(err, "vectorize: decode dissolved geometry")
		}
		mp, err := ToMultiPolygon(t)
		if err != nil {
			return nil, err
		}
		out = append(out, libraryRow{rec: g[0].rec, geom: mp.SetSRID(model.EPSGWebMercator)})
	}
	return out, nil
}

func stageValue(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return -1
	}
	return v
}

func sortRows(rows []libraryRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].rec, rows[j].rec
		if a.AHPSLID != b.AHPSLID {
			return a.AHPSLID < b.AHPSLID
		}
		ra, rb := model.Category(a.Magnitude).Rank(), model.Category(b.Magnitude).Rank()
		if ra != rb {
			return ra < rb
		}
		if sa, sb := stageValue(a.Stage), stageValue(b.Stage); sa != sb {
			return sa < sb
		}
		return a.HUC < b.HUC
	})
}

func writeCSV(path string, recs []model.LibraryRecord) error {
	data, err := csvutil.Marshal(recs)
	if err != nil {
		return eris.Wrap(err, "vectorize: encode library csv")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "vectorize: write %s", tmp)
	}
	return eris.Wrapf(os.Rename(tmp, path), "vectorize: rename %s", tmp)
}
