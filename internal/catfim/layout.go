package catfim

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catfim/internal/model"
)

// ErrOutputExists is returned when a fresh run finds a previous mapping
// directory and overwriting is off.
var ErrOutputExists = eris.New("catfim: output mapping directory already exists, use overwrite")

// Layout names every path of a run output directory.
type Layout struct {
	Root string
	Mode model.Mode
}

// Logs holds the run log, worker logs and the metrics textfile.
func (l Layout) Logs() string { return filepath.Join(l.Root, "logs") }

// Flows holds the per-category flow files of flow-based runs.
func (l Layout) Flows() string { return filepath.Join(l.Root, "flows") }

// Attributes holds the per-gauge attribute CSVs.
func (l Layout) Attributes() string { return filepath.Join(l.Root, "attributes") }

// Mapping holds the HUC directories and the final library and sites files.
func (l Layout) Mapping() string { return filepath.Join(l.Root, "mapping") }

// GPKG holds one dissolved GeoPackage per extent.
func (l Layout) GPKG() string { return filepath.Join(l.Mapping(), "gpkg") }

// Messages holds the per-HUC status message files.
func (l Layout) Messages() string { return filepath.Join(l.Mapping(), "huc_messages") }

// HUC is the mapping directory owned by one HUC worker.
func (l Layout) HUC(huc string) string { return filepath.Join(l.Mapping(), huc) }

// LID is the mosaic directory of one gauge.
func (l Layout) LID(huc, lid string) string { return filepath.Join(l.HUC(huc), lid) }

// AttributesCSV is the concatenation of every per-gauge attributes file.
func (l Layout) AttributesCSV() string {
	return filepath.Join(l.Attributes(), "nws_lid_attributes.csv")
}

func (l Layout) output(kind, ext string) string {
	return filepath.Join(l.Mapping(), string(l.Mode)+"_catfim_"+kind+ext)
}

// LibraryGPKG is the aggregated inundation library.
func (l Layout) LibraryGPKG() string { return l.output("library", ".gpkg") }

// LibraryCSV is the library without geometry.
func (l Layout) LibraryCSV() string { return l.output("library", ".csv") }

// SitesGPKG is the sites table with point geometry.
func (l Layout) SitesGPKG() string { return l.output("sites", ".gpkg") }

// SitesCSV is the sites table with lat/lon columns.
func (l Layout) SitesCSV() string { return l.output("sites", ".csv") }

// MetaFile is the default metadata blob location.
func (l Layout) MetaFile() string { return filepath.Join(l.Root, "nwm_metafile.cbor") }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Prepare sets up the directories for step. A fresh run (step 0 or 1)
// refuses an existing mapping directory unless overwrite is set, in which
// case flows, attributes and mapping are rebuilt. Step 2 clears the
// vectorized outputs only. Logs are always kept.
func (l Layout) Prepare(step int, overwrite bool) error {
	if err := os.MkdirAll(l.Logs(), 0o755); err != nil {
		return eris.Wrap(err, "catfim: create logs directory")
	}
	switch step {
	case StepAll, StepGenerate:
		if exists(l.Mapping()) {
			if !overwrite {
				return eris.Wrapf(ErrOutputExists, "%s", l.Mapping())
			}
			for _, d := range []string{l.Flows(), l.Attributes(), l.Mapping()} {
				if err := os.RemoveAll(d); err != nil {
					return eris.Wrapf(err, "catfim: remove %s", d)
				}
			}
		}
	case StepVectorize:
		for _, p := range []string{l.GPKG(), l.LibraryGPKG(), l.LibraryCSV()} {
			if err := os.RemoveAll(p); err != nil {
				return eris.Wrapf(err, "catfim: remove %s", p)
			}
		}
	case StepStatus:
		if !exists(l.SitesGPKG()) {
			return eris.Errorf("catfim: step %d needs %s", step, l.SitesGPKG())
		}
	}
	for _, d := range []string{l.Flows(), l.Attributes(), l.Mapping(), l.GPKG(), l.Messages()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return eris.Wrapf(err, "catfim: create %s", d)
		}
	}
	return nil
}
