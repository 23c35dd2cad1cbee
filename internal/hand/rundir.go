// Package hand reads the per-HUC artifacts of a HAND run directory.
package hand

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
)

// BranchZero is the branch that defines the mosaic grid of a HUC.
const BranchZero = "0"

// ErrMissingArtifact is returned when a required HAND file does not exist.
var ErrMissingArtifact = eris.New("hand: missing artifact")

var hucPattern = regexp.MustCompile(`^\d{8}$`)

// RunDir is the root of a HAND run: one directory per HUC8.
type RunDir struct {
	Root string
}

// Open checks that root is an existing directory.
func Open(root string) (RunDir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return RunDir{}, eris.Wrapf(err, "hand: run directory %s", root)
	}
	if !info.IsDir() {
		return RunDir{}, eris.Errorf("hand: run directory %s is not a directory", root)
	}
	return RunDir{Root: root}, nil
}

// HUCs lists the HUC8 directories of the run in ascending order.
func (r RunDir) HUCs() ([]string, error) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		return nil, eris.Wrapf(err, "hand: list %s", r.Root)
	}
	var hucs []string
	for _, e := range entries {
		if e.IsDir() && hucPattern.MatchString(e.Name()) {
			hucs = append(hucs, e.Name())
		}
	}
	sort.Strings(hucs)
	return hucs, nil
}

// ElevTablePath is the HUC's usgs_elev_table.csv.
func (r RunDir) ElevTablePath(huc string) string {
	return filepath.Join(r.Root, huc, "usgs_elev_table.csv")
}

// BranchesDir holds one directory per branch.
func (r RunDir) BranchesDir(huc string) string {
	return filepath.Join(r.Root, huc, "branches")
}

// Branches lists the branch ids of a HUC with branch zero first and the rest
// in ascending order.
func (r RunDir) Branches(huc string) ([]string, error) {
	dir := r.BranchesDir(huc)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(ErrMissingArtifact, "branch directory %s: %v", dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	SortBranches(ids)
	return ids, nil
}

// SortBranches orders ids with branch zero first.
func SortBranches(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		if (ids[i] == BranchZero) != (ids[j] == BranchZero) {
			return ids[i] == BranchZero
		}
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
}

// Branch holds the artifact paths of one branch.
type Branch struct {
	HUC        string
	ID         string
	REM        string
	Catchments string
	HydroTable string
}

// Branch returns the artifact paths of branch id in huc. The files are not
// checked.
func (r RunDir) Branch(huc, id string) Branch {
	dir := filepath.Join(r.BranchesDir(huc), id)
	return Branch{
		HUC:        huc,
		ID:         id,
		REM:        filepath.Join(dir, "rem_zeroed_masked_"+id+".tif"),
		Catchments: filepath.Join(dir, "gw_catchments_reaches_filtered_addedAttributes_"+id+".tif"),
		HydroTable: filepath.Join(dir, "hydroTable_"+id+".csv"),
	}
}

// Check reports the first missing artifact of b.
func (b Branch) Check() error {
	for _, f := range []struct{ kind, path string }{
		{"REM", b.REM},
		{"catchments", b.Catchments},
		{"hydroTable", b.HydroTable},
	} {
		if _, err := os.Stat(f.path); err != nil {
			return eris.Wrapf(ErrMissingArtifact, "branch %s %s %s", b.ID, f.kind, f.path)
		}
	}
	return nil
}
