// Package catfim drives a categorical FIM run: per-HUC gauge processing,
// vectorization, aggregation and the final sites table.
package catfim

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catfim/internal/model"
)

// Run steps.
const (
	StepAll       = 0
	StepGenerate  = 1
	StepVectorize = 2
	StepStatus    = 3
)

// Options are the per-run settings given on the command line.
type Options struct {
	HANDDir    string
	OutputBase string
	Mode       model.Mode

	JobsHUC       int
	JobsInundate  int
	JobsIntervals int

	SearchMiles   float64
	HUCs          []string
	IntervalCapFt int
	Step          int
	MetaFile      string

	CatFIMVersion string
	HANDVersion   string
	Overwrite     bool
}

// OutputDir is the base output directory suffixed with the mode.
func (o Options) OutputDir() string {
	return filepath.Clean(o.OutputBase) + "_" + string(o.Mode)
}

// AllHUCs reports whether every HUC of the HAND run is selected.
func (o Options) AllHUCs() bool {
	return len(o.HUCs) == 0 || (len(o.HUCs) == 1 && strings.EqualFold(o.HUCs[0], "all"))
}

// Validate checks the options that do not depend on the file system.
func (o Options) Validate() error {
	switch {
	case o.HANDDir == "":
		return eris.New("catfim: HAND run directory is required")
	case o.OutputBase == "":
		return eris.New("catfim: output directory is required")
	case o.Mode != model.StageBased && o.Mode != model.FlowBased:
		return eris.Errorf("catfim: unknown mode %q", o.Mode)
	case o.Step < StepAll || o.Step > StepStatus:
		return eris.Errorf("catfim: step must be between 0 and 3, got %d", o.Step)
	case o.JobsHUC < 1 || o.JobsInundate < 1 || o.JobsIntervals < 1:
		return eris.New("catfim: job numbers must be at least 1")
	case o.IntervalCapFt < 0:
		return eris.Errorf("catfim: interval cap must not be negative, got %d", o.IntervalCapFt)
	case o.SearchMiles < 0:
		return eris.Errorf("catfim: search distance must not be negative, got %v", o.SearchMiles)
	}
	return nil
}
