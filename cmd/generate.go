package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/catfim"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/wrds"
)

var (
	genHANDDir     string
	genEnvFile     string
	genJobsHUC     int
	genJobsInun    int
	genJobsInt     int
	genStageBased  bool
	genOutput      string
	genSearch      float64
	genHUCs        string
	genIntervalCap int
	genStep        int
	genMetaFile    string
	genCatFIMVer   string
	genHANDVer     string
	genOverwrite   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a flow- or stage-based CatFIM library",
	Long: "Runs the CatFIM pipeline for a HAND run directory. Step 0 runs everything, " +
		"1 generates inundation only, 2 vectorizes existing rasters and 3 rebuilds the sites table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := generateOptions()
		if err != nil {
			return err
		}
		return runGenerate(ctx, opts)
	},
}

func generateOptions() (catfim.Options, error) {
	mode := model.FlowBased
	if genStageBased {
		mode = model.StageBased
	}
	opts := catfim.Options{
		HANDDir:       genHANDDir,
		OutputBase:    genOutput,
		Mode:          mode,
		JobsHUC:       genJobsHUC,
		JobsInundate:  genJobsInun,
		JobsIntervals: genJobsInt,
		SearchMiles:   genSearch,
		HUCs:          strings.Fields(genHUCs),
		IntervalCapFt: genIntervalCap,
		Step:          genStep,
		MetaFile:      genMetaFile,
		CatFIMVersion: genCatFIMVer,
		HANDVersion:   genHANDVer,
		Overwrite:     genOverwrite,
	}
	if opts.MetaFile != "" {
		if err := wrds.CheckMetafileExtension(opts.MetaFile); err != nil {
			return opts, err
		}
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func runGenerate(ctx context.Context, opts catfim.Options) error {
	log := zap.L().With(zap.String("command", "generate"))

	deps, err := initRunDeps(ctx, opts, genEnvFile)
	if err != nil {
		return eris.Wrap(err, "generate: init")
	}

	runner, err := catfim.New(opts, cfg, deps)
	if err != nil {
		return err
	}
	sum, err := runner.Run(ctx)
	if err != nil {
		return eris.Wrap(err, "generate: run")
	}

	mapped := 0
	for _, s := range sum.Sites {
		if s.Mapped == "yes" {
			mapped++
		}
	}
	log.Info("generate complete",
		zap.String("run_id", sum.RunID),
		zap.Int("hucs", len(sum.HUCs)),
		zap.Int("huc_failures", sum.HUCFailures),
		zap.Int("library_rows", sum.Library),
		zap.Int("sites", len(sum.Sites)),
		zap.Int("mapped", mapped),
	)

	out := map[string]any{
		"run_id":       sum.RunID,
		"output_dir":   runner.Layout().Root,
		"log":          sum.LogPath,
		"hucs":         len(sum.HUCs),
		"huc_failures": sum.HUCFailures,
		"library_rows": sum.Library,
		"sites":        len(sum.Sites),
		"mapped":       mapped,
		"alerts":       sum.Alerts,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genHANDDir, "hand-dir", "f", "", "HAND run directory (required)")
	f.StringVarP(&genEnvFile, "env-file", "e", "", "environment file with API and layer settings (required)")
	f.IntVar(&genJobsHUC, "jh", 1, "number of HUCs processed in parallel")
	f.IntVar(&genJobsInun, "jn", 1, "number of inundation workers per HUC")
	f.IntVar(&genJobsInt, "ji", 1, "number of interval workers per gauge (stage-based only)")
	f.BoolVar(&genStageBased, "sb", false, "run stage-based instead of flow-based")
	f.StringVarP(&genOutput, "output", "t", "/data/catfim/", "output base directory; the mode is appended")
	f.Float64VarP(&genSearch, "search", "s", 5, "upstream/downstream search distance in miles")
	f.StringVar(&genHUCs, "lh", "all", "space separated HUC8 list or \"all\"")
	f.IntVar(&genIntervalCap, "mc", 5, "feet of interval stages mapped above the highest category (stage-based only)")
	f.IntVar(&genStep, "step", 0, "0 all, 1 generate, 2 vectorize, 3 sites status")
	f.StringVar(&genMetaFile, "me", "", "gauge metadata blob (.cbor or legacy .pkl name)")
	f.StringVar(&genCatFIMVer, "cv", "", "CatFIM product version")
	f.StringVar(&genHANDVer, "hv", "", "HAND model version")
	f.BoolVarP(&genOverwrite, "overwrite", "o", false, "overwrite an existing output directory")
	_ = generateCmd.MarkFlagRequired("hand-dir")
	_ = generateCmd.MarkFlagRequired("env-file")

	rootCmd.AddCommand(generateCmd)
}
