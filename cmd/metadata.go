package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/config"
	"github.com/sells-group/catfim/internal/wrds"
)

var (
	metaEnvFile string
	metaOut     string
	metaSearch  float64
	metaRefresh bool
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Build or load the gauge metadata blob",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := wrds.CheckMetafileExtension(metaOut); err != nil {
			return err
		}
		env, err := config.LoadEnv(metaEnvFile)
		if err != nil {
			return err
		}
		c, err := newWRDSClient(env, nil)
		if err != nil {
			return err
		}

		if metaRefresh {
			if err := os.Remove(metaOut); err != nil && !os.IsNotExist(err) {
				return eris.Wrapf(err, "metadata: remove %s", metaOut)
			}
		}
		records, built, err := wrds.LoadOrBuild(ctx, c, metaOut, metaSearch)
		if err != nil {
			return eris.Wrap(err, "metadata: build")
		}
		zap.L().Info("metadata ready", zap.String("path", metaOut), zap.Int("records", len(records)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"path": metaOut, "records": len(records), "built": built})
	},
}

func init() {
	f := metadataCmd.Flags()
	f.StringVarP(&metaEnvFile, "env-file", "e", "", "environment file with the API base URL (required)")
	f.StringVar(&metaOut, "out", "nwm_metafile.cbor", "metadata blob path")
	f.Float64VarP(&metaSearch, "search", "s", 5, "upstream/downstream search distance in miles")
	f.BoolVar(&metaRefresh, "refresh", false, "rebuild even when the blob exists")
	_ = metadataCmd.MarkFlagRequired("env-file")

	rootCmd.AddCommand(metadataCmd)
}
