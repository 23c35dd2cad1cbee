package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catfim/internal/sites"
)

var restrictedScope string

var restrictedCmd = &cobra.Command{
	Use:   "restricted",
	Short: "List gauges that are never mapped",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch restrictedScope {
		case sites.ScopeStage, sites.ScopeFlow:
		default:
			return eris.Errorf("restricted: scope must be %q or %q", sites.ScopeStage, sites.ScopeFlow)
		}
		reg, err := sites.LoadRestricted(cfg.Sites.RestrictedFile)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reg.ForScope(restrictedScope))
	},
}

func init() {
	restrictedCmd.Flags().StringVar(&restrictedScope, "scope", sites.ScopeStage, "stage or flow")
	rootCmd.AddCommand(restrictedCmd)
}
