package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goplus/tiffpkg/recipe"
)

var matrixInputs inputs

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "List every option combination and its components",
	Args:  cobra.NoArgs,
	RunE:  runMatrix,
}

func init() {
	matrixCmd.Flags().StringArrayVarP(&matrixInputs.settings, "setting", "s", nil, "Set a setting, NAME=VALUE (repeatable)")
	matrixCmd.Flags().StringVar(&matrixInputs.os, "os", "", "Target operating system, e.g. Linux or Windows")
	rootCmd.AddCommand(matrixCmd)
}

func runMatrix(cmd *cobra.Command, args []string) error {
	r := recipe.TinyTIFF()
	_, settings, err := matrixInputs.resolve("")
	if err != nil {
		return err
	}
	m := recipe.OptionMatrix(r.Schema)
	assignments, err := m.Expand(r.Schema)
	if err != nil {
		return err
	}
	logger.Debug("expanded option matrix", "combinations", m.CombinationCount())

	out := cmd.OutOrStdout()
	for _, values := range assignments {
		opts, err := r.Schema.ResolveBools(values)
		if err != nil {
			return err
		}
		cfg, err := r.ConfigureResolved(opts, settings)
		if err != nil {
			return err
		}
		ids := recipe.ComponentIDs(cfg.Components)
		comps := "-"
		if len(ids) > 0 {
			comps = strings.Join(ids, ",")
		}
		fmt.Fprintf(out, "%s\t%s\n", cfg.Combination(), comps)
	}
	return nil
}
