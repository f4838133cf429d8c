package internal

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goplus/tiffpkg/recipe"
)

var configInputs inputs

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Config resolves the options and settings of one run and prints the adjusted
settings, the toolchain variables and the exposed components as YAML.
Nothing is built.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configInputs.register(configCmd)
	rootCmd.AddCommand(configCmd)
}

// configView is the printed form of a configuration.
type configView struct {
	Recipe      string             `yaml:"recipe"`
	Combination string             `yaml:"combination"`
	Settings    map[string]string  `yaml:"settings"`
	Options     map[string]bool    `yaml:"options"`
	Variables   map[string]string  `yaml:"variables"`
	Components  []recipe.Component `yaml:"components"`
}

func newConfigView(cfg *recipe.Configuration) configView {
	vars := make(map[string]string, len(cfg.Variables))
	for k, v := range cfg.Variables {
		vars[k] = string(v)
	}
	comps := cfg.Components
	if comps == nil {
		comps = []recipe.Component{}
	}
	return configView{
		Recipe:      cfg.Recipe.Ref(),
		Combination: cfg.Combination(),
		Settings:    cfg.Settings.Map(),
		Options:     cfg.Options.Map(),
		Variables:   vars,
		Components:  comps,
	}
}

func runConfig(cmd *cobra.Command, args []string) error {
	opts, settings, err := configInputs.resolve(toolConfig.Profile)
	if err != nil {
		return err
	}
	cfg, err := recipe.TinyTIFF().Configure(opts, settings)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(newConfigView(cfg)); err != nil {
		return err
	}
	return enc.Close()
}
