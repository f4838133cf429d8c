package internal

import (
	"maps"

	"github.com/spf13/cobra"

	"github.com/goplus/tiffpkg/internal/profile"
	"github.com/goplus/tiffpkg/recipe"
)

// inputs are the per-run option and setting sources shared by the config and
// build commands. Later sources win: profile, then -s, then --os, then -o.
type inputs struct {
	profile  string
	options  []string
	settings []string
	os       string
}

func (in *inputs) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&in.options, "option", "o", nil, "Set an option, NAME=VALUE (repeatable)")
	cmd.Flags().StringArrayVarP(&in.settings, "setting", "s", nil, "Set a setting, NAME=VALUE (repeatable)")
	cmd.Flags().StringVar(&in.profile, "profile", "", "Profile file (YAML or TOML) with options and settings")
	cmd.Flags().StringVar(&in.os, "os", "", "Target operating system, e.g. Linux or Windows")
}

// resolve returns the raw option values and the unadjusted settings of a run.
// The host settings are the base.
func (in *inputs) resolve(defaultProfile string) (map[string]string, recipe.Settings, error) {
	p := &profile.Profile{}
	path := in.profile
	if path == "" {
		path = defaultProfile
	}
	if path != "" {
		loaded, err := profile.Load(path)
		if err != nil {
			return nil, recipe.Settings{}, err
		}
		p = loaded
	}

	cli := &profile.Profile{}
	var err error
	if cli.Options, err = profile.ParseAssignments(in.options); err != nil {
		return nil, recipe.Settings{}, err
	}
	if cli.Settings, err = profile.ParseAssignments(in.settings); err != nil {
		return nil, recipe.Settings{}, err
	}
	if in.os != "" {
		cli.Settings[recipe.SettingOS] = in.os
	}
	p = p.Merge(cli)

	settings := recipe.HostSettings().Map()
	maps.Copy(settings, p.Settings)
	return p.Options, recipe.NewSettings(settings), nil
}
