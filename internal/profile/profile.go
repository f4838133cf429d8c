// Package profile loads build profiles: the raw option values and settings
// of a configuration run, kept in a YAML or TOML file.
//
//	settings:
//	  os: Windows
//	  build_type: Debug
//	options:
//	  TinyTIFF_BUILD_SHARED_LIBS: True
//
// Option values are passed through as raw text so that the recipe, not the
// file format, decides what is a valid boolean.
package profile

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Profile holds raw options and settings.
type Profile struct {
	Options  map[string]string
	Settings map[string]string
}

type document struct {
	Options  map[string]any `yaml:"options" toml:"options"`
	Settings map[string]any `yaml:"settings" toml:"settings"`
}

// Load reads a profile. Files ending in .toml are TOML, everything else YAML.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a profile; ext selects the format (".toml" or YAML).
func Parse(ext string, data []byte) (*Profile, error) {
	var doc document
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	opts, err := stringify("options", doc.Options)
	if err != nil {
		return nil, err
	}
	settings, err := stringify("settings", doc.Settings)
	if err != nil {
		return nil, err
	}
	return &Profile{Options: opts, Settings: settings}, nil
}

func stringify(section string, in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch v := v.(type) {
		case bool:
			if v {
				out[k] = "True"
			} else {
				out[k] = "False"
			}
		case string:
			out[k] = v
		case nil:
			out[k] = ""
		case map[string]any, []any:
			return nil, fmt.Errorf("%s.%s: nested values are not supported", section, k)
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// Merge returns p with every entry of override applied on top.
func (p *Profile) Merge(override *Profile) *Profile {
	out := &Profile{
		Options:  maps.Clone(p.Options),
		Settings: maps.Clone(p.Settings),
	}
	if out.Options == nil {
		out.Options = map[string]string{}
	}
	if out.Settings == nil {
		out.Settings = map[string]string{}
	}
	if override == nil {
		return out
	}
	maps.Copy(out.Options, override.Options)
	maps.Copy(out.Settings, override.Settings)
	return out
}

// ParseAssignments parses NAME=VALUE pairs as given on the command line.
func ParseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q: want NAME=VALUE", pair)
		}
		out[k] = v
	}
	return out, nil
}
