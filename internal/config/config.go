// Package config loads the tool configuration: where builds happen, which
// generator to use and how much to log.
//
// Values come, lowest priority first, from built-in defaults, the file
// tiffpkg.yaml in the user config directory (or the file given explicitly),
// and TIFFPKG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/goplus/tiffpkg/internal/env"
)

const (
	// FileName is the config file name without extension.
	FileName = "tiffpkg"
	// EnvPrefix prefixes environment overrides, e.g. TIFFPKG_LOG_LEVEL.
	EnvPrefix = "TIFFPKG"
)

// Config is the tool configuration.
type Config struct {
	// Workspace holds build trees, install directories and the build cache.
	Workspace string `mapstructure:"workspace"`
	// Generator overrides the CMake generator picked from the settings.
	Generator string `mapstructure:"generator"`
	// Profile is applied before command line options.
	Profile  string `mapstructure:"profile"`
	LogLevel string `mapstructure:"log_level"`
	Verbose  bool   `mapstructure:"verbose"`
}

// LoadOptions control where Load looks.
type LoadOptions struct {
	// ConfigFile, when set, is the only file read and must exist.
	ConfigFile string
	// ConfigDir replaces the user config directory.
	ConfigDir string
}

// Default returns the configuration used when nothing is configured.
func Default() (*Config, error) {
	ws, err := env.WorkDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		Workspace: ws,
		LogLevel:  "info",
	}, nil
}

// Load reads the configuration.
func Load(opts LoadOptions) (*Config, string, error) {
	defaults, err := Default()
	if err != nil {
		return nil, "", err
	}

	v := viper.New()
	v.SetDefault("workspace", defaults.Workspace)
	v.SetDefault("generator", defaults.Generator)
	v.SetDefault("profile", defaults.Profile)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		dir := opts.ConfigDir
		if dir == "" {
			if dir, err = env.ConfigDir(); err != nil {
				return nil, "", err
			}
		}
		v.SetConfigName(FileName)
		v.AddConfigPath(dir)
	}

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}
	if cfg.Workspace == "" {
		return nil, "", errors.New("config: workspace must not be empty")
	}
	return &cfg, used, nil
}
