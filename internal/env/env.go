package env

import (
	"os"
	"path/filepath"
)

// WorkDir returns the default workspace holding build trees, install
// directories and the build cache.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".tiffpkg"), nil
}

// ConfigDir returns the directory searched for the tool configuration file.
func ConfigDir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "tiffpkg"), nil
}
