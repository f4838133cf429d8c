// Package buildsys defines what the build orchestrator needs from a native
// build system.
package buildsys

import "context"

// BuildSystem captures shared capabilities of build helpers (CMake, Autotools, etc).
// It keeps the common lifecycle and variable/env setup; implementations add their own extras.
type BuildSystem interface {
	// Basic paths.
	Source(dir string)
	InstallDir(dir string)

	// Environment helper.
	Env(key, val string)

	// Cache variables.
	Define(key, value string)
	DefineBool(key string, value bool)

	// Lifecycle.
	Configure(ctx context.Context, args ...string) error
	Build(ctx context.Context, args ...string) error
	Install(ctx context.Context, args ...string) error

	// Where artifacts land.
	OutputDir() string
}

// Describer is implemented by build systems that can report the commands
// they would run without running them.
type Describer interface {
	Describe() [][]string
}

// Tool is implemented by build systems that can report the version of the
// program they drive, so that a recipe's tool requirements can be checked.
type Tool interface {
	Name() string
	Version(ctx context.Context) (string, error)
}
