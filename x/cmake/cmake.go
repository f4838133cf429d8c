// Package cmake wraps the cmake configure/build/install workflow.
package cmake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/goplus/tiffpkg/pkgs/buildsys"
	"github.com/goplus/tiffpkg/recipe"
)

// Runner executes one cmake invocation.
type Runner func(ctx context.Context, bin string, args []string, env []string, stdout, stderr io.Writer) error

// ExecRunner runs bin as a child process.
func ExecRunner(ctx context.Context, bin string, args []string, env []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = env
	return cmd.Run()
}

type defineValue struct {
	value    string
	typeName string
}

// CMake drives CMake-based builds.
type CMake struct {
	Bin    string
	Runner Runner
	Stdout io.Writer
	Stderr io.Writer

	sourceDir  string
	buildDir   string
	installDir string
	generator  string
	buildType  string
	toolchain  string
	defines    map[string]defineValue
	env        map[string]string
}

var _ buildsys.BuildSystem = (*CMake)(nil)
var _ buildsys.Describer = (*CMake)(nil)
var _ buildsys.Tool = (*CMake)(nil)

// New returns a ready-to-use CMake.
func New(sourceDir, buildDir, installDir string) *CMake {
	return &CMake{
		Bin:        "cmake",
		Runner:     ExecRunner,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		defines:    make(map[string]defineValue),
		env:        make(map[string]string),
	}
}

// Source overrides the source directory.
func (c *CMake) Source(dir string) { c.sourceDir = dir }

// InstallDir overrides the install prefix.
func (c *CMake) InstallDir(dir string) { c.installDir = dir }

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) { c.generator = name }

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) { c.buildType = name }

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) { c.toolchain = path }

// Env sets an environment variable for every cmake invocation.
func (c *CMake) Env(key, value string) { c.env[key] = value }

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) {
	c.defines[key] = defineValue{value: string(recipe.FlagOf(value)), typeName: "BOOL"}
}

// ConfigureArgs returns the arguments Configure passes to cmake.
func (c *CMake) ConfigureArgs(args ...string) []string {
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	defines := c.definesArgs(map[string]defineValue{
		"CMAKE_INSTALL_PREFIX": {c.installDir, "PATH"},
		"CMAKE_TOOLCHAIN_FILE": {c.toolchain, "FILEPATH"},
		"CMAKE_BUILD_TYPE":     {c.buildType, "STRING"},
	})
	cmakeArgs = append(cmakeArgs, defines...)
	return append(cmakeArgs, args...)
}

// BuildArgs returns the arguments Build passes to cmake.
func (c *CMake) BuildArgs(args ...string) []string {
	cmakeArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	return append(cmakeArgs, args...)
}

// InstallArgs returns the arguments Install passes to cmake.
func (c *CMake) InstallArgs(args ...string) []string {
	cmakeArgs := []string{"--install", c.buildDir}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	if c.installDir != "" {
		cmakeArgs = append(cmakeArgs, "--prefix", c.installDir)
	}
	return append(cmakeArgs, args...)
}

// Describe returns the configure, build and install command lines.
func (c *CMake) Describe() [][]string {
	return [][]string{
		append([]string{c.Bin}, c.ConfigureArgs()...),
		append([]string{c.Bin}, c.BuildArgs()...),
		append([]string{c.Bin}, c.InstallArgs()...),
	}
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	return c.run(ctx, c.ConfigureArgs(args...))
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	return c.run(ctx, c.BuildArgs(args...))
}

// Install runs "cmake --install <build>" with optional extra arguments.
func (c *CMake) Install(ctx context.Context, args ...string) error {
	return c.run(ctx, c.InstallArgs(args...))
}

// OutputDir returns installDir if set, otherwise buildDir.
func (c *CMake) OutputDir() string {
	if c.installDir != "" {
		return c.installDir
	}
	return c.buildDir
}

// Name returns "cmake".
func (c *CMake) Name() string { return "cmake" }

// Version runs "cmake --version" and returns the reported version, e.g.
// "3.28.3".
func (c *CMake) Version(ctx context.Context) (string, error) {
	var out bytes.Buffer
	if err := c.Runner(ctx, c.Bin, []string{"--version"}, mergeEnv(os.Environ(), c.env), &out, io.Discard); err != nil {
		return "", err
	}
	return parseVersion(out.String())
}

// parseVersion extracts the version from the first line of "cmake --version".
func parseVersion(out string) (string, error) {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "cmake" || fields[1] != "version" {
		return "", fmt.Errorf("unexpected cmake --version output %q", line)
	}
	return fields[2], nil
}

func (c *CMake) run(ctx context.Context, args []string) error {
	return c.Runner(ctx, c.Bin, args, mergeEnv(os.Environ(), c.env), c.Stdout, c.Stderr)
}

// definesArgs renders user defines and the non-empty extra defines, sorted
// by name. User defines win over extras.
func (c *CMake) definesArgs(extra map[string]defineValue) []string {
	all := make(map[string]defineValue, len(c.defines)+len(extra))
	for k, d := range extra {
		if d.value != "" {
			all[k] = d
		}
	}
	for k, d := range c.defines {
		all[k] = d
	}
	if len(all) == 0 {
		return nil
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := all[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}

func mergeEnv(base []string, override map[string]string) []string {
	if len(override) == 0 {
		return base
	}
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// -----------------------------------------------------------------------------

// ApplyVariables defines every toolchain variable as a BOOL cache entry.
func ApplyVariables(bs buildsys.BuildSystem, vars recipe.Variables) {
	for _, name := range vars.Keys() {
		bs.DefineBool(name, vars[name].Bool())
	}
}

// GeneratorFor picks a generator matching the compiler setting.
func GeneratorFor(settings recipe.Settings) string {
	if settings.Value(recipe.SettingCompiler) == "Visual Studio" {
		return "Visual Studio 17 2022"
	}
	return "Unix Makefiles"
}

// ForConfiguration returns a CMake set up for cfg: generator and build type
// from its settings, one BOOL define per toolchain variable.
func ForConfiguration(sourceDir, buildDir, installDir string, cfg *recipe.Configuration) *CMake {
	c := New(sourceDir, buildDir, installDir)
	c.Generator(GeneratorFor(cfg.Settings))
	c.BuildType(cfg.Settings.Value(recipe.SettingBuildType))
	ApplyVariables(c, cfg.Variables)
	return c
}
