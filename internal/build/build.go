// Package build sequences one configuration run of a recipe: resolve the
// options, adjust the settings, drive the native build system with the
// resulting toolchain variables and record the exposed components in the
// package manifest.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/goplus/tiffpkg/internal/manifest"
	"github.com/goplus/tiffpkg/pkgs/buildsys"
	"github.com/goplus/tiffpkg/pkgs/gnu"
	"github.com/goplus/tiffpkg/recipe"
	"github.com/goplus/tiffpkg/x/cmake"
)

// NewBuildSystemFunc creates the build system for a configuration.
type NewBuildSystemFunc func(sourceDir, buildDir, installDir string, cfg *recipe.Configuration) buildsys.BuildSystem

// Options configures a Builder.
type Options struct {
	// WorkspaceDir holds staged sources, build trees, install dirs and the
	// build cache.
	WorkspaceDir string

	Logger *log.Logger

	// NewBuildSystem defaults to CMake.
	NewBuildSystem NewBuildSystemFunc

	// Force rebuilds even if the cache has an entry.
	Force bool
}

// Request describes one build.
type Request struct {
	Recipe    *recipe.Recipe
	SourceDir string
	Options   map[string]string
	Settings  recipe.Settings

	// DryRun configures and reports the build commands without staging
	// sources or running anything.
	DryRun bool
}

// Result describes a finished build.
type Result struct {
	Configuration *recipe.Configuration
	InstallDir    string
	ManifestPath  string
	PkgConfigs    []string

	// Commands holds the native build commands of a dry run, when the build
	// system can describe them.
	Commands [][]string

	Cached bool
}

// Builder runs builds inside a workspace.
type Builder struct {
	workspaceDir   string
	logger         *log.Logger
	newBuildSystem NewBuildSystemFunc
	force          bool
}

// NewCMake is the default NewBuildSystemFunc.
func NewCMake(sourceDir, buildDir, installDir string, cfg *recipe.Configuration) buildsys.BuildSystem {
	return cmake.ForConfiguration(sourceDir, buildDir, installDir, cfg)
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.WorkspaceDir == "" {
		return nil, errors.New("build: empty workspace dir")
	}
	ws, err := filepath.Abs(opts.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		workspaceDir:   ws,
		logger:         opts.Logger,
		newBuildSystem: opts.NewBuildSystem,
		force:          opts.Force,
	}
	if b.logger == nil {
		b.logger = log.New(io.Discard)
	}
	if b.newBuildSystem == nil {
		b.newBuildSystem = NewCMake
	}
	return b, nil
}

// Build configures req and, unless it is a dry run or cached, builds and
// installs it. Invalid options abort before anything touches the workspace.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	if req.Recipe == nil {
		return nil, errors.New("build: no recipe")
	}
	r := req.Recipe
	cfg, err := r.Configure(req.Options, req.Settings)
	if err != nil {
		return nil, err
	}
	combination := cfg.Combination()
	logger := b.logger.With("recipe", r.Ref())
	logger.Info("configured",
		"settings", cfg.Settings.String(),
		"components", strings.Join(recipe.ComponentIDs(cfg.Components), ","))
	for _, name := range cfg.Variables.Keys() {
		logger.Debug("toolchain variable", "name", name, "value", cfg.Variables[name])
	}
	if len(cfg.Components) == 0 {
		logger.Warn("no library enabled, the package exposes no component")
	}

	installDir := b.installDir(r, combination)
	res := &Result{
		Configuration: cfg,
		InstallDir:    installDir,
		ManifestPath:  filepath.Join(installDir, manifest.FileName),
	}

	cacheDir := b.cacheDir(r)
	cache, err := loadCache(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("load build cache: %w", err)
	}
	if entry, ok := cache.get(r.Version, combination); ok && !b.force && !req.DryRun {
		if _, err := os.Stat(entry.Manifest); err == nil {
			logger.Info("cached", "dir", installDir, "built", entry.BuildTime.Format(time.RFC3339))
			res.ManifestPath = entry.Manifest
			res.Cached = true
			return res, nil
		}
		logger.Debug("stale cache entry", "manifest", entry.Manifest)
		cache.remove(r.Version, combination)
	}

	key := dirKey(combination)
	stageDir := filepath.Join(cacheDir, "src", key)
	buildDir := filepath.Join(cacheDir, "build", key)
	bs := b.newBuildSystem(stageDir, buildDir, installDir, cfg)

	if req.DryRun {
		if d, ok := bs.(buildsys.Describer); ok {
			res.Commands = d.Describe()
			for _, cmd := range res.Commands {
				logger.Info("would run", "cmd", strings.Join(cmd, " "))
			}
		}
		return res, nil
	}

	if err := b.checkTools(ctx, r, bs); err != nil {
		return nil, err
	}
	if err := b.stage(r, req.SourceDir, stageDir); err != nil {
		return nil, fmt.Errorf("stage sources: %w", err)
	}
	steps := []struct {
		name string
		run  func(context.Context, ...string) error
	}{
		{"configure", bs.Configure},
		{"build", bs.Build},
		{"install", bs.Install},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Info(step.name)
		if err := step.run(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: %w", step.name, r.Ref(), err)
		}
	}

	m := manifest.New(cfg)
	if err := manifest.Write(res.ManifestPath, m); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if res.PkgConfigs, err = manifest.WritePkgConfigs(installDir, m); err != nil {
		return nil, err
	}

	cache.set(r.Version, combination, &buildEntry{
		Manifest:   res.ManifestPath,
		Components: recipe.ComponentIDs(cfg.Components),
		BuildTime:  time.Now(),
	})
	if err := saveCache(cacheDir, cache); err != nil {
		return nil, fmt.Errorf("save build cache: %w", err)
	}
	logger.Info("installed", "dir", installDir)
	return res, nil
}

// checkTools verifies the recipe's tool requirements that bs can report on.
func (b *Builder) checkTools(ctx context.Context, r *recipe.Recipe, bs buildsys.BuildSystem) error {
	tool, ok := bs.(buildsys.Tool)
	if !ok {
		return nil
	}
	reqs, err := r.ToolRequirements()
	if err != nil {
		return err
	}
	for _, req := range reqs {
		if req.Name != tool.Name() {
			continue
		}
		have, err := tool.Version(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", req.Name, err)
		}
		if gnu.Compare(have, req.Version) < 0 {
			return fmt.Errorf("%s %s is older than %s required by %s", req.Name, have, req.Version, r.Ref())
		}
		b.logger.Debug("tool requirement met", "tool", req.Name, "version", have, "required", req.Version)
	}
	return nil
}

// stage copies the exported part of srcDir into dst, replacing what was
// there before.
func (b *Builder) stage(r *recipe.Recipe, srcDir, dst string) error {
	if srcDir == "" {
		return errors.New("no source dir")
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	n := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if d.IsDir() || !r.ExportsSource(filepath.ToSlash(rel)) {
			return nil
		}
		n++
		return copyFile(path, filepath.Join(dst, rel))
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s exports no file of %s", srcDir, r.Ref())
	}
	b.logger.Debug("staged sources", "files", n, "dir", dst)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// cacheDir returns the recipe-level directory: workspaceDir/<name>.
func (b *Builder) cacheDir(r *recipe.Recipe) string {
	return filepath.Join(b.workspaceDir, r.Name)
}

// installDir returns workspaceDir/<name>@<version>-<combination>.
func (b *Builder) installDir(r *recipe.Recipe, combination string) string {
	return filepath.Join(b.workspaceDir, fmt.Sprintf("%s@%s-%s", r.Name, r.Version, dirKey(combination)))
}

// dirKeyReplacer is injective: '%' and '+' are escaped before '|' becomes '+'.
var dirKeyReplacer = strings.NewReplacer(
	"%", "%25",
	"+", "%2B",
	"|", "+",
	" ", "%20",
	"/", "%2F",
	`\`, "%5C",
	":", "%3A",
)

// dirKey makes a combination string usable as a path element.
func dirKey(combination string) string {
	if combination == "" {
		return "default"
	}
	return dirKeyReplacer.Replace(combination)
}
