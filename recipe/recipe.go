// Package recipe describes how a native library is configured and packaged:
// its boolean build options, the platform adjustments applied to ambient
// settings, the toolchain variables handed to the native build system and
// the components the package exposes.
//
// Variables and components are derived independently from one resolved
// option snapshot; Configure checks that they agree.
package recipe

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

// Recipe is the build and package description of a library.
type Recipe struct {
	Name        string
	Version     string
	License     string
	Author      string
	URL         string
	Description string
	Topics      []string

	// ExportsSources lists the source tree patterns staged for a build.
	// A pattern ending in "/*" matches everything below its directory.
	ExportsSources []string

	// ToolRequires lists build tools as "name/version".
	ToolRequires []string

	Schema     *Schema
	Components []ComponentRule
}

// NewRecipe validates r and returns it.
func NewRecipe(r Recipe) (*Recipe, error) {
	if r.Name == "" {
		return nil, errors.New("recipe: empty name")
	}
	if !semver.IsValid(r.SemVer()) {
		return nil, fmt.Errorf("recipe %s: invalid version %q", r.Name, r.Version)
	}
	if r.Schema == nil {
		return nil, fmt.Errorf("recipe %s: no option schema", r.Name)
	}
	if err := CheckRules(r.Schema, r.Components); err != nil {
		return nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}
	if _, err := r.ToolRequirements(); err != nil {
		return nil, fmt.Errorf("recipe %s: %w", r.Name, err)
	}
	for _, p := range r.ExportsSources {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("recipe %s: exports source %q: %w", r.Name, p, err)
		}
	}
	return &r, nil
}

// SemVer returns the version in canonical semantic version form, e.g.
// "1.0" becomes "v1.0.0".
func (r *Recipe) SemVer() string {
	v := r.Version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// Ref returns "name/version".
func (r *Recipe) Ref() string {
	return r.Name + "/" + r.Version
}

// ExportsSource reports whether the slash-separated relative path p is part
// of the exported source tree.
func (r *Recipe) ExportsSource(p string) bool {
	for _, pattern := range r.ExportsSources {
		if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(p, dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// ToolRequirement is a build tool needed at a minimum version.
type ToolRequirement struct {
	Name    string
	Version string
}

// ToolRequirements parses ToolRequires.
func (r *Recipe) ToolRequirements() ([]ToolRequirement, error) {
	reqs := make([]ToolRequirement, 0, len(r.ToolRequires))
	for _, s := range r.ToolRequires {
		name, version, ok := strings.Cut(s, "/")
		if !ok || name == "" || version == "" {
			return nil, fmt.Errorf("invalid tool requirement %q: want name/version", s)
		}
		reqs = append(reqs, ToolRequirement{Name: name, Version: version})
	}
	return reqs, nil
}

// Translate returns the toolchain variables of r.
func (r *Recipe) Translate(opts Resolved) Variables {
	return Translate(r.Schema, opts)
}

// Expose returns the components enabled by r.
func (r *Recipe) Expose(opts Resolved) []Component {
	return Expose(r.Components, opts)
}

// -----------------------------------------------------------------------------

// Configuration is the outcome of one configuration run.
type Configuration struct {
	Recipe     *Recipe
	Options    Resolved
	Settings   Settings
	Variables  Variables
	Components []Component
}

// Configure validates raw, adjusts settings for the target platform and
// derives the toolchain variables and exposed components from the same
// resolved options. No Configuration is returned on error.
func (r *Recipe) Configure(raw map[string]string, settings Settings) (*Configuration, error) {
	opts, err := r.Schema.Resolve(raw)
	if err != nil {
		return nil, fmt.Errorf("configure %s: %w", r.Ref(), err)
	}
	return r.configure(opts, settings)
}

// ConfigureResolved is like Configure for an already resolved snapshot.
func (r *Recipe) ConfigureResolved(opts Resolved, settings Settings) (*Configuration, error) {
	if opts.Schema() != r.Schema {
		return nil, fmt.Errorf("configure %s: options resolved against another schema", r.Ref())
	}
	return r.configure(opts, settings)
}

func (r *Recipe) configure(opts Resolved, settings Settings) (*Configuration, error) {
	cfg := &Configuration{
		Recipe:     r,
		Options:    opts,
		Settings:   Adjust(settings),
		Variables:  r.Translate(opts),
		Components: r.Expose(opts),
	}
	if err := Agree(r.Components, cfg.Variables, cfg.Components); err != nil {
		return nil, fmt.Errorf("configure %s: %w", r.Ref(), err)
	}
	return cfg, nil
}

// Combination returns the matrix string identifying c.
func (c *Configuration) Combination() string {
	return Combination(c.Settings, c.Options)
}

// Component returns the exposed component with the given id.
func (c *Configuration) Component(id string) (Component, bool) {
	i := slices.IndexFunc(c.Components, func(comp Component) bool { return comp.ID == id })
	if i < 0 {
		return Component{}, false
	}
	return c.Components[i], true
}

// -----------------------------------------------------------------------------

// TinyTIFF returns the recipe of the TinyTIFF library.
func TinyTIFF() *Recipe {
	r, err := NewRecipe(Recipe{
		Name:        "tinytiff",
		Version:     "1.0",
		License:     "LGPL-3.0",
		Author:      "Jan W. Krieger jan@jkrieger.de",
		URL:         "https://github.com/jkriege2/TinyTIFF",
		Description: "A lightweight C/C++ library to read and write basic TIFF files, faster than libTIFF when writing large multi-frame TIFFs.",
		Topics:      []string{"lib", "file-format", "tiff-files", "tiff-encoder", "tiff-ios", "Resources"},
		ExportsSources: []string{
			"CMakeLists.txt",
			"src/*",
			"cmake/*",
			"tests/*",
			"readme.txt.in",
			"README.md",
		},
		ToolRequires: []string{"cmake/3.22.6"},
		Schema:       TinyTIFFOptions,
		Components:   TinyTIFFComponents,
	})
	if err != nil {
		panic(err)
	}
	return r
}
