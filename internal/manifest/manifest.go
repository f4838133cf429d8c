// Package manifest writes the package description of a built configuration:
// its metadata, settings, options and exposed components.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"gopkg.in/yaml.v3"

	"github.com/goplus/tiffpkg/recipe"
)

// FileName is the manifest file name inside an install directory.
const FileName = "tiffpkg.yaml"

// Manifest describes an installed package.
type Manifest struct {
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	License     string            `yaml:"license,omitempty"`
	Description string            `yaml:"description,omitempty"`
	URL         string            `yaml:"url,omitempty"`
	Topics      []string          `yaml:"topics,omitempty"`
	Settings    map[string]string `yaml:"settings"`
	Options     map[string]bool   `yaml:"options"`

	// Components lists what the package exposes. It may be empty when no
	// library was enabled.
	Components []recipe.Component `yaml:"components"`
}

// New returns the manifest of cfg.
func New(cfg *recipe.Configuration) *Manifest {
	r := cfg.Recipe
	comps := cfg.Components
	if comps == nil {
		comps = []recipe.Component{}
	}
	return &Manifest{
		Name:        r.Name,
		Version:     r.Version,
		License:     r.License,
		Description: r.Description,
		URL:         r.URL,
		Topics:      r.Topics,
		Settings:    cfg.Settings.Map(),
		Options:     cfg.Options.Map(),
		Components:  comps,
	}
}

// Marshal encodes m as YAML.
func Marshal(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write atomically writes m to path.
func Write(path string, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

// Read loads a manifest from path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// -----------------------------------------------------------------------------

// PkgConfigName returns the pkg-config package name of a component.
func PkgConfigName(m *Manifest, c recipe.Component) string {
	return m.Name + "-" + c.ID
}

// PkgConfig returns the .pc file of component c installed under prefix.
func PkgConfig(m *Manifest, c recipe.Component, prefix string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "prefix=%s\n", filepath.ToSlash(prefix))
	b.WriteString("libdir=${prefix}/lib\n")
	b.WriteString("includedir=${prefix}/include\n\n")
	fmt.Fprintf(&b, "Name: %s\n", PkgConfigName(m, c))
	if m.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", m.Description)
	} else {
		fmt.Fprintf(&b, "Description: %s %s library\n", m.Name, c.ID)
	}
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	if m.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", m.URL)
	}
	b.WriteString("Libs: -L${libdir}")
	for _, lib := range c.Libs {
		b.WriteString(" -l" + lib)
	}
	b.WriteString("\nCflags: -I${includedir}\n")
	return []byte(b.String())
}

// WritePkgConfigs writes one .pc file per component of m into
// <prefix>/lib/pkgconfig and returns their paths. Components that are not
// exposed get no file.
func WritePkgConfigs(prefix string, m *Manifest) ([]string, error) {
	if len(m.Components) == 0 {
		return nil, nil
	}
	dir := filepath.Join(prefix, "lib", "pkgconfig")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(m.Components))
	for _, c := range m.Components {
		path := filepath.Join(dir, PkgConfigName(m, c)+".pc")
		if err := renameio.WriteFile(path, PkgConfig(m, c, prefix), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
