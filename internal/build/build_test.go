package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/tiffpkg/internal/manifest"
	"github.com/goplus/tiffpkg/pkgs/buildsys"
	"github.com/goplus/tiffpkg/recipe"
)

// fakeBuildSystem records lifecycle calls instead of running a native build.
type fakeBuildSystem struct {
	source, build, install string
	defines                map[string]string
	calls                  []string
	failAt                 string
}

func (f *fakeBuildSystem) Source(dir string)     { f.source = dir }
func (f *fakeBuildSystem) InstallDir(dir string) { f.install = dir }
func (f *fakeBuildSystem) Env(key, val string)   {}
func (f *fakeBuildSystem) Define(key, value string) {
	f.defines[key] = value
}
func (f *fakeBuildSystem) DefineBool(key string, value bool) {
	f.defines[key] = string(recipe.FlagOf(value))
}

func (f *fakeBuildSystem) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failAt == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (f *fakeBuildSystem) Configure(ctx context.Context, args ...string) error {
	if _, err := os.Stat(filepath.Join(f.source, "CMakeLists.txt")); err != nil {
		return err
	}
	return f.step("configure")
}

func (f *fakeBuildSystem) Build(ctx context.Context, args ...string) error {
	return f.step("build")
}

func (f *fakeBuildSystem) Install(ctx context.Context, args ...string) error {
	if err := f.step("install"); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(f.install, "lib"), 0o755)
}

func (f *fakeBuildSystem) OutputDir() string { return f.install }

func (f *fakeBuildSystem) Describe() [][]string {
	return [][]string{{"fake", "configure"}, {"fake", "build"}, {"fake", "install"}}
}

// fakeTool is a fakeBuildSystem that reports a tool version.
type fakeTool struct {
	*fakeBuildSystem
	version string
}

func (f fakeTool) Name() string { return "cmake" }

func (f fakeTool) Version(ctx context.Context) (string, error) {
	return f.version, nil
}

type fakeFactory struct {
	created []*fakeBuildSystem
	failAt  string

	// toolVersion, when set, makes the build systems report a cmake version.
	toolVersion string
}

func (ff *fakeFactory) New(sourceDir, buildDir, installDir string, cfg *recipe.Configuration) buildsys.BuildSystem {
	f := &fakeBuildSystem{
		source:  sourceDir,
		build:   buildDir,
		install: installDir,
		defines: make(map[string]string),
		failAt:  ff.failAt,
	}
	for name, v := range cfg.Variables {
		f.Define(name, string(v))
	}
	ff.created = append(ff.created, f)
	if ff.toolVersion != "" {
		return fakeTool{f, ff.toolVersion}
	}
	return f
}

func (ff *fakeFactory) calls() int {
	n := 0
	for _, f := range ff.created {
		n += len(f.calls)
	}
	return n
}

func writeSourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"CMakeLists.txt":        "project(TinyTIFF C CXX)\n",
		"src/tinytiffwriter.c":  "int x;\n",
		"src/tinytiffwriter.h":  "extern int x;\n",
		"cmake/config.cmake.in": "\n",
		"docs/ignored.md":       "not exported\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

var linuxSettings = recipe.NewSettings(map[string]string{
	recipe.SettingOS:        "Linux",
	recipe.SettingArch:      "x86_64",
	recipe.SettingBuildType: "Release",
})

func newTestBuilder(t *testing.T, ff *fakeFactory, force bool) (*Builder, string) {
	t.Helper()
	ws := t.TempDir()
	b, err := NewBuilder(Options{WorkspaceDir: ws, NewBuildSystem: ff.New, Force: force})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b, ws
}

func TestNewBuilder_EmptyWorkspace(t *testing.T) {
	if _, err := NewBuilder(Options{}); err == nil {
		t.Fatal("NewBuilder accepted an empty workspace")
	}
}

func TestBuild_Defaults(t *testing.T) {
	ff := &fakeFactory{}
	b, ws := newTestBuilder(t, ff, false)
	src := writeSourceTree(t)

	res, err := b.Build(context.Background(), Request{
		Recipe:    recipe.TinyTIFF(),
		SourceDir: src,
		Settings:  linuxSettings,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Cached {
		t.Error("first build reported as cached")
	}
	if !strings.HasPrefix(res.InstallDir, filepath.Join(ws, "tinytiff@1.0-")) {
		t.Errorf("InstallDir = %q, want under %s", res.InstallDir, ws)
	}

	if len(ff.created) != 1 {
		t.Fatalf("created %d build systems, want 1", len(ff.created))
	}
	fake := ff.created[0]
	if diff := cmp.Diff([]string{"configure", "build", "install"}, fake.calls); diff != "" {
		t.Errorf("lifecycle mismatch (-want +got):\n%s", diff)
	}
	if got := fake.defines[recipe.OptStaticLibs]; got != "ON" {
		t.Errorf("%s = %q, want ON", recipe.OptStaticLibs, got)
	}
	if got := fake.defines[recipe.OptSharedLibs]; got != "OFF" {
		t.Errorf("%s = %q, want OFF", recipe.OptSharedLibs, got)
	}

	if _, err := os.Stat(filepath.Join(fake.source, "src", "tinytiffwriter.h")); err != nil {
		t.Errorf("exported source not staged: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fake.source, "docs", "ignored.md")); !os.IsNotExist(err) {
		t.Errorf("unexported source staged: %v", err)
	}

	m, err := manifest.Read(res.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if diff := cmp.Diff([]string{"static"}, recipe.ComponentIDs(m.Components)); diff != "" {
		t.Errorf("manifest components mismatch (-want +got):\n%s", diff)
	}
	want := []string{filepath.Join(res.InstallDir, "lib", "pkgconfig", "tinytiff-static.pc")}
	if diff := cmp.Diff(want, res.PkgConfigs); diff != "" {
		t.Errorf("pkg-config files mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_CacheHit(t *testing.T) {
	ff := &fakeFactory{}
	b, _ := newTestBuilder(t, ff, false)
	req := Request{Recipe: recipe.TinyTIFF(), SourceDir: writeSourceTree(t), Settings: linuxSettings}

	first, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	calls := ff.calls()

	second, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if !second.Cached {
		t.Error("second build not served from cache")
	}
	if ff.calls() != calls {
		t.Errorf("cached build ran %d more steps", ff.calls()-calls)
	}
	if second.ManifestPath != first.ManifestPath {
		t.Errorf("ManifestPath = %q, want %q", second.ManifestPath, first.ManifestPath)
	}
}

func TestBuild_CacheDifferentOptions(t *testing.T) {
	ff := &fakeFactory{}
	b, _ := newTestBuilder(t, ff, false)
	src := writeSourceTree(t)

	static, err := b.Build(context.Background(), Request{Recipe: recipe.TinyTIFF(), SourceDir: src, Settings: linuxSettings})
	if err != nil {
		t.Fatal(err)
	}
	shared, err := b.Build(context.Background(), Request{
		Recipe:    recipe.TinyTIFF(),
		SourceDir: src,
		Settings:  linuxSettings,
		Options:   map[string]string{recipe.OptSharedLibs: "True"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if shared.Cached {
		t.Error("build with other options served from cache")
	}
	if shared.InstallDir == static.InstallDir {
		t.Errorf("both builds installed into %q", shared.InstallDir)
	}
	if diff := cmp.Diff([]string{"static", "shared"}, recipe.ComponentIDs(shared.Configuration.Components)); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Force(t *testing.T) {
	ff := &fakeFactory{}
	b, ws := newTestBuilder(t, ff, false)
	req := Request{Recipe: recipe.TinyTIFF(), SourceDir: writeSourceTree(t), Settings: linuxSettings}
	if _, err := b.Build(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	forced, err := NewBuilder(Options{WorkspaceDir: ws, NewBuildSystem: ff.New, Force: true})
	if err != nil {
		t.Fatal(err)
	}
	res, err := forced.Build(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached || len(ff.created) != 2 {
		t.Errorf("forced build: cached=%v, build systems=%d", res.Cached, len(ff.created))
	}
}

func TestBuild_StaleCacheEntry(t *testing.T) {
	ff := &fakeFactory{}
	b, _ := newTestBuilder(t, ff, false)
	req := Request{Recipe: recipe.TinyTIFF(), SourceDir: writeSourceTree(t), Settings: linuxSettings}
	first, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(first.InstallDir); err != nil {
		t.Fatal(err)
	}

	second, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if second.Cached {
		t.Error("build with a removed install dir served from cache")
	}
	if _, err := os.Stat(second.ManifestPath); err != nil {
		t.Errorf("manifest not rewritten: %v", err)
	}
}

func TestBuild_DryRun(t *testing.T) {
	ff := &fakeFactory{}
	b, ws := newTestBuilder(t, ff, false)

	res, err := b.Build(context.Background(), Request{
		Recipe:    recipe.TinyTIFF(),
		SourceDir: writeSourceTree(t),
		Settings:  linuxSettings,
		DryRun:    true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ff.calls() != 0 {
		t.Errorf("dry run ran %d steps", ff.calls())
	}
	if len(res.Commands) != 3 {
		t.Errorf("Commands = %v, want 3 commands", res.Commands)
	}
	entries, err := os.ReadDir(ws)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d workspace entries", len(entries))
	}
}

func TestBuild_InvalidOption(t *testing.T) {
	ff := &fakeFactory{}
	b, ws := newTestBuilder(t, ff, false)

	tests := []map[string]string{
		{recipe.OptSharedLibs: "maybe"},
		{"TinyTIFF_FOO": "True"},
	}
	for _, opts := range tests {
		_, err := b.Build(context.Background(), Request{
			Recipe:    recipe.TinyTIFF(),
			SourceDir: writeSourceTree(t),
			Settings:  linuxSettings,
			Options:   opts,
		})
		if err == nil {
			t.Errorf("Build(%v) succeeded", opts)
		}
	}
	if len(ff.created) != 0 {
		t.Errorf("invalid options created %d build systems", len(ff.created))
	}
	entries, _ := os.ReadDir(ws)
	if len(entries) != 0 {
		t.Errorf("invalid options wrote %d workspace entries", len(entries))
	}
}

func TestBuild_NoComponents(t *testing.T) {
	ff := &fakeFactory{}
	b, _ := newTestBuilder(t, ff, false)

	res, err := b.Build(context.Background(), Request{
		Recipe:    recipe.TinyTIFF(),
		SourceDir: writeSourceTree(t),
		Settings:  linuxSettings,
		Options:   map[string]string{recipe.OptStaticLibs: "False"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.PkgConfigs) != 0 {
		t.Errorf("PkgConfigs = %v, want none", res.PkgConfigs)
	}
	m, err := manifest.Read(res.ManifestPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Components) != 0 {
		t.Errorf("manifest components = %v, want none", m.Components)
	}
}

func TestBuild_StepFailure(t *testing.T) {
	ff := &fakeFactory{failAt: "build"}
	b, ws := newTestBuilder(t, ff, false)

	_, err := b.Build(context.Background(), Request{Recipe: recipe.TinyTIFF(), SourceDir: writeSourceTree(t), Settings: linuxSettings})
	if err == nil || !strings.Contains(err.Error(), "build tinytiff/1.0") {
		t.Fatalf("Build error = %v, want build step failure", err)
	}
	if diff := cmp.Diff([]string{"configure", "build"}, ff.created[0].calls); diff != "" {
		t.Errorf("lifecycle mismatch (-want +got):\n%s", diff)
	}
	cache, err := loadCache(filepath.Join(ws, "tinytiff"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cache.Cache) != 0 {
		t.Errorf("failed build cached: %v", cache.Cache)
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ff := &fakeFactory{}
	b, _ := newTestBuilder(t, ff, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, Request{Recipe: recipe.TinyTIFF(), SourceDir: writeSourceTree(t), Settings: linuxSettings})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build error = %v, want context.Canceled", err)
	}
	if ff.calls() != 0 {
		t.Errorf("cancelled build ran %d steps", ff.calls())
	}
}

func TestBuild_NoExportedSources(t *testing.T) {
	ff := &fakeFactory{}
	b, _ := newTestBuilder(t, ff, false)

	_, err := b.Build(context.Background(), Request{Recipe: recipe.TinyTIFF(), SourceDir: t.TempDir(), Settings: linuxSettings})
	if err == nil {
		t.Fatal("Build of an empty source dir succeeded")
	}
}

func TestBuild_WindowsInstallDir(t *testing.T) {
	ff := &fakeFactory{}
	b, ws := newTestBuilder(t, ff, false)

	res, err := b.Build(context.Background(), Request{
		Recipe:    recipe.TinyTIFF(),
		SourceDir: writeSourceTree(t),
		Settings: recipe.NewSettings(map[string]string{
			recipe.SettingOS:       "Windows",
			recipe.SettingCompiler: "gcc",
		}),
		DryRun: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Configuration.Settings.Value(recipe.SettingCompiler); got != "Visual Studio" {
		t.Errorf("compiler = %q, want Visual Studio", got)
	}
	if filepath.Dir(res.InstallDir) != ws {
		t.Errorf("InstallDir %q escapes the workspace", res.InstallDir)
	}
	if strings.ContainsAny(filepath.Base(res.InstallDir), "| ") {
		t.Errorf("InstallDir %q not sanitized", res.InstallDir)
	}
}

func TestBuild_ToolRequirement(t *testing.T) {
	tests := []struct {
		version string
		ok      bool
	}{
		{"3.16.3", false},
		{"3.22.6", true},
		{"3.28.3", true},
		{"4.0.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			ff := &fakeFactory{toolVersion: tt.version}
			b, _ := newTestBuilder(t, ff, false)
			_, err := b.Build(context.Background(), Request{Recipe: recipe.TinyTIFF(), SourceDir: writeSourceTree(t), Settings: linuxSettings})
			if (err == nil) != tt.ok {
				t.Fatalf("Build with cmake %s: err = %v, want ok=%v", tt.version, err, tt.ok)
			}
			if !tt.ok && ff.calls() != 0 {
				t.Errorf("build ran %d steps with a too old cmake", ff.calls())
			}
		})
	}
}

func TestBuild_CollidingSettings(t *testing.T) {
	ff := &fakeFactory{}
	b, _ := newTestBuilder(t, ff, false)
	src := writeSourceTree(t)

	split := linuxSettings.Set(recipe.SettingCompiler, "gcc").Set(recipe.SettingCompilerVersion, "13")
	joined := linuxSettings.Set(recipe.SettingCompiler, "gcc-13")

	first, err := b.Build(context.Background(), Request{Recipe: recipe.TinyTIFF(), SourceDir: src, Settings: split})
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(context.Background(), Request{Recipe: recipe.TinyTIFF(), SourceDir: src, Settings: joined})
	if err != nil {
		t.Fatal(err)
	}
	if second.Cached {
		t.Error("build with other settings served from cache")
	}
	if second.InstallDir == first.InstallDir {
		t.Errorf("both builds installed into %q", second.InstallDir)
	}
	m, err := manifest.Read(second.ManifestPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Settings[recipe.SettingCompiler]; got != "gcc-13" {
		t.Errorf("manifest compiler = %q, want gcc-13", got)
	}
}

func TestDirKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "default"},
		{"arch=x86_64-os=Linux", "arch=x86_64-os=Linux"},
		{"os=Windows-compiler=Visual Studio|sharedON", "os=Windows-compiler=Visual%20Studio+sharedON"},
		{"compiler=g++|sharedON", "compiler=g%2B%2B+sharedON"},
		{"compiler=a/b:c", "compiler=a%2Fb%3Ac"},
	}
	for _, tt := range tests {
		if got := dirKey(tt.in); got != tt.want {
			t.Errorf("dirKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
