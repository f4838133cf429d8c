package recipe

import (
	"maps"
	"runtime"
	"slices"
	"strings"
)

// Setting names.
const (
	SettingOS              = "os"
	SettingArch            = "arch"
	SettingBuildType       = "build_type"
	SettingCompiler        = "compiler"
	SettingCompilerVersion = "compiler.version"
	SettingCompilerCppStd  = "compiler.cppstd"
	SettingCompilerLibCxx  = "compiler.libcxx"
)

// Settings holds ambient platform and compiler facts that options do not
// control. A Settings value is never modified in place: Set and Remove
// return a new value.
type Settings struct {
	m map[string]string
}

// NewSettings returns settings holding a copy of kv.
func NewSettings(kv map[string]string) Settings {
	return Settings{m: maps.Clone(kv)}
}

// Get returns the value of name and whether it is present.
func (s Settings) Get(name string) (string, bool) {
	v, ok := s.m[name]
	return v, ok
}

// Value returns the value of name, or "" if absent.
func (s Settings) Value(name string) string {
	return s.m[name]
}

// Has reports whether name is present.
func (s Settings) Has(name string) bool {
	_, ok := s.m[name]
	return ok
}

// Set returns a copy of s with name set to value.
func (s Settings) Set(name, value string) Settings {
	m := maps.Clone(s.m)
	if m == nil {
		m = make(map[string]string)
	}
	m[name] = value
	return Settings{m: m}
}

// Remove returns a copy of s without name. Removing an absent setting is a
// no-op.
func (s Settings) Remove(name string) Settings {
	if !s.Has(name) {
		return s
	}
	m := maps.Clone(s.m)
	delete(m, name)
	return Settings{m: m}
}

// Keys returns the present setting names, sorted.
func (s Settings) Keys() []string {
	return slices.Sorted(maps.Keys(s.m))
}

// Len returns the number of present settings.
func (s Settings) Len() int {
	return len(s.m)
}

// Map returns a copy of the settings as a plain map.
func (s Settings) Map() map[string]string {
	m := maps.Clone(s.m)
	if m == nil {
		m = map[string]string{}
	}
	return m
}

// Equal reports whether s and other hold the same settings.
func (s Settings) Equal(other Settings) bool {
	return maps.Equal(s.m, other.m)
}

func (s Settings) String() string {
	var b strings.Builder
	for i, k := range s.Keys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.m[k])
	}
	return b.String()
}

// -----------------------------------------------------------------------------

// PlatformOverride forces a setting to a fixed value on one operating system.
type PlatformOverride struct {
	OS      string
	Setting string
	Value   string
}

// PlatformOverrides are applied by Adjust.
var PlatformOverrides = []PlatformOverride{
	{OS: "Windows", Setting: SettingCompiler, Value: "Visual Studio"},
}

// strippedSettings are removed on every platform. The library links as plain
// C, so C++ standard and runtime library pins must not reach the native build.
var strippedSettings = []string{
	SettingCompilerCppStd,
	SettingCompilerLibCxx,
}

// Adjust applies the platform overrides matching the os setting and strips
// the C++ language settings. An unrecognized or missing os is not an error.
// Adjust does not modify s and Adjust(Adjust(s)) equals Adjust(s).
func Adjust(s Settings) Settings {
	os := s.Value(SettingOS)
	for _, o := range PlatformOverrides {
		if o.OS == os {
			s = s.Set(o.Setting, o.Value)
		}
	}
	for _, name := range strippedSettings {
		s = s.Remove(name)
	}
	return s
}

// -----------------------------------------------------------------------------

// OSFromGOOS maps a GOOS value to the os setting identifier.
// Unknown values are returned unchanged.
func OSFromGOOS(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "linux":
		return "Linux"
	case "darwin":
		return "Macos"
	case "freebsd":
		return "FreeBSD"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	}
	return goos
}

// ArchFromGOARCH maps a GOARCH value to the arch setting identifier.
// Unknown values are returned unchanged.
func ArchFromGOARCH(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "x86"
	case "arm64":
		return "armv8"
	case "arm":
		return "armv7"
	}
	return goarch
}

// HostSettings returns the settings of the running host with a Release
// build type.
func HostSettings() Settings {
	return NewSettings(map[string]string{
		SettingOS:        OSFromGOOS(runtime.GOOS),
		SettingArch:      ArchFromGOARCH(runtime.GOARCH),
		SettingBuildType: "Release",
	})
}
