package recipe

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// -----------------------------------------------------------------------------

var (
	// ErrUnknownOption is matched by errors reporting an option name the
	// schema does not declare.
	ErrUnknownOption = errors.New("unknown option")

	// ErrInvalidOptionValue is matched by errors reporting a value that is
	// not one of the two boolean literals.
	ErrInvalidOptionValue = errors.New("invalid option value")
)

// UnknownOptionError reports an option name that is not part of the schema.
type UnknownOptionError struct {
	Name string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown option %q", e.Name)
}

func (e *UnknownOptionError) Is(target error) bool {
	return target == ErrUnknownOption
}

// InvalidOptionValueError reports a raw value that is neither True nor False.
type InvalidOptionValueError struct {
	Name  string
	Value string
}

func (e *InvalidOptionValueError) Error() string {
	return fmt.Sprintf("invalid value %q for option %s: want True or False", e.Value, e.Name)
}

func (e *InvalidOptionValueError) Is(target error) bool {
	return target == ErrInvalidOptionValue
}

// -----------------------------------------------------------------------------

// Option is a named boolean build switch.
type Option struct {
	Name    string
	Default bool

	// Flag is the short name used on the command line and in matrix
	// combination strings.
	Flag string
	Help string
}

// Schema is the ordered, immutable set of options a recipe recognizes.
type Schema struct {
	opts  []Option
	index map[string]int
}

// NewSchema creates a schema from opts, keeping their order.
// It panics if two options share a name or a flag.
func NewSchema(opts ...Option) *Schema {
	s := &Schema{
		opts:  slices.Clone(opts),
		index: make(map[string]int, len(opts)),
	}
	flags := make(map[string]bool, len(opts))
	for i, o := range s.opts {
		if o.Name == "" {
			panic("recipe: option with empty name")
		}
		if _, dup := s.index[o.Name]; dup {
			panic("recipe: duplicate option " + o.Name)
		}
		if o.Flag == "" {
			s.opts[i].Flag = o.Name
			o.Flag = o.Name
		}
		if flags[o.Flag] {
			panic("recipe: duplicate option flag " + o.Flag)
		}
		flags[o.Flag] = true
		s.index[o.Name] = i
	}
	return s
}

// Names returns the option names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.opts))
	for i, o := range s.opts {
		names[i] = o.Name
	}
	return names
}

// Options returns a copy of the declared options.
func (s *Schema) Options() []Option {
	return slices.Clone(s.opts)
}

// Len returns the number of options.
func (s *Schema) Len() int {
	return len(s.opts)
}

// Lookup returns the option called name.
func (s *Schema) Lookup(name string) (Option, bool) {
	i, ok := s.index[name]
	if !ok {
		return Option{}, false
	}
	return s.opts[i], true
}

// LookupFlag returns the option whose short flag is flag.
func (s *Schema) LookupFlag(flag string) (Option, bool) {
	for _, o := range s.opts {
		if o.Flag == flag {
			return o, true
		}
	}
	return Option{}, false
}

// DefaultValue returns the documented default of the named option.
func (s *Schema) DefaultValue(name string) (bool, error) {
	o, ok := s.Lookup(name)
	if !ok {
		return false, &UnknownOptionError{Name: name}
	}
	return o.Default, nil
}

// ParseBool accepts exactly the two boolean literals True and False.
func ParseBool(v string) (bool, bool) {
	switch v {
	case "True":
		return true, true
	case "False":
		return false, true
	}
	return false, false
}

// Resolve validates raw option values and returns the resolved snapshot.
// Names are checked in sorted order so the first reported error is stable.
func (s *Schema) Resolve(raw map[string]string) (Resolved, error) {
	names := slices.Sorted(maps.Keys(raw))
	set := make(map[string]bool, len(raw))
	for _, name := range names {
		if _, ok := s.index[name]; !ok {
			return Resolved{}, &UnknownOptionError{Name: name}
		}
		v, ok := ParseBool(raw[name])
		if !ok {
			return Resolved{}, &InvalidOptionValueError{Name: name, Value: raw[name]}
		}
		set[name] = v
	}
	return Resolved{schema: s, set: set}, nil
}

// ResolveBools is like Resolve for values that are already typed.
func (s *Schema) ResolveBools(values map[string]bool) (Resolved, error) {
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if _, ok := s.index[name]; !ok {
			return Resolved{}, &UnknownOptionError{Name: name}
		}
	}
	return Resolved{schema: s, set: maps.Clone(values)}, nil
}

// Defaults returns the snapshot in which no option is set explicitly.
func (s *Schema) Defaults() Resolved {
	return Resolved{schema: s}
}

// -----------------------------------------------------------------------------

// Resolved is the immutable option snapshot of one configuration run.
// Options not set explicitly take their schema default.
type Resolved struct {
	schema *Schema
	set    map[string]bool
}

// Schema returns the schema r was resolved against.
func (r Resolved) Schema() *Schema {
	return r.schema
}

// Get returns the value of the named option. Unknown names report false.
func (r Resolved) Get(name string) bool {
	if v, ok := r.set[name]; ok {
		return v
	}
	if r.schema == nil {
		return false
	}
	o, _ := r.schema.Lookup(name)
	return o.Default
}

// IsSet reports whether name was given explicitly.
func (r Resolved) IsSet(name string) bool {
	_, ok := r.set[name]
	return ok
}

// Map returns every schema option with its resolved value.
func (r Resolved) Map() map[string]bool {
	if r.schema == nil {
		return map[string]bool{}
	}
	m := make(map[string]bool, r.schema.Len())
	for _, name := range r.schema.Names() {
		m[name] = r.Get(name)
	}
	return m
}

// -----------------------------------------------------------------------------

// Option names of the TinyTIFF library.
const (
	OptSharedLibs       = "TinyTIFF_BUILD_SHARED_LIBS"
	OptStaticLibs       = "TinyTIFF_BUILD_STATIC_LIBS"
	OptWinAPIFileIO     = "TinyTIFF_USE_WINAPI_FOR_FILEIO"
	OptDebugOutput      = "TinyTIFF_BUILD_WITH_ADDITIONAL_DEBUG_OUTPUT"
	OptDecorateLibnames = "TinyTIFF_BUILD_DECORATE_LIBNAMES_WITH_BUILDTYPE"
	OptBuildTests       = "TinyTIFF_BUILD_TESTS"
)

// TinyTIFFOptions is the option schema of the TinyTIFF recipe.
var TinyTIFFOptions = NewSchema(
	Option{Name: OptSharedLibs, Default: false, Flag: "shared", Help: "build the shared library"},
	Option{Name: OptStaticLibs, Default: true, Flag: "static", Help: "build the static library"},
	Option{Name: OptWinAPIFileIO, Default: false, Flag: "winapi-fileio", Help: "use the Win32 API for file I/O"},
	Option{Name: OptDebugOutput, Default: false, Flag: "debug-output", Help: "print additional debug output"},
	Option{Name: OptDecorateLibnames, Default: false, Flag: "decorate-libnames", Help: "decorate library names with the build type"},
	Option{Name: OptBuildTests, Default: false, Flag: "tests", Help: "build the test programs"},
)
