package recipe

import (
	"maps"
	"slices"
)

// Flag is the value of a boolean toolchain variable.
type Flag string

const (
	On  Flag = "ON"
	Off Flag = "OFF"
)

// FlagOf returns On for true and Off for false.
func FlagOf(v bool) Flag {
	if v {
		return On
	}
	return Off
}

// Bool reports whether f is On.
func (f Flag) Bool() bool {
	return f == On
}

// Variables maps toolchain variable names to their flag.
type Variables map[string]Flag

// Keys returns the variable names, sorted.
func (v Variables) Keys() []string {
	return slices.Sorted(maps.Keys(v))
}

// Translate returns one toolchain variable per schema option, named after the
// option. Options not set in r take their default.
func Translate(s *Schema, r Resolved) Variables {
	vars := make(Variables, s.Len())
	for _, name := range s.Names() {
		v, ok := r.set[name]
		if !ok {
			v, _ = s.DefaultValue(name)
		}
		vars[name] = FlagOf(v)
	}
	return vars
}
