package recipe

import (
	"fmt"
	"sort"
	"strings"
)

// Matrix describes a set of build configurations. Require holds setting
// values, Options holds option values encoded as "<flag>ON" or "<flag>OFF".
type Matrix struct {
	Require map[string][]string
	Options map[string][]string
}

func cartesian(kvs map[string][]string) []string {
	if len(kvs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, len(kvs[keys[0]]))
	copy(result, kvs[keys[0]])

	// each further key multiplies the previous layer, joined with "-"
	for i := 1; i < len(keys); i++ {
		values := kvs[keys[i]]
		next := make([]string, 0, len(result)*len(values))
		for _, prev := range result {
			for _, v := range values {
				next = append(next, prev+"-"+v)
			}
		}
		result = next
	}
	return result
}

// Combinations returns all cartesian product combinations of the matrix.
// Keys are sorted alphabetically and combined layer by layer with "-";
// require and option parts are joined with "|".
func (m *Matrix) Combinations() []string {
	requireCombos := cartesian(m.Require)
	optionsCombos := cartesian(m.Options)

	if len(requireCombos) == 0 {
		return optionsCombos
	}
	if len(optionsCombos) == 0 {
		return requireCombos
	}

	result := make([]string, 0, len(requireCombos)*len(optionsCombos))
	for _, req := range requireCombos {
		for _, opt := range optionsCombos {
			result = append(result, req+"|"+opt)
		}
	}
	return result
}

// CombinationCount returns the total number of combinations.
func (m *Matrix) CombinationCount() int {
	countPart := func(kvs map[string][]string) int {
		if len(kvs) == 0 {
			return 0
		}
		count := 1
		for _, v := range kvs {
			count *= len(v)
		}
		return count
	}

	requireCount := countPart(m.Require)
	optionsCount := countPart(m.Options)

	if requireCount == 0 {
		return optionsCount
	}
	if optionsCount == 0 {
		return requireCount
	}
	return requireCount * optionsCount
}

// -----------------------------------------------------------------------------

// OptionMatrix returns the matrix spanning every value of every option in s.
func OptionMatrix(s *Schema) Matrix {
	opts := make(map[string][]string, s.Len())
	for _, o := range s.opts {
		opts[o.Flag] = []string{o.Flag + string(On), o.Flag + string(Off)}
	}
	return Matrix{Options: opts}
}

// Expand decodes the option part of every combination into typed values.
// Matrix option keys must be flags of s.
func (m *Matrix) Expand(s *Schema) ([]map[string]bool, error) {
	keys := make([]string, 0, len(m.Options))
	for k := range m.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []map[string]bool
	for _, combo := range cartesian(m.Options) {
		// flags may contain "-", so consume the sorted keys as prefixes
		values := make(map[string]bool, len(keys))
		rest := combo
		for _, k := range keys {
			o, ok := s.LookupFlag(k)
			if !ok {
				return nil, &UnknownOptionError{Name: k}
			}
			var v bool
			switch {
			case strings.HasPrefix(rest, k+string(On)):
				v, rest = true, strings.TrimPrefix(rest, k+string(On))
			case strings.HasPrefix(rest, k+string(Off)):
				v, rest = false, strings.TrimPrefix(rest, k+string(Off))
			default:
				return nil, fmt.Errorf("matrix value %q: %w", combo, ErrInvalidOptionValue)
			}
			rest = strings.TrimPrefix(rest, "-")
			values[o.Name] = v
		}
		out = append(out, values)
	}
	return out, nil
}

// Combination returns the matrix string of a single configuration. Settings
// are encoded as name=value so that different settings never share a string;
// the option part has the same form Combinations produces.
func Combination(settings Settings, r Resolved) string {
	m := Matrix{
		Require: make(map[string][]string, settings.Len()),
		Options: make(map[string][]string),
	}
	for _, k := range settings.Keys() {
		name := matrixEscaper.Replace(k)
		m.Require[name] = []string{name + "=" + matrixEscaper.Replace(settings.Value(k))}
	}
	if s := r.Schema(); s != nil {
		for _, o := range s.opts {
			m.Options[o.Flag] = []string{o.Flag + string(FlagOf(r.Get(o.Name)))}
		}
	}
	combos := m.Combinations()
	if len(combos) == 0 {
		return ""
	}
	return combos[0]
}

// matrixEscaper percent-encodes the separators of a combination string.
var matrixEscaper = strings.NewReplacer("%", "%25", "-", "%2D", "|", "%7C", "=", "%3D")
