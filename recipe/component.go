package recipe

import (
	"fmt"
	"slices"
	"strings"
)

// Component is a separately installable group of library artifacts.
type Component struct {
	ID   string   `yaml:"id" json:"id"`
	Libs []string `yaml:"libs" json:"libs"`
}

// ComponentRule exposes a component when every option in Requires is on.
type ComponentRule struct {
	ID       string
	Libs     []string
	Requires []string
}

// TinyTIFFComponents is the component table of the TinyTIFF recipe.
// Static and shared are independent: both, either or neither may be built.
var TinyTIFFComponents = []ComponentRule{
	{ID: "static", Libs: []string{"TinyTIFF"}, Requires: []string{OptStaticLibs}},
	{ID: "shared", Libs: []string{"TinyTIFFShared"}, Requires: []string{OptSharedLibs}},
}

func (rule ComponentRule) enabled(on func(string) bool) bool {
	for _, name := range rule.Requires {
		if !on(name) {
			return false
		}
	}
	return true
}

// Expose returns, in rule order, the components whose governing options are
// all on in r. A component that is not enabled is left out entirely.
func Expose(rules []ComponentRule, r Resolved) []Component {
	var comps []Component
	for _, rule := range rules {
		if rule.enabled(r.Get) {
			comps = append(comps, Component{ID: rule.ID, Libs: slices.Clone(rule.Libs)})
		}
	}
	return comps
}

// CheckRules verifies that rule ids are unique, every rule names at least one
// governing option and every governing option exists in s.
func CheckRules(s *Schema, rules []ComponentRule) error {
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if rule.ID == "" {
			return fmt.Errorf("component rule with empty id")
		}
		if seen[rule.ID] {
			return fmt.Errorf("duplicate component %q", rule.ID)
		}
		seen[rule.ID] = true
		if len(rule.Requires) == 0 {
			return fmt.Errorf("component %q has no governing option", rule.ID)
		}
		for _, name := range rule.Requires {
			if _, ok := s.Lookup(name); !ok {
				return fmt.Errorf("component %q: %w", rule.ID, &UnknownOptionError{Name: name})
			}
		}
	}
	return nil
}

// Agree checks that comps is exactly what rules expose given the options vars
// reports as on. It fails when the two views of one option snapshot diverge.
func Agree(rules []ComponentRule, vars Variables, comps []Component) error {
	byID := make(map[string]Component, len(comps))
	for _, c := range comps {
		byID[c.ID] = c
	}
	var problems []string
	for _, rule := range rules {
		want := rule.enabled(func(name string) bool { return vars[name].Bool() })
		c, got := byID[rule.ID]
		delete(byID, rule.ID)
		switch {
		case want && !got:
			problems = append(problems, fmt.Sprintf("component %q missing though %s are ON", rule.ID, strings.Join(rule.Requires, ", ")))
		case !want && got:
			problems = append(problems, fmt.Sprintf("component %q exposed though %s are not all ON", rule.ID, strings.Join(rule.Requires, ", ")))
		case got && !slices.Equal(c.Libs, rule.Libs):
			problems = append(problems, fmt.Sprintf("component %q libs %v, want %v", rule.ID, c.Libs, rule.Libs))
		}
	}
	for id := range byID {
		problems = append(problems, fmt.Sprintf("component %q has no rule", id))
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return fmt.Errorf("variables and components disagree: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ComponentIDs returns the ids of comps in order.
func ComponentIDs(comps []Component) []string {
	ids := make([]string, len(comps))
	for i, c := range comps {
		ids[i] = c.ID
	}
	return ids
}
