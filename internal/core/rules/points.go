package rules

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// PointsKind selects how a rule's point value is resolved.
type PointsKind string

const (
	PointsFixed   PointsKind = "fixed"
	PointsSelect  PointsKind = "select"
	PointsDynamic PointsKind = "dynamic"
)

// PointsSpec is the declarative point value of a scoring rule.
//
// Three declaration styles are accepted:
//
//	points: 5                       # fixed
//	points: dynamic                 # resolved from the entity (exercise/diet reward)
//	points:                         # selected by a context key
//	  select_by: post_kind
//	  choices: {sticky: 15, normal: 5}
//	  default: normal
//
// A dynamic spec may carry a fallback used when the entity has no reward:
//
//	points: {dynamic: true, fallback: 10}
type PointsSpec struct {
	Kind PointsKind

	// Fixed is the value of a fixed spec.
	Fixed int

	// SelectBy is the context key whose value picks one of Choices.
	SelectBy      string
	Choices       map[string]int
	DefaultChoice string

	// Fallback is used by dynamic specs when no entity reward can be resolved.
	Fallback int
}

// FixedPoints returns a fixed spec.
func FixedPoints(n int) PointsSpec {
	return PointsSpec{Kind: PointsFixed, Fixed: n}
}

// UnmarshalYAML accepts the scalar and mapping forms documented on PointsSpec.
func (p *PointsSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value == string(PointsDynamic) {
			*p = PointsSpec{Kind: PointsDynamic}
			return nil
		}
		n, err := strconv.Atoi(value.Value)
		if err != nil {
			return fmt.Errorf("points: expected integer or \"dynamic\", got %q", value.Value)
		}
		*p = FixedPoints(n)
		return nil
	}

	var raw struct {
		Dynamic  bool           `yaml:"dynamic"`
		Fallback int            `yaml:"fallback"`
		SelectBy string         `yaml:"select_by"`
		Choices  map[string]int `yaml:"choices"`
		Default  string         `yaml:"default"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("points: %w", err)
	}

	switch {
	case raw.Dynamic:
		*p = PointsSpec{Kind: PointsDynamic, Fallback: raw.Fallback}
	case raw.SelectBy != "":
		*p = PointsSpec{
			Kind:          PointsSelect,
			SelectBy:      raw.SelectBy,
			Choices:       raw.Choices,
			DefaultChoice: raw.Default,
		}
	default:
		return fmt.Errorf("points: mapping form needs dynamic or select_by")
	}
	return nil
}

func (p PointsSpec) validate() error {
	switch p.Kind {
	case PointsFixed:
		if p.Fixed < 0 {
			return fmt.Errorf("fixed points must be >= 0, got %d", p.Fixed)
		}
	case PointsDynamic:
		if p.Fallback < 0 {
			return fmt.Errorf("dynamic fallback must be >= 0, got %d", p.Fallback)
		}
	case PointsSelect:
		if len(p.Choices) == 0 {
			return fmt.Errorf("select points need at least one choice")
		}
		for name, v := range p.Choices {
			if v < 0 {
				return fmt.Errorf("choice %q must be >= 0, got %d", name, v)
			}
		}
		if p.DefaultChoice != "" {
			if _, ok := p.Choices[p.DefaultChoice]; !ok {
				return fmt.Errorf("default choice %q is not one of the choices", p.DefaultChoice)
			}
		}
	case "":
		// No points declared: the rule is label-only and earns zero.
	default:
		return fmt.Errorf("unknown points kind %q", p.Kind)
	}
	return nil
}

// Select resolves a select spec against a context value. Unknown or missing
// values fall back to the default choice, then to zero.
func (p PointsSpec) Select(choice string) int {
	if v, ok := p.Choices[choice]; ok {
		return v
	}
	if p.DefaultChoice != "" {
		return p.Choices[p.DefaultChoice]
	}
	return 0
}
