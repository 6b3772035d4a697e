// Package policy maps a risk score and an action to a decision.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"oversight.dev/internal/action"
	"oversight.dev/internal/risk"
)

// Override is a known-catastrophic pattern that forces a block regardless of score.
type Override struct {
	Name string
	re   *regexp.Regexp
}

// NewOverride compiles an override pattern. Patterns match lowercase text.
func NewOverride(name, pattern string) (Override, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "custom"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Override{}, fmt.Errorf("override %q: %w", name, err)
	}
	return Override{Name: name, re: re}, nil
}

func (o Override) Pattern() string {
	if o.re == nil {
		return ""
	}
	return o.re.String()
}

// OverridesFromSpecs compiles overrides read from a rule file.
func OverridesFromSpecs(specs []risk.OverrideSpec) ([]Override, error) {
	out := make([]Override, 0, len(specs))
	for _, spec := range specs {
		o, err := NewOverride(spec.Name, spec.Pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Word edges treat '_' as a separator so action names like format_disk match.
const (
	wordStart = `(?:^|[^a-z0-9])`
	wordEnd   = `(?:[^a-z0-9]|$)`
	wordGap   = `[^a-z0-9](?:.*[^a-z0-9])?`
)

// DefaultOverrides is intentionally small and exact to avoid false positives.
// The verb and the target must both be whole words, so "information about
// the drive" does not read as a format.
func DefaultOverrides() []Override {
	return []Override{
		{Name: "format_disk", re: regexp.MustCompile(wordStart + `(?:re)?format(?:s|ted|ting)?` + wordGap + `(?:disk|drive|volume)s?` + wordEnd)},
		{Name: "recursive_force_delete", re: regexp.MustCompile(`rm\s+(-rf|-fr|-r\s+-f|-f\s+-r)\b`)},
		{Name: "wipe_disk", re: regexp.MustCompile(wordStart + `wip(?:e|es|ed|ing)` + wordGap + `(?:disk|drive)s?` + wordEnd)},
	}
}

// Thresholds are inclusive lower bounds on the score.
type Thresholds struct {
	Block int
	Await int
	Flag  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Block: 9, Await: 7, Flag: 5}
}

// Policy is pure and safe for concurrent use.
type Policy struct {
	overrides  []Override
	thresholds Thresholds
}

func Default() *Policy {
	return &Policy{overrides: DefaultOverrides(), thresholds: DefaultThresholds()}
}

// WithOverrides returns a copy of p with extra overrides appended.
func (p *Policy) WithOverrides(extra ...Override) *Policy {
	out := &Policy{thresholds: p.thresholds}
	out.overrides = append(append(out.overrides, p.overrides...), extra...)
	return out
}

func (p *Policy) Overrides() []Override {
	out := make([]Override, len(p.overrides))
	copy(out, p.overrides)
	return out
}

// Overridden reports the first override matching the action, if any.
func (p *Policy) Overridden(d action.Descriptor) (string, bool) {
	text := d.Text()
	for _, o := range p.overrides {
		if o.re != nil && o.re.MatchString(text) {
			return o.Name, true
		}
	}
	return "", false
}

// Decide is total: overrides first, then score thresholds.
func (p *Policy) Decide(score int, d action.Descriptor) action.Decision {
	if _, ok := p.Overridden(d); ok {
		return action.DecisionBlock
	}
	return p.ByScore(score)
}

// ByScore applies the thresholds alone.
func (p *Policy) ByScore(score int) action.Decision {
	switch {
	case score >= p.thresholds.Block:
		return action.DecisionBlock
	case score >= p.thresholds.Await:
		return action.DecisionAwait
	case score >= p.thresholds.Flag:
		return action.DecisionFlag
	default:
		return action.DecisionPass
	}
}
