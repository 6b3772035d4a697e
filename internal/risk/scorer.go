// Package risk turns an action descriptor into a bounded, explainable score.
//
// Scoring is linear and additive: a base score, an irreversibility penalty, a
// per-domain weight and a table of lexical rules. Every contribution emits a
// factor string so a human can see why a score was assigned.
package risk

import (
	"fmt"
	"regexp"
	"strings"

	"oversight.dev/internal/action"
)

const (
	MinScore = 1
	MaxScore = 10

	irreversibleWeight = 3
	irreversibleFactor = "Action cannot be undone"
)

// Assessment is the derived, immutable result of scoring one descriptor.
type Assessment struct {
	Score   int      `json:"score"`
	Factors []string `json:"factors"`
}

// Rule is one lexical pattern family. Each rule contributes at most once.
type Rule struct {
	Family  string `yaml:"family" json:"family"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Weight  int    `yaml:"weight" json:"weight"`
	Factor  string `yaml:"factor" json:"factor"`

	re *regexp.Regexp
}

func (r Rule) compile() (Rule, error) {
	if strings.TrimSpace(r.Family) == "" {
		return r, fmt.Errorf("rule family is required")
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return r, fmt.Errorf("rule %q: pattern is required", r.Family)
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return r, fmt.Errorf("rule %q: %w", r.Family, err)
	}
	if r.Factor == "" {
		r.Factor = "Pattern matched: " + r.Family
	}
	r.re = re
	return r, nil
}

// Matches reports whether the rule fires on already-lowercased text.
func (r Rule) Matches(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// DefaultRules is the reference table, in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Family: "destructive", Pattern: `delete|remove|destroy|wipe|purge`, Weight: 2, Factor: "Destructive action detected"},
		{Family: "financial", Pattern: `payment|transfer|charge|pay|invoice|bank`, Weight: 2, Factor: "Financial action detected"},
		{Family: "communication", Pattern: `send|publish|post|broadcast|email|message`, Weight: 1, Factor: "External communication detected"},
		{Family: "credential", Pattern: `password|secret|token|credential|key`, Weight: 2, Factor: "Credential handling detected"},
	}
}

// DefaultDomainWeights maps each known domain to its contribution.
func DefaultDomainWeights() map[action.Domain]int {
	return map[action.Domain]int{
		action.DomainFinance:        4,
		action.DomainHealthcare:     3,
		action.DomainAuthentication: 3,
		action.DomainFilesystem:     2,
		action.DomainCommunication:  2,
		action.DomainWeb:            1,
		action.DomainOther:          0,
	}
}

// Scorer is safe for concurrent use; it is never mutated after construction.
type Scorer struct {
	domains map[action.Domain]int
	rules   []Rule
}

// New builds a scorer from the default domain weights and the given rules.
func New(rules ...Rule) (*Scorer, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		c, err := r.compile()
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}
	return &Scorer{domains: DefaultDomainWeights(), rules: compiled}, nil
}

// Default returns the reference scorer.
func Default() *Scorer {
	s, err := New(DefaultRules()...)
	if err != nil {
		panic(err)
	}
	return s
}

// WithRules returns a copy of s with extra rules appended after the existing ones.
func (s *Scorer) WithRules(extra ...Rule) (*Scorer, error) {
	all := append(s.Rules(), extra...)
	out, err := New(all...)
	if err != nil {
		return nil, err
	}
	for d, w := range s.domains {
		out.domains[d] = w
	}
	return out, nil
}

func (s *Scorer) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// DomainWeight returns the contribution of a domain; unknown domains weigh zero.
func (s *Scorer) DomainWeight(d action.Domain) int {
	return s.domains[d]
}

// Assess never fails. Factor order is evaluation order: reversibility, domain,
// then the rule table.
func (s *Scorer) Assess(d action.Descriptor) Assessment {
	score := MinScore
	factors := make([]string, 0, 2+len(s.rules))

	if !d.IsReversible() {
		score += irreversibleWeight
		factors = append(factors, irreversibleFactor)
	}

	domain := d.ParsedDomain()
	if w := s.domains[domain]; w > 0 {
		score += w
		factors = append(factors, "Sensitive domain: "+string(domain))
	}

	text := d.Text()
	for _, r := range s.rules {
		if r.Matches(text) {
			score += r.Weight
			factors = append(factors, r.Factor)
		}
	}

	return Assessment{Score: clamp(score), Factors: factors}
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
