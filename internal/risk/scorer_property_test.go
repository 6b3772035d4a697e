package risk

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"oversight.dev/internal/action"
)

var vocabulary = []string{
	"delete", "wipe", "payment", "invoice", "send", "email", "password", "key",
	"read", "list", "notes", "calendar", "weather", "report",
}

func genText() gopter.Gen {
	return gen.SliceOfN(6, gen.IntRange(0, len(vocabulary)-1)).Map(func(idx []int) string {
		parts := make([]string, 0, len(idx))
		for _, i := range idx {
			parts = append(parts, vocabulary[i])
		}
		return strings.Join(parts, " ")
	})
}

func genDomain() gopter.Gen {
	return gen.OneConstOf("finance", "healthcare", "authentication", "filesystem", "communication", "web", "other", "", "galaxy", "FINANCE")
}

func TestScorerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	scorer := Default()

	properties.Property("irreversible actions score at least 4", prop.ForAll(
		func(name, desc, domain string) bool {
			a := scorer.Assess(action.Descriptor{Name: name, Description: desc, Domain: domain, Reversible: action.Bool(false)})
			return a.Score >= 4
		},
		genText(), genText(), genDomain(),
	))

	properties.Property("score stays within bounds", prop.ForAll(
		func(name, desc, domain string, reversible bool) bool {
			a := scorer.Assess(action.Descriptor{Name: name, Description: desc, Domain: domain, Reversible: action.Bool(reversible)})
			return a.Score >= MinScore && a.Score <= MaxScore
		},
		genText(), genText(), genDomain(), gen.Bool(),
	))

	properties.Property("unknown domains contribute nothing", prop.ForAll(
		func(name, desc, domain string) bool {
			if action.ParseDomain(domain) != action.DomainOther {
				return true
			}
			with := scorer.Assess(action.Descriptor{Name: name, Description: desc, Domain: domain})
			without := scorer.Assess(action.Descriptor{Name: name, Description: desc})
			for _, f := range with.Factors {
				if strings.HasPrefix(f, "Sensitive domain") {
					return false
				}
			}
			return with.Score == without.Score
		},
		genText(), genText(), gen.Identifier(),
	))

	properties.Property("factors never repeat", prop.ForAll(
		func(name, desc, domain string) bool {
			a := scorer.Assess(action.Descriptor{Name: name, Description: desc, Domain: domain, Reversible: action.Bool(false)})
			seen := map[string]bool{}
			for _, f := range a.Factors {
				if seen[f] {
					return false
				}
				seen[f] = true
			}
			return true
		},
		genText(), genText(), genDomain(),
	))

	properties.TestingRun(t)
}
