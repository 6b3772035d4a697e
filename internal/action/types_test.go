package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDomain(t *testing.T) {
	cases := map[string]Domain{
		"finance":        DomainFinance,
		"  Healthcare ":  DomainHealthcare,
		"AUTHENTICATION": DomainAuthentication,
		"filesystem":     DomainFilesystem,
		"communication":  DomainCommunication,
		"web":            DomainWeb,
		"other":          DomainOther,
		"":               DomainOther,
		"space":          DomainOther,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseDomain(input), "input %q", input)
	}
}

func TestDecisionSeverity(t *testing.T) {
	for i := 1; i < len(Decisions); i++ {
		assert.Greater(t, Decisions[i].Severity(), Decisions[i-1].Severity())
		assert.True(t, Decisions[i].AtLeast(Decisions[i-1]))
		assert.False(t, Decisions[i-1].AtLeast(Decisions[i]))
	}
	assert.Equal(t, -1, Decision("maybe").Severity())
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, OutcomeNone, OutcomeFor(DecisionPass))
	assert.Equal(t, OutcomeNone, OutcomeFor(DecisionFlag))
	assert.Equal(t, OutcomePending, OutcomeFor(DecisionAwait))
	assert.Equal(t, OutcomeBlocked, OutcomeFor(DecisionBlock))
}

func TestDescriptorValidate(t *testing.T) {
	err := Descriptor{Description: "x"}.Validate()
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "name")

	err = Descriptor{Name: "x", Description: "   "}.Validate()
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "description")

	assert.NoError(t, Descriptor{Name: "x", Description: "y"}.Validate())
}

func TestDescriptorReversibleDefault(t *testing.T) {
	assert.True(t, Descriptor{}.IsReversible())
	assert.True(t, Descriptor{Reversible: Bool(true)}.IsReversible())
	assert.False(t, Descriptor{Reversible: Bool(false)}.IsReversible())
}

func TestDescriptorTextIgnoresParameters(t *testing.T) {
	d := Descriptor{
		Name:        "Send_Email",
		Description: "Notify Client",
		Parameters:  []byte(`{"password":"hunter2"}`),
	}
	assert.Equal(t, "send_email notify client", d.Text())
}
