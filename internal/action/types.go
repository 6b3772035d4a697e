package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Domain is the coarse category of an action's real-world effect.
type Domain string

const (
	DomainFinance        Domain = "finance"
	DomainHealthcare     Domain = "healthcare"
	DomainAuthentication Domain = "authentication"
	DomainFilesystem     Domain = "filesystem"
	DomainCommunication  Domain = "communication"
	DomainWeb            Domain = "web"
	DomainOther          Domain = "other"
)

var knownDomains = map[string]Domain{
	string(DomainFinance):        DomainFinance,
	string(DomainHealthcare):     DomainHealthcare,
	string(DomainAuthentication): DomainAuthentication,
	string(DomainFilesystem):     DomainFilesystem,
	string(DomainCommunication):  DomainCommunication,
	string(DomainWeb):            DomainWeb,
	string(DomainOther):          DomainOther,
}

// ParseDomain never fails: unknown or empty values resolve to DomainOther.
func ParseDomain(s string) Domain {
	if d, ok := knownDomains[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d
	}
	return DomainOther
}

// Decision is the policy verdict for an action.
type Decision string

const (
	DecisionPass  Decision = "pass"
	DecisionFlag  Decision = "flag"
	DecisionAwait Decision = "await"
	DecisionBlock Decision = "block"
)

// Decisions lists every decision in ascending severity.
var Decisions = []Decision{DecisionPass, DecisionFlag, DecisionAwait, DecisionBlock}

// Severity orders decisions: pass < flag < await < block. Unknown values rank -1.
func (d Decision) Severity() int {
	switch d {
	case DecisionPass:
		return 0
	case DecisionFlag:
		return 1
	case DecisionAwait:
		return 2
	case DecisionBlock:
		return 3
	}
	return -1
}

func (d Decision) AtLeast(other Decision) bool { return d.Severity() >= other.Severity() }

// Outcome is the mutable resolution field of a ledger entry.
type Outcome string

const (
	// OutcomeNone is carried by pass and flag entries, which never change.
	OutcomeNone     Outcome = ""
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeDenied   Outcome = "denied"
	OutcomeBlocked  Outcome = "blocked"
)

// OutcomeFor returns the outcome assigned when an entry is created.
func OutcomeFor(d Decision) Outcome {
	switch d {
	case DecisionAwait:
		return OutcomePending
	case DecisionBlock:
		return OutcomeBlocked
	}
	return OutcomeNone
}

var ErrInvalid = errors.New("invalid action")

// Descriptor is what the agent reports before executing an action.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Reversible  *bool           `json:"reversible,omitempty"`
	Domain      string          `json:"domain,omitempty"`
}

// Validate reports ErrInvalid when a required field is blank.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalid)
	}
	return nil
}

// IsReversible treats an omitted flag as reversible; only an explicit false is not.
func (d Descriptor) IsReversible() bool {
	return d.Reversible == nil || *d.Reversible
}

func (d Descriptor) ParsedDomain() Domain { return ParseDomain(d.Domain) }

// Text is the lowercase name and description that lexical rules are matched against.
// Parameters are never scanned.
func (d Descriptor) Text() string {
	return strings.ToLower(d.Name + " " + d.Description)
}

// Bool is a convenience for building descriptors with an explicit reversible flag.
func Bool(v bool) *bool { return &v }
