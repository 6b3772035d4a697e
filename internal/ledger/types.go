package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"oversight.dev/internal/action"
	"oversight.dev/internal/risk"
)

// Entry is one evaluated action. Outcome and ResolvedAt are the only fields
// that change after the entry is appended.
type Entry struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Reversible  bool            `json:"reversible"`
	Domain      action.Domain   `json:"domain"`
	Score       int             `json:"riskScore"`
	Factors     []string        `json:"factors"`
	Decision    action.Decision `json:"decision"`
	Outcome     action.Outcome  `json:"outcome,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	ResolvedAt  *time.Time      `json:"resolvedAt,omitempty"`
	Sequence    uint64          `json:"sequence"`
}

// NewEntry assembles an entry from an evaluation. Outcome is derived from the decision.
func NewEntry(id string, d action.Descriptor, a risk.Assessment, decision action.Decision, at time.Time) Entry {
	factors := make([]string, len(a.Factors))
	copy(factors, a.Factors)
	return Entry{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
		Reversible:  d.IsReversible(),
		Domain:      d.ParsedDomain(),
		Score:       a.Score,
		Factors:     factors,
		Decision:    decision,
		Outcome:     action.OutcomeFor(decision),
		Timestamp:   at.UTC(),
	}
}

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("entry is not pending")
	ErrDuplicate  = errors.New("duplicate entry id")
	ErrInvalid    = errors.New("invalid entry")
)

// Store is the append-only action log. Implementations preserve insertion order.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Find(ctx context.Context, id string) (Entry, error)
	// SetOutcome moves a pending entry to a terminal outcome exactly once.
	// Any other current outcome yields ErrNotPending and the stored entry.
	SetOutcome(ctx context.Context, id string, outcome action.Outcome, at time.Time) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Len(ctx context.Context) (int, error)
}
