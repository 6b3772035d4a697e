// Package approval tracks human sign-off for actions the policy holds back.
//
// A Record is created for every await decision and moves from pending to
// approved or denied exactly once. The registry keeps the ledger outcome and
// the record status in step: both change under the registry lock, ledger
// first, so no reader going through the registry sees one without the other.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"oversight.dev/internal/action"
	"oversight.dev/internal/ledger"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// ActorExpiry is recorded as the resolver when a request times out.
const ActorExpiry = "expiry"

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Outcome maps a status onto the ledger vocabulary.
func (s Status) Outcome() action.Outcome {
	switch s {
	case StatusApproved:
		return action.OutcomeApproved
	case StatusDenied:
		return action.OutcomeDenied
	default:
		return action.OutcomePending
	}
}

func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusApproved, "approve":
		return StatusApproved, nil
	case StatusDenied, "deny":
		return StatusDenied, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

var (
	ErrNotFound      = errors.New("approval request not found")
	ErrDuplicate     = errors.New("approval request already exists")
	ErrInvalidStatus = errors.New("invalid approval status")
	ErrNotAwaiting   = errors.New("entry does not await approval")
)

type Record struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Name        string     `json:"action"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Actor       string     `json:"actor,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func (r Record) clone() Record {
	out := r
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		out.ResolvedAt = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// Result of a resolve call. AlreadyResolved reports that an earlier call won
// and Record carries its status, not the requested one.
type Result struct {
	Record
	AlreadyResolved bool `json:"alreadyResolved"`
}

type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
	ledger  ledger.Store
	ttl     time.Duration
	clock   func() time.Time
}

type Option func(*Registry)

// WithTTL makes pending requests expire (as denied) after d. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func NewRegistry(store ledger.Store, opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*Record),
		ledger:  store,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create opens a pending request for an await entry already in the ledger.
func (r *Registry) Create(ctx context.Context, e ledger.Entry) (Record, error) {
	if e.Decision != action.DecisionAwait {
		return Record{}, fmt.Errorf("%w: %s is %s", ErrNotAwaiting, e.ID, e.Decision)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[e.ID]; ok {
		return Record{}, fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
	}
	rec := r.newRecord(e)
	r.records[e.ID] = rec
	r.order = append(r.order, e.ID)
	return rec.clone(), nil
}

func (r *Registry) newRecord(e ledger.Entry) *Record {
	rec := &Record{
		ID:          e.ID,
		Status:      StatusPending,
		Name:        e.Name,
		Description: e.Description,
		CreatedAt:   e.Timestamp,
	}
	if r.ttl > 0 {
		exp := e.Timestamp.Add(r.ttl)
		rec.ExpiresAt = &exp
	}
	return rec
}

// Restore rebuilds pending requests from the ledger after a restart.
// Entries that already have a record are skipped.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	entries, err := r.ledger.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore approvals: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range entries {
		if e.Outcome != action.OutcomePending {
			continue
		}
		if _, ok := r.records[e.ID]; ok {
			continue
		}
		r.records[e.ID] = r.newRecord(e)
		r.order = append(r.order, e.ID)
		n++
	}
	return n, nil
}

// Resolve moves a pending request to status. Unknown ids yield ErrNotFound
// and change nothing; a request resolved earlier is returned unchanged with
// AlreadyResolved set.
func (r *Registry) Resolve(ctx context.Context, id string, status Status, actor, reason string) (Result, error) {
	if !status.IsTerminal() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Result{}, ErrNotFound
	}
	if rec.Status.IsTerminal() {
		return Result{Record: rec.clone(), AlreadyResolved: true}, nil
	}

	now := r.clock().UTC()
	entry, err := r.ledger.SetOutcome(ctx, id, status.Outcome(), now)
	switch {
	case errors.Is(err, ledger.ErrNotPending):
		// Another process sharing the store won; adopt its result.
		rec.Status = statusFromOutcome(entry.Outcome)
		rec.ResolvedAt = entry.ResolvedAt
		return Result{Record: rec.clone(), AlreadyResolved: true}, nil
	case err != nil:
		return Result{}, fmt.Errorf("record outcome for %s: %w", id, err)
	}

	rec.Status = status
	rec.ResolvedAt = &now
	rec.Actor = actor
	rec.Reason = reason
	return Result{Record: rec.clone()}, nil
}

func statusFromOutcome(o action.Outcome) Status {
	switch o {
	case action.OutcomeApproved:
		return StatusApproved
	case action.OutcomeDenied:
		return StatusDenied
	default:
		return StatusPending
	}
}

func (r *Registry) Get(ctx context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

// Pending lists unresolved requests, oldest first.
func (r *Registry) Pending(ctx context.Context) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, id := range r.order {
		if rec := r.records[id]; rec.Status == StatusPending {
			out = append(out, rec.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, rec := range r.records {
		if rec.Status == StatusPending {
			count++
		}
	}
	return count
}

// Expire denies every pending request whose deadline has passed and returns
// the records it resolved.
func (r *Registry) Expire(ctx context.Context) ([]Record, error) {
	now := r.clock()
	r.mu.RLock()
	var due []string
	for _, id := range r.order {
		rec := r.records[id]
		if rec.Status == StatusPending && rec.ExpiresAt != nil && !now.Before(*rec.ExpiresAt) {
			due = append(due, id)
		}
	}
	r.mu.RUnlock()

	var expired []Record
	var errs []error
	for _, id := range due {
		res, err := r.Resolve(ctx, id, StatusDenied, ActorExpiry, "approval timed out")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !res.AlreadyResolved {
			expired = append(expired, res.Record)
		}
	}
	return expired, errors.Join(errs...)
}

// RunExpiry sweeps every interval until ctx is cancelled. onExpired is called
// for each record the sweep resolved; onErr for sweep failures. Either may be nil.
func (r *Registry) RunExpiry(ctx context.Context, interval time.Duration, onExpired func(Record), onErr func(error)) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := r.Expire(ctx)
			if err != nil && onErr != nil {
				onErr(err)
			}
			if onExpired != nil {
				for _, rec := range expired {
					onExpired(rec)
				}
			}
		}
	}
}
