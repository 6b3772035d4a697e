// Package gateway wires scoring, policy, the ledger, approvals and
// notifications into the operations the transport exposes.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"oversight.dev/internal/action"
	"oversight.dev/internal/approval"
	"oversight.dev/internal/audit"
	"oversight.dev/internal/ids"
	"oversight.dev/internal/ledger"
	"oversight.dev/internal/notify"
	"oversight.dev/internal/obs"
	"oversight.dev/internal/policy"
	"oversight.dev/internal/risk"
	"oversight.dev/internal/stream"
)

// Fixed decision messages returned to the agent.
const (
	MessagePass  = "Action approved. Proceed."
	MessageFlag  = "Action flagged for review. Proceed with caution; the human has been notified."
	MessageAwait = "Human approval required. Poll the approval status endpoint until resolved."
)

// DefaultSummaryWindow is used when the digest window is not given.
const DefaultSummaryWindow = 20

// ActorAPI is recorded when an operator resolves through the API without a token.
const ActorAPI = "api"

// MessageFor returns the agent-facing message for a decision.
func MessageFor(decision action.Decision, description string) string {
	switch decision {
	case action.DecisionPass:
		return MessagePass
	case action.DecisionFlag:
		return MessageFlag
	case action.DecisionAwait:
		return MessageAwait
	default:
		return fmt.Sprintf("Action blocked: %s. Do not proceed.", description)
	}
}

type Evaluation struct {
	ID        string          `json:"id"`
	Decision  action.Decision `json:"decision"`
	RiskScore int             `json:"riskScore"`
	Factors   []string        `json:"factors"`
	Message   string          `json:"message"`
}

type LogView struct {
	Total      int                     `json:"total"`
	ByOutcome  map[string]int          `json:"byOutcome"`
	ByDecision map[action.Decision]int `json:"byDecision"`
	Entries    []ledger.Entry          `json:"entries"`
}

type Health struct {
	Status           string `json:"status"`
	Notifier         bool   `json:"notifier"`
	NotifierName     string `json:"notifierName"`
	TotalActions     int    `json:"totalActions"`
	PendingApprovals int    `json:"pendingApprovals"`
	Version          string `json:"version"`
}

// Deps carries every collaborator explicitly; the service holds no globals.
type Deps struct {
	Scorer     *risk.Scorer
	Policy     *policy.Policy
	Ledger     ledger.Store
	Registry   *approval.Registry
	Dispatcher *notify.Dispatcher
	Stream     *stream.Stream
	Clock      func() time.Time
	NewID      func() string
	Version    string
}

type Service struct {
	scorer     *risk.Scorer
	policy     *policy.Policy
	ledger     ledger.Store
	registry   *approval.Registry
	dispatcher *notify.Dispatcher
	stream     *stream.Stream
	clock      func() time.Time
	newID      func() string
	version    string
	log        zerolog.Logger
}

var _ notify.Resolver = (*Service)(nil)

func New(d Deps) (*Service, error) {
	if d.Ledger == nil {
		return nil, errors.New("gateway: ledger store is required")
	}
	s := &Service{
		scorer:     d.Scorer,
		policy:     d.Policy,
		ledger:     d.Ledger,
		registry:   d.Registry,
		dispatcher: d.Dispatcher,
		stream:     d.Stream,
		clock:      d.Clock,
		newID:      d.NewID,
		version:    d.Version,
		log:        obs.Component("gateway"),
	}
	if s.scorer == nil {
		s.scorer = risk.Default()
	}
	if s.policy == nil {
		s.policy = policy.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = ids.New
	}
	if s.registry == nil {
		s.registry = approval.NewRegistry(s.ledger, approval.WithClock(s.clock))
	}
	if s.dispatcher == nil {
		s.dispatcher = notify.NewDispatcher(notify.Nop{})
	}
	if s.stream == nil {
		s.stream = stream.New()
	}
	if s.version == "" {
		s.version = obs.Version
	}
	s.dispatcher.BindResolver(s)
	return s, nil
}

func (s *Service) Stream() *stream.Stream { return s.stream }

func (s *Service) Dispatcher() *notify.Dispatcher { return s.dispatcher }

// Evaluate scores d, decides, records the entry and, for await, opens an
// approval request. Notification is queued and never delays the result.
func (s *Service) Evaluate(ctx context.Context, d action.Descriptor) (ev Evaluation, err error) {
	ctx, span := obs.StartSpan(ctx, "gateway.evaluate", map[string]string{"action.name": d.Name})
	defer func() { obs.EndSpan(span, err) }()

	if err := d.Validate(); err != nil {
		return Evaluation{}, err
	}
	assessment := s.scorer.Assess(d)
	decision := s.policy.Decide(assessment.Score, d)

	entry := ledger.NewEntry(s.newID(), d, assessment, decision, s.clock())
	entry, err = s.ledger.Append(ctx, entry)
	if err != nil {
		return Evaluation{}, fmt.Errorf("append entry: %w", err)
	}

	if decision == action.DecisionAwait {
		if _, err = s.registry.Create(ctx, entry); err != nil {
			s.abandon(ctx, entry, err)
			return Evaluation{}, fmt.Errorf("open approval: %w", err)
		}
		obs.SetPendingApprovals(s.registry.PendingCount())
	}

	switch decision {
	case action.DecisionFlag:
		s.dispatcher.Flagged(entry)
	case action.DecisionAwait:
		s.dispatcher.Await(entry)
	case action.DecisionBlock:
		s.dispatcher.Blocked(entry)
	}

	obs.ObserveDecision(string(decision), entry.Score)
	s.stream.Publish(stream.Event{
		Kind:      stream.KindEvaluated,
		ID:        entry.ID,
		Name:      entry.Name,
		Decision:  string(decision),
		Score:     entry.Score,
		Status:    string(entry.Outcome),
		Timestamp: entry.Timestamp,
	})

	le := s.log.Info().Str("id", entry.ID).Str("action", entry.Name).
		Int("risk_score", entry.Score).Str("decision", string(decision))
	if rule, ok := s.policy.Overridden(d); ok {
		le = le.Str("override", rule)
	}
	le.Msg("action_evaluated")
	_ = audit.LogEvent(ctx, audit.EventActionEvaluated, map[string]any{
		"id":        entry.ID,
		"action":    entry.Name,
		"domain":    string(entry.Domain),
		"riskScore": entry.Score,
		"decision":  string(decision),
	})

	return Evaluation{
		ID:        entry.ID,
		Decision:  decision,
		RiskScore: entry.Score,
		Factors:   entry.Factors,
		Message:   MessageFor(decision, d.Description),
	}, nil
}

// abandon denies an await entry whose approval request could not be opened,
// so no pending entry is left that nothing can resolve or that Restore would
// bring back.
func (s *Service) abandon(ctx context.Context, entry ledger.Entry, cause error) {
	if _, err := s.ledger.SetOutcome(ctx, entry.ID, action.OutcomeDenied, s.clock().UTC()); err != nil {
		s.log.Error().Err(err).Str("id", entry.ID).Msg("abandon_entry_failed")
	}
	s.log.Error().Err(cause).Str("id", entry.ID).Msg("approval_open_failed")
}

func (s *Service) ApprovalStatus(ctx context.Context, id string) (approval.Record, error) {
	return s.registry.Get(ctx, id)
}

func (s *Service) PendingApprovals(ctx context.Context) []approval.Record {
	return s.registry.Pending(ctx)
}

func (s *Service) Approve(ctx context.Context, id, actor string) (approval.Result, error) {
	return s.Resolve(ctx, id, approval.StatusApproved, actor)
}

func (s *Service) Deny(ctx context.Context, id, actor string) (approval.Result, error) {
	return s.Resolve(ctx, id, approval.StatusDenied, actor)
}

// Resolve is shared by the API and notifier callbacks. Side effects run only
// for the call that actually changed the request.
func (s *Service) Resolve(ctx context.Context, id string, status approval.Status, actor string) (res approval.Result, err error) {
	ctx, span := obs.StartSpan(ctx, "gateway.resolve", map[string]string{"approval.id": id, "approval.status": string(status)})
	defer func() { obs.EndSpan(span, err) }()

	if actor == "" {
		actor = ActorAPI
	}
	res, err = s.registry.Resolve(ctx, id, status, actor, "")
	if err != nil {
		return approval.Result{}, err
	}
	if !res.AlreadyResolved {
		s.resolved(ctx, res.Record, "operator")
	}
	return res, nil
}

func (s *Service) resolved(ctx context.Context, rec approval.Record, source string) {
	obs.ObserveResolution(string(rec.Status), source)
	obs.SetPendingApprovals(s.registry.PendingCount())
	s.dispatcher.Resolved(rec)
	s.stream.Publish(stream.Event{
		Kind:      stream.KindResolved,
		ID:        rec.ID,
		Name:      rec.Name,
		Status:    string(rec.Status),
		Actor:     rec.Actor,
		Timestamp: s.clock().UTC(),
	})

	event := audit.EventApprovalResolved
	if source == approval.ActorExpiry {
		event = audit.EventApprovalExpired
	}
	s.log.Info().Str("id", rec.ID).Str("status", string(rec.Status)).Str("actor", rec.Actor).Msg("approval_resolved")
	_ = audit.LogEvent(ctx, event, map[string]any{
		"id":     rec.ID,
		"status": string(rec.Status),
		"actor":  rec.Actor,
	})
}

// RunExpiry denies overdue approvals until ctx ends. It is a no-op unless
// the registry was built with a TTL.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	s.registry.RunExpiry(ctx, interval,
		func(rec approval.Record) { s.resolved(ctx, rec, approval.ActorExpiry) },
		func(err error) { s.log.Error().Err(err).Msg("approval_expiry_failed") },
	)
}

func (s *Service) Log(ctx context.Context) (LogView, error) {
	entries, err := s.ledger.List(ctx)
	if err != nil {
		return LogView{}, err
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return LogView{
		Total:      len(entries),
		ByOutcome:  ledger.CountByOutcome(entries),
		ByDecision: ledger.CountByDecision(entries),
		Entries:    entries,
	}, nil
}

func (s *Service) RecentLog(ctx context.Context, n int) (ledger.Summary, error) {
	entries, err := s.ledger.List(ctx)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(entries, n), nil
}

func (s *Service) Summary(ctx context.Context, n int) (string, error) {
	if n <= 0 {
		n = DefaultSummaryWindow
	}
	entries, err := s.ledger.List(ctx)
	if err != nil {
		return "", err
	}
	return ledger.RecentText(entries, n), nil
}

func (s *Service) Health(ctx context.Context) (Health, error) {
	total, err := s.ledger.Len(ctx)
	if err != nil {
		return Health{}, err
	}
	return Health{
		Status:           "ok",
		Notifier:         s.dispatcher.Enabled(),
		NotifierName:     s.dispatcher.NotifierName(),
		TotalActions:     total,
		PendingApprovals: s.registry.PendingCount(),
		Version:          s.version,
	}, nil
}
