package notify

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"oversight.dev/internal/approval"
	"oversight.dev/internal/ledger"
	"oversight.dev/internal/obs"
)

// Resolver applies a human decision. The gateway implements it so that
// callback resolutions get the same bookkeeping as API ones.
type Resolver interface {
	Resolve(ctx context.Context, id string, status approval.Status, actor string) (approval.Result, error)
}

type job struct {
	variant Variant
	id      string
	text    string
	buttons []Button
	record  *approval.Record
}

type sent struct {
	ref  MessageRef
	text string
}

// Dispatcher sends notifications from a single background worker so that
// evaluation never waits on the messaging platform. Deliveries are bounded
// by a timeout and retried with exponential backoff and jitter; failures are
// logged and counted, never returned to the caller.
type Dispatcher struct {
	notifier Notifier
	log      zerolog.Logger

	timeout time.Duration
	retries int
	backoff time.Duration

	mu       sync.Mutex
	closed   bool
	resolver Resolver
	messages map[string]sent

	queue chan job
	done  chan struct{}
}

type DispatcherOption func(*Dispatcher)

func WithTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

func WithRetries(n int) DispatcherOption {
	return func(x *Dispatcher) {
		if n >= 0 {
			x.retries = n
		}
	}
}

func WithBackoff(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		if d > 0 {
			x.backoff = d
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(x *Dispatcher) {
		if n > 0 {
			x.queue = make(chan job, n)
		}
	}
}

func NewDispatcher(n Notifier, opts ...DispatcherOption) *Dispatcher {
	if n == nil {
		n = Nop{}
	}
	d := &Dispatcher{
		notifier: n,
		log:      obs.Component("notify").With().Str("notifier", n.Name()).Logger(),
		timeout:  5 * time.Second,
		retries:  3,
		backoff:  200 * time.Millisecond,
		messages: make(map[string]sent),
		queue:    make(chan job, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// BindResolver wires the target for button taps.
func (d *Dispatcher) BindResolver(r Resolver) {
	d.mu.Lock()
	d.resolver = r
	d.mu.Unlock()
}

func (d *Dispatcher) Enabled() bool { return d.notifier.Enabled() }

func (d *Dispatcher) NotifierName() string { return d.notifier.Name() }

func (d *Dispatcher) Flagged(e ledger.Entry) {
	d.enqueue(job{variant: VariantFlagged, id: e.ID, text: FlaggedText(e)})
}

func (d *Dispatcher) Await(e ledger.Entry) {
	d.enqueue(job{variant: VariantAwait, id: e.ID, text: AwaitText(e), buttons: ApprovalButtons(e.ID)})
}

func (d *Dispatcher) Blocked(e ledger.Entry) {
	d.enqueue(job{variant: VariantBlocked, id: e.ID, text: BlockedText(e)})
}

// Resolved edits the await message of rec to show its final status.
func (d *Dispatcher) Resolved(rec approval.Record) {
	d.enqueue(job{variant: VariantResolved, id: rec.ID, record: &rec})
}

func (d *Dispatcher) enqueue(j job) {
	if !d.notifier.Enabled() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- j:
	default:
		obs.ObserveNotifyFailure(string(j.variant))
		d.log.Warn().Str("id", j.id).Str("variant", string(j.variant)).Msg("notify_queue_full")
	}
}

// Close stops accepting work and waits for queued deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	var err error
	switch j.variant {
	case VariantResolved:
		d.mu.Lock()
		m, ok := d.messages[j.id]
		d.mu.Unlock()
		if !ok {
			return
		}
		text := ResolvedText(m.text, *j.record)
		err = d.retry(func(ctx context.Context) error {
			return d.notifier.Edit(ctx, m.ref, text)
		})
	default:
		var ref MessageRef
		err = d.retry(func(ctx context.Context) error {
			var sendErr error
			ref, sendErr = d.notifier.Send(ctx, j.text, j.buttons)
			return sendErr
		})
		if err == nil && j.variant == VariantAwait {
			d.mu.Lock()
			d.messages[j.id] = sent{ref: ref, text: j.text}
			d.mu.Unlock()
		}
	}
	if err != nil {
		obs.ObserveNotifyFailure(string(j.variant))
		d.log.Error().Err(err).Str("id", j.id).Str("variant", string(j.variant)).Msg("notify_delivery_failed")
	}
}

func (d *Dispatcher) retry(op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= d.retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err = op(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == d.retries {
			break
		}
		wait := d.backoff << attempt
		wait += time.Duration(rand.Int64N(int64(d.backoff)/2 + 1))
		time.Sleep(wait)
	}
	return err
}

// HandleCallback resolves the approval named by a button tap and answers the
// tap. Editing the original message is left to the resolver's bookkeeping,
// which calls Resolved exactly once per approval.
func (d *Dispatcher) HandleCallback(ctx context.Context, cb Callback) {
	answer := d.resolveCallback(ctx, cb)
	actx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.notifier.AnswerCallback(actx, cb.ID, answer); err != nil {
		d.log.Warn().Err(err).Str("callback", cb.ID).Msg("notify_answer_failed")
	}
}

func (d *Dispatcher) resolveCallback(ctx context.Context, cb Callback) string {
	status, id, err := ParseCallbackData(cb.Data)
	if err != nil {
		d.log.Warn().Err(err).Msg("notify_bad_callback")
		return "Invalid action"
	}
	d.mu.Lock()
	r := d.resolver
	d.mu.Unlock()
	if r == nil {
		return "Unknown request"
	}

	actor := "telegram"
	if from := strings.TrimSpace(cb.From); from != "" {
		actor = "telegram:" + from
	}
	res, err := r.Resolve(ctx, id, status, actor)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return "Unknown request"
	case err != nil:
		d.log.Error().Err(err).Str("id", id).Msg("notify_callback_resolve_failed")
		return "Something went wrong, try again"
	case res.AlreadyResolved:
		return "Already " + string(res.Status)
	case res.Status == approval.StatusApproved:
		return "Approved"
	default:
		return "Denied"
	}
}
