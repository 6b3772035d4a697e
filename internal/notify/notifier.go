// Package notify delivers human-facing messages about evaluated actions and
// routes button taps back into the approval registry.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"oversight.dev/internal/approval"
)

// Variant names the kind of message, used as a metrics label.
type Variant string

const (
	VariantFlagged  Variant = "flagged"
	VariantAwait    Variant = "await"
	VariantBlocked  Variant = "blocked"
	VariantResolved Variant = "resolved"
)

type Button struct {
	Text string
	Data string
}

// MessageRef identifies a delivered message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Callback is a button tap reported by the messaging platform.
type Callback struct {
	ID     string
	Data   string
	From   string
	ChatID int64
}

// Notifier is the outbound messaging collaborator.
type Notifier interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, text string, buttons []Button) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// CallbackSource is implemented by notifiers that can receive button taps.
type CallbackSource interface {
	Listen(ctx context.Context, handle func(context.Context, Callback))
}

// Nop is used when no messaging platform is configured.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) Name() string  { return "none" }
func (Nop) Enabled() bool { return false }

func (Nop) Send(context.Context, string, []Button) (MessageRef, error) {
	return MessageRef{}, nil
}

func (Nop) Edit(context.Context, MessageRef, string) error { return nil }

func (Nop) AnswerCallback(context.Context, string, string) error { return nil }

var ErrBadCallback = errors.New("malformed callback data")

const (
	actionApprove = "approve"
	actionDeny    = "deny"
)

// CallbackData encodes a button payload as "<action>:<id>".
func CallbackData(status approval.Status, id string) string {
	if status == approval.StatusApproved {
		return actionApprove + ":" + id
	}
	return actionDeny + ":" + id
}

// ParseCallbackData is the inverse of CallbackData.
func ParseCallbackData(data string) (approval.Status, string, error) {
	act, id, ok := strings.Cut(strings.TrimSpace(data), ":")
	if !ok || strings.TrimSpace(id) == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadCallback, data)
	}
	switch act {
	case actionApprove:
		return approval.StatusApproved, id, nil
	case actionDeny:
		return approval.StatusDenied, id, nil
	}
	return "", "", fmt.Errorf("%w: unknown action %q", ErrBadCallback, act)
}

// ApprovalButtons are the two buttons attached to every await message.
func ApprovalButtons(id string) []Button {
	return []Button{
		{Text: "✅ Approve", Data: CallbackData(approval.StatusApproved, id)},
		{Text: "❌ Deny", Data: CallbackData(approval.StatusDenied, id)},
	}
}
