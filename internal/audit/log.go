package audit

import (
	"context"
	"errors"
	"strings"

	"oversight.dev/internal/auth"
	"oversight.dev/internal/obs"
)

// Audit events emitted by the gateway.
const (
	EventActionEvaluated  = "action.evaluated"
	EventApprovalResolved = "approval.resolved"
	EventApprovalExpired  = "approval.expired"
	EventNotifyFailed     = "notify.failed"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes one audit line enriched with request and operator context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	logger := obs.Logger()
	ev := logger.Info().Str("type", "audit").Str("event", event)
	if rid := requestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		ev = ev.Str("user_id", userID)
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	ev.Interface("fields", copyFields).Msg(event)
	return nil
}
