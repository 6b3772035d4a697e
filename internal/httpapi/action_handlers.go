package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"oversight.dev/internal/action"
	"oversight.dev/internal/approval"
	"oversight.dev/internal/auth"
	"oversight.dev/internal/gateway"
	"oversight.dev/internal/ledger"
)

// evaluateRequest is decoded leniently: agents may send extra fields, and a
// field of the wrong type counts as absent rather than failing the request.
type evaluateRequest struct {
	Name        json.RawMessage `json:"name"`
	Description json.RawMessage `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Reversible  json.RawMessage `json:"reversible,omitempty"`
	Domain      json.RawMessage `json:"domain,omitempty"`
}

func (req evaluateRequest) descriptor() action.Descriptor {
	d := action.Descriptor{
		Name:        strings.TrimSpace(rawString(req.Name)),
		Description: strings.TrimSpace(rawString(req.Description)),
		Domain:      rawString(req.Domain),
	}
	if len(req.Parameters) > 0 && string(req.Parameters) != "null" {
		d.Parameters = req.Parameters
	}
	var reversible bool
	if len(req.Reversible) > 0 && json.Unmarshal(req.Reversible, &reversible) == nil {
		d.Reversible = &reversible
	}
	return d
}

// rawString returns raw as a string when it holds one and "" otherwise.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

type resolveRequest struct {
	Actor string `json:"actor"`
}

type pendingResponse struct {
	Items []approval.Record `json:"items"`
	Total int               `json:"total"`
}

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req evaluateRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := a.gateway.Evaluate(r.Context(), req.descriptor())
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleApprovalsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items := a.gateway.PendingApprovals(r.Context())
	if items == nil {
		items = []approval.Record{}
	}
	writeJSON(w, http.StatusOK, pendingResponse{Items: items, Total: len(items)})
}

// handleApprovalResource serves /v1/approvals/{id} and its approve and deny actions.
func (a *API) handleApprovalResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/approvals/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "approval request not found")
		return
	}

	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getApproval(w, r, parts[0])
	case 2:
		var status approval.Status
		switch parts[1] {
		case "approve":
			status = approval.StatusApproved
		case "deny":
			status = approval.StatusDenied
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		resolve := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a.resolveApproval(w, r, parts[0], status)
		}))
		if a.issuer != nil {
			resolve = RequireRole(auth.RoleOperator)(resolve)
		}
		resolve.ServeHTTP(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getApproval(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := a.gateway.ApprovalStatus(r.Context(), id)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) resolveApproval(w http.ResponseWriter, r *http.Request, id string, status approval.Status) {
	actor, err := resolveActor(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.gateway.Resolve(r.Context(), id, status, actor)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// resolveActor prefers the token subject; without auth an optional body may
// name the operator.
func resolveActor(w http.ResponseWriter, r *http.Request) (string, error) {
	if user, ok := auth.UserIDFromContext(r.Context()); ok {
		return user, nil
	}
	if r.ContentLength == 0 {
		return "", nil
	}
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	actor := strings.TrimSpace(req.Actor)
	if len(actor) > 128 {
		return "", errors.New("actor must be <=128 characters")
	}
	return actor, nil
}

func (a *API) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if raw := r.URL.Query().Get("recent"); raw != "" {
		n, err := parsePositiveInt("recent", raw, 0, 1, 10000)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		view, err := a.gateway.RecentLog(r.Context(), n)
		if err != nil {
			handleGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	view, err := a.gateway.Log(r.Context())
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	n, err := parsePositiveInt("n", r.URL.Query().Get("n"), gateway.DefaultSummaryWindow, 1, 10000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	text, err := a.gateway.Summary(r.Context(), n)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": text})
}

func parsePositiveInt(name, raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if val < min || val > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleGatewayError is the single mapping from domain errors to status codes.
func handleGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, action.ErrInvalid):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, approval.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, approval.ErrDuplicate), errors.Is(err, ledger.ErrDuplicate):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		l := loggerFor(r)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request_failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
