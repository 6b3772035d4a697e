package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"oversight.dev/internal/auth"
	"oversight.dev/internal/gateway"
	"oversight.dev/internal/ledger"
	"oversight.dev/internal/obs"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	issuer  *auth.Issuer
	t       *testing.T
}

func newTestAPI(t *testing.T, withAuth bool) *apiClient {
	t.Helper()

	svc, err := gateway.New(gateway.Deps{Ledger: ledger.NewInMemory(), Version: "test"})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	t.Cleanup(svc.Dispatcher().Close)

	var issuer *auth.Issuer
	if withAuth {
		issuer, err = auth.NewIssuer("test-secret")
		if err != nil {
			t.Fatalf("new issuer: %v", err)
		}
	}

	api := New(ReadyProbe{}, "test", svc, issuer)
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		issuer:  issuer,
		t:       t,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) token(user string, roles ...string) map[string]string {
	c.t.Helper()
	tok, _, err := c.issuer.GenerateToken(user, roles, time.Hour)
	if err != nil {
		c.t.Fatalf("generate token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func (c *apiClient) evaluate(body map[string]any) map[string]any {
	c.t.Helper()
	resp := c.post("/v1/actions/evaluate", body, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected evaluate status: %d", resp.StatusCode)
	}
	return decode[map[string]any](c.t, resp)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

var awaitAction = map[string]any{
	"name":        "delete_file",
	"description": "delete old report",
	"reversible":  false,
	"domain":      "filesystem",
}

func TestEvaluateDecisions(t *testing.T) {
	api := newTestAPI(t, false)

	blocked := api.evaluate(map[string]any{
		"name":        "send_email",
		"description": "send invoice to client",
		"reversible":  false,
		"domain":      "finance",
	})
	if blocked["decision"] != "block" || blocked["riskScore"].(float64) != 10 {
		t.Fatalf("unexpected evaluation: %v", blocked)
	}
	if blocked["message"] != "Action blocked: send invoice to client. Do not proceed." {
		t.Fatalf("unexpected message: %v", blocked["message"])
	}

	passed := api.evaluate(map[string]any{
		"name":        "read_file",
		"description": "read today's notes",
		"parameters":  map[string]any{"path": "notes.md"},
	})
	if passed["decision"] != "pass" || passed["message"] != gateway.MessagePass {
		t.Fatalf("unexpected evaluation: %v", passed)
	}
	if factors, ok := passed["factors"].([]any); !ok || len(factors) != 0 {
		t.Fatalf("expected empty factor list, got %v", passed["factors"])
	}
}

func TestEvaluateValidation(t *testing.T) {
	api := newTestAPI(t, false)

	cases := []struct {
		name string
		body any
	}{
		{"missing description", map[string]any{"name": "x"}},
		{"blank name", map[string]any{"name": "  ", "description": "y"}},
		{"non-string name", map[string]any{"name": 7, "description": "y"}},
		{"non-object body", "not an object"},
		{"empty body", nil},
	}
	for _, tc := range cases {
		resp := api.post("/v1/actions/evaluate", tc.body, nil)
		body := decode[map[string]any](t, resp)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, resp.StatusCode)
		}
		if body["error"] == "" || body["request_id"] == "" {
			t.Fatalf("%s: expected error and request_id, got %v", tc.name, body)
		}
	}

	resp := api.get("/v1/actions/evaluate", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestEvaluateToleratesLooseDescriptors(t *testing.T) {
	api := newTestAPI(t, false)

	extra := api.evaluate(map[string]any{
		"name":        "read_file",
		"description": "read notes",
		"agent":       "bot-1",
	})
	if extra["decision"] != "pass" || extra["riskScore"].(float64) != 1 {
		t.Fatalf("unexpected evaluation with extra field: %v", extra)
	}

	numericDomain := api.evaluate(map[string]any{
		"name":        "read_file",
		"description": "read notes",
		"reversible":  false,
		"domain":      7,
	})
	if numericDomain["decision"] != "pass" || numericDomain["riskScore"].(float64) != 4 {
		t.Fatalf("non-string domain should score as other: %v", numericDomain)
	}
	factors, _ := numericDomain["factors"].([]any)
	if len(factors) != 1 || factors[0] != "Action cannot be undone" {
		t.Fatalf("unexpected factors: %v", numericDomain["factors"])
	}

	oddReversible := api.evaluate(map[string]any{
		"name":        "read_file",
		"description": "read notes",
		"reversible":  "no",
		"domain":      map[string]any{"kind": "finance"},
	})
	if oddReversible["riskScore"].(float64) != 1 {
		t.Fatalf("non-boolean reversible should default to reversible: %v", oddReversible)
	}
}

func TestApprovalFlow(t *testing.T) {
	api := newTestAPI(t, false)

	ev := api.evaluate(awaitAction)
	if ev["decision"] != "await" {
		t.Fatalf("expected await, got %v", ev["decision"])
	}
	id := ev["id"].(string)

	resp := api.get("/v1/approvals/"+id, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	rec := decode[map[string]any](t, resp)
	if rec["status"] != "pending" || rec["action"] != "delete_file" || rec["resolvedAt"] != nil {
		t.Fatalf("unexpected record: %v", rec)
	}

	resp = api.get("/v1/approvals", nil, nil)
	pending := decode[map[string]any](t, resp)
	if pending["total"].(float64) != 1 {
		t.Fatalf("expected one pending approval, got %v", pending)
	}

	resp = api.post("/v1/approvals/"+id+"/approve", map[string]any{"actor": "alice"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	res := decode[map[string]any](t, resp)
	if res["status"] != "approved" || res["alreadyResolved"] != false || res["actor"] != "alice" {
		t.Fatalf("unexpected resolution: %v", res)
	}

	resp = api.post("/v1/approvals/"+id+"/deny", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	res = decode[map[string]any](t, resp)
	if res["status"] != "approved" || res["alreadyResolved"] != true {
		t.Fatalf("second resolve must report the first outcome: %v", res)
	}

	resp = api.get("/v1/log", nil, nil)
	view := decode[map[string]any](t, resp)
	if view["total"].(float64) != 1 {
		t.Fatalf("unexpected log: %v", view)
	}
	byOutcome := view["byOutcome"].(map[string]any)
	if byOutcome["approved"].(float64) != 1 {
		t.Fatalf("ledger outcome not mirrored: %v", byOutcome)
	}
}

func TestApprovalNotFound(t *testing.T) {
	api := newTestAPI(t, false)

	for _, path := range []string{"/v1/approvals/ghost/approve", "/v1/approvals/ghost/deny"} {
		resp := api.post(path, nil, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
	resp := api.get("/v1/approvals/ghost", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp = api.post("/v1/approvals/ghost/launch", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", resp.StatusCode)
	}
}

func TestApprovalRequiresOperatorWhenAuthEnabled(t *testing.T) {
	api := newTestAPI(t, true)
	id := api.evaluate(awaitAction)["id"].(string)

	resp := api.post("/v1/approvals/"+id+"/approve", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/approvals/"+id+"/approve", nil, api.token("viewer-1", "viewer"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/approvals/"+id+"/approve", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}

	resp = api.post("/v1/approvals/"+id+"/deny", nil, api.token("ops-lead", auth.RoleOperator))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	res := decode[map[string]any](t, resp)
	if res["status"] != "denied" || res["actor"] != "ops-lead" {
		t.Fatalf("token subject must become the actor: %v", res)
	}
}

func TestLogRecentAndSummary(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.get("/v1/summary", nil, nil)
	sum := decode[map[string]string](t, resp)
	if sum["summary"] != ledger.EmptyDigest {
		t.Fatalf("unexpected empty summary: %q", sum["summary"])
	}

	api.evaluate(map[string]any{"name": "read_file", "description": "read notes"})
	api.evaluate(map[string]any{"name": "disk_cleanup", "description": "format the drive"})

	resp = api.get("/v1/log", url.Values{"recent": []string{"1"}}, nil)
	recent := decode[map[string]any](t, resp)
	if recent["total"].(float64) != 2 || recent["blocked"].(float64) != 1 {
		t.Fatalf("unexpected recent view: %v", recent)
	}
	if items := recent["recent"].([]any); len(items) != 1 {
		t.Fatalf("expected one recent entry, got %d", len(items))
	}

	resp = api.get("/v1/summary", url.Values{"n": []string{"5"}}, nil)
	sum = decode[map[string]string](t, resp)
	if !strings.HasPrefix(sum["summary"], "Total actions logged: 2") {
		t.Fatalf("unexpected summary: %q", sum["summary"])
	}

	resp = api.get("/v1/summary", url.Values{"n": []string{"zero"}}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.get("/healthz", nil, nil)
	h := decode[map[string]any](t, resp)
	if h["status"] != "ok" || h["notifier"] != false || h["version"] != "test" {
		t.Fatalf("unexpected health: %v", h)
	}

	obs.SetReady(false)
	resp = api.get("/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", resp.StatusCode)
	}
	obs.SetReady(true)
	defer obs.SetReady(false)
	resp = api.get("/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = api.get("/openapi.yaml", nil, nil)
	resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/yaml") {
		t.Fatalf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}
}

func TestEventStream(t *testing.T) {
	api := newTestAPI(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ": stream started") {
		t.Fatalf("unexpected preamble %q: %v", line, err)
	}

	ev := api.evaluate(awaitAction)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			var got map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if got["id"] != ev["id"] || got["kind"] != "action.evaluated" {
				t.Fatalf("unexpected event: %v", got)
			}
			return
		}
	}
}
