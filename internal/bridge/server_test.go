package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kingrea/weave/internal/proposal"
	"github.com/kingrea/weave/internal/session"
)

// stubDriver records engine calls made on behalf of the external process.
type stubDriver struct {
	triaged  string
	observed string
	planned  []proposal.BuildRequest
	aborted  string
	err      error
}

func (d *stubDriver) Triage(complexity string) error {
	d.triaged = complexity
	return d.err
}

func (d *stubDriver) Observe(text string) error {
	d.observed = text
	return d.err
}

func (d *stubDriver) BuildPlan(requests []proposal.BuildRequest) error {
	d.planned = requests
	return d.err
}

func (d *stubDriver) Abort(reason string) error {
	d.aborted = reason
	return d.err
}

func newTestServer(t *testing.T, gate *DecisionGate, driver SessionDriver) *httptest.Server {
	t.Helper()
	settings := SettingsFromConfig(nil)
	opts := []Option{}
	if driver != nil {
		opts = append(opts, WithDriver(driver))
	}
	server := httptest.NewServer(NewServer(settings, gate, opts...).Handler())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthReportsProtocolVersion(t *testing.T) {
	srv := newTestServer(t, NewDecisionGate(), nil)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Version != ProtocolVersion {
		t.Fatalf("version = %q, want %q", health.Version, ProtocolVersion)
	}
	if health.ReviewPending {
		t.Fatalf("no review should be pending")
	}
}

func TestObservationsForwardToDriver(t *testing.T) {
	driver := &stubDriver{}
	srv := newTestServer(t, NewDecisionGate(), driver)

	resp := postJSON(t, srv.URL+"/observations", map[string]string{"text": "the span has drifted"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if driver.observed != "the span has drifted" {
		t.Fatalf("driver received %q", driver.observed)
	}

	resp = postJSON(t, srv.URL+"/observations", map[string]string{"text": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty observation should be rejected, got %d", resp.StatusCode)
	}
}

func TestDriverErrorsMapToConflict(t *testing.T) {
	driver := &stubDriver{err: fmt.Errorf("session: cannot observe during plan phase")}
	srv := newTestServer(t, NewDecisionGate(), driver)
	resp := postJSON(t, srv.URL+"/observations", map[string]string{"text": "too late"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want conflict", resp.StatusCode)
	}
}

func TestTriageClassifiesOverBridge(t *testing.T) {
	driver := &stubDriver{}
	srv := newTestServer(t, NewDecisionGate(), driver)

	resp := postJSON(t, srv.URL+"/triage", map[string]string{"complexity": "complex"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if driver.triaged != "complex" {
		t.Fatalf("driver triaged %q", driver.triaged)
	}

	resp = postJSON(t, srv.URL+"/triage", map[string]string{"complexity": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty complexity should be rejected, got %d", resp.StatusCode)
	}
}

func TestPlanSubmitsProposals(t *testing.T) {
	driver := &stubDriver{}
	srv := newTestServer(t, NewDecisionGate(), driver)

	payload := map[string]any{
		"proposals": []map[string]any{{
			"scope":       map[string]string{"document_id": "ADR-100", "section": "Context"},
			"problem":     "section contradicts the decision",
			"technique":   "contradiction-removal",
			"before_text": "beta",
			"after_text":  "BETA",
			"span":        map[string]int{"start": 6, "end": 10},
		}},
	}
	resp := postJSON(t, srv.URL+"/plan", payload)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(driver.planned) != 1 {
		t.Fatalf("driver received %d proposals", len(driver.planned))
	}
	got := driver.planned[0]
	if got.Scope.DocumentID != "ADR-100" || got.Span.Start != 6 || got.BeforeText != "beta" {
		t.Fatalf("proposal decoded wrong: %+v", got)
	}

	resp = postJSON(t, srv.URL+"/plan", map[string]any{"proposals": []any{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty plan should be rejected, got %d", resp.StatusCode)
	}
}

func TestAbortOverBridge(t *testing.T) {
	driver := &stubDriver{}
	srv := newTestServer(t, NewDecisionGate(), driver)

	resp := postJSON(t, srv.URL+"/abort", map[string]string{"reason": "plan overtaken by events"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if driver.aborted != "plan overtaken by events" {
		t.Fatalf("driver aborted %q", driver.aborted)
	}

	// An omitted reason still carries a usable audit string.
	resp = postJSON(t, srv.URL+"/abort", map[string]string{})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if driver.aborted == "" {
		t.Fatalf("abort reason should default, got empty")
	}
}

func TestDecisionUnblocksReview(t *testing.T) {
	gate := NewDecisionGate()
	srv := newTestServer(t, gate, nil)

	review := session.PlanReview{
		SessionID: "session-1",
		Cards:     []proposal.Card{{ID: "card-1", Status: proposal.StatusPending}},
	}
	type reviewResult struct {
		decision session.Decision
		err      error
	}
	done := make(chan reviewResult, 1)
	go func() {
		decision, err := gate.Review(context.Background(), review)
		done <- reviewResult{decision, err}
	}()

	// Wait until the review is visible over the bridge.
	deadline := time.After(2 * time.Second)
	for {
		if _, pending := gate.PendingReview(); pending {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("review never became pending")
		case <-time.After(5 * time.Millisecond):
		}
	}

	resp, err := http.Get(srv.URL + "/review")
	if err != nil {
		t.Fatalf("get review: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review status = %d", resp.StatusCode)
	}
	var fetched session.PlanReview
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode review: %v", err)
	}
	if fetched.SessionID != "session-1" || len(fetched.Cards) != 1 {
		t.Fatalf("fetched review mismatch: %+v", fetched)
	}

	resp = postJSON(t, srv.URL+"/decisions", map[string]string{"verdict": "approve"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("decision status = %d", resp.StatusCode)
	}

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("review returned error: %v", result.err)
		}
		if result.decision.Verdict != session.VerdictApprove {
			t.Fatalf("verdict = %s", result.decision.Verdict)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("review never unblocked")
	}
}

func TestDecisionWithoutReviewConflicts(t *testing.T) {
	srv := newTestServer(t, NewDecisionGate(), nil)
	resp := postJSON(t, srv.URL+"/decisions", map[string]string{"verdict": "reject"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want conflict", resp.StatusCode)
	}
}

func TestAmendRejectedOverBridge(t *testing.T) {
	gate := NewDecisionGate()
	srv := newTestServer(t, gate, nil)
	resp := postJSON(t, srv.URL+"/decisions", map[string]string{"verdict": "amend"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want bad request", resp.StatusCode)
	}
}

func TestReviewCancellation(t *testing.T) {
	gate := NewDecisionGate()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := gate.Review(ctx, session.PlanReview{SessionID: "session-1"})
		done <- err
	}()
	for {
		if _, pending := gate.PendingReview(); pending {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("cancelled review should return the context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("review never returned after cancel")
	}
	if _, pending := gate.PendingReview(); pending {
		t.Fatalf("cancelled review must clear the gate")
	}
}

func TestSettingsEnvOverrides(t *testing.T) {
	t.Setenv("WEAVE_BRIDGE_ENABLED", "false")
	t.Setenv("WEAVE_BRIDGE_HOST", "0.0.0.0")
	t.Setenv("WEAVE_BRIDGE_PORT", "9001")
	settings := SettingsFromConfig(nil)
	if settings.Enabled {
		t.Fatalf("env should disable the bridge")
	}
	if settings.Host != "0.0.0.0" || settings.Port != 9001 {
		t.Fatalf("env overrides lost: %+v", settings)
	}
	if settings.Address() != "0.0.0.0:9001" {
		t.Fatalf("address = %s", settings.Address())
	}
}
