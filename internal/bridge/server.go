// Package bridge exposes a loopback HTTP surface so an external reasoning
// process can take part in a session: it classifies the session during
// Triage, posts observations during Understand, submits the proposal set
// that becomes the plan, reads the plan under review, delivers the approval
// verdict the engine is blocked on, and can abort the session outright.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kingrea/weave/internal/proposal"
	"github.com/kingrea/weave/internal/session"
)

// ProtocolVersion identifies the bridge request/response contract.
const ProtocolVersion = "weave-bridge/1"

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// ErrServerDisabled is returned by Start when the bridge is switched off.
var ErrServerDisabled = errors.New("bridge: server disabled")

// SessionDriver is the slice of engine operations the bridge invokes on
// behalf of the external process. Decisions go through the gate instead, so
// they reach the reviewer the engine is already blocked on.
type SessionDriver interface {
	Triage(complexity string) error
	Observe(text string) error
	BuildPlan(requests []proposal.BuildRequest) error
	Abort(reason string) error
}

// Logger is the minimal logging surface the server needs.
type Logger interface {
	Printf(format string, args ...any)
}

// Server wraps the HTTP listener and handlers backing the decision bridge.
type Server struct {
	settings Settings
	gate     *DecisionGate
	driver   SessionDriver
	logger   Logger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithDriver attaches the session engine behind the driving endpoints.
func WithDriver(driver SessionDriver) Option {
	return func(s *Server) {
		if driver != nil {
			s.driver = driver
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server over the given decision gate.
func NewServer(settings Settings, gate *DecisionGate, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		gate:     gate,
		driver:   nopDriver{},
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the HTTP routing table. Exposed so tests can drive the
// endpoints without a TCP listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/review", s.handleReview)
	mux.HandleFunc("/triage", s.handleTriage)
	mux.HandleFunc("/observations", s.handleObservations)
	mux.HandleFunc("/plan", s.handlePlan)
	mux.HandleFunc("/decisions", s.handleDecisions)
	mux.HandleFunc("/abort", s.handleAbort)
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("bridge: server is nil")
	}
	if !s.settings.Enabled {
		return ErrServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("bridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("bridge: serve error: %v", err)
		}
	}()
	s.logger.Printf("bridge: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	ReviewPending bool   `json:"review_pending"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type triageRequest struct {
	Complexity string `json:"complexity"`
}

type observationRequest struct {
	Text string `json:"text"`
}

type planRequest struct {
	Proposals []proposal.BuildRequest `json:"proposals"`
}

type abortRequest struct {
	Reason string `json:"reason,omitempty"`
}

type decisionRequest struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	_, pending := s.gate.PendingReview()
	resp := healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		ReviewPending: pending,
		UptimeSeconds: s.uptimeSeconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	review, ok := s.gate.PendingReview()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no plan under review"})
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req observationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "observation text is required"})
		return
	}
	if err := s.driver.Observe(req.Text); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req triageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Complexity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "complexity is required"})
		return
	}
	if err := s.driver.Triage(req.Complexity); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Printf("bridge: session triaged as %s", req.Complexity)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req planRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Proposals) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "plan needs at least one proposal"})
		return
	}
	if err := s.driver.BuildPlan(req.Proposals); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Printf("bridge: plan of %d proposals accepted", len(req.Proposals))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req abortRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "aborted over the bridge"
	}
	if err := s.driver.Abort(reason); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Printf("bridge: session aborted: %s", reason)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req decisionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	var verdict session.Verdict
	switch session.Verdict(req.Verdict) {
	case session.VerdictApprove, session.VerdictReject:
		verdict = session.Verdict(req.Verdict)
	case session.VerdictAmend:
		// Amendments carry replacement cards and belong in the TUI.
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amend is not available over the bridge"})
		return
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown verdict %q", req.Verdict)})
		return
	}
	if err := s.gate.Submit(session.Decision{Verdict: verdict, Reason: req.Reason}); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Printf("bridge: decision %s delivered", verdict)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty body"})
		return false
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload exceeds limit"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read body"})
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type nopDriver struct{}

func (nopDriver) Triage(string) error { return errors.New("bridge: no session attached") }

func (nopDriver) Observe(string) error { return errors.New("bridge: no session attached") }

func (nopDriver) BuildPlan([]proposal.BuildRequest) error {
	return errors.New("bridge: no session attached")
}

func (nopDriver) Abort(string) error { return errors.New("bridge: no session attached") }
