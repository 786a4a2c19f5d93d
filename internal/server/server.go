// Package server exposes the ledgers over HTTP. Writer endpoints are
// Ed25519-signed; the caller address is derived from the signing key, so
// owner/reviewer/validator identities are authenticated, not claimed.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
	"github.com/BuilderBenv1/agentproof/internal/crypto"
	"github.com/BuilderBenv1/agentproof/internal/insurance"
	"github.com/BuilderBenv1/agentproof/internal/keys"
	"github.com/BuilderBenv1/agentproof/internal/ledger"
	"github.com/BuilderBenv1/agentproof/internal/ratelimit"
	"github.com/BuilderBenv1/agentproof/internal/relay"
	"github.com/BuilderBenv1/agentproof/internal/storage"
)

// Server is the main HTTP server for the agentproof API.
type Server struct {
	ident    *ledger.Identity
	rep      *ledger.Reputation
	val      *ledger.Validation
	agg      *aggregate.Service
	pool     *insurance.Pool
	balances *ledger.Balances
	journal  *ledger.Journal

	db        *storage.DB // nil disables persistence
	source    *relay.Source
	adminHash []byte
	limiter   *ratelimit.Keyed
	mux       *http.ServeMux
	clock     func() time.Time
}

// Config bundles the collaborators the server exposes.
type Config struct {
	Identity    *ledger.Identity
	Reputation  *ledger.Reputation
	Validation  *ledger.Validation
	Aggregate   *aggregate.Service
	Pool        *insurance.Pool
	Balances    *ledger.Balances
	Journal     *ledger.Journal
	DB          *storage.DB
	Source      *relay.Source
	AdminSecret string
}

// New creates a Server with all routes registered.
func New(cfg Config) *Server {
	s := &Server{
		ident:     cfg.Identity,
		rep:       cfg.Reputation,
		val:       cfg.Validation,
		agg:       cfg.Aggregate,
		pool:      cfg.Pool,
		balances:  cfg.Balances,
		journal:   cfg.Journal,
		db:        cfg.DB,
		source:    cfg.Source,
		adminHash: crypto.HashSecret(cfg.AdminSecret),
		limiter:   ratelimit.NewKeyed(120, time.Minute),
		mux:       http.NewServeMux(),
		clock:     time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Identity
	s.mux.HandleFunc("POST /api/agents", s.handleRegister)
	s.mux.HandleFunc("PUT /api/agents/{id}/uri", s.handleUpdateURI)
	s.mux.HandleFunc("GET /api/agents/{id}", s.handleProfile)
	s.mux.HandleFunc("GET /api/agents/top", s.handleTopAgents)
	s.mux.HandleFunc("GET /api/agents", s.handleAgentsByCategory)
	s.mux.HandleFunc("POST /api/agents/{id}/category", s.handleSetCategory)

	// Reputation
	s.mux.HandleFunc("POST /api/agents/{id}/feedback", s.handleSubmitFeedback)
	s.mux.HandleFunc("GET /api/agents/{id}/feedback", s.handleListFeedback)

	// Validation
	s.mux.HandleFunc("POST /api/agents/{id}/validations", s.handleRequestValidation)
	s.mux.HandleFunc("POST /api/validations/{id}/response", s.handleSubmitValidation)
	s.mux.HandleFunc("GET /api/validations/{id}", s.handleGetValidation)

	// Insurance
	s.mux.HandleFunc("POST /api/agents/{id}/stake", s.handleStake)
	s.mux.HandleFunc("POST /api/agents/{id}/unstake-request", s.handleRequestUnstake)
	s.mux.HandleFunc("POST /api/agents/{id}/unstake", s.handleUnstake)
	s.mux.HandleFunc("POST /api/agents/{id}/claims", s.handleFileClaim)
	s.mux.HandleFunc("POST /api/claims/{id}/dispute", s.handleDisputeClaim)
	s.mux.HandleFunc("POST /api/claims/{id}/resolve", s.handleResolveClaim)
	s.mux.HandleFunc("GET /api/claims/{id}", s.handleGetClaim)

	// Escrow and journal
	s.mux.HandleFunc("GET /api/balances/{address}", s.handleBalance)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)

	// Admin
	s.mux.HandleFunc("POST /api/admin/bond", s.handleSetBond)
	s.mux.HandleFunc("POST /api/admin/pause", s.handlePause)
	s.mux.HandleFunc("POST /api/admin/unpause", s.handleUnpause)
	s.mux.HandleFunc("POST /api/admin/relay/allow", s.handleAllowDomain)
	s.mux.HandleFunc("POST /api/admin/relay/disallow", s.handleDisallowDomain)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "agentproof",
		"agents":  s.ident.TotalAgents(),
		"paused":  s.ident.Paused(),
	})
}

// handleEvents returns journal events after a sequence number.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	events := s.journal.After(after, limit)
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleBalance returns the escrow balance for an address.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": s.balances.BalanceOf(addr),
	})
}

// ---------------------------------------------------------------------------
// Admin handlers
// ---------------------------------------------------------------------------

// adminAuth checks the X-Admin-Secret header against the stored hash.
func (s *Server) adminAuth(w http.ResponseWriter, r *http.Request) bool {
	if !crypto.VerifySecret(r.Header.Get("X-Admin-Secret"), s.adminHash) {
		writeError(w, http.StatusUnauthorized, "invalid admin secret")
		return false
	}
	return true
}

func (s *Server) handleSetBond(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	var req struct {
		RequiredBond uint64 `json:"required_bond"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s.ident.SetRequiredBond(req.RequiredBond, s.clock())
	s.persistConfig()
	writeJSON(w, http.StatusOK, map[string]uint64{"required_bond": req.RequiredBond})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	s.ident.Pause(s.clock())
	s.persistConfig()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	s.ident.Unpause(s.clock())
	s.persistConfig()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleAllowDomain(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	if s.source == nil {
		writeError(w, http.StatusNotFound, "relay source not enabled")
		return
	}
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain required")
		return
	}
	s.source.AllowDomain(req.Domain)
	writeJSON(w, http.StatusOK, map[string]string{"status": "allowed", "domain": req.Domain})
}

func (s *Server) handleDisallowDomain(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	if s.source == nil {
		writeError(w, http.StatusNotFound, "relay source not enabled")
		return
	}
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain required")
		return
	}
	s.source.DisallowDomain(req.Domain)
	writeJSON(w, http.StatusOK, map[string]string{"status": "disallowed", "domain": req.Domain})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// signedCaller reads the body, verifies the request signature, and applies
// the per-caller rate limit. On failure it writes the HTTP error and returns
// ok=false.
func (s *Server) signedCaller(w http.ResponseWriter, r *http.Request) (body []byte, caller string, ok bool) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, "", false
	}
	caller, err = keys.VerifyRequest(r, body)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "signature verification failed: "+err.Error())
		return nil, "", false
	}
	if !s.limiter.Allow(caller) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return nil, "", false
	}
	return body, caller, true
}

// readBody reads the full request body. The body bytes are needed for
// signature verification before JSON decoding.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// pathID parses the {id} path segment as an unsigned integer.
func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and
// message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLedgerError maps a ledger error to its HTTP status per the error
// taxonomy: input 400, authorization 403, state conflict 409, not found 404,
// paused 503.
func writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrEmptyURI),
		errors.Is(err, ledger.ErrRatingOutOfBounds),
		errors.Is(err, ledger.ErrIndexOutOfBounds),
		errors.Is(err, ledger.ErrInsufficientBond),
		errors.Is(err, insurance.ErrBelowMinimum):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotOwner),
		errors.Is(err, ledger.ErrSelfRating),
		errors.Is(err, ledger.ErrSelfValidation):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrAlreadyRegistered),
		errors.Is(err, ledger.ErrAlreadyValidated),
		errors.Is(err, ledger.ErrRateLimited),
		errors.Is(err, insurance.ErrAlreadyStaked),
		errors.Is(err, insurance.ErrNotStaked),
		errors.Is(err, insurance.ErrHasPendingClaims),
		errors.Is(err, insurance.ErrUnstakeNotRequested),
		errors.Is(err, insurance.ErrCooldownNotElapsed),
		errors.Is(err, insurance.ErrClaimNotEligible),
		errors.Is(err, insurance.ErrClaimExceedsStake),
		errors.Is(err, insurance.ErrClaimNotPending),
		errors.Is(err, insurance.ErrClaimResolved):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrAgentNotFound),
		errors.Is(err, ledger.ErrValidationNotFound),
		errors.Is(err, insurance.ErrClaimNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrSystemPaused):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// ---------------------------------------------------------------------------
// Write-through persistence (best-effort; the in-memory ledgers are
// authoritative, failures are logged)
// ---------------------------------------------------------------------------

func (s *Server) persistConfig() {
	if s.db == nil {
		return
	}
	if err := s.db.SaveConfig(s.ident.RequiredBond(), s.ident.Paused()); err != nil {
		log.Printf("persist config: %v", err)
	}
}

func (s *Server) persistAgent(agentID uint64) {
	if s.db == nil {
		return
	}
	agent, err := s.ident.AgentByID(agentID)
	if err != nil {
		return
	}
	if err := s.db.SaveAgent(agent); err != nil {
		log.Printf("persist agent %d: %v", agentID, err)
	}
}

func (s *Server) persistBalance(addr string) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveBalance(addr, s.balances.BalanceOf(addr)); err != nil {
		log.Printf("persist balance %s: %v", addr, err)
	}
}

func (s *Server) persistStake(agentID uint64) {
	if s.db == nil {
		return
	}
	st, err := s.pool.StakeOf(agentID)
	if err != nil {
		return
	}
	if err := s.db.SaveStake(st); err != nil {
		log.Printf("persist stake %d: %v", agentID, err)
	}
}

func (s *Server) persistClaim(claimID uint64) {
	if s.db == nil {
		return
	}
	c, err := s.pool.ClaimByID(claimID)
	if err != nil {
		return
	}
	if err := s.db.SaveClaim(c); err != nil {
		log.Printf("persist claim %d: %v", claimID, err)
	}
}
