package server

import (
	"encoding/json"
	"net/http"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
)

// handleStake posts collateral for an agent. Owner only.
func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.signedCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	var req struct {
		Tier   string `json:"tier"`
		Amount uint64 `json:"amount"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	tier, ok2 := aggregate.ParseTier(req.Tier)
	if !ok2 {
		writeError(w, http.StatusBadRequest, "unknown tier: "+req.Tier)
		return
	}

	if err := s.pool.Stake(id, tier, req.Amount, caller, s.clock()); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.persistStake(id)
	writeJSON(w, http.StatusCreated, map[string]any{
		"agent_id": id,
		"tier":     tier.String(),
		"amount":   req.Amount,
	})
}

// handleRequestUnstake starts the unstake cooldown.
func (s *Server) handleRequestUnstake(w http.ResponseWriter, r *http.Request) {
	_, caller, ok := s.signedCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	if err := s.pool.RequestUnstake(id, caller, s.clock()); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.persistStake(id)
	writeJSON(w, http.StatusOK, map[string]any{"agent_id": id, "status": "unstake_requested"})
}

// handleUnstake withdraws the stake once the cooldown has elapsed.
func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	_, caller, ok := s.signedCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	if err := s.pool.Unstake(id, caller, s.clock()); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.persistStake(id)
	s.persistBalance(caller)
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": id,
		"status":   "unstaked",
		"balance":  s.balances.BalanceOf(caller),
	})
}

// handleFileClaim opens a claim against an agent's stake.
func (s *Server) handleFileClaim(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.signedCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	var req struct {
		ValidationID uint64 `json:"validation_id"`
		Amount       uint64 `json:"amount"`
		EvidenceURI  string `json:"evidence_uri"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	claimID, err := s.pool.FileClaim(id, req.ValidationID, req.Amount, req.EvidenceURI, caller, s.clock())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.persistClaim(claimID)
	writeJSON(w, http.StatusCreated, map[string]any{"claim_id": claimID, "agent_id": id})
}

// handleDisputeClaim marks a pending claim as disputed. Agent owner only.
func (s *Server) handleDisputeClaim(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.signedCaller(w, r)
	if !ok {
		return
	}
	claimID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	var req struct {
		DisputeURI string `json:"dispute_uri"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.pool.DisputeClaim(claimID, req.DisputeURI, caller, s.clock()); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.persistClaim(claimID)
	writeJSON(w, http.StatusOK, map[string]any{"claim_id": claimID, "status": "disputed"})
}

// handleResolveClaim settles a claim. Arbiter (admin) only.
func (s *Server) handleResolveClaim(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuth(w, r) {
		return
	}
	claimID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	var req struct {
		InFavorOfClaimant bool `json:"in_favor_of_claimant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.pool.ResolveClaim(claimID, req.InFavorOfClaimant, "arbiter", s.clock()); err != nil {
		writeLedgerError(w, err)
		return
	}
	claim, err := s.pool.ClaimByID(claimID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.persistClaim(claimID)
	s.persistStake(claim.AgentID)
	if req.InFavorOfClaimant {
		s.persistBalance(claim.Claimant)
	}
	writeJSON(w, http.StatusOK, map[string]any{"claim_id": claimID, "status": claim.Status})
}

// handleGetClaim returns one claim.
func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}
	claim, err := s.pool.ClaimByID(claimID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claim": claim})
}
