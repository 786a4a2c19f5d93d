package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

// handleRegister creates a new agent identity for the signing caller.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.signedCaller(w, r)
	if !ok {
		return
	}

	var req struct {
		URI  string `json:"uri"`
		Bond uint64 `json:"bond"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	id, refund, err := s.ident.Register(caller, req.URI, req.Bond, s.clock())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.persistAgent(id)
	if refund > 0 {
		s.persistBalance(caller)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"agent_id": id,
		"owner":    caller,
		"refund":   refund,
	})
}

// handleUpdateURI replaces an agent's descriptor URI.
func (s *Server) handleUpdateURI(w http.ResponseWriter, r *http.Request) {
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
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.ident.UpdateURI(id, req.URI, caller, s.clock()); err != nil {
		writeLedgerError(w, err)
		return
	}
	if s.db != nil {
		if err := s.db.UpdateAgentURI(id, req.URI); err != nil {
			log.Printf("persist agent uri %d: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent_id": id, "uri": req.URI})
}

// handleProfile returns the aggregated profile for an agent.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	profile, err := s.agg.ProfileOf(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	profile.Category = s.agg.CategoryOf(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": profile,
		"insured": s.pool.IsInsured(id),
	})
}

// handleTopAgents returns the n highest-rated agents.
func (s *Server) handleTopAgents(w http.ResponseWriter, r *http.Request) {
	n := 10
	if q := r.URL.Query().Get("n"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid n")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.agg.TopAgents(n)})
}

// handleAgentsByCategory lists agents in a category.
func (s *Server) handleAgentsByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category query parameter required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"agents":   s.agg.AgentsByCategory(category),
	})
}

// handleSetCategory assigns the agent to a category. Owner only.
func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
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
		Category string `json:"category"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Category == "" {
		writeError(w, http.StatusBadRequest, "category required")
		return
	}

	if err := s.agg.SetCategory(id, req.Category, caller, s.clock()); err != nil {
		writeLedgerError(w, err)
		return
	}
	if s.db != nil {
		if err := s.db.SaveCategory(id, req.Category); err != nil {
			log.Printf("persist category %d: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent_id": id, "category": req.Category})
}
