package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/BuilderBenv1/agentproof/internal/ledger"
)

// handleSubmitFeedback appends a feedback record from the signing reviewer.
func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	if s.ident.Paused() {
		writeLedgerError(w, ledger.ErrSystemPaused)
		return
	}
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
		Rating      uint8  `json:"rating"`
		EvidenceURI string `json:"evidence_uri"`
		TaskHash    string `json:"task_hash"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	now := s.clock()
	if err := s.rep.SubmitFeedback(id, req.Rating, req.EvidenceURI, req.TaskHash, caller, now); err != nil {
		writeLedgerError(w, err)
		return
	}
	if s.db != nil {
		rec := ledger.FeedbackRecord{
			AgentID: id, Reviewer: caller, Rating: req.Rating,
			EvidenceURI: req.EvidenceURI, TaskHash: req.TaskHash, At: now,
		}
		if err := s.db.SaveFeedback(rec); err != nil {
			log.Printf("persist feedback for agent %d: %v", id, err)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"agent_id":       id,
		"average_rating": s.rep.AverageRating(id),
		"feedback_count": s.rep.FeedbackCount(id),
	})
}

// handleListFeedback returns all feedback for an agent.
func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	if _, err := s.ident.OwnerOf(id); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":       id,
		"average_rating": s.rep.AverageRating(id),
		"feedback":       s.rep.FeedbackFor(id),
	})
}

// handleRequestValidation opens a validation request for an agent's task.
func (s *Server) handleRequestValidation(w http.ResponseWriter, r *http.Request) {
	if s.ident.Paused() {
		writeLedgerError(w, ledger.ErrSystemPaused)
		return
	}
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
		TaskHash string `json:"task_hash"`
		TaskURI  string `json:"task_uri"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	vid, err := s.val.RequestValidation(id, req.TaskHash, req.TaskURI, caller, s.clock())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if s.db != nil {
		if vr, err := s.val.RequestByID(vid); err == nil {
			if err := s.db.SaveValidationRequest(vr); err != nil {
				log.Printf("persist validation request %d: %v", vid, err)
			}
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"validation_id": vid, "agent_id": id})
}

// handleSubmitValidation records the single response for a request.
func (s *Server) handleSubmitValidation(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.signedCaller(w, r)
	if !ok {
		return
	}
	vid, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid validation id")
		return
	}

	var req struct {
		IsValid  bool   `json:"is_valid"`
		ProofURI string `json:"proof_uri"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.val.SubmitValidation(vid, req.IsValid, req.ProofURI, caller, s.clock()); err != nil {
		writeLedgerError(w, err)
		return
	}
	if s.db != nil {
		if resp, err := s.val.ResponseByID(vid); err == nil {
			if err := s.db.SaveValidationResponse(resp); err != nil {
				log.Printf("persist validation response %d: %v", vid, err)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation_id": vid, "is_valid": req.IsValid})
}

// handleGetValidation returns a request and, if present, its response.
func (s *Server) handleGetValidation(w http.ResponseWriter, r *http.Request) {
	vid, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid validation id")
		return
	}
	req, err := s.val.RequestByID(vid)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := map[string]any{"request": req}
	if resp, err := s.val.ResponseByID(vid); err == nil {
		out["response"] = resp
	} else if !errors.Is(err, ledger.ErrValidationNotFound) {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
