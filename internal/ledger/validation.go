package ledger

import (
	"sync"
	"time"
)

// ValidationRequest is a third-party attestation request for one task.
type ValidationRequest struct {
	ID        uint64    `json:"id"`
	AgentID   uint64    `json:"agent_id"`
	TaskHash  string    `json:"task_hash"`
	TaskURI   string    `json:"task_uri"`
	Requester string    `json:"requester"`
	CreatedAt time.Time `json:"created_at"`
	Completed bool      `json:"completed"`
}

// ValidationResponse is the single allowed response to a request.
type ValidationResponse struct {
	ValidationID uint64    `json:"validation_id"`
	Validator    string    `json:"validator"`
	IsValid      bool      `json:"is_valid"`
	ProofURI     string    `json:"proof_uri"`
	At           time.Time `json:"at"`
}

type validationCounters struct {
	completed  uint64
	successful uint64
}

// Validation owns validation requests, their responses, and per-agent
// counters.
type Validation struct {
	mu        sync.RWMutex
	requests  []ValidationRequest // index = ID-1
	responses map[uint64]ValidationResponse
	byAgent   map[uint64][]uint64
	counters  map[uint64]validationCounters

	ident   *Identity
	journal *Journal
}

// NewValidation returns an empty validation ledger over the given identities.
func NewValidation(ident *Identity, journal *Journal) *Validation {
	return &Validation{
		responses: make(map[uint64]ValidationResponse),
		byAgent:   make(map[uint64][]uint64),
		counters:  make(map[uint64]validationCounters),
		ident:     ident,
		journal:   journal,
	}
}

// RequestValidation creates an incomplete request for an existing agent.
// IDs are assigned sequentially from 1.
func (l *Validation) RequestValidation(agentID uint64, taskHash, taskURI, requester string, now time.Time) (uint64, error) {
	if _, err := l.ident.OwnerOf(agentID); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := uint64(len(l.requests)) + 1
	l.requests = append(l.requests, ValidationRequest{
		ID:        id,
		AgentID:   agentID,
		TaskHash:  taskHash,
		TaskURI:   taskURI,
		Requester: requester,
		CreatedAt: now,
	})
	l.byAgent[agentID] = append(l.byAgent[agentID], id)

	l.journal.Append(EventValidationRequested, agentID, requester,
		map[string]any{"validation_id": id, "task_hash": taskHash}, now)
	return id, nil
}

// SubmitValidation records the single response for a request and marks it
// completed. The requester may not validate their own request.
func (l *Validation) SubmitValidation(validationID uint64, isValid bool, proofURI, validator string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if validationID == 0 || validationID > uint64(len(l.requests)) {
		return ErrValidationNotFound
	}
	req := &l.requests[validationID-1]
	if validator == req.Requester {
		return ErrSelfValidation
	}
	if req.Completed {
		return ErrAlreadyValidated
	}

	l.responses[validationID] = ValidationResponse{
		ValidationID: validationID,
		Validator:    validator,
		IsValid:      isValid,
		ProofURI:     proofURI,
		At:           now,
	}
	req.Completed = true

	c := l.counters[req.AgentID]
	c.completed++
	if isValid {
		c.successful++
	}
	l.counters[req.AgentID] = c

	l.journal.Append(EventValidationSubmitted, req.AgentID, validator,
		map[string]any{"validation_id": validationID, "is_valid": isValid}, now)
	return nil
}

// RequestByID returns a copy of the request.
func (l *Validation) RequestByID(validationID uint64) (ValidationRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if validationID == 0 || validationID > uint64(len(l.requests)) {
		return ValidationRequest{}, ErrValidationNotFound
	}
	return l.requests[validationID-1], nil
}

// ResponseByID returns the response for a completed request.
func (l *Validation) ResponseByID(validationID uint64) (ValidationResponse, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	resp, ok := l.responses[validationID]
	if !ok {
		return ValidationResponse{}, ErrValidationNotFound
	}
	return resp, nil
}

// CountsFor returns (total requested, completed, successful) for an agent.
func (l *Validation) CountsFor(agentID uint64) (total, completed, successful uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := l.counters[agentID]
	return uint64(len(l.byAgent[agentID])), c.completed, c.successful
}

// SuccessRate returns floor(successful*100/completed), 0 with nothing
// completed.
func (l *Validation) SuccessRate(agentID uint64) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := l.counters[agentID]
	if c.completed == 0 {
		return 0
	}
	return c.successful * 100 / c.completed
}

// ValidationIDsFor returns request IDs for an agent in insertion order.
func (l *Validation) ValidationIDsFor(agentID uint64) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64(nil), l.byAgent[agentID]...)
}

// Restore replaces ledger state when reloading from storage. Requests must be
// ordered by ID with no gaps; responses reference restored requests.
func (l *Validation) Restore(requests []ValidationRequest, responses []ValidationResponse) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append([]ValidationRequest(nil), requests...)
	l.responses = make(map[uint64]ValidationResponse, len(responses))
	l.byAgent = make(map[uint64][]uint64)
	l.counters = make(map[uint64]validationCounters)
	for _, req := range l.requests {
		l.byAgent[req.AgentID] = append(l.byAgent[req.AgentID], req.ID)
	}
	for _, resp := range responses {
		l.responses[resp.ValidationID] = resp
		if resp.ValidationID == 0 || resp.ValidationID > uint64(len(l.requests)) {
			continue
		}
		agentID := l.requests[resp.ValidationID-1].AgentID
		c := l.counters[agentID]
		c.completed++
		if resp.IsValid {
			c.successful++
		}
		l.counters[agentID] = c
	}
}
