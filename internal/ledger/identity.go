// Package ledger implements the authoritative agent registries: identity,
// peer feedback, and task validation. Each ledger is a mutex-guarded arena of
// densely keyed records; every mutating operation checks its preconditions
// against committed state and either fully commits or returns a named error.
package ledger

import (
	"sync"
	"time"
)

// Agent is one registered identity. IDs are assigned sequentially from 1 and
// are never reused; an identity is never destroyed.
type Agent struct {
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`
	URI   string `json:"uri"`
	Bond  uint64 `json:"bond"`
}

// Identity owns the agent table and the anti-sybil bond requirement.
type Identity struct {
	mu           sync.RWMutex
	agents       []Agent // index = ID-1
	byOwner      map[string]uint64
	requiredBond uint64
	paused       bool

	balances *Balances
	journal  *Journal
}

// NewIdentity returns an empty identity ledger. Register refunds excess bond
// into balances.
func NewIdentity(requiredBond uint64, balances *Balances, journal *Journal) *Identity {
	return &Identity{
		byOwner:      make(map[string]uint64),
		requiredBond: requiredBond,
		balances:     balances,
		journal:      journal,
	}
}

// Register creates a new identity for owner. One identity per owner; any
// bond excess above the requirement is credited back to the owner and
// returned as refund.
func (l *Identity) Register(owner, uri string, bond uint64, now time.Time) (id uint64, refund uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return 0, 0, ErrSystemPaused
	}
	if uri == "" {
		return 0, 0, ErrEmptyURI
	}
	if _, exists := l.byOwner[owner]; exists {
		return 0, 0, ErrAlreadyRegistered
	}
	if bond < l.requiredBond {
		return 0, 0, ErrInsufficientBond
	}

	refund = bond - l.requiredBond
	id = uint64(len(l.agents)) + 1
	l.agents = append(l.agents, Agent{ID: id, Owner: owner, URI: uri, Bond: l.requiredBond})
	l.byOwner[owner] = id

	if refund > 0 {
		l.balances.Credit(owner, refund)
	}
	l.journal.Append(EventAgentRegistered, id, owner, map[string]any{"uri": uri, "bond": l.requiredBond}, now)
	return id, refund, nil
}

// UpdateURI replaces an agent's descriptor URI. Owner only.
func (l *Identity) UpdateURI(agentID uint64, newURI, caller string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if agentID == 0 || agentID > uint64(len(l.agents)) {
		return ErrAgentNotFound
	}
	if newURI == "" {
		return ErrEmptyURI
	}
	a := &l.agents[agentID-1]
	if a.Owner != caller {
		return ErrNotOwner
	}
	a.URI = newURI
	l.journal.Append(EventAgentURIUpdated, agentID, caller, map[string]any{"uri": newURI}, now)
	return nil
}

// OwnerOf returns the controlling address of an agent.
func (l *Identity) OwnerOf(agentID uint64) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if agentID == 0 || agentID > uint64(len(l.agents)) {
		return "", ErrAgentNotFound
	}
	return l.agents[agentID-1].Owner, nil
}

// URIOf returns the descriptor URI of an agent.
func (l *Identity) URIOf(agentID uint64) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if agentID == 0 || agentID > uint64(len(l.agents)) {
		return "", ErrAgentNotFound
	}
	return l.agents[agentID-1].URI, nil
}

// BondOf returns the bond held for an agent.
func (l *Identity) BondOf(agentID uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if agentID == 0 || agentID > uint64(len(l.agents)) {
		return 0, ErrAgentNotFound
	}
	return l.agents[agentID-1].Bond, nil
}

// IDOf returns the agent owned by an address, or ErrAgentNotFound.
func (l *Identity) IDOf(owner string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byOwner[owner]
	if !ok {
		return 0, ErrAgentNotFound
	}
	return id, nil
}

// AgentByID returns a copy of the agent record.
func (l *Identity) AgentByID(agentID uint64) (Agent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if agentID == 0 || agentID > uint64(len(l.agents)) {
		return Agent{}, ErrAgentNotFound
	}
	return l.agents[agentID-1], nil
}

// TotalAgents returns the number of registered identities.
func (l *Identity) TotalAgents() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.agents))
}

// RequiredBond returns the current registration bond.
func (l *Identity) RequiredBond() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.requiredBond
}

// SetRequiredBond changes the bond required for future registrations.
func (l *Identity) SetRequiredBond(amount uint64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requiredBond = amount
	l.journal.Append(EventBondChanged, 0, "", map[string]any{"required_bond": amount}, now)
}

// Pause halts registration network-wide. Reads stay available.
func (l *Identity) Pause(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		l.paused = true
		l.journal.Append(EventPaused, 0, "", nil, now)
	}
}

// Unpause re-enables registration.
func (l *Identity) Unpause(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		l.paused = false
		l.journal.Append(EventUnpaused, 0, "", nil, now)
	}
}

// Paused reports whether the registry is paused.
func (l *Identity) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused
}

// Restore replaces ledger state when reloading from storage. Agents must be
// ordered by ID with no gaps.
func (l *Identity) Restore(agents []Agent, requiredBond uint64, paused bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.agents = append([]Agent(nil), agents...)
	l.byOwner = make(map[string]uint64, len(agents))
	for _, a := range agents {
		l.byOwner[a.Owner] = a.ID
	}
	l.requiredBond = requiredBond
	l.paused = paused
}
