package ledger

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted by the ledgers.
const (
	EventAgentRegistered     = "AGENT_REGISTERED"
	EventAgentURIUpdated     = "AGENT_URI_UPDATED"
	EventFeedbackSubmitted   = "FEEDBACK_SUBMITTED"
	EventValidationRequested = "VALIDATION_REQUESTED"
	EventValidationSubmitted = "VALIDATION_SUBMITTED"
	EventCategoryChanged     = "CATEGORY_CHANGED"
	EventStakeDeposited      = "STAKE_DEPOSITED"
	EventUnstakeRequested    = "UNSTAKE_REQUESTED"
	EventStakeWithdrawn      = "STAKE_WITHDRAWN"
	EventClaimFiled          = "CLAIM_FILED"
	EventClaimDisputed       = "CLAIM_DISPUTED"
	EventClaimResolved       = "CLAIM_RESOLVED"
	EventBondChanged         = "BOND_CHANGED"
	EventPaused              = "PAUSED"
	EventUnpaused            = "UNPAUSED"
)

// Event is one entry in the ordered outbound journal. Off-ledger consumers
// (indexers, SDKs) poll the journal instead of reading internal tables.
type Event struct {
	Seq     uint64          `json:"seq"`
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	AgentID uint64          `json:"agent_id,omitempty"`
	Actor   string          `json:"actor,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      int64           `json:"at"`
}

// Journal is the process-wide ordered event log. Every successful ledger
// mutation appends exactly one event. An optional sink receives each event
// after it is sequenced, for write-through persistence.
type Journal struct {
	mu     sync.RWMutex
	seq    uint64
	events []Event
	sink   func(Event)
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// SetSink registers a function called with every appended event.
func (j *Journal) SetSink(sink func(Event)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sink = sink
}

// Append sequences and records an event. Payload is marshalled to JSON;
// a payload that cannot marshal is recorded with an empty body rather than
// failing the mutation it describes.
func (j *Journal) Append(kind string, agentID uint64, actor string, payload any, at time.Time) Event {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}

	j.mu.Lock()
	j.seq++
	ev := Event{
		Seq:     j.seq,
		ID:      uuid.New().String(),
		Kind:    kind,
		AgentID: agentID,
		Actor:   actor,
		Payload: raw,
		At:      at.Unix(),
	}
	j.events = append(j.events, ev)
	sink := j.sink
	j.mu.Unlock()

	if sink != nil {
		sink(ev)
	}
	return ev
}

// After returns up to limit events with Seq > seq, in sequence order.
// limit <= 0 means no limit.
func (j *Journal) After(seq uint64, limit int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	// Seq values are dense (1..len), so the slice offset is direct.
	if seq >= j.seq {
		return nil
	}
	out := j.events[seq:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	cp := make([]Event, len(out))
	copy(cp, out)
	return cp
}

// Len returns the number of recorded events.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}

// Restore replaces the journal contents, used when reloading from storage.
func (j *Journal) Restore(events []Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append([]Event(nil), events...)
	j.seq = 0
	if n := len(j.events); n > 0 {
		j.seq = j.events[n-1].Seq
	}
}
