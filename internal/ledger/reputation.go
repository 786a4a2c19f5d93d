package ledger

import (
	"sync"
	"time"
)

// Protocol constants for feedback. Changing either breaks cross-domain
// score reproducibility.
const (
	MinRating      = 1
	MaxRating      = 100
	ReviewerWindow = 24 * time.Hour
)

// FeedbackRecord is one append-only feedback entry.
type FeedbackRecord struct {
	AgentID     uint64    `json:"agent_id"`
	Reviewer    string    `json:"reviewer"`
	Rating      uint8     `json:"rating"`
	EvidenceURI string    `json:"evidence_uri"`
	TaskHash    string    `json:"task_hash"`
	At          time.Time `json:"at"`
}

// ratingAccumulator keeps sum and count so averages are O(1) reads.
type ratingAccumulator struct {
	sum   uint64
	count uint64
}

// Reputation owns per-agent feedback lists and their running accumulators.
type Reputation struct {
	mu       sync.RWMutex
	byAgent  map[uint64][]FeedbackRecord
	acc      map[uint64]ratingAccumulator
	lastSeen map[uint64]map[string]time.Time // agent -> reviewer -> last feedback time

	ident   *Identity
	journal *Journal
}

// NewReputation returns an empty reputation ledger over the given identities.
func NewReputation(ident *Identity, journal *Journal) *Reputation {
	return &Reputation{
		byAgent:  make(map[uint64][]FeedbackRecord),
		acc:      make(map[uint64]ratingAccumulator),
		lastSeen: make(map[uint64]map[string]time.Time),
		ident:    ident,
		journal:  journal,
	}
}

// SubmitFeedback appends a feedback record. A reviewer may not rate an agent
// they own, and may rate the same agent at most once per 24-hour window.
func (l *Reputation) SubmitFeedback(agentID uint64, rating uint8, evidenceURI, taskHash, reviewer string, now time.Time) error {
	owner, err := l.ident.OwnerOf(agentID)
	if err != nil {
		return err
	}
	if reviewer == owner {
		return ErrSelfRating
	}
	if rating < MinRating || rating > MaxRating {
		return ErrRatingOutOfBounds
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastSeen[agentID][reviewer]; ok && now.Sub(last) < ReviewerWindow {
		return ErrRateLimited
	}

	rec := FeedbackRecord{
		AgentID:     agentID,
		Reviewer:    reviewer,
		Rating:      rating,
		EvidenceURI: evidenceURI,
		TaskHash:    taskHash,
		At:          now,
	}
	l.byAgent[agentID] = append(l.byAgent[agentID], rec)
	a := l.acc[agentID]
	a.sum += uint64(rating)
	a.count++
	l.acc[agentID] = a

	if l.lastSeen[agentID] == nil {
		l.lastSeen[agentID] = make(map[string]time.Time)
	}
	l.lastSeen[agentID][reviewer] = now

	l.journal.Append(EventFeedbackSubmitted, agentID, reviewer,
		map[string]any{"rating": rating, "task_hash": taskHash}, now)
	return nil
}

// AverageRating returns the integer-truncated mean rating, 0 with no feedback.
func (l *Reputation) AverageRating(agentID uint64) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a := l.acc[agentID]
	if a.count == 0 {
		return 0
	}
	return a.sum / a.count
}

// RatingSum returns the raw sum of all ratings for an agent.
func (l *Reputation) RatingSum(agentID uint64) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acc[agentID].sum
}

// FeedbackCount returns the number of feedback records for an agent.
func (l *Reputation) FeedbackCount(agentID uint64) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acc[agentID].count
}

// FeedbackAt returns the record at index in submission order.
func (l *Reputation) FeedbackAt(agentID uint64, index uint64) (FeedbackRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := l.byAgent[agentID]
	if index >= uint64(len(recs)) {
		return FeedbackRecord{}, ErrIndexOutOfBounds
	}
	return recs[index], nil
}

// FeedbackFor returns all records for an agent in submission order.
func (l *Reputation) FeedbackFor(agentID uint64) []FeedbackRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]FeedbackRecord(nil), l.byAgent[agentID]...)
}

// Restore replaces ledger state when reloading from storage. Records must be
// in original submission order.
func (l *Reputation) Restore(records []FeedbackRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byAgent = make(map[uint64][]FeedbackRecord)
	l.acc = make(map[uint64]ratingAccumulator)
	l.lastSeen = make(map[uint64]map[string]time.Time)
	for _, rec := range records {
		l.byAgent[rec.AgentID] = append(l.byAgent[rec.AgentID], rec)
		a := l.acc[rec.AgentID]
		a.sum += uint64(rec.Rating)
		a.count++
		l.acc[rec.AgentID] = a
		if l.lastSeen[rec.AgentID] == nil {
			l.lastSeen[rec.AgentID] = make(map[string]time.Time)
		}
		if rec.At.After(l.lastSeen[rec.AgentID][rec.Reviewer]) {
			l.lastSeen[rec.AgentID][rec.Reviewer] = rec.At
		}
	}
}
