// Package aggregate composes the identity, reputation, and validation
// ledgers into read models: the per-agent profile, the rating-ordered
// ranking, the category index, and the tier tables.
package aggregate

import (
	"sort"
	"sync"
	"time"

	"github.com/BuilderBenv1/agentproof/internal/ledger"
)

// AgentProfile is the public read shape consumers depend on. It is computed
// from the ledgers on every read and never independently mutated.
type AgentProfile struct {
	AgentID               uint64 `json:"agentId"`
	Owner                 string `json:"owner"`
	AgentURI              string `json:"agentURI"`
	FeedbackCount         uint64 `json:"feedbackCount"`
	AverageRating         uint64 `json:"averageRating"`
	ValidationSuccessRate uint64 `json:"validationSuccessRate"`
	TotalValidations      uint64 `json:"totalValidations"`
	CompletedValidations  uint64 `json:"completedValidations"`
	SuccessfulValidations uint64 `json:"successfulValidations"`
	Tier                  string `json:"tier"`
	Category              string `json:"category,omitempty"`
}

// RankedAgent is one entry in the TopAgents ranking.
type RankedAgent struct {
	AgentID       uint64 `json:"agentId"`
	AverageRating uint64 `json:"averageRating"`
}

// Service joins the three ledgers. The category index is the only state it
// owns.
type Service struct {
	ident *ledger.Identity
	rep   *ledger.Reputation
	val   *ledger.Validation

	mu         sync.RWMutex
	categories map[string]map[uint64]struct{}
	byAgent    map[uint64]string

	journal *ledger.Journal
}

// NewService returns an aggregation service over the given ledgers.
func NewService(ident *ledger.Identity, rep *ledger.Reputation, val *ledger.Validation, journal *ledger.Journal) *Service {
	return &Service{
		ident:      ident,
		rep:        rep,
		val:        val,
		categories: make(map[string]map[uint64]struct{}),
		byAgent:    make(map[uint64]string),
		journal:    journal,
	}
}

// ProfileOf builds the live profile for an agent. No caching: the result is
// always consistent with the ledgers at read time.
func (s *Service) ProfileOf(agentID uint64) (AgentProfile, error) {
	agent, err := s.ident.AgentByID(agentID)
	if err != nil {
		return AgentProfile{}, err
	}
	total, completed, successful := s.val.CountsFor(agentID)
	avg := s.rep.AverageRating(agentID)
	count := s.rep.FeedbackCount(agentID)

	return AgentProfile{
		AgentID:               agent.ID,
		Owner:                 agent.Owner,
		AgentURI:              agent.URI,
		FeedbackCount:         count,
		AverageRating:         avg,
		ValidationSuccessRate: s.val.SuccessRate(agentID),
		TotalValidations:      total,
		CompletedValidations:  completed,
		SuccessfulValidations: successful,
		Tier:                  TierFor(avg, count).String(),
		Category:              s.CategoryOf(agentID),
	}, nil
}

// TopAgents returns the n highest-rated agents, ties broken by lower agent
// ID (earlier registration wins). n beyond the population returns everyone.
func (s *Service) TopAgents(n int) []RankedAgent {
	total := s.ident.TotalAgents()
	ranked := make([]RankedAgent, 0, total)
	for id := uint64(1); id <= total; id++ {
		ranked = append(ranked, RankedAgent{AgentID: id, AverageRating: s.rep.AverageRating(id)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AverageRating != ranked[j].AverageRating {
			return ranked[i].AverageRating > ranked[j].AverageRating
		}
		return ranked[i].AgentID < ranked[j].AgentID
	})
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// SetCategory assigns an agent to a category. Owner only. An agent belongs
// to at most one category; reassignment removes it from the previous set
// first, so repeated calls are idempotent and the index never holds
// duplicates.
func (s *Service) SetCategory(agentID uint64, category, caller string, now time.Time) error {
	owner, err := s.ident.OwnerOf(agentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return ledger.ErrNotOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byAgent[agentID]; ok {
		delete(s.categories[prev], agentID)
		if len(s.categories[prev]) == 0 {
			delete(s.categories, prev)
		}
	}
	if s.categories[category] == nil {
		s.categories[category] = make(map[uint64]struct{})
	}
	s.categories[category][agentID] = struct{}{}
	s.byAgent[agentID] = category

	s.journal.Append(ledger.EventCategoryChanged, agentID, caller,
		map[string]any{"category": category}, now)
	return nil
}

// CategoryOf returns the agent's category, empty if unassigned.
func (s *Service) CategoryOf(agentID uint64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byAgent[agentID]
}

// AgentsByCategory returns the member IDs in ascending order. An unknown
// category yields an empty slice, never an error.
func (s *Service) AgentsByCategory(category string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.categories[category]
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RestoreCategories replaces the category index when reloading from storage.
func (s *Service) RestoreCategories(byAgent map[uint64]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = make(map[string]map[uint64]struct{})
	s.byAgent = make(map[uint64]string, len(byAgent))
	for id, cat := range byAgent {
		if s.categories[cat] == nil {
			s.categories[cat] = make(map[uint64]struct{})
		}
		s.categories[cat][id] = struct{}{}
		s.byAgent[id] = cat
	}
}
