package relay

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
	"github.com/BuilderBenv1/agentproof/internal/keys"
	"github.com/BuilderBenv1/agentproof/internal/ledger"
)

// Source answers authenticated cross-domain reputation queries from the
// aggregation service. It never originates state; a query from a domain
// outside the allow-list is dropped before any reply is computed.
type Source struct {
	domain string
	key    ed25519.PrivateKey
	agg    *aggregate.Service

	mu      sync.RWMutex
	allowed map[string]bool
}

// NewSource returns a relay source for the local domain.
func NewSource(domain string, key ed25519.PrivateKey, agg *aggregate.Service) *Source {
	return &Source{
		domain:  domain,
		key:     key,
		agg:     agg,
		allowed: make(map[string]bool),
	}
}

// AllowDomain adds a domain identifier to the allow-list.
func (s *Source) AllowDomain(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[domain] = true
}

// DisallowDomain removes a domain identifier from the allow-list.
func (s *Source) DisallowDomain(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allowed, domain)
}

// IsAllowed reports whether a domain is allow-listed.
func (s *Source) IsAllowed(domain string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowed[domain]
}

// Authorize is the pure channel-authentication check for inbound queries:
// the sender's domain must be allow-listed and the envelope signature valid.
func (s *Source) Authorize(msg *Message) error {
	if !s.IsAllowed(msg.Domain) {
		return ErrDomainNotAllowed
	}
	return msg.Verify()
}

// HandleQuery processes one inbound REP_QUERY and returns the signed reply
// to emit, or an error if the message fails authentication (in which case it
// is dropped and no reply is sent).
func (s *Source) HandleQuery(msg *Message, now time.Time) (*Message, error) {
	if msg.Type != MsgRepQuery {
		return nil, errors.New("unexpected message type: " + msg.Type)
	}
	if err := s.Authorize(msg); err != nil {
		return nil, err
	}

	var q QueryPayload
	if err := json.Unmarshal(msg.Payload, &q); err != nil {
		return nil, errors.New("malformed query payload")
	}

	profile, err := s.agg.ProfileOf(q.AgentID)
	if err != nil {
		if errors.Is(err, ledger.ErrAgentNotFound) {
			return s.reply(MsgRepError, ErrorPayload{Error: err.Error()}, now), nil
		}
		return nil, err
	}

	// Composite score is the raw average rating; any smoothed blend belongs
	// in a downstream read model, not here.
	snap := SnapshotPayload{
		AgentID:               profile.AgentID,
		CompositeScore:        profile.AverageRating,
		Tier:                  profile.Tier,
		TotalFeedback:         profile.FeedbackCount,
		ValidationSuccessRate: profile.ValidationSuccessRate,
	}
	return s.reply(MsgRepResponse, snap, now), nil
}

// reply builds and signs an outbound message.
func (s *Source) reply(msgType string, payload any, now time.Time) *Message {
	raw, _ := json.Marshal(payload)
	msg := &Message{
		Type:      msgType,
		ID:        uuid.New().String(),
		Domain:    s.domain,
		Timestamp: now.Unix(),
		Payload:   raw,
	}
	msg.Sign(s.key)
	return msg
}

// Address returns the source's sender address.
func (s *Source) Address() string {
	return keys.AddressFromPublicKey(s.key.Public().(ed25519.PublicKey))
}
