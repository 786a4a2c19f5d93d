package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
)

// Snapshot is the bridge-side cached copy of one agent's aggregated
// reputation. ReceivedAt is the bridge's local clock at cache write.
type Snapshot struct {
	AgentID               uint64    `json:"agentId"`
	CompositeScore        uint64    `json:"compositeScore"`
	Tier                  string    `json:"tier"`
	TotalFeedback         uint64    `json:"totalFeedback"`
	ValidationSuccessRate uint64    `json:"validationSuccessRate"`
	ReceivedAt            time.Time `json:"receivedAt"`
}

// Bridge caches verified snapshots in a remote domain. Its trust surface is
// exactly one sender identity: messages must carry the configured upstream
// domain and address or they are dropped. Cache updates are last-write-wins;
// callers needing strict recency use IsReputationFresh.
type Bridge struct {
	domain         string
	upstreamDomain string
	upstreamAddr   string

	mu        sync.RWMutex
	snapshots map[uint64]Snapshot
}

// NewBridge returns a bridge for the local domain configured with its single
// upstream source.
func NewBridge(domain, upstreamDomain, upstreamAddr string) *Bridge {
	return &Bridge{
		domain:         domain,
		upstreamDomain: upstreamDomain,
		upstreamAddr:   upstreamAddr,
		snapshots:      make(map[uint64]Snapshot),
	}
}

// Authorize is the pure channel-authentication check for inbound messages:
// source domain, source address, then signature.
func (b *Bridge) Authorize(msg *Message) error {
	if msg.Domain != b.upstreamDomain {
		return ErrInvalidSourceDomain
	}
	if msg.Sender != b.upstreamAddr {
		return ErrInvalidSourceAddress
	}
	return msg.Verify()
}

// HandleMessage verifies an inbound message and, for REP_RESPONSE, overwrites
// the cached snapshot for that agent. Any failure drops the message with no
// state change.
func (b *Bridge) HandleMessage(msg *Message, now time.Time) error {
	if err := b.Authorize(msg); err != nil {
		return err
	}

	switch msg.Type {
	case MsgRepResponse:
		var snap SnapshotPayload
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			return errors.New("malformed snapshot payload")
		}
		b.mu.Lock()
		b.snapshots[snap.AgentID] = Snapshot{
			AgentID:               snap.AgentID,
			CompositeScore:        snap.CompositeScore,
			Tier:                  snap.Tier,
			TotalFeedback:         snap.TotalFeedback,
			ValidationSuccessRate: snap.ValidationSuccessRate,
			ReceivedAt:            now,
		}
		b.mu.Unlock()
		return nil
	case MsgRepError:
		// Authenticated but negative; nothing to cache.
		return nil
	default:
		return errors.New("unexpected message type: " + msg.Type)
	}
}

// GetReputation returns the cached snapshot for an agent.
func (b *Bridge) GetReputation(agentID uint64) (Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.snapshots[agentID]
	if !ok {
		return Snapshot{}, ErrNoCachedReputation
	}
	return snap, nil
}

// IsReputationFresh reports whether the cached snapshot is at most
// maxAgeSeconds old.
func (b *Bridge) IsReputationFresh(agentID uint64, maxAgeSeconds int64, now time.Time) (bool, error) {
	snap, err := b.GetReputation(agentID)
	if err != nil {
		return false, err
	}
	return now.Sub(snap.ReceivedAt) <= time.Duration(maxAgeSeconds)*time.Second, nil
}

// IsMinimumTier reports whether the cached tier is at least required, under
// the fixed tier ordering.
func (b *Bridge) IsMinimumTier(agentID uint64, required aggregate.Tier) (bool, error) {
	snap, err := b.GetReputation(agentID)
	if err != nil {
		return false, err
	}
	cached, _ := aggregate.ParseTier(snap.Tier)
	return cached >= required, nil
}

// SnapshotCount returns the number of cached snapshots.
func (b *Bridge) SnapshotCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.snapshots)
}
