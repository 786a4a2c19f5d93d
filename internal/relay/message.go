// Package relay replicates compact reputation snapshots into other
// administrative domains over an authenticated, push-style message channel.
// The Source answers signed queries from allow-listed domains; the Bridge
// caches the last verified snapshot per agent in its own domain.
package relay

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/BuilderBenv1/agentproof/internal/keys"
)

// Message types.
const (
	MsgRepQuery    = "REP_QUERY"
	MsgRepResponse = "REP_RESPONSE"
	MsgRepError    = "REP_ERROR"
)

// Channel authentication errors. A message failing any of these is dropped
// with no state change.
var (
	ErrDomainNotAllowed     = errors.New("source domain not allow-listed")
	ErrInvalidSourceDomain  = errors.New("invalid source domain")
	ErrInvalidSourceAddress = errors.New("invalid source address")
	ErrNoCachedReputation   = errors.New("no cached reputation for agent")
)

// Message is the signed envelope for all cross-domain traffic. Sender is the
// address derived from PublicKey; Verify rejects envelopes where the two do
// not match, so a sender cannot borrow another identity's address.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Domain    string          `json:"domain"`
	Sender    string          `json:"sender"`
	PublicKey string          `json:"public_key"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature,omitempty"`
}

// signable returns the bytes that are signed.
func (m *Message) signable() []byte {
	return []byte(m.Type + m.ID + m.Domain + m.Sender + strconv.FormatInt(m.Timestamp, 10) + string(m.Payload))
}

// Sign signs the message and attaches the sender's public key.
func (m *Message) Sign(priv ed25519.PrivateKey) {
	pub := priv.Public().(ed25519.PublicKey)
	m.PublicKey = hex.EncodeToString(pub)
	m.Sender = keys.AddressFromPublicKey(pub)
	sig := ed25519.Sign(priv, m.signable())
	m.Signature = hex.EncodeToString(sig)
}

// Verify checks the attached signature and that Sender matches the attached
// public key.
func (m *Message) Verify() error {
	if m.Signature == "" {
		return fmt.Errorf("message has no signature")
	}
	pub, err := hex.DecodeString(m.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key hex")
	}
	if keys.AddressFromPublicKey(pub) != m.Sender {
		return fmt.Errorf("sender does not match public key")
	}
	sig, err := hex.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), m.signable(), sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// Payload types.

// QueryPayload asks the Source for one agent's aggregated reputation.
type QueryPayload struct {
	AgentID uint64 `json:"agent_id"`
}

// SnapshotPayload is the compact reputation snapshot carried by REP_RESPONSE.
type SnapshotPayload struct {
	AgentID               uint64 `json:"agent_id"`
	CompositeScore        uint64 `json:"composite_score"`
	Tier                  string `json:"tier"`
	TotalFeedback         uint64 `json:"total_feedback"`
	ValidationSuccessRate uint64 `json:"validation_success_rate"`
}

// ErrorPayload carries a REP_ERROR reason.
type ErrorPayload struct {
	Error string `json:"error"`
}
