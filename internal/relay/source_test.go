package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
	"github.com/BuilderBenv1/agentproof/internal/ledger"
)

// testSource builds a source over a small populated ledger set: one agent
// ("alice", ID 1) with five 80-ratings and one successful validation.
func testSource(t *testing.T) *Source {
	t.Helper()
	journal := ledger.NewJournal()
	ident := ledger.NewIdentity(100, ledger.NewBalances(), journal)
	rep := ledger.NewReputation(ident, journal)
	val := ledger.NewValidation(ident, journal)
	agg := aggregate.NewService(ident, rep, val, journal)

	id, _, err := ident.Register("alice", "https://a.example", 100, t0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := rep.SubmitFeedback(id, 80, "", "", fmt.Sprintf("reviewer-%d", i), t0); err != nil {
			t.Fatalf("SubmitFeedback: %v", err)
		}
	}
	vid, err := val.RequestValidation(id, "h", "", "bob", t0)
	if err != nil {
		t.Fatalf("RequestValidation: %v", err)
	}
	if err := val.SubmitValidation(vid, true, "", "carol", t0); err != nil {
		t.Fatalf("SubmitValidation: %v", err)
	}

	_, priv := testKey(t)
	src := NewSource("domain-a", priv, agg)
	src.AllowDomain("domain-b")
	return src
}

func TestHandleQueryReturnsSnapshot(t *testing.T) {
	src := testSource(t)
	_, callerKey := testKey(t)

	reply, err := src.HandleQuery(queryMessage(t, callerKey, "domain-b", 1), t0)
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if reply.Type != MsgRepResponse {
		t.Fatalf("reply type = %q, want REP_RESPONSE", reply.Type)
	}
	if reply.Domain != "domain-a" || reply.Sender != src.Address() {
		t.Errorf("reply origin = %q/%q", reply.Domain, reply.Sender)
	}
	if err := reply.Verify(); err != nil {
		t.Errorf("reply does not verify: %v", err)
	}

	var snap SnapshotPayload
	if err := json.Unmarshal(reply.Payload, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.AgentID != 1 || snap.CompositeScore != 80 || snap.TotalFeedback != 5 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Tier != "silver" {
		t.Errorf("tier = %q, want silver (80 avg, 5 reviews)", snap.Tier)
	}
	if snap.ValidationSuccessRate != 100 {
		t.Errorf("success rate = %d, want 100", snap.ValidationSuccessRate)
	}
}

func TestHandleQueryUnknownAgentReturnsError(t *testing.T) {
	src := testSource(t)
	_, callerKey := testKey(t)

	reply, err := src.HandleQuery(queryMessage(t, callerKey, "domain-b", 42), t0)
	if err != nil {
		t.Fatalf("HandleQuery: %v", err)
	}
	if reply.Type != MsgRepError {
		t.Fatalf("reply type = %q, want REP_ERROR", reply.Type)
	}
	var ep ErrorPayload
	if err := json.Unmarshal(reply.Payload, &ep); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if ep.Error == "" {
		t.Errorf("empty error reason")
	}
}

func TestHandleQueryDropsDisallowedDomain(t *testing.T) {
	src := testSource(t)
	_, callerKey := testKey(t)

	reply, err := src.HandleQuery(queryMessage(t, callerKey, "domain-x", 1), t0)
	if !errors.Is(err, ErrDomainNotAllowed) {
		t.Errorf("err = %v, want ErrDomainNotAllowed", err)
	}
	if reply != nil {
		t.Errorf("dropped query produced a reply")
	}
}

func TestHandleQueryDropsTamperedEnvelope(t *testing.T) {
	src := testSource(t)
	_, callerKey := testKey(t)

	msg := queryMessage(t, callerKey, "domain-b", 1)
	msg.Payload = json.RawMessage(`{"agent_id":2}`)
	if _, err := src.HandleQuery(msg, t0); err == nil {
		t.Errorf("tampered query answered")
	}
}

func TestDisallowDomainRevokes(t *testing.T) {
	src := testSource(t)
	_, callerKey := testKey(t)

	src.DisallowDomain("domain-b")
	if src.IsAllowed("domain-b") {
		t.Errorf("domain still allowed after revocation")
	}
	if _, err := src.HandleQuery(queryMessage(t, callerKey, "domain-b", 1), t0); !errors.Is(err, ErrDomainNotAllowed) {
		t.Errorf("err = %v, want ErrDomainNotAllowed", err)
	}
}
