package storage

import (
	"testing"
	"time"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
	"github.com/BuilderBenv1/agentproof/internal/insurance"
	"github.com/BuilderBenv1/agentproof/internal/ledger"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// seedDBAgent inserts one agent row and returns it.
func seedDBAgent(t *testing.T, db *DB) ledger.Agent {
	t.Helper()
	a := ledger.Agent{ID: 1, Owner: "alice-addr", URI: "https://a.example", Bond: 100}
	if err := db.SaveAgent(a); err != nil {
		t.Fatalf("seedDBAgent: %v", err)
	}
	return a
}

func TestConfigMissingRow(t *testing.T) {
	db := testDB(t)

	_, _, found, err := db.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if found {
		t.Errorf("found = true on empty db")
	}
}

func TestConfigUpsert(t *testing.T) {
	db := testDB(t)

	if err := db.SaveConfig(100, false); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if err := db.SaveConfig(500, true); err != nil {
		t.Fatalf("SaveConfig update: %v", err)
	}

	bond, paused, found, err := db.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !found || bond != 500 || !paused {
		t.Errorf("config = (%d, %v, %v), want (500, true, true)", bond, paused, found)
	}
}

func TestAgentRoundTrip(t *testing.T) {
	db := testDB(t)
	a := seedDBAgent(t, db)

	if err := db.UpdateAgentURI(a.ID, "https://v2.example"); err != nil {
		t.Fatalf("UpdateAgentURI: %v", err)
	}

	agents, err := db.LoadAgents()
	if err != nil {
		t.Fatalf("LoadAgents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("len = %d, want 1", len(agents))
	}
	got := agents[0]
	if got.ID != a.ID || got.Owner != a.Owner || got.Bond != a.Bond {
		t.Errorf("agent = %+v", got)
	}
	if got.URI != "https://v2.example" {
		t.Errorf("URI = %q, want updated", got.URI)
	}
}

func TestUpdateAgentURIUnknownAgent(t *testing.T) {
	db := testDB(t)

	if err := db.UpdateAgentURI(9, "https://x.example"); err == nil {
		t.Errorf("update of missing agent succeeded")
	}
}

func TestFeedbackRoundTrip(t *testing.T) {
	db := testDB(t)
	a := seedDBAgent(t, db)

	records := []ledger.FeedbackRecord{
		{AgentID: a.ID, Reviewer: "bob", Rating: 80, EvidenceURI: "ipfs://e1", TaskHash: "h1", At: t0},
		{AgentID: a.ID, Reviewer: "carol", Rating: 60, TaskHash: "h2", At: t0.Add(time.Hour)},
	}
	for i, f := range records {
		if err := db.SaveFeedback(f); err != nil {
			t.Fatalf("SaveFeedback[%d]: %v", i, err)
		}
	}

	got, err := db.LoadFeedback()
	if err != nil {
		t.Fatalf("LoadFeedback: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Reviewer != "bob" || got[0].Rating != 80 || !got[0].At.Equal(t0) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Reviewer != "carol" {
		t.Errorf("submission order not preserved: %+v", got[1])
	}
}

func TestValidationRoundTrip(t *testing.T) {
	db := testDB(t)
	a := seedDBAgent(t, db)

	req := ledger.ValidationRequest{
		ID: 1, AgentID: a.ID, TaskHash: "h1", TaskURI: "ipfs://task",
		Requester: "bob", CreatedAt: t0,
	}
	if err := db.SaveValidationRequest(req); err != nil {
		t.Fatalf("SaveValidationRequest: %v", err)
	}

	resp := ledger.ValidationResponse{
		ValidationID: 1, Validator: "carol", IsValid: false, ProofURI: "ipfs://proof", At: t0.Add(time.Hour),
	}
	if err := db.SaveValidationResponse(resp); err != nil {
		t.Fatalf("SaveValidationResponse: %v", err)
	}

	requests, err := db.LoadValidationRequests()
	if err != nil {
		t.Fatalf("LoadValidationRequests: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("requests len = %d, want 1", len(requests))
	}
	// The response write marks the request completed in the same transaction.
	if !requests[0].Completed {
		t.Errorf("request not marked completed")
	}

	responses, err := db.LoadValidationResponses()
	if err != nil {
		t.Fatalf("LoadValidationResponses: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("responses len = %d, want 1", len(responses))
	}
	got := responses[0]
	if got.Validator != "carol" || got.IsValid || got.ProofURI != "ipfs://proof" {
		t.Errorf("response = %+v", got)
	}
}

func TestCategoryUpsert(t *testing.T) {
	db := testDB(t)
	a := seedDBAgent(t, db)

	if err := db.SaveCategory(a.ID, "trading"); err != nil {
		t.Fatalf("SaveCategory: %v", err)
	}
	if err := db.SaveCategory(a.ID, "research"); err != nil {
		t.Fatalf("SaveCategory update: %v", err)
	}

	cats, err := db.LoadCategories()
	if err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if len(cats) != 1 || cats[a.ID] != "research" {
		t.Errorf("categories = %v", cats)
	}
}

func TestStakeRoundTrip(t *testing.T) {
	db := testDB(t)
	a := seedDBAgent(t, db)

	s := insurance.Stake{AgentID: a.ID, Amount: 5_000, Tier: aggregate.TierGold, Active: true}
	if err := db.SaveStake(s); err != nil {
		t.Fatalf("SaveStake: %v", err)
	}

	// Upsert with an unstake request in flight.
	s.UnstakeRequestedAt = t0
	if err := db.SaveStake(s); err != nil {
		t.Fatalf("SaveStake update: %v", err)
	}

	stakes, err := db.LoadStakes()
	if err != nil {
		t.Fatalf("LoadStakes: %v", err)
	}
	if len(stakes) != 1 {
		t.Fatalf("len = %d, want 1", len(stakes))
	}
	got := stakes[0]
	if got.Amount != 5_000 || got.Tier != aggregate.TierGold || !got.Active {
		t.Errorf("stake = %+v", got)
	}
	if !got.UnstakeRequestedAt.Equal(t0) {
		t.Errorf("UnstakeRequestedAt = %v, want %v", got.UnstakeRequestedAt, t0)
	}
}

func TestStakeZeroRequestedAtStaysZero(t *testing.T) {
	db := testDB(t)
	a := seedDBAgent(t, db)

	if err := db.SaveStake(insurance.Stake{AgentID: a.ID, Amount: 1_000, Tier: aggregate.TierDiamond, Active: true}); err != nil {
		t.Fatalf("SaveStake: %v", err)
	}
	stakes, err := db.LoadStakes()
	if err != nil {
		t.Fatalf("LoadStakes: %v", err)
	}
	if !stakes[0].UnstakeRequestedAt.IsZero() {
		t.Errorf("UnstakeRequestedAt = %v, want zero", stakes[0].UnstakeRequestedAt)
	}
}

func TestClaimRoundTrip(t *testing.T) {
	db := testDB(t)
	a := seedDBAgent(t, db)
	if err := db.SaveValidationRequest(ledger.ValidationRequest{
		ID: 1, AgentID: a.ID, Requester: "bob", CreatedAt: t0, Completed: true,
	}); err != nil {
		t.Fatalf("SaveValidationRequest: %v", err)
	}

	c := insurance.Claim{
		ID: 1, AgentID: a.ID, Claimant: "bob", Amount: 2_000,
		ValidationID: 1, EvidenceURI: "ipfs://ev", Status: insurance.ClaimPending, FiledAt: t0,
	}
	if err := db.SaveClaim(c); err != nil {
		t.Fatalf("SaveClaim: %v", err)
	}

	// Status transitions re-save the row.
	c.Status = insurance.ClaimDisputed
	c.DisputeURI = "ipfs://rebuttal"
	if err := db.SaveClaim(c); err != nil {
		t.Fatalf("SaveClaim dispute: %v", err)
	}
	c.Status = insurance.ClaimApproved
	c.ResolvedAt = t0.Add(time.Hour)
	if err := db.SaveClaim(c); err != nil {
		t.Fatalf("SaveClaim resolve: %v", err)
	}

	claims, err := db.LoadClaims()
	if err != nil {
		t.Fatalf("LoadClaims: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("len = %d, want 1", len(claims))
	}
	got := claims[0]
	if got.Status != insurance.ClaimApproved || got.DisputeURI != "ipfs://rebuttal" {
		t.Errorf("claim = %+v", got)
	}
	if !got.ResolvedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("ResolvedAt = %v", got.ResolvedAt)
	}
}

func TestBalancesRoundTrip(t *testing.T) {
	db := testDB(t)

	if err := db.SaveBalance("alice-addr", 500); err != nil {
		t.Fatalf("SaveBalance: %v", err)
	}
	if err := db.SaveBalance("alice-addr", 750); err != nil {
		t.Fatalf("SaveBalance update: %v", err)
	}
	if err := db.SaveBalance("bob-addr", 100); err != nil {
		t.Fatalf("SaveBalance: %v", err)
	}

	got, err := db.LoadBalances()
	if err != nil {
		t.Fatalf("LoadBalances: %v", err)
	}
	if len(got) != 2 || got["alice-addr"] != 750 || got["bob-addr"] != 100 {
		t.Errorf("balances = %v", got)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	db := testDB(t)

	journal := ledger.NewJournal()
	journal.SetSink(func(ev ledger.Event) {
		if err := db.SaveEvent(ev); err != nil {
			t.Errorf("SaveEvent: %v", err)
		}
	})
	journal.Append(ledger.EventAgentRegistered, 1, "alice-addr", map[string]any{"uri": "https://a.example"}, t0)
	journal.Append(ledger.EventPaused, 0, "", nil, t0.Add(time.Minute))

	events, err := db.LoadEvents()
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 1 || events[0].Kind != ledger.EventAgentRegistered {
		t.Errorf("first = %+v", events[0])
	}
	if len(events[0].Payload) == 0 {
		t.Errorf("payload not persisted")
	}
	if events[1].Kind != ledger.EventPaused || events[1].At != t0.Add(time.Minute).Unix() {
		t.Errorf("second = %+v", events[1])
	}

	// Replaying into a fresh journal resumes the sequence.
	fresh := ledger.NewJournal()
	fresh.Restore(events)
	if ev := fresh.Append(ledger.EventUnpaused, 0, "", nil, t0); ev.Seq != 3 {
		t.Errorf("Seq after restore = %d, want 3", ev.Seq)
	}
}
