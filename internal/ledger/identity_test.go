package ledger

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// --- Test helpers ---

// testLedgers builds a connected set of empty ledgers with a 100-unit bond.
func testLedgers(t *testing.T) (*Identity, *Reputation, *Validation, *Balances, *Journal) {
	t.Helper()
	journal := NewJournal()
	balances := NewBalances()
	ident := NewIdentity(100, balances, journal)
	rep := NewReputation(ident, journal)
	val := NewValidation(ident, journal)
	return ident, rep, val, balances, journal
}

// seedAgent registers an agent at the exact bond and returns its ID.
func seedAgent(t *testing.T, ident *Identity, owner string) uint64 {
	t.Helper()
	id, _, err := ident.Register(owner, "https://agents.example/"+owner, 100, t0)
	if err != nil {
		t.Fatalf("seedAgent(%s): %v", owner, err)
	}
	return id
}

// --- Registration ---

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)

	for i, owner := range []string{"alice", "bob", "carol"} {
		id := seedAgent(t, ident, owner)
		if id != uint64(i+1) {
			t.Errorf("id = %d, want %d", id, i+1)
		}
	}
	if got := ident.TotalAgents(); got != 3 {
		t.Errorf("TotalAgents = %d, want 3", got)
	}
}

func TestRegisterRefundsExcessBond(t *testing.T) {
	ident, _, _, balances, _ := testLedgers(t)

	id, refund, err := ident.Register("alice", "https://a.example", 150, t0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if refund != 50 {
		t.Errorf("refund = %d, want 50", refund)
	}
	if got := balances.BalanceOf("alice"); got != 50 {
		t.Errorf("BalanceOf(alice) = %d, want 50", got)
	}
	bond, err := ident.BondOf(id)
	if err != nil {
		t.Fatalf("BondOf: %v", err)
	}
	if bond != 100 {
		t.Errorf("bond = %d, want 100 (requirement, not deposit)", bond)
	}
}

func TestRegisterExactBondNoRefund(t *testing.T) {
	ident, _, _, balances, _ := testLedgers(t)

	_, refund, err := ident.Register("alice", "https://a.example", 100, t0)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if refund != 0 {
		t.Errorf("refund = %d, want 0", refund)
	}
	if got := balances.BalanceOf("alice"); got != 0 {
		t.Errorf("BalanceOf(alice) = %d, want 0", got)
	}
}

func TestRegisterRejectsInsufficientBond(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)

	_, _, err := ident.Register("alice", "https://a.example", 99, t0)
	if !errors.Is(err, ErrInsufficientBond) {
		t.Errorf("err = %v, want ErrInsufficientBond", err)
	}
	if ident.TotalAgents() != 0 {
		t.Errorf("failed registration must not create an agent")
	}
}

func TestRegisterRejectsEmptyURI(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)

	_, _, err := ident.Register("alice", "", 100, t0)
	if !errors.Is(err, ErrEmptyURI) {
		t.Errorf("err = %v, want ErrEmptyURI", err)
	}
}

func TestRegisterOneIdentityPerOwner(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)
	seedAgent(t, ident, "alice")

	_, _, err := ident.Register("alice", "https://other.example", 100, t0)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("err = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegisterWhilePaused(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)
	ident.Pause(t0)

	_, _, err := ident.Register("alice", "https://a.example", 100, t0)
	if !errors.Is(err, ErrSystemPaused) {
		t.Errorf("err = %v, want ErrSystemPaused", err)
	}

	ident.Unpause(t0)
	if _, _, err := ident.Register("alice", "https://a.example", 100, t0); err != nil {
		t.Fatalf("Register after unpause: %v", err)
	}
}

// --- URI updates ---

func TestUpdateURIOwnerOnly(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")

	if err := ident.UpdateURI(id, "https://v2.example", "mallory", t0); !errors.Is(err, ErrNotOwner) {
		t.Errorf("err = %v, want ErrNotOwner", err)
	}
	if err := ident.UpdateURI(id, "https://v2.example", "alice", t0); err != nil {
		t.Fatalf("UpdateURI: %v", err)
	}
	uri, err := ident.URIOf(id)
	if err != nil {
		t.Fatalf("URIOf: %v", err)
	}
	if uri != "https://v2.example" {
		t.Errorf("uri = %q, want %q", uri, "https://v2.example")
	}
}

func TestUpdateURIRejectsEmpty(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")

	if err := ident.UpdateURI(id, "", "alice", t0); !errors.Is(err, ErrEmptyURI) {
		t.Errorf("err = %v, want ErrEmptyURI", err)
	}
}

// --- Lookups ---

func TestLookupsUnknownAgent(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)
	seedAgent(t, ident, "alice")

	if _, err := ident.OwnerOf(0); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("OwnerOf(0) err = %v, want ErrAgentNotFound", err)
	}
	if _, err := ident.OwnerOf(2); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("OwnerOf(2) err = %v, want ErrAgentNotFound", err)
	}
	if _, err := ident.IDOf("nobody"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("IDOf err = %v, want ErrAgentNotFound", err)
	}
}

func TestIDOfRoundTrip(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")

	got, err := ident.IDOf("alice")
	if err != nil {
		t.Fatalf("IDOf: %v", err)
	}
	if got != id {
		t.Errorf("IDOf = %d, want %d", got, id)
	}
}

// --- Bond governance ---

func TestSetRequiredBondAffectsNewRegistrationsOnly(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)
	id := seedAgent(t, ident, "alice")

	ident.SetRequiredBond(500, t0)
	if got := ident.RequiredBond(); got != 500 {
		t.Errorf("RequiredBond = %d, want 500", got)
	}

	// Existing bond is unchanged.
	bond, err := ident.BondOf(id)
	if err != nil {
		t.Fatalf("BondOf: %v", err)
	}
	if bond != 100 {
		t.Errorf("existing bond = %d, want 100", bond)
	}

	if _, _, err := ident.Register("bob", "https://b.example", 100, t0); !errors.Is(err, ErrInsufficientBond) {
		t.Errorf("err = %v, want ErrInsufficientBond under raised bond", err)
	}
}

// --- Restore ---

func TestIdentityRestore(t *testing.T) {
	ident, _, _, _, _ := testLedgers(t)
	seedAgent(t, ident, "alice")
	seedAgent(t, ident, "bob")

	agents := []Agent{}
	for id := uint64(1); id <= ident.TotalAgents(); id++ {
		a, err := ident.AgentByID(id)
		if err != nil {
			t.Fatalf("AgentByID(%d): %v", id, err)
		}
		agents = append(agents, a)
	}

	fresh := NewIdentity(0, NewBalances(), NewJournal())
	fresh.Restore(agents, 100, false)

	if got := fresh.TotalAgents(); got != 2 {
		t.Fatalf("TotalAgents = %d, want 2", got)
	}
	id, err := fresh.IDOf("bob")
	if err != nil {
		t.Fatalf("IDOf after restore: %v", err)
	}
	if id != 2 {
		t.Errorf("IDOf(bob) = %d, want 2", id)
	}
	if got := fresh.RequiredBond(); got != 100 {
		t.Errorf("RequiredBond = %d, want 100", got)
	}
}
