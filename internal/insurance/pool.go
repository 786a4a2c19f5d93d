// Package insurance manages agent stakes and the claims workflow that can
// forfeit part of a stake to a counterparty after a failed validation.
package insurance

import (
	"errors"
	"sync"
	"time"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
	"github.com/BuilderBenv1/agentproof/internal/ledger"
)

// UnstakeCooldown is the delay between requesting an unstake and being able
// to withdraw.
const UnstakeCooldown = 7 * 24 * time.Hour

var (
	ErrAlreadyStaked       = errors.New("agent already has an active stake")
	ErrNotStaked           = errors.New("agent has no active stake")
	ErrBelowMinimum        = errors.New("stake below tier minimum")
	ErrHasPendingClaims    = errors.New("agent has pending or disputed claims")
	ErrUnstakeNotRequested = errors.New("unstake was not requested")
	ErrCooldownNotElapsed  = errors.New("unstake cooldown has not elapsed")
	ErrClaimNotFound       = errors.New("claim not found")
	ErrClaimNotEligible    = errors.New("validation does not support a claim")
	ErrClaimExceedsStake   = errors.New("claim amount exceeds active stake")
	ErrClaimNotPending     = errors.New("claim is not pending")
	ErrClaimResolved       = errors.New("claim already resolved")
)

// minimumStakes maps each tier to the collateral it requires. The ordering is
// intentionally inverted relative to reputation quality: higher-reputation
// agents need less collateral to be trusted for the same risk.
var minimumStakes = map[aggregate.Tier]uint64{
	aggregate.TierDiamond:  1_000,
	aggregate.TierPlatinum: 2_500,
	aggregate.TierGold:     5_000,
	aggregate.TierSilver:   10_000,
	aggregate.TierBronze:   25_000,
	aggregate.TierUnranked: 50_000,
}

// MinimumStake returns the required collateral for a tier.
func MinimumStake(tier aggregate.Tier) uint64 {
	return minimumStakes[tier]
}

// Stake is the collateral posted against one agent.
type Stake struct {
	AgentID            uint64         `json:"agent_id"`
	Amount             uint64         `json:"amount"`
	Tier               aggregate.Tier `json:"tier"`
	Active             bool           `json:"active"`
	UnstakeRequestedAt time.Time      `json:"unstake_requested_at"`
}

// ClaimStatus is the claim state machine:
// Pending -> {Disputed -> {Approved, Rejected}, Approved, Rejected}.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimDisputed ClaimStatus = "disputed"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// Claim is a request to forfeit part of an agent's stake.
type Claim struct {
	ID           uint64      `json:"id"`
	AgentID      uint64      `json:"agent_id"`
	Claimant     string      `json:"claimant"`
	Amount       uint64      `json:"amount"`
	ValidationID uint64      `json:"validation_id"`
	EvidenceURI  string      `json:"evidence_uri"`
	DisputeURI   string      `json:"dispute_uri,omitempty"`
	Status       ClaimStatus `json:"status"`
	FiledAt      time.Time   `json:"filed_at"`
	ResolvedAt   time.Time   `json:"resolved_at,omitzero"`
}

// Pool owns stakes, claims, and the transfers between them.
type Pool struct {
	mu            sync.RWMutex
	stakes        map[uint64]*Stake
	claims        []*Claim // index = ID-1
	claimsByAgent map[uint64][]uint64

	ident    *ledger.Identity
	val      *ledger.Validation
	balances *ledger.Balances
	journal  *ledger.Journal
}

// NewPool returns an empty insurance pool over the given ledgers. Unstake
// returns and claim payouts are credited to balances.
func NewPool(ident *ledger.Identity, val *ledger.Validation, balances *ledger.Balances, journal *ledger.Journal) *Pool {
	return &Pool{
		stakes:        make(map[uint64]*Stake),
		claimsByAgent: make(map[uint64][]uint64),
		ident:         ident,
		val:           val,
		balances:      balances,
		journal:       journal,
	}
}

// Stake posts collateral for an agent. Owner only; one active stake per
// agent; the amount must meet the tier minimum.
func (p *Pool) Stake(agentID uint64, tier aggregate.Tier, amount uint64, caller string, now time.Time) error {
	owner, err := p.ident.OwnerOf(agentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return ledger.ErrNotOwner
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.stakes[agentID]; ok && st.Active {
		return ErrAlreadyStaked
	}
	if amount < minimumStakes[tier] {
		return ErrBelowMinimum
	}

	p.stakes[agentID] = &Stake{AgentID: agentID, Amount: amount, Tier: tier, Active: true}
	p.journal.Append(ledger.EventStakeDeposited, agentID, caller,
		map[string]any{"amount": amount, "tier": tier.String()}, now)
	return nil
}

// RequestUnstake starts the withdrawal cooldown. Blocked while any claim
// against the agent is pending or disputed.
func (p *Pool) RequestUnstake(agentID uint64, caller string, now time.Time) error {
	owner, err := p.ident.OwnerOf(agentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return ledger.ErrNotOwner
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.stakes[agentID]
	if !ok || !st.Active {
		return ErrNotStaked
	}
	if p.hasOpenClaims(agentID) {
		return ErrHasPendingClaims
	}

	st.UnstakeRequestedAt = now
	p.journal.Append(ledger.EventUnstakeRequested, agentID, caller, nil, now)
	return nil
}

// Unstake returns the full stake to the owner once the cooldown has elapsed
// and no claim is open, then deactivates the stake.
func (p *Pool) Unstake(agentID uint64, caller string, now time.Time) error {
	owner, err := p.ident.OwnerOf(agentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return ledger.ErrNotOwner
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.stakes[agentID]
	if !ok || !st.Active {
		return ErrNotStaked
	}
	if st.UnstakeRequestedAt.IsZero() {
		return ErrUnstakeNotRequested
	}
	if now.Before(st.UnstakeRequestedAt.Add(UnstakeCooldown)) {
		return ErrCooldownNotElapsed
	}
	if p.hasOpenClaims(agentID) {
		return ErrHasPendingClaims
	}

	amount := st.Amount
	st.Amount = 0
	st.Active = false
	st.UnstakeRequestedAt = time.Time{}
	p.balances.Credit(owner, amount)

	p.journal.Append(ledger.EventStakeWithdrawn, agentID, caller,
		map[string]any{"amount": amount}, now)
	return nil
}

// IsInsured reports whether the agent has an active stake.
func (p *Pool) IsInsured(agentID uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.stakes[agentID]
	return ok && st.Active
}

// StakeOf returns a copy of the agent's stake record.
func (p *Pool) StakeOf(agentID uint64) (Stake, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.stakes[agentID]
	if !ok {
		return Stake{}, ErrNotStaked
	}
	return *st, nil
}

// hasOpenClaims reports whether any claim against the agent is pending or
// disputed. Caller holds p.mu.
func (p *Pool) hasOpenClaims(agentID uint64) bool {
	for _, id := range p.claimsByAgent[agentID] {
		switch p.claims[id-1].Status {
		case ClaimPending, ClaimDisputed:
			return true
		}
	}
	return false
}

// HasOpenClaims reports whether any claim against the agent is pending or
// disputed.
func (p *Pool) HasOpenClaims(agentID uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasOpenClaims(agentID)
}

// RestoreStakes replaces stake state when reloading from storage.
func (p *Pool) RestoreStakes(stakes []Stake) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stakes = make(map[uint64]*Stake, len(stakes))
	for _, st := range stakes {
		cp := st
		p.stakes[st.AgentID] = &cp
	}
}

// RestoreClaims replaces claim state when reloading from storage. Claims must
// be ordered by ID with no gaps.
func (p *Pool) RestoreClaims(claims []Claim) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claims = make([]*Claim, 0, len(claims))
	p.claimsByAgent = make(map[uint64][]uint64)
	for _, c := range claims {
		cp := c
		p.claims = append(p.claims, &cp)
		p.claimsByAgent[c.AgentID] = append(p.claimsByAgent[c.AgentID], c.ID)
	}
}
