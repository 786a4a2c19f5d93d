package insurance

import (
	"time"

	"github.com/BuilderBenv1/agentproof/internal/ledger"
)

// FileClaim opens a pending claim against an agent's stake. The referenced
// validation must be completed, failed, and belong to the claimed agent, and
// the claim may not exceed the active stake.
func (p *Pool) FileClaim(agentID, validationID, amount uint64, evidenceURI, claimant string, now time.Time) (uint64, error) {
	if _, err := p.ident.OwnerOf(agentID); err != nil {
		return 0, err
	}
	req, err := p.val.RequestByID(validationID)
	if err != nil {
		return 0, err
	}
	if req.AgentID != agentID || !req.Completed {
		return 0, ErrClaimNotEligible
	}
	resp, err := p.val.ResponseByID(validationID)
	if err != nil || resp.IsValid {
		return 0, ErrClaimNotEligible
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.stakes[agentID]
	if !ok || !st.Active {
		return 0, ErrNotStaked
	}
	if amount == 0 || amount > st.Amount {
		return 0, ErrClaimExceedsStake
	}

	id := uint64(len(p.claims)) + 1
	p.claims = append(p.claims, &Claim{
		ID:           id,
		AgentID:      agentID,
		Claimant:     claimant,
		Amount:       amount,
		ValidationID: validationID,
		EvidenceURI:  evidenceURI,
		Status:       ClaimPending,
		FiledAt:      now,
	})
	p.claimsByAgent[agentID] = append(p.claimsByAgent[agentID], id)

	p.journal.Append(ledger.EventClaimFiled, agentID, claimant,
		map[string]any{"claim_id": id, "amount": amount, "validation_id": validationID}, now)
	return id, nil
}

// DisputeClaim marks a pending claim as disputed. Only the claimed agent's
// owner may dispute, and only while the claim is pending.
func (p *Pool) DisputeClaim(claimID uint64, disputeURI, caller string, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if claimID == 0 || claimID > uint64(len(p.claims)) {
		return ErrClaimNotFound
	}
	c := p.claims[claimID-1]

	owner, err := p.ident.OwnerOf(c.AgentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return ledger.ErrNotOwner
	}
	if c.Status != ClaimPending {
		return ErrClaimNotPending
	}

	c.Status = ClaimDisputed
	c.DisputeURI = disputeURI
	p.journal.Append(ledger.EventClaimDisputed, c.AgentID, caller,
		map[string]any{"claim_id": claimID}, now)
	return nil
}

// ResolveClaim settles a pending or disputed claim. Approval transfers the
// claimed amount from the stake to the claimant in a single atomic step; a
// stake drained to zero is deactivated. Resolution is terminal.
func (p *Pool) ResolveClaim(claimID uint64, inFavorOfClaimant bool, arbiter string, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if claimID == 0 || claimID > uint64(len(p.claims)) {
		return ErrClaimNotFound
	}
	c := p.claims[claimID-1]
	if c.Status != ClaimPending && c.Status != ClaimDisputed {
		return ErrClaimResolved
	}

	if inFavorOfClaimant {
		payout := c.Amount
		if st, ok := p.stakes[c.AgentID]; ok {
			if payout > st.Amount {
				payout = st.Amount
			}
			st.Amount -= payout
			if st.Amount == 0 {
				st.Active = false
			}
		} else {
			payout = 0
		}
		p.balances.Credit(c.Claimant, payout)
		c.Status = ClaimApproved
	} else {
		c.Status = ClaimRejected
	}
	c.ResolvedAt = now

	p.journal.Append(ledger.EventClaimResolved, c.AgentID, arbiter,
		map[string]any{"claim_id": claimID, "status": c.Status}, now)
	return nil
}

// ClaimByID returns a copy of the claim.
func (p *Pool) ClaimByID(claimID uint64) (Claim, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if claimID == 0 || claimID > uint64(len(p.claims)) {
		return Claim{}, ErrClaimNotFound
	}
	return *p.claims[claimID-1], nil
}

// ClaimsFor returns all claims against an agent in filing order.
func (p *Pool) ClaimsFor(agentID uint64) []Claim {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := p.claimsByAgent[agentID]
	out := make([]Claim, 0, len(ids))
	for _, id := range ids {
		out = append(out, *p.claims[id-1])
	}
	return out
}

// TotalClaims returns the number of claims ever filed.
func (p *Pool) TotalClaims() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return uint64(len(p.claims))
}

// AllStakes returns a copy of every stake record.
func (p *Pool) AllStakes() []Stake {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Stake, 0, len(p.stakes))
	for _, st := range p.stakes {
		out = append(out, *st)
	}
	return out
}

// AllClaims returns every claim in filing order.
func (p *Pool) AllClaims() []Claim {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Claim, 0, len(p.claims))
	for _, c := range p.claims {
		out = append(out, *c)
	}
	return out
}
