package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BuilderBenv1/agentproof/internal/aggregate"
	"github.com/BuilderBenv1/agentproof/internal/insurance"
	"github.com/BuilderBenv1/agentproof/internal/ledger"
)

// --- Config ---

// SaveConfig upserts the registry configuration row.
func (d *DB) SaveConfig(requiredBond uint64, paused bool) error {
	_, err := d.db.Exec(
		`INSERT INTO config (id, required_bond, paused) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET required_bond = excluded.required_bond, paused = excluded.paused`,
		requiredBond, boolToInt(paused),
	)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// LoadConfig reads the configuration row. Missing row returns found=false.
func (d *DB) LoadConfig() (requiredBond uint64, paused bool, found bool, err error) {
	var p int
	err = d.db.QueryRow(`SELECT required_bond, paused FROM config WHERE id = 1`).Scan(&requiredBond, &p)
	if err == sql.ErrNoRows {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("load config: %w", err)
	}
	return requiredBond, p == 1, true, nil
}

// --- Agents ---

// SaveAgent inserts a new agent row.
func (d *DB) SaveAgent(a ledger.Agent) error {
	_, err := d.db.Exec(
		`INSERT INTO agents (id, owner, uri, bond) VALUES (?, ?, ?, ?)`,
		a.ID, a.Owner, a.URI, a.Bond,
	)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

// UpdateAgentURI updates an agent's descriptor URI.
func (d *DB) UpdateAgentURI(agentID uint64, uri string) error {
	res, err := d.db.Exec(`UPDATE agents SET uri = ? WHERE id = ?`, uri, agentID)
	if err != nil {
		return fmt.Errorf("update agent uri: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agent uri rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update agent uri: %w", sql.ErrNoRows)
	}
	return nil
}

// LoadAgents returns all agents ordered by ID.
func (d *DB) LoadAgents() ([]ledger.Agent, error) {
	rows, err := d.db.Query(`SELECT id, owner, uri, bond FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	defer rows.Close()

	var agents []ledger.Agent
	for rows.Next() {
		var a ledger.Agent
		if err := rows.Scan(&a.ID, &a.Owner, &a.URI, &a.Bond); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// --- Feedback ---

// SaveFeedback appends a feedback row.
func (d *DB) SaveFeedback(f ledger.FeedbackRecord) error {
	_, err := d.db.Exec(
		`INSERT INTO feedback (agent_id, reviewer, rating, evidence_uri, task_hash, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.AgentID, f.Reviewer, f.Rating, f.EvidenceURI, f.TaskHash, f.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// LoadFeedback returns all feedback in submission order.
func (d *DB) LoadFeedback() ([]ledger.FeedbackRecord, error) {
	rows, err := d.db.Query(
		`SELECT agent_id, reviewer, rating, evidence_uri, task_hash, at FROM feedback ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	defer rows.Close()

	var records []ledger.FeedbackRecord
	for rows.Next() {
		var f ledger.FeedbackRecord
		var at int64
		if err := rows.Scan(&f.AgentID, &f.Reviewer, &f.Rating, &f.EvidenceURI, &f.TaskHash, &at); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.At = time.Unix(at, 0).UTC()
		records = append(records, f)
	}
	return records, rows.Err()
}

// --- Validations ---

// SaveValidationRequest inserts a validation request row.
func (d *DB) SaveValidationRequest(r ledger.ValidationRequest) error {
	_, err := d.db.Exec(
		`INSERT INTO validation_requests (id, agent_id, task_hash, task_uri, requester, created_at, completed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgentID, r.TaskHash, r.TaskURI, r.Requester, r.CreatedAt.Unix(), boolToInt(r.Completed),
	)
	if err != nil {
		return fmt.Errorf("save validation request: %w", err)
	}
	return nil
}

// SaveValidationResponse inserts the response row and marks its request
// completed, atomically.
func (d *DB) SaveValidationResponse(r ledger.ValidationResponse) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("save validation response: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO validation_responses (validation_id, validator, is_valid, proof_uri, at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ValidationID, r.Validator, boolToInt(r.IsValid), r.ProofURI, r.At.Unix(),
	); err != nil {
		return fmt.Errorf("save validation response: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE validation_requests SET completed = 1 WHERE id = ?`, r.ValidationID,
	); err != nil {
		return fmt.Errorf("mark validation completed: %w", err)
	}
	return tx.Commit()
}

// LoadValidationRequests returns all requests ordered by ID.
func (d *DB) LoadValidationRequests() ([]ledger.ValidationRequest, error) {
	rows, err := d.db.Query(
		`SELECT id, agent_id, task_hash, task_uri, requester, created_at, completed
		 FROM validation_requests ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("load validation requests: %w", err)
	}
	defer rows.Close()

	var requests []ledger.ValidationRequest
	for rows.Next() {
		var r ledger.ValidationRequest
		var createdAt int64
		var completed int
		if err := rows.Scan(&r.ID, &r.AgentID, &r.TaskHash, &r.TaskURI, &r.Requester, &createdAt, &completed); err != nil {
			return nil, fmt.Errorf("scan validation request: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.Completed = completed == 1
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// LoadValidationResponses returns all responses ordered by validation ID.
func (d *DB) LoadValidationResponses() ([]ledger.ValidationResponse, error) {
	rows, err := d.db.Query(
		`SELECT validation_id, validator, is_valid, proof_uri, at
		 FROM validation_responses ORDER BY validation_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("load validation responses: %w", err)
	}
	defer rows.Close()

	var responses []ledger.ValidationResponse
	for rows.Next() {
		var r ledger.ValidationResponse
		var at int64
		var isValid int
		if err := rows.Scan(&r.ValidationID, &r.Validator, &isValid, &r.ProofURI, &at); err != nil {
			return nil, fmt.Errorf("scan validation response: %w", err)
		}
		r.IsValid = isValid == 1
		r.At = time.Unix(at, 0).UTC()
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// --- Categories ---

// SaveCategory upserts an agent's category assignment.
func (d *DB) SaveCategory(agentID uint64, category string) error {
	_, err := d.db.Exec(
		`INSERT INTO categories (agent_id, category) VALUES (?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET category = excluded.category`,
		agentID, category,
	)
	if err != nil {
		return fmt.Errorf("save category: %w", err)
	}
	return nil
}

// LoadCategories returns the agent -> category map.
func (d *DB) LoadCategories() (map[uint64]string, error) {
	rows, err := d.db.Query(`SELECT agent_id, category FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64]string)
	for rows.Next() {
		var id uint64
		var cat string
		if err := rows.Scan(&id, &cat); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out[id] = cat
	}
	return out, rows.Err()
}

// --- Stakes ---

// SaveStake upserts an agent's stake row.
func (d *DB) SaveStake(s insurance.Stake) error {
	var requestedAt int64
	if !s.UnstakeRequestedAt.IsZero() {
		requestedAt = s.UnstakeRequestedAt.Unix()
	}
	_, err := d.db.Exec(
		`INSERT INTO stakes (agent_id, amount, tier, active, unstake_requested_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
		   amount = excluded.amount, tier = excluded.tier,
		   active = excluded.active, unstake_requested_at = excluded.unstake_requested_at`,
		s.AgentID, s.Amount, s.Tier.String(), boolToInt(s.Active), requestedAt,
	)
	if err != nil {
		return fmt.Errorf("save stake: %w", err)
	}
	return nil
}

// LoadStakes returns all stake rows.
func (d *DB) LoadStakes() ([]insurance.Stake, error) {
	rows, err := d.db.Query(
		`SELECT agent_id, amount, tier, active, unstake_requested_at FROM stakes`,
	)
	if err != nil {
		return nil, fmt.Errorf("load stakes: %w", err)
	}
	defer rows.Close()

	var stakes []insurance.Stake
	for rows.Next() {
		var s insurance.Stake
		var tier string
		var active int
		var requestedAt int64
		if err := rows.Scan(&s.AgentID, &s.Amount, &tier, &active, &requestedAt); err != nil {
			return nil, fmt.Errorf("scan stake: %w", err)
		}
		s.Tier, _ = aggregate.ParseTier(tier)
		s.Active = active == 1
		if requestedAt != 0 {
			s.UnstakeRequestedAt = time.Unix(requestedAt, 0).UTC()
		}
		stakes = append(stakes, s)
	}
	return stakes, rows.Err()
}

// --- Claims ---

// SaveClaim upserts a claim row.
func (d *DB) SaveClaim(c insurance.Claim) error {
	var resolvedAt int64
	if !c.ResolvedAt.IsZero() {
		resolvedAt = c.ResolvedAt.Unix()
	}
	_, err := d.db.Exec(
		`INSERT INTO claims (id, agent_id, claimant, amount, validation_id, evidence_uri, dispute_uri, status, filed_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   dispute_uri = excluded.dispute_uri, status = excluded.status,
		   resolved_at = excluded.resolved_at`,
		c.ID, c.AgentID, c.Claimant, c.Amount, c.ValidationID,
		c.EvidenceURI, c.DisputeURI, string(c.Status), c.FiledAt.Unix(), resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("save claim: %w", err)
	}
	return nil
}

// LoadClaims returns all claims ordered by ID.
func (d *DB) LoadClaims() ([]insurance.Claim, error) {
	rows, err := d.db.Query(
		`SELECT id, agent_id, claimant, amount, validation_id, evidence_uri, dispute_uri, status, filed_at, resolved_at
		 FROM claims ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}
	defer rows.Close()

	var claims []insurance.Claim
	for rows.Next() {
		var c insurance.Claim
		var status string
		var filedAt, resolvedAt int64
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Claimant, &c.Amount, &c.ValidationID,
			&c.EvidenceURI, &c.DisputeURI, &status, &filedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		c.Status = insurance.ClaimStatus(status)
		c.FiledAt = time.Unix(filedAt, 0).UTC()
		if resolvedAt != 0 {
			c.ResolvedAt = time.Unix(resolvedAt, 0).UTC()
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// --- Balances ---

// SaveBalance upserts one address balance.
func (d *DB) SaveBalance(address string, amount uint64) error {
	_, err := d.db.Exec(
		`INSERT INTO balances (address, amount) VALUES (?, ?)
		 ON CONFLICT(address) DO UPDATE SET amount = excluded.amount`,
		address, amount,
	)
	if err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

// LoadBalances returns the address -> amount map.
func (d *DB) LoadBalances() (map[string]uint64, error) {
	rows, err := d.db.Query(`SELECT address, amount FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var addr string
		var amt uint64
		if err := rows.Scan(&addr, &amt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[addr] = amt
	}
	return out, rows.Err()
}

// --- Events ---

// SaveEvent appends an event row.
func (d *DB) SaveEvent(ev ledger.Event) error {
	_, err := d.db.Exec(
		`INSERT INTO events (seq, id, kind, agent_id, actor, payload, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Seq, ev.ID, ev.Kind, ev.AgentID, ev.Actor, string(ev.Payload), ev.At,
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// LoadEvents returns all events in sequence order.
func (d *DB) LoadEvents() ([]ledger.Event, error) {
	rows, err := d.db.Query(
		`SELECT seq, id, kind, agent_id, actor, payload, at FROM events ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var ev ledger.Event
		var payload string
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Kind, &ev.AgentID, &ev.Actor, &payload, &ev.At); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if payload != "" {
			ev.Payload = []byte(payload)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
