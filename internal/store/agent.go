package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RegisterAgentInput carries the caller-supplied fields for a new or
// updated agent registration.
type RegisterAgentInput struct {
	ID                   string
	ProjectID            string
	Name                 string
	Provider             string
	Model                string
	Status               string
	Capabilities         []string
	InputCostPerMillion  float64
	OutputCostPerMillion float64
	Quota                *float64
}

// RegisterAgent upserts an agent row. Registration is "on demand": if the
// agent already exists in this project, its profile fields are refreshed;
// otherwise a new row is created with status defaulting to idle.
func (s *Store) RegisterAgent(in RegisterAgentInput) (*Agent, error) {
	if in.ID == "" || in.ProjectID == "" {
		return nil, fmt.Errorf("%w: id and projectId are required", ErrInvalidInput)
	}
	status := in.Status
	if status == "" {
		status = AgentIdle
	}
	now := time.Now().UTC()

	var quota sql.NullFloat64
	if in.Quota != nil {
		quota = sql.NullFloat64{Float64: *in.Quota, Valid: true}
	}

	err := s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO agents (id, project_id, name, provider, model, status, capabilities,
				input_cost_per_million, output_cost_per_million, quota, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				provider = excluded.provider,
				model = excluded.model,
				capabilities = excluded.capabilities,
				input_cost_per_million = excluded.input_cost_per_million,
				output_cost_per_million = excluded.output_cost_per_million,
				quota = excluded.quota,
				updated_at = excluded.updated_at`,
			in.ID, in.ProjectID, in.Name, nullString(in.Provider), nullString(in.Model), status,
			marshalJSON(in.Capabilities, "[]"), in.InputCostPerMillion, in.OutputCostPerMillion, quota, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}
	return s.GetAgent(in.ID)
}

// GetAgent fetches a single agent by id.
func (s *Store) GetAgent(id string) (*Agent, error) {
	row := s.db.QueryRow(agentSelect+` WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// ListAgents returns every agent registered to a project, ordered by name.
func (s *Store) ListAgents(projectID string) ([]*Agent, error) {
	rows, err := s.db.Query(agentSelect+` WHERE project_id = ? ORDER BY name ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const agentSelect = `
	SELECT id, project_id, name, provider, model, status, capabilities,
		input_cost_per_million, output_cost_per_million, quota, last_heartbeat, created_at, updated_at
	FROM agents`

func scanAgent(row rowScanner) (*Agent, error) {
	var a Agent
	var provider, model sql.NullString
	var capabilities string
	var quota sql.NullFloat64
	var lastHeartbeat sql.NullTime

	err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &provider, &model, &a.Status, &capabilities,
		&a.InputCostPerMillion, &a.OutputCostPerMillion, &quota, &lastHeartbeat, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Provider = stringVal(provider)
	a.Model = stringVal(model)
	a.Capabilities = unmarshalStringSlice(capabilities)
	if quota.Valid {
		v := quota.Float64
		a.Quota = &v
	}
	a.LastHeartbeat = timePtr(lastHeartbeat)
	return &a, nil
}

// Heartbeat always touches lastHeartbeat; if status is non-empty it is
// updated atomically in the same statement.
func (s *Store) Heartbeat(agentID string, status string) error {
	now := time.Now().UTC()
	return s.withTx(func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if status != "" {
			res, err = tx.Exec(`UPDATE agents SET last_heartbeat = ?, status = ?, updated_at = ? WHERE id = ?`,
				now, status, now, agentID)
		} else {
			res, err = tx.Exec(`UPDATE agents SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
				now, now, agentID)
		}
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "agent", agentID)
	})
}

// UpdateAgentStatus sets an agent's status directly, used by HealthMonitor
// when marking an agent offline.
func (s *Store) UpdateAgentStatus(agentID, status string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`,
			status, time.Now().UTC(), agentID)
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "agent", agentID)
	})
}

func requireRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
