package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RecordCostInput carries the caller-supplied fields for a new cost event.
type RecordCostInput struct {
	ProjectID    string
	AgentID      string
	TaskID       string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// RecordCost inserts the cost event and atomically increments
// project.budget.spent in the same transaction, so spent always equals
// the sum of recorded cost events.
func (s *Store) RecordCost(in RecordCostInput) (*CostEvent, error) {
	if in.ProjectID == "" || in.AgentID == "" {
		return nil, fmt.Errorf("%w: projectId and agentId are required", ErrInvalidInput)
	}
	now := time.Now().UTC()
	ev := &CostEvent{
		ID:           newID(),
		ProjectID:    in.ProjectID,
		AgentID:      in.AgentID,
		TaskID:       in.TaskID,
		Model:        in.Model,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		CostUSD:      in.CostUSD,
		CreatedAt:    now,
	}

	err := s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO cost_events (id, project_id, agent_id, task_id, model, input_tokens,
				output_tokens, cost_usd, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.ProjectID, ev.AgentID, nullString(ev.TaskID), nullString(ev.Model),
			ev.InputTokens, ev.OutputTokens, ev.CostUSD, ev.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE projects SET budget_spent = budget_spent + ?, updated_at = ? WHERE id = ?`,
			ev.CostUSD, now, ev.ProjectID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record cost: %w", err)
	}
	return ev, nil
}

// BudgetStatus is the projection returned by get_budget.
type BudgetStatus struct {
	Spent      float64 `json:"spent"`
	Total      float64 `json:"total"`
	Currency   string  `json:"currency,omitempty"`
	PercentUsed float64 `json:"percentUsed"`
	Remaining  float64 `json:"remaining"`
}

// GetBudget returns current spend, total, and percent used for a project.
// Budget exceedance is not fatal: this simply reports the percentage, the
// caller decides whether to act on it.
func (s *Store) GetBudget(projectID string) (*BudgetStatus, error) {
	p, err := s.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if p.Budget == nil {
		return &BudgetStatus{}, nil
	}
	status := &BudgetStatus{
		Spent:    p.Budget.Spent,
		Total:    p.Budget.Total,
		Currency: p.Budget.Currency,
	}
	if p.Budget.Total > 0 {
		status.PercentUsed = (p.Budget.Spent / p.Budget.Total) * 100
		status.Remaining = p.Budget.Total - p.Budget.Spent
	}
	return status, nil
}
