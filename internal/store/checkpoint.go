package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateCheckpointInput carries the caller-supplied fields for a new
// checkpoint.
type CreateCheckpointInput struct {
	ProjectID string
	AgentID   string
	TaskID    string
	Type      string
	Stage     string
	Context   CheckpointContext
	ExpiresAt *time.Time
}

// CreateCheckpoint inserts a serialized snapshot of an agent's in-flight
// work, used to roll context from one session into the next.
func (s *Store) CreateCheckpoint(in CreateCheckpointInput) (*AgentCheckpoint, error) {
	if in.ProjectID == "" || in.AgentID == "" || in.Type == "" {
		return nil, fmt.Errorf("%w: projectId, agentId and type are required", ErrInvalidInput)
	}
	now := time.Now().UTC()
	cp := &AgentCheckpoint{
		ID:        newID(),
		ProjectID: in.ProjectID,
		AgentID:   in.AgentID,
		TaskID:    in.TaskID,
		Type:      in.Type,
		Stage:     in.Stage,
		Context:   in.Context,
		ExpiresAt: in.ExpiresAt,
		CreatedAt: now,
	}

	ctxJSON, err := json.Marshal(cp.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint context: %w", err)
	}

	err = s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO agent_checkpoints (id, project_id, agent_id, task_id, type, stage, context,
				expires_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cp.ID, cp.ProjectID, cp.AgentID, nullString(cp.TaskID), cp.Type, nullString(cp.Stage),
			string(ctxJSON), nullTime(cp.ExpiresAt), cp.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}
	return cp, nil
}

// LatestCheckpoint returns the most recent non-expired checkpoint for an
// agent within a project.
func (s *Store) LatestCheckpoint(projectID, agentID string) (*AgentCheckpoint, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, agent_id, task_id, type, stage, context, expires_at, created_at
		FROM agent_checkpoints
		WHERE project_id = ? AND agent_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC LIMIT 1`,
		projectID, agentID, time.Now().UTC())

	var cp AgentCheckpoint
	var taskID, stage sql.NullString
	var contextJSON string
	var expiresAt sql.NullTime

	err := row.Scan(&cp.ID, &cp.ProjectID, &cp.AgentID, &taskID, &cp.Type, &stage, &contextJSON,
		&expiresAt, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint for %s/%s: %w", projectID, agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest checkpoint: %w", err)
	}
	cp.TaskID = stringVal(taskID)
	cp.Stage = stringVal(stage)
	cp.ExpiresAt = timePtr(expiresAt)
	if err := json.Unmarshal([]byte(contextJSON), &cp.Context); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint context: %w", err)
	}
	return &cp, nil
}
