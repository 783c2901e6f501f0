package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RecordConflictInput carries the caller-supplied fields for a detected
// file conflict. Detection itself (grouping in_progress tasks by file) is
// the ConflictDetector's job; this just persists the outcome.
type RecordConflictInput struct {
	ProjectID string
	FilePath  string
	Agents    []string
	Strategy  string
}

// RecordConflict inserts a new conflict record.
func (s *Store) RecordConflict(in RecordConflictInput) (*FileConflict, error) {
	now := time.Now().UTC()
	c := &FileConflict{
		ID:        newID(),
		ProjectID: in.ProjectID,
		FilePath:  in.FilePath,
		Agents:    in.Agents,
		Strategy:  in.Strategy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO conflicts (id, project_id, file_path, agents, strategy, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ProjectID, c.FilePath, marshalJSON(c.Agents, "[]"), c.Strategy, c.CreatedAt, c.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record conflict: %w", err)
	}
	return c, nil
}

// ResolveConflict sets a conflict's resolution and resolver.
func (s *Store) ResolveConflict(conflictID, resolution, resolver string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE conflicts SET resolution = ?, resolver = ?, updated_at = ? WHERE id = ?`,
			resolution, resolver, time.Now().UTC(), conflictID)
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "conflict", conflictID)
	})
}

// ListConflicts returns every conflict recorded for a project, most recent
// first.
func (s *Store) ListConflicts(projectID string) ([]*FileConflict, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, file_path, agents, strategy, resolution, resolver, created_at, updated_at
		FROM conflicts WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*FileConflict
	for rows.Next() {
		var c FileConflict
		var agents string
		var resolution, resolver sql.NullString
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FilePath, &agents, &c.Strategy, &resolution,
			&resolver, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Agents = unmarshalStringSlice(agents)
		c.Resolution = stringVal(resolution)
		c.Resolver = stringVal(resolver)
		out = append(out, &c)
	}
	return out, rows.Err()
}
