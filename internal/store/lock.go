package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AcquireLock first lazily GCs any expired locks in the project, then
// attempts a uniqueness-constrained insert. Returns true on success, false
// if a non-expired lock remains. Never waits; callers poll with backoff.
func (s *Store) AcquireLock(projectID, filePath, agentID string, ttlSeconds int) (bool, error) {
	var acquired bool
	err := s.withTx(func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec(`DELETE FROM file_locks WHERE project_id = ? AND expires_at < ?`, projectID, now); err != nil {
			return err
		}

		expiresAt := now.Add(time.Duration(ttlSeconds) * time.Second)
		res, err := tx.Exec(`
			INSERT INTO file_locks (project_id, file_path, holder, locked_at, expires_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(project_id, file_path) DO NOTHING`,
			projectID, filePath, agentID, now, expiresAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		acquired = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return acquired, nil
}

// ReleaseLock deletes the lock only if agentID matches the current holder.
// A release by a non-holder is a no-op, not an error.
func (s *Store) ReleaseLock(projectID, filePath, agentID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM file_locks WHERE project_id = ? AND file_path = ? AND holder = ?`,
			projectID, filePath, agentID)
		return err
	})
}

// LockStatus is the result of CheckLock.
type LockStatus struct {
	Locked    bool
	Holder    string
	ExpiresAt *time.Time
}

// CheckLock reports a file's lock state after lazy GC of expired locks.
func (s *Store) CheckLock(projectID, filePath string) (*LockStatus, error) {
	var status *LockStatus
	err := s.withTx(func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec(`DELETE FROM file_locks WHERE project_id = ? AND expires_at < ?`, projectID, now); err != nil {
			return err
		}

		var holder string
		var expiresAt time.Time
		err := tx.QueryRow(`SELECT holder, expires_at FROM file_locks WHERE project_id = ? AND file_path = ?`,
			projectID, filePath).Scan(&holder, &expiresAt)
		if err == sql.ErrNoRows {
			status = &LockStatus{Locked: false}
			return nil
		}
		if err != nil {
			return err
		}
		status = &LockStatus{Locked: true, Holder: holder, ExpiresAt: &expiresAt}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check lock: %w", err)
	}
	return status, nil
}

// CleanupStaleLocks bulk-deletes every expired lock in a project and
// returns the number removed.
func (s *Store) CleanupStaleLocks(projectID string) (int, error) {
	var count int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM file_locks WHERE project_id = ? AND expires_at < ?`,
			projectID, time.Now().UTC())
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup stale locks: %w", err)
	}
	return int(count), nil
}

// ListActiveLocks returns every non-expired lock in a project, ordered by
// file path.
func (s *Store) ListActiveLocks(projectID string) ([]*FileLock, error) {
	rows, err := s.db.Query(`
		SELECT project_id, file_path, holder, locked_at, expires_at
		FROM file_locks WHERE project_id = ? AND expires_at >= ? ORDER BY file_path ASC`,
		projectID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active locks: %w", err)
	}
	defer rows.Close()

	var out []*FileLock
	for rows.Next() {
		var l FileLock
		if err := rows.Scan(&l.ProjectID, &l.FilePath, &l.Holder, &l.LockedAt, &l.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
