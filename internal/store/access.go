package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateAccessRequestInput carries the caller-supplied fields for a new
// access request.
type CreateAccessRequestInput struct {
	ProjectID     string
	AgentID       string
	AgentName     string
	Capabilities  []string
	RequestedRole string
}

// CreateAccessRequest is idempotent on pending: if a pending request
// already exists for (project, agent) it is returned unchanged rather than
// duplicated.
func (s *Store) CreateAccessRequest(in CreateAccessRequestInput) (*AccessRequest, error) {
	if in.ProjectID == "" || in.AgentID == "" || in.RequestedRole == "" {
		return nil, fmt.Errorf("%w: projectId, agentId and requestedRole are required", ErrInvalidInput)
	}

	var result *AccessRequest
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(accessSelect+` WHERE project_id = ? AND agent_id = ? AND status = ?`,
			in.ProjectID, in.AgentID, AccessPending)
		existing, err := scanAccessRequest(row)
		if err == nil {
			result = existing
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		now := time.Now().UTC()
		ar := &AccessRequest{
			ID:            newID(),
			ProjectID:     in.ProjectID,
			AgentID:       in.AgentID,
			AgentName:     in.AgentName,
			Capabilities:  in.Capabilities,
			RequestedRole: in.RequestedRole,
			Status:        AccessPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if ar.Capabilities == nil {
			ar.Capabilities = []string{}
		}
		_, err = tx.Exec(`
			INSERT INTO access_requests (id, project_id, agent_id, agent_name, capabilities,
				requested_role, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ar.ID, ar.ProjectID, ar.AgentID, nullString(ar.AgentName), marshalJSON(ar.Capabilities, "[]"),
			ar.RequestedRole, ar.Status, ar.CreatedAt, ar.UpdatedAt)
		if err != nil {
			return err
		}
		result = ar
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create access request: %w", err)
	}
	return result, nil
}

const accessSelect = `
	SELECT id, project_id, agent_id, agent_name, capabilities, requested_role, status,
		expires_at, reviewer, denial_reason, created_at, updated_at
	FROM access_requests`

func scanAccessRequest(row rowScanner) (*AccessRequest, error) {
	var ar AccessRequest
	var agentName, reviewer, denialReason string
	var agentNameN, reviewerN, denialReasonN sql.NullString
	var capabilities string
	var expiresAt sql.NullTime

	err := row.Scan(&ar.ID, &ar.ProjectID, &ar.AgentID, &agentNameN, &capabilities, &ar.RequestedRole,
		&ar.Status, &expiresAt, &reviewerN, &denialReasonN, &ar.CreatedAt, &ar.UpdatedAt)
	if err != nil {
		return nil, err
	}
	agentName = stringVal(agentNameN)
	reviewer = stringVal(reviewerN)
	denialReason = stringVal(denialReasonN)
	ar.AgentName = agentName
	ar.Reviewer = reviewer
	ar.DenialReason = denialReason
	ar.Capabilities = unmarshalStringSlice(capabilities)
	ar.ExpiresAt = timePtr(expiresAt)
	return &ar, nil
}

// ApproveAccessRequest sets status approved and writes an optional expiry.
// If no Agent row exists for this agent in this project, it is
// auto-registered with cost 0 and status idle.
func (s *Store) ApproveAccessRequest(requestID, reviewer string, expiresInDays int) (*AccessRequest, error) {
	var result *AccessRequest
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(accessSelect+` WHERE id = ?`, requestID)
		ar, err := scanAccessRequest(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("access request %s: %w", requestID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var expiresAt sql.NullTime
		if expiresInDays > 0 {
			expiresAt = sql.NullTime{Time: now.AddDate(0, 0, expiresInDays), Valid: true}
		}
		if _, err := tx.Exec(`
			UPDATE access_requests SET status = ?, reviewer = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
			AccessApproved, reviewer, expiresAt, now, requestID); err != nil {
			return err
		}

		var exists int
		if err := tx.QueryRow(`SELECT COUNT(1) FROM agents WHERE id = ?`, ar.AgentID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			if _, err := tx.Exec(`
				INSERT INTO agents (id, project_id, name, status, capabilities, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ar.AgentID, ar.ProjectID, ar.AgentName, AgentIdle, marshalJSON(ar.Capabilities, "[]"), now, now); err != nil {
				return err
			}
		}

		row = tx.QueryRow(accessSelect+` WHERE id = ?`, requestID)
		result, err = scanAccessRequest(row)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("approve access request: %w", err)
	}
	return result, nil
}

// DenyAccessRequest sets status denied with a reason.
func (s *Store) DenyAccessRequest(requestID, reviewer, reason string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE access_requests SET status = ?, reviewer = ?, denial_reason = ?, updated_at = ? WHERE id = ?`,
			AccessDenied, reviewer, reason, time.Now().UTC(), requestID)
		if err != nil {
			return err
		}
		return requireRowsAffected(res, "access request", requestID)
	})
}

// HasApprovedAccess reports whether an approved, non-expired request exists.
func (s *Store) HasApprovedAccess(projectID, agentID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM access_requests
		WHERE project_id = ? AND agent_id = ? AND status = ? AND (expires_at IS NULL OR expires_at > ?)`,
		projectID, agentID, AccessApproved, time.Now().UTC()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check approved access: %w", err)
	}
	return count > 0, nil
}

// LatestAccessRequest returns the most recent access request for an agent
// in a project, used by check_access when no pending/approved row exists.
func (s *Store) LatestAccessRequest(projectID, agentID string) (*AccessRequest, error) {
	row := s.db.QueryRow(accessSelect+` WHERE project_id = ? AND agent_id = ? ORDER BY created_at DESC LIMIT 1`,
		projectID, agentID)
	ar, err := scanAccessRequest(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("access request for %s/%s: %w", projectID, agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest access request: %w", err)
	}
	return ar, nil
}

// QueuePosition returns the 1-based position of a pending request within
// its project's pending queue, ordered by creation time.
func (s *Store) QueuePosition(projectID, requestID string) (int, error) {
	rows, err := s.db.Query(`
		SELECT id FROM access_requests WHERE project_id = ? AND status = ? ORDER BY created_at ASC`,
		projectID, AccessPending)
	if err != nil {
		return 0, fmt.Errorf("queue position: %w", err)
	}
	defer rows.Close()

	pos := 0
	for rows.Next() {
		pos++
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		if id == requestID {
			return pos, rows.Err()
		}
	}
	return 0, fmt.Errorf("access request %s: %w", requestID, ErrNotFound)
}

// ExpireOldRequests marks still-pending requests older than olderThanHours
// as expired, returning the count affected.
func (s *Store) ExpireOldRequests(projectID string, olderThanHours int) (int, error) {
	var count int64
	err := s.withTx(func(tx *sql.Tx) error {
		cutoff := time.Now().UTC().Add(-time.Duration(olderThanHours) * time.Hour)
		res, err := tx.Exec(`
			UPDATE access_requests SET status = ?, updated_at = ?
			WHERE project_id = ? AND status = ? AND created_at < ?`,
			AccessExpired, time.Now().UTC(), projectID, AccessPending, cutoff)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("expire old requests: %w", err)
	}
	return int(count), nil
}
