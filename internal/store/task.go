package store

import (
	"database/sql"
	"fmt"
	"time"
)

// validTaskTransitions encodes the task status state machine. claim() and
// reassign() are separate CAS operations with their own predicates; this
// table governs the explicit update() transitions only.
var validTaskTransitions = map[string]map[string]bool{
	TaskPending:    {TaskClaimed: true},
	TaskClaimed:    {TaskInProgress: true, TaskCancelled: true},
	TaskInProgress: {TaskCompleted: true, TaskFailed: true, TaskBlocked: true},
	TaskBlocked:    {TaskPending: true},
}

// CreateTaskInput carries the caller-supplied fields for a new task.
type CreateTaskInput struct {
	ProjectID       string
	Title           string
	Description     string
	Priority        string
	Dependencies    []string
	Files           []string
	Tags            []string
	EstimatedTokens int64
	Metadata        map[string]interface{}
}

// CreateTask inserts a new task in status pending. Dependencies must not
// contain the task's own id (impossible pre-insert) and must not form a
// cycle with existing tasks; the cycle check walks the
// dependency graph of the referenced tasks.
func (s *Store) CreateTask(in CreateTaskInput) (*Task, error) {
	if in.ProjectID == "" || in.Title == "" {
		return nil, fmt.Errorf("%w: projectId and title are required", ErrInvalidInput)
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if _, ok := priorityRank[priority]; !ok {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}

	now := time.Now().UTC()
	t := &Task{
		ID:              newID(),
		ProjectID:       in.ProjectID,
		Title:           in.Title,
		Description:     in.Description,
		Status:          TaskPending,
		Priority:        priority,
		Dependencies:    in.Dependencies,
		BlockedBy:       []string{},
		Files:           in.Files,
		Tags:            in.Tags,
		EstimatedTokens: in.EstimatedTokens,
		Metadata:        in.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	if t.Files == nil {
		t.Files = []string{}
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]interface{}{}
	}

	err := s.withTx(func(tx *sql.Tx) error {
		if len(t.Dependencies) > 0 {
			if err := checkNoCycle(tx, in.ProjectID, t.ID, t.Dependencies); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`
			INSERT INTO tasks (id, project_id, title, description, status, priority,
				dependencies, blocked_by, files, tags, estimated_tokens, actual_tokens, metadata,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			t.ID, t.ProjectID, t.Title, nullString(t.Description), t.Status, t.Priority,
			marshalJSON(t.Dependencies, "[]"), marshalJSON(t.BlockedBy, "[]"),
			marshalJSON(t.Files, "[]"), marshalJSON(t.Tags, "[]"), t.EstimatedTokens,
			marshalJSON(t.Metadata, "{}"), t.CreatedAt, t.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// checkNoCycle walks the dependency graph reachable from deps and fails if
// it reaches taskID (a cycle through the new task). Dependency ids that
// match no task in the project are skipped.
func checkNoCycle(tx *sql.Tx, projectID, taskID string, deps []string) error {
	visited := map[string]bool{}
	var walk func(id string) error
	walk = func(id string) error {
		if id == taskID {
			return fmt.Errorf("%w: dependency path returns to the new task", ErrCyclicDependency)
		}
		if visited[id] {
			return nil
		}
		visited[id] = true

		var raw string
		err := tx.QueryRow(`SELECT dependencies FROM tasks WHERE id = ? AND project_id = ?`, id, projectID).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil // unresolved dependency ids are tolerated at create time
		}
		if err != nil {
			return err
		}
		for _, dep := range unmarshalStringSlice(raw) {
			if err := walk(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, d := range deps {
		if d == taskID {
			return fmt.Errorf("%w: task cannot depend on itself", ErrCyclicDependency)
		}
		if err := walk(d); err != nil {
			return err
		}
	}
	return nil
}

const taskSelect = `
	SELECT id, project_id, title, description, status, priority, assignee,
		claimed_at, started_at, completed_at, dependencies, blocked_by, files, tags,
		estimated_tokens, actual_tokens, metadata, created_at, updated_at
	FROM tasks`

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var description, assignee sql.NullString
	var claimedAt, startedAt, completedAt sql.NullTime
	var dependencies, blockedBy, files, tags, metadata string

	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &t.Status, &t.Priority, &assignee,
		&claimedAt, &startedAt, &completedAt, &dependencies, &blockedBy, &files, &tags,
		&t.EstimatedTokens, &t.ActualTokens, &metadata, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = stringVal(description)
	t.Assignee = stringVal(assignee)
	t.ClaimedAt = timePtr(claimedAt)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	t.Dependencies = unmarshalStringSlice(dependencies)
	t.BlockedBy = unmarshalStringSlice(blockedBy)
	t.Files = unmarshalStringSlice(files)
	t.Tags = unmarshalStringSlice(tags)
	t.Metadata = unmarshalMap(metadata)
	return &t, nil
}

// GetTask fetches a single task by id.
func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(taskSelect+` WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks for a project matching filter, ordered by
// priority rank then createdAt ascending (the default ordering).
func (s *Store) ListTasks(projectID string, filter TaskFilter) ([]*Task, error) {
	query := taskSelect + ` WHERE project_id = ?`
	args := []interface{}{projectID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, filter.Priority)
	}
	if filter.AssignedTo != "" {
		query += ` AND assignee = ?`
		args = append(args, filter.AssignedTo)
	}
	query += ` ORDER BY CASE priority
		WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END ASC,
		created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimTask is the hot concurrency path: a single atomic conditional UPDATE
// so concurrent claimants see exactly one winner. Never blocks; returns
// (true, nil) for the winner and (false, nil) for everyone else.
func (s *Store) ClaimTask(taskID, agentID string) (bool, error) {
	var claimed bool
	err := s.withTx(func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.Exec(`
			UPDATE tasks SET status = ?, assignee = ?, claimed_at = ?, updated_at = ?
			WHERE id = ? AND status = ? AND (assignee IS NULL OR assignee = '' OR assignee = ?)`,
			TaskClaimed, agentID, now, now, taskID, TaskPending, agentID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	return claimed, nil
}

// TaskUpdate is the partial mutation accepted by UpdateTask.
type TaskUpdate struct {
	Status       string
	Notes        string
	TokensUsed   int64
	BlockedBy    []string
	MergeMeta    map[string]interface{}
}

// UpdateTask validates the requested transition (if Status is set),
// auto-sets startedAt on first entry to in_progress and completedAt on
// completed/failed, merges Notes into metadata non-destructively, and
// updates actualTokens/blockedBy.
func (s *Store) UpdateTask(taskID string, in TaskUpdate) (*Task, error) {
	return s.transitionTask(taskID, in.Status, func(tx *sql.Tx, t *Task) error {
		now := time.Now().UTC()
		metadata := t.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		if in.Notes != "" {
			var notes []interface{}
			if existing, ok := metadata["notes"].([]interface{}); ok {
				notes = existing
			}
			notes = append(notes, map[string]interface{}{"text": in.Notes, "at": now.Format(time.RFC3339)})
			metadata["notes"] = notes
		}
		for k, v := range in.MergeMeta {
			metadata[k] = v
		}

		actualTokens := t.ActualTokens
		if in.TokensUsed > 0 {
			actualTokens += in.TokensUsed
		}
		blockedBy := t.BlockedBy
		if in.BlockedBy != nil {
			blockedBy = in.BlockedBy
		}

		_, err := tx.Exec(`UPDATE tasks SET actual_tokens = ?, blocked_by = ?, metadata = ?, updated_at = ? WHERE id = ?`,
			actualTokens, marshalJSON(blockedBy, "[]"), marshalJSON(metadata, "{}"), now, taskID)
		return err
	})
}

// transitionTask loads the task, validates status (if non-empty) against
// validTaskTransitions, applies extra via the supplied fn, and stamps
// startedAt/completedAt as the transition requires. All in one transaction.
func (s *Store) transitionTask(taskID, newStatus string, extra func(tx *sql.Tx, t *Task) error) (*Task, error) {
	var result *Task
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(taskSelect+` WHERE id = ?`, taskID)
		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if newStatus != "" && newStatus != t.Status {
			allowed := validTaskTransitions[t.Status]
			if !allowed[newStatus] {
				return fmt.Errorf("%w: cannot transition task %s from %s to %s", ErrConflict, taskID, t.Status, newStatus)
			}
			now := time.Now().UTC()
			setStarted := newStatus == TaskInProgress && t.StartedAt == nil
			setCompleted := newStatus == TaskCompleted || newStatus == TaskFailed

			query := `UPDATE tasks SET status = ?, updated_at = ?`
			args := []interface{}{newStatus, now}
			if setStarted {
				query += `, started_at = ?`
				args = append(args, now)
			}
			if setCompleted {
				query += `, completed_at = ?`
				args = append(args, now)
			}
			query += ` WHERE id = ?`
			args = append(args, taskID)
			if _, err := tx.Exec(query, args...); err != nil {
				return err
			}
			t.Status = newStatus
		}

		if extra != nil {
			if err := extra(tx, t); err != nil {
				return err
			}
		}

		row = tx.QueryRow(taskSelect+` WHERE id = ?`, taskID)
		result, err = scanTask(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReassignTask atomically sets assignee to newAgent, status back to
// claimed, refreshes claimedAt, increments metadata.reassignmentCount,
// records lastReassignedFrom, and deletes every file lock the previous
// agent held in this project.
func (s *Store) ReassignTask(taskID, newAgent string) (*Task, error) {
	var result *Task
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(taskSelect+` WHERE id = ?`, taskID)
		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		previousAgent := t.Assignee
		now := time.Now().UTC()

		metadata := t.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		count := 0
		if v, ok := metadata["reassignmentCount"].(float64); ok {
			count = int(v)
		}
		metadata["reassignmentCount"] = count + 1
		if previousAgent != "" {
			metadata["lastReassignedFrom"] = previousAgent
		}

		if _, err := tx.Exec(`
			UPDATE tasks SET assignee = ?, status = ?, claimed_at = ?, metadata = ?, updated_at = ?
			WHERE id = ?`,
			newAgent, TaskClaimed, now, marshalJSON(metadata, "{}"), now, taskID); err != nil {
			return err
		}

		if previousAgent != "" {
			if _, err := tx.Exec(`DELETE FROM file_locks WHERE project_id = ? AND holder = ?`,
				t.ProjectID, previousAgent); err != nil {
				return err
			}
		}

		row = tx.QueryRow(taskSelect+` WHERE id = ?`, taskID)
		result, err = scanTask(row)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reassign task: %w", err)
	}
	return result, nil
}
