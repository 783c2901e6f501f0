package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RecordClaim appends a task-history row. Called after every successful
// ClaimTask so first-task detection and checkpoint cadence have a ledger
// to consult.
func (s *Store) RecordClaim(projectID, agentID, taskID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO agent_task_history (id, project_id, agent_id, task_id, claimed_at)
			VALUES (?, ?, ?, ?, ?)`,
			newID(), projectID, agentID, taskID, time.Now().UTC())
		return err
	})
}

// ClaimCount returns how many tasks an agent has claimed in a project,
// including the claim just recorded — used to detect first-task (count==1)
// and checkpoint cadence (count % everyN == 0).
func (s *Store) ClaimCount(projectID, agentID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM agent_task_history WHERE project_id = ? AND agent_id = ?`,
		projectID, agentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("claim count: %w", err)
	}
	return count, nil
}

// GetOnboarding returns a project's onboarding configuration, or
// ErrNotFound if none has been set.
func (s *Store) GetOnboarding(projectID string) (*ProjectOnboarding, error) {
	row := s.db.QueryRow(`
		SELECT project_id, welcome_message, project_goals, agent_instructions, style_guide,
			checkpoint_rules, checkpoint_every_n_tasks, allowed_paths, denied_paths, zones,
			auto_refresh_context
		FROM project_onboarding WHERE project_id = ?`, projectID)

	var ob ProjectOnboarding
	var welcome, instructions, styleGuide sql.NullString
	var goals, rules, allowed, denied, zones string
	var autoRefresh int

	err := row.Scan(&ob.ProjectID, &welcome, &goals, &instructions, &styleGuide, &rules,
		&ob.CheckpointEveryNTasks, &allowed, &denied, &zones, &autoRefresh)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("onboarding for %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get onboarding: %w", err)
	}
	ob.WelcomeMessage = stringVal(welcome)
	ob.AgentInstructions = stringVal(instructions)
	ob.StyleGuide = stringVal(styleGuide)
	ob.ProjectGoals = unmarshalStringSlice(goals)
	ob.CheckpointRules = unmarshalStringSlice(rules)
	ob.AllowedPaths = unmarshalStringSlice(allowed)
	ob.DeniedPaths = unmarshalStringSlice(denied)
	ob.Zones = unmarshalZones(zones)
	ob.AutoRefreshContext = autoRefresh != 0
	return &ob, nil
}

// UpsertOnboarding creates or replaces a project's onboarding configuration.
func (s *Store) UpsertOnboarding(ob ProjectOnboarding) error {
	if ob.ProjectID == "" {
		return fmt.Errorf("%w: projectId is required", ErrInvalidInput)
	}
	if ob.CheckpointEveryNTasks <= 0 {
		ob.CheckpointEveryNTasks = 3
	}
	now := time.Now().UTC()
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO project_onboarding (project_id, welcome_message, project_goals, agent_instructions,
				style_guide, checkpoint_rules, checkpoint_every_n_tasks, allowed_paths, denied_paths,
				zones, auto_refresh_context, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id) DO UPDATE SET
				welcome_message = excluded.welcome_message,
				project_goals = excluded.project_goals,
				agent_instructions = excluded.agent_instructions,
				style_guide = excluded.style_guide,
				checkpoint_rules = excluded.checkpoint_rules,
				checkpoint_every_n_tasks = excluded.checkpoint_every_n_tasks,
				allowed_paths = excluded.allowed_paths,
				denied_paths = excluded.denied_paths,
				zones = excluded.zones,
				auto_refresh_context = excluded.auto_refresh_context,
				updated_at = excluded.updated_at`,
			ob.ProjectID, nullString(ob.WelcomeMessage), marshalJSON(ob.ProjectGoals, "[]"),
			nullString(ob.AgentInstructions), nullString(ob.StyleGuide), marshalJSON(ob.CheckpointRules, "[]"),
			ob.CheckpointEveryNTasks, marshalJSON(ob.AllowedPaths, "[]"), marshalJSON(ob.DeniedPaths, "[]"),
			marshalJSON(ob.Zones, "[]"), boolToInt(ob.AutoRefreshContext), now, now)
		return err
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
