package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateProjectInput carries the caller-supplied fields for a new project.
type CreateProjectInput struct {
	OrganizationID   string
	Name             string
	Slug             string
	RootPath         string
	GitRemote        string
	GitBranch        string
	ConflictStrategy string
	Budget           *Budget
	Settings         map[string]interface{}
}

// CreateProject inserts a new project. ConflictStrategy defaults to "lock"
// when empty.
func (s *Store) CreateProject(in CreateProjectInput) (*Project, error) {
	if in.Name == "" || in.Slug == "" || in.OrganizationID == "" {
		return nil, fmt.Errorf("%w: organizationId, name and slug are required", ErrInvalidInput)
	}
	strategy := in.ConflictStrategy
	if strategy == "" {
		strategy = ConflictStrategyLock
	}

	now := time.Now().UTC()
	p := &Project{
		ID:               newID(),
		OrganizationID:   in.OrganizationID,
		Name:             in.Name,
		Slug:             in.Slug,
		RootPath:         in.RootPath,
		GitRemote:        in.GitRemote,
		GitBranch:        in.GitBranch,
		ConflictStrategy: strategy,
		Budget:           in.Budget,
		Settings:         in.Settings,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.Settings == nil {
		p.Settings = map[string]interface{}{}
	}

	err := s.withTx(func(tx *sql.Tx) error {
		var budgetTotal, budgetSpent, budgetAlert sql.NullFloat64
		var budgetCurrency sql.NullString
		if p.Budget != nil {
			budgetTotal = sql.NullFloat64{Float64: p.Budget.Total, Valid: true}
			budgetSpent = sql.NullFloat64{Float64: p.Budget.Spent, Valid: true}
			budgetAlert = sql.NullFloat64{Float64: p.Budget.AlertThreshold, Valid: true}
			budgetCurrency = nullString(p.Budget.Currency)
		}
		_, err := tx.Exec(`
			INSERT INTO projects (id, organization_id, name, slug, root_path, git_remote, git_branch,
				conflict_strategy, budget_total, budget_spent, budget_currency, budget_alert_threshold,
				settings, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.OrganizationID, p.Name, p.Slug, nullString(p.RootPath), nullString(p.GitRemote), nullString(p.GitBranch),
			p.ConflictStrategy, budgetTotal, budgetSpent.Float64, budgetCurrency, budgetAlert,
			marshalJSON(p.Settings, "{}"), p.CreatedAt, p.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// GetProject fetches a single project by id.
func (s *Store) GetProject(id string) (*Project, error) {
	row := s.db.QueryRow(`
		SELECT id, organization_id, name, slug, root_path, git_remote, git_branch, conflict_strategy,
			budget_total, budget_spent, budget_currency, budget_alert_threshold, settings, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var rootPath, gitRemote, gitBranch, budgetCurrency, settings sql.NullString
	var budgetTotal, budgetSpent, budgetAlert sql.NullFloat64

	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Slug, &rootPath, &gitRemote, &gitBranch,
		&p.ConflictStrategy, &budgetTotal, &budgetSpent, &budgetCurrency, &budgetAlert,
		&settings, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.RootPath = stringVal(rootPath)
	p.GitRemote = stringVal(gitRemote)
	p.GitBranch = stringVal(gitBranch)
	p.Settings = unmarshalMap(stringVal(settings))
	if budgetTotal.Valid || budgetSpent.Float64 != 0 {
		p.Budget = &Budget{
			Total:          budgetTotal.Float64,
			Spent:          budgetSpent.Float64,
			Currency:       stringVal(budgetCurrency),
			AlertThreshold: budgetAlert.Float64,
		}
	}
	return &p, nil
}

// ListProjectIDs returns every known project id, for callers that need to
// enumerate all projects without loading their full rows (HealthMonitor's
// scan loop).
func (s *Store) ListProjectIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateProjectSettings merges partial settings into the project's settings
// map (non-destructive, same shape as Task.Metadata merges).
func (s *Store) UpdateProjectSettings(projectID string, partial map[string]interface{}) error {
	return s.withTx(func(tx *sql.Tx) error {
		var raw string
		if err := tx.QueryRow(`SELECT settings FROM projects WHERE id = ?`, projectID).Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
			}
			return err
		}
		settings := unmarshalMap(raw)
		for k, v := range partial {
			settings[k] = v
		}
		_, err := tx.Exec(`UPDATE projects SET settings = ?, updated_at = ? WHERE id = ?`,
			marshalJSON(settings, "{}"), time.Now().UTC(), projectID)
		return err
	})
}
