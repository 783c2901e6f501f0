package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// bead is the external unit-of-work format imported from a separate
// planning tool (see GLOSSARY). Files are named "<id>.bead.json".
type bead struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria string   `json:"acceptance_criteria"`
	Status             string   `json:"status"`
	Priority           string   `json:"priority"`
	DependsOn          []string `json:"depends_on"`
}

// convoy groups bead ids under a shared label. Files are named
// "<id>.convoy.json".
type convoy struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// ImportResult summarizes a bead import pass.
type ImportResult struct {
	Imported int
	Skipped  int
}

var beadStatusMap = map[string]string{
	"complete":    TaskCompleted,
	"in_progress": TaskInProgress,
	"blocked":     TaskBlocked,
}

// ImportBeads reads a directory of bead (and optional convoy) JSON files
// and creates one task per unseen bead_id. Re-importing the same directory
// is idempotent: previously imported beads (deduped by
// metadata.bead_id) are skipped, not duplicated.
func (s *Store) ImportBeads(projectID, dir string) (*ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read bead directory: %w", err)
	}

	var beadFiles, convoyFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".bead.json"):
			beadFiles = append(beadFiles, filepath.Join(dir, name))
		case strings.HasSuffix(name, ".convoy.json"):
			convoyFiles = append(convoyFiles, filepath.Join(dir, name))
		}
	}
	sort.Strings(beadFiles)
	sort.Strings(convoyFiles)

	orderedBeads := make([]*bead, 0, len(beadFiles))
	for _, path := range beadFiles {
		b, err := readBeadFile(path)
		if err != nil {
			return nil, err
		}
		orderedBeads = append(orderedBeads, b)
	}

	memberConvoy := map[string]convoy{}
	for _, path := range convoyFiles {
		c, err := readConvoyFile(path)
		if err != nil {
			return nil, err
		}
		for _, m := range c.Members {
			memberConvoy[m] = c
		}
	}

	result := &ImportResult{}
	beadToTaskID := map[string]string{}

	err = s.withTx(func(tx *sql.Tx) error {
		existing, err := loadExistingBeadTaskIDs(tx, projectID)
		if err != nil {
			return err
		}
		for id, taskID := range existing {
			beadToTaskID[id] = taskID
		}

		// First pass: create tasks for unseen beads so dependency
		// resolution in the second pass can see sibling ids too.
		for _, b := range orderedBeads {
			if _, ok := existing[b.ID]; ok {
				result.Skipped++
				continue
			}
			taskID, err := insertBeadTask(tx, projectID, b, memberConvoy[b.ID])
			if err != nil {
				return err
			}
			beadToTaskID[b.ID] = taskID
			result.Imported++
		}

		// Second pass: resolve bead-id dependencies to task ids now that
		// every bead in this batch has a row.
		for _, b := range orderedBeads {
			if len(b.DependsOn) == 0 {
				continue
			}
			taskID, ok := beadToTaskID[b.ID]
			if !ok {
				continue
			}
			var deps []string
			for _, dep := range b.DependsOn {
				if depTaskID, ok := beadToTaskID[dep]; ok {
					deps = append(deps, depTaskID)
				}
			}
			if len(deps) == 0 {
				continue
			}
			if _, err := tx.Exec(`UPDATE tasks SET dependencies = ? WHERE id = ?`,
				marshalJSON(deps, "[]"), taskID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import beads: %w", err)
	}
	return result, nil
}

func readBeadFile(path string) (*bead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bead file %s: %w", path, err)
	}
	var b bead
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bead file %s: %w", path, err)
	}
	if b.ID == "" {
		b.ID = strings.TrimSuffix(filepath.Base(path), ".bead.json")
	}
	return &b, nil
}

func readConvoyFile(path string) (convoy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return convoy{}, fmt.Errorf("read convoy file %s: %w", path, err)
	}
	var c convoy
	if err := json.Unmarshal(data, &c); err != nil {
		return convoy{}, fmt.Errorf("parse convoy file %s: %w", path, err)
	}
	return c, nil
}

func loadExistingBeadTaskIDs(tx *sql.Tx, projectID string) (map[string]string, error) {
	rows, err := tx.Query(`SELECT id, metadata FROM tasks WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, metadata string
		if err := rows.Scan(&id, &metadata); err != nil {
			return nil, err
		}
		meta := unmarshalMap(metadata)
		if beadID, ok := meta["bead_id"].(string); ok && beadID != "" {
			out[beadID] = id
		}
	}
	return out, rows.Err()
}

func insertBeadTask(tx *sql.Tx, projectID string, b *bead, c convoy) (string, error) {
	status, ok := beadStatusMap[b.Status]
	if !ok {
		status = TaskPending
	}
	priority := b.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	description := b.Description
	if b.AcceptanceCriteria != "" {
		if description != "" {
			description += "\n\n"
		}
		description += "Acceptance criteria:\n" + b.AcceptanceCriteria
	}

	metadata := map[string]interface{}{"bead_id": b.ID}
	if c.ID != "" {
		metadata["convoy_id"] = c.ID
		metadata["convoy_name"] = c.Name
	}

	taskID := newID()
	now := time.Now().UTC()
	_, err := tx.Exec(`
		INSERT INTO tasks (id, project_id, title, description, status, priority,
			dependencies, blocked_by, files, tags, estimated_tokens, actual_tokens, metadata,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '[]', '[]', '[]', '[]', 0, 0, ?, ?, ?)`,
		taskID, projectID, b.Title, nullString(description), status, priority,
		marshalJSON(metadata, "{}"), now, now)
	if err != nil {
		return "", err
	}
	return taskID, nil
}
