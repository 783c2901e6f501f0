// Package gitutil wraps the git CLI for the one repository query
// ConflictDetector needs: who last touched a file, and when.
package gitutil

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Repo scopes every command to one working directory.
type Repo struct {
	path string
}

// New returns a Repo rooted at path.
func New(path string) *Repo {
	return &Repo{path: path}
}

func (r *Repo) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.path
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output)), nil
}

// LastModification describes the most recent commit touching a path.
type LastModification struct {
	Author string
	When   time.Time
}

// LastModifier returns who last touched path and when, or (nil, nil) if
// the path has no history. Used by ConflictDetector.isFileSafeToModify.
func (r *Repo) LastModifier(path string) (*LastModification, error) {
	out, err := r.run("log", "-1", "--format=%an%x09%at", "--", path)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	parts := strings.SplitN(out, "\t", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("unexpected git log output: %q", out)
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse commit timestamp: %w", err)
	}
	return &LastModification{Author: parts[0], When: time.Unix(unix, 0)}, nil
}
