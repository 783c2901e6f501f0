package conflict

import (
	"time"

	"github.com/coordinator-core/coordinator/internal/gitutil"
	"github.com/coordinator-core/coordinator/internal/store"
)

// Resolution is the action a caller should take for a detected conflict.
type Resolution string

const (
	ResolutionWait  Resolution = "wait"
	ResolutionMerge Resolution = "merge"
	ResolutionHuman Resolution = "human"
)

// Detected is a file touched by two or more in_progress tasks.
type Detected struct {
	FilePath string
	Agents   []string
	Strategy string
}

// DetectOverlappingTasks groups in_progress tasks by file and flags every
// file touched by two or more of them. Detected conflicts default to
// "review" (human resolution), overriding whatever conflict strategy the
// project configured — contention always escalates
// to a human by default. Unassigned tasks still count toward detection
// but contribute no agent to the resulting record.
func DetectOverlappingTasks(tasks []*store.Task) []Detected {
	fileTaskCount := map[string]int{}
	fileAgents := map[string][]string{}
	seenAgent := map[string]map[string]bool{}

	for _, t := range tasks {
		if t.Status != store.TaskInProgress {
			continue
		}
		for _, f := range t.Files {
			fileTaskCount[f]++
			if t.Assignee == "" {
				continue
			}
			if seenAgent[f] == nil {
				seenAgent[f] = map[string]bool{}
			}
			if !seenAgent[f][t.Assignee] {
				seenAgent[f][t.Assignee] = true
				fileAgents[f] = append(fileAgents[f], t.Assignee)
			}
		}
	}

	var out []Detected
	for f, count := range fileTaskCount {
		if count < 2 {
			continue
		}
		out = append(out, Detected{
			FilePath: f,
			Agents:   fileAgents[f],
			Strategy: store.ConflictStrategyReview,
		})
	}
	return out
}

// ResolveStrategy maps a conflict's own strategy (if set) or else the
// project default to the action a caller should take.
func ResolveStrategy(conflictStrategy, projectStrategy string) Resolution {
	strategy := projectStrategy
	if conflictStrategy != "" {
		strategy = conflictStrategy
	}
	switch strategy {
	case store.ConflictStrategyMerge:
		return ResolutionMerge
	case store.ConflictStrategyReview:
		return ResolutionHuman
	case store.ConflictStrategyLock, store.ConflictStrategyZone:
		return ResolutionWait
	default:
		return ResolutionWait
	}
}

// IsFileSafeToModify queries the repository's last modifier of path and
// reports whether agent may safely touch it: safe if there's no history,
// if the last modifier was this same agent, or if that modification fell
// outside windowMinutes. Any inspection error is treated as safe
// (optimistic) — a broken git log must never block an agent.
func IsFileSafeToModify(repo *gitutil.Repo, path, agent string, windowMinutes int) bool {
	last, err := repo.LastModifier(path)
	if err != nil {
		return true
	}
	if last == nil {
		return true
	}
	if last.Author == agent {
		return true
	}
	return time.Since(last.When) > time.Duration(windowMinutes)*time.Minute
}
