package runcontroller

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loopctl/pkg/model"
)

// stateSnapshot is the run's crash-recoverable progress marker, rewritten in
// full on every phase transition so a killed process leaves behind an
// inspectable state.json rather than a silently truncated run. Grounded on
// original_source/orchestrator/main.py's save_state() call after every
// major step of run_loop.
type stateSnapshot struct {
	RunID       string     `json:"run_id"`
	Task        string     `json:"task"`
	Phase       string     `json:"phase"`
	Iteration   int        `json:"iteration"`
	MaxIterations int      `json:"max_iterations"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StopReason  model.StopReason `json:"stop_reason,omitempty"`
}

func (r *run) writeState(phase string) {
	snap := stateSnapshot{
		RunID:         r.runID,
		Task:          r.task,
		Phase:         phase,
		Iteration:     len(r.iterations),
		MaxIterations: r.cfg.MaxIterations,
		UpdatedAt:     time.Now(),
		StopReason:    r.stopReason,
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		r.log.Warnf("runcontroller: marshaling state.json: %v", err)
		return
	}
	path := filepath.Join(r.paths.WorkspaceDir, "state.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		r.log.Warnf("runcontroller: writing state.json: %v", err)
	}
}

func writeJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, raw, 0o644)
}
