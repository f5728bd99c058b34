package workflow

import (
	"time"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/actor"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/optimizer"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateComplete  State = "complete"  // Every task complete
	StatePartial   State = "partial"   // Every task terminal, at least one failed
	StateExhausted State = "exhausted" // Iteration cap reached with open tasks
	StateFailed    State = "failed"    // Fatal planner, oracle or transition error, or cancellation
)

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StatePartial, StateExhausted, StateFailed:
		return true
	}
	return false
}

// TaskView is the serialised form of a task.
type TaskView struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Status      progress.Status   `json:"status"`
	Metadata    map[string]string `json:"metadata"`
}

func viewTasks(tasks []*progress.Task) []TaskView {
	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		meta := t.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		views[i] = TaskView{ID: t.ID, Description: t.Description, Status: t.Status, Metadata: meta}
	}
	return views
}

// Report is the final result of a run. Goal, History, Tasks and Rationale
// form the stable core; the remaining fields are additive.
type Report struct {
	Goal      string                 `json:"goal"`
	History   []progress.StatusEvent `json:"history"`
	Tasks     []TaskView             `json:"tasks"`
	Rationale string                 `json:"rationale"`

	RunID      string                  `json:"run_id"`
	State      State                   `json:"state"`
	Success    bool                    `json:"success"`
	Error      string                  `json:"error,omitempty"`
	Degraded   bool                    `json:"degraded"`
	Iterations int                     `json:"iterations"`
	Steps      map[string][]actor.Step `json:"steps"`
	Optimizer  optimizer.Metrics       `json:"gepa"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

// Snapshot is the live state handed to observers after every iteration.
type Snapshot struct {
	RunID     string                 `json:"run_id"`
	Goal      string                 `json:"goal"`
	State     State                  `json:"state"`
	Iteration int                    `json:"iteration"`
	Tasks     []TaskView             `json:"tasks"`
	History   []progress.StatusEvent `json:"history"`
	Optimizer optimizer.Metrics      `json:"gepa"`
	Rationale string                 `json:"rationale"`
	Checklist string                 `json:"checklist"`
	UpdatedAt time.Time              `json:"updated_at"`
}
