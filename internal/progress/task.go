package progress

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"     // Seeded, not yet picked up
	StatusInProgress Status = "in_progress" // Dispatched to the actor
	StatusComplete   Status = "complete"    // Finished successfully
	StatusFailed     Status = "failed"      // Finished with a tool or execution failure
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Marker returns the checklist marker used by Render.
func (s Status) Marker() string {
	switch s {
	case StatusInProgress:
		return "[-]"
	case StatusComplete:
		return "[x]"
	case StatusFailed:
		return "[!]"
	default:
		return "[ ]"
	}
}

// Task is a single subtask of a goal.
type Task struct {
	ID          string            // Unique within a run ("task-1", "task-2", ...)
	Description string            // Human-readable subtask text
	Status      Status            // Current lifecycle state
	Metadata    map[string]string // Open schema (e.g. path, content for file tools)
}

// TaskSpec describes a task to seed.
type TaskSpec struct {
	Description string
	Metadata    map[string]string
}

// StatusEvent records one transition. Events are append-only.
type StatusEvent struct {
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes"`
}

// Snapshot is an immutable copy of the manager state.
type Snapshot struct {
	Tasks   []*Task
	History []StatusEvent
}

// ErrInvalidTransition is matched by every *InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvalidTransitionError is returned when a transition is not allowed from the
// task's current status, or when the task does not exist.
type InvalidTransitionError struct {
	TaskID string
	From   Status // Empty when the task is unknown
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("task %q not found: cannot mark %s", e.TaskID, e.To)
	}
	return fmt.Sprintf("task %q: cannot transition %s -> %s", e.TaskID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Metadata != nil {
		cp.Metadata = make(map[string]string, len(task.Metadata))
		for k, v := range task.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
