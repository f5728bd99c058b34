package progress

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Manager is the authoritative task ledger for a single run.
// Every mutation goes through one mutex, so concurrent callers never observe a
// torn read-validate-write sequence.
type Manager struct {
	mu      sync.Mutex
	order   []string         // Task IDs in seed order
	tasks   map[string]*Task // All tasks indexed by ID
	history []StatusEvent
	seeded  bool

	rendered string // Cached checklist, valid while dirty is false
	dirty    bool

	now func() time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		tasks: make(map[string]*Task),
		dirty: true,
		now:   time.Now,
	}
}

// Seed initialises the checklist from ordered task specs. Every task starts
// pending and receives an ID of the form "task-<n>" (1-based, seed order).
// Seeding twice is an error.
func (m *Manager) Seed(specs []TaskSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seeded {
		return errors.New("progress: already seeded")
	}

	for i, spec := range specs {
		id := fmt.Sprintf("task-%d", i+1)
		task := &Task{
			ID:          id,
			Description: spec.Description,
			Status:      StatusPending,
		}
		if len(spec.Metadata) > 0 {
			task.Metadata = make(map[string]string, len(spec.Metadata))
			for k, v := range spec.Metadata {
				task.Metadata[k] = v
			}
		}
		m.tasks[id] = task
		m.order = append(m.order, id)
	}

	m.seeded = true
	m.dirty = true
	return nil
}

// MarkInProgress moves a pending task to in_progress.
func (m *Manager) MarkInProgress(taskID string) error {
	return m.transition(taskID, StatusPending, StatusInProgress, "")
}

// MarkComplete moves an in_progress task to complete.
func (m *Manager) MarkComplete(taskID, notes string) error {
	return m.transition(taskID, StatusInProgress, StatusComplete, notes)
}

// MarkFailed moves an in_progress task to failed.
func (m *Manager) MarkFailed(taskID, notes string) error {
	return m.transition(taskID, StatusInProgress, StatusFailed, notes)
}

func (m *Manager) transition(taskID string, from, to Status, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[taskID]
	if !exists {
		return &InvalidTransitionError{TaskID: taskID, To: to}
	}
	if task.Status != from {
		return &InvalidTransitionError{TaskID: taskID, From: task.Status, To: to}
	}

	task.Status = to
	m.history = append(m.history, StatusEvent{
		TaskID:    taskID,
		Status:    to,
		Timestamp: m.now(),
		Notes:     notes,
	})
	m.dirty = true
	return nil
}

// Render returns the ordered checklist, one line per task:
//
//	1. [x] Write the summary
//	2. [-] Read notes.txt
//	3. [ ] List files
//
// The result is cached until the next transition.
func (m *Manager) Render() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return m.rendered
	}

	var sb strings.Builder
	for i, id := range m.order {
		task := m.tasks[id]
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d. %s %s", i+1, task.Status.Marker(), task.Description)
	}

	m.rendered = sb.String()
	m.dirty = false
	return m.rendered
}

// Snapshot returns a deep copy of the tasks (seed order) and the history.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]*Task, 0, len(m.order))
	for _, id := range m.order {
		tasks = append(tasks, cloneTask(m.tasks[id]))
	}

	return Snapshot{
		Tasks:   tasks,
		History: append([]StatusEvent(nil), m.history...),
	}
}

// Get returns a copy of the task with the given ID.
func (m *Manager) Get(taskID string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Len returns the number of seeded tasks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Counts returns the number of tasks in each status. The values always sum to Len.
func (m *Manager) Counts() map[Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[Status]int{
		StatusPending:    0,
		StatusInProgress: 0,
		StatusComplete:   0,
		StatusFailed:     0,
	}
	for _, task := range m.tasks {
		counts[task.Status]++
	}
	return counts
}

// GoalComplete reports whether at least one task exists and all are complete.
func (m *Manager) GoalComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tasks) == 0 {
		return false
	}
	for _, task := range m.tasks {
		if task.Status != StatusComplete {
			return false
		}
	}
	return true
}

// AllTerminal reports whether every task is complete or failed.
func (m *Manager) AllTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, task := range m.tasks {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}
