package progress

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func seeded(t *testing.T, descs ...string) *Manager {
	t.Helper()
	m := NewManager()
	specs := make([]TaskSpec, len(descs))
	for i, d := range descs {
		specs[i] = TaskSpec{Description: d}
	}
	if err := m.Seed(specs); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	return m
}

func TestSeedAssignsOrderedIDs(t *testing.T) {
	m := seeded(t, "A", "B", "C")

	snap := m.Snapshot()
	if len(snap.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(snap.Tasks))
	}
	for i, task := range snap.Tasks {
		wantID := fmt.Sprintf("task-%d", i+1)
		if task.ID != wantID {
			t.Errorf("task %d: expected ID %q, got %q", i, wantID, task.ID)
		}
		if task.Status != StatusPending {
			t.Errorf("task %s: expected pending, got %s", task.ID, task.Status)
		}
	}
	if len(snap.History) != 0 {
		t.Errorf("expected empty history after seed, got %d events", len(snap.History))
	}
}

func TestSeedTwiceFails(t *testing.T) {
	m := seeded(t, "A")
	if err := m.Seed([]TaskSpec{{Description: "B"}}); err == nil {
		t.Fatal("expected error on second Seed")
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   func(m *Manager) error
		wantErr bool
	}{
		{
			name: "pending to in_progress to complete",
			steps: func(m *Manager) error {
				if err := m.MarkInProgress("task-1"); err != nil {
					return err
				}
				return m.MarkComplete("task-1", "")
			},
		},
		{
			name: "pending to in_progress to failed",
			steps: func(m *Manager) error {
				if err := m.MarkInProgress("task-1"); err != nil {
					return err
				}
				return m.MarkFailed("task-1", "tool error")
			},
		},
		{
			name:    "complete without in_progress",
			steps:   func(m *Manager) error { return m.MarkComplete("task-1", "") },
			wantErr: true,
		},
		{
			name:    "failed without in_progress",
			steps:   func(m *Manager) error { return m.MarkFailed("task-1", "") },
			wantErr: true,
		},
		{
			name: "in_progress twice",
			steps: func(m *Manager) error {
				if err := m.MarkInProgress("task-1"); err != nil {
					return err
				}
				return m.MarkInProgress("task-1")
			},
			wantErr: true,
		},
		{
			name: "complete is terminal",
			steps: func(m *Manager) error {
				m.MarkInProgress("task-1")
				m.MarkComplete("task-1", "")
				return m.MarkFailed("task-1", "")
			},
			wantErr: true,
		},
		{
			name:    "unknown task",
			steps:   func(m *Manager) error { return m.MarkInProgress("task-99") },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := seeded(t, "A")
			err := tt.steps(m)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
				var ite *InvalidTransitionError
				if !errors.As(err, &ite) {
					t.Errorf("expected *InvalidTransitionError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestInvalidTransitionLeavesStateUntouched(t *testing.T) {
	m := seeded(t, "A")
	before := m.Render()

	if err := m.MarkComplete("task-1", ""); err == nil {
		t.Fatal("expected error")
	}

	task, _ := m.Get("task-1")
	if task.Status != StatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
	if got := len(m.Snapshot().History); got != 0 {
		t.Errorf("expected no history, got %d events", got)
	}
	if m.Render() != before {
		t.Error("render changed after rejected transition")
	}
}

func TestHistoryAppendOnly(t *testing.T) {
	m := seeded(t, "A", "B")
	m.MarkInProgress("task-1")
	m.MarkComplete("task-1", "done")
	m.MarkInProgress("task-2")
	m.MarkFailed("task-2", "boom")

	history := m.Snapshot().History
	want := []struct {
		id     string
		status Status
		notes  string
	}{
		{"task-1", StatusInProgress, ""},
		{"task-1", StatusComplete, "done"},
		{"task-2", StatusInProgress, ""},
		{"task-2", StatusFailed, "boom"},
	}
	if len(history) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(history))
	}
	for i, w := range want {
		ev := history[i]
		if ev.TaskID != w.id || ev.Status != w.status || ev.Notes != w.notes {
			t.Errorf("event %d: got %+v, want %+v", i, ev, w)
		}
		if ev.Timestamp.IsZero() {
			t.Errorf("event %d: zero timestamp", i)
		}
	}
}

func TestCountsSumToLen(t *testing.T) {
	m := seeded(t, "A", "B", "C", "D")
	m.MarkInProgress("task-1")
	m.MarkComplete("task-1", "")
	m.MarkInProgress("task-2")
	m.MarkFailed("task-2", "")
	m.MarkInProgress("task-3")

	counts := m.Counts()
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != m.Len() {
		t.Errorf("counts sum to %d, expected %d", total, m.Len())
	}

	want := map[Status]int{
		StatusPending:    1,
		StatusInProgress: 1,
		StatusComplete:   1,
		StatusFailed:     1,
	}
	for status, n := range want {
		if counts[status] != n {
			t.Errorf("%s: expected %d, got %d", status, n, counts[status])
		}
	}
}

func TestRender(t *testing.T) {
	m := seeded(t, "A", "B", "C", "D")
	m.MarkInProgress("task-1")
	m.MarkComplete("task-1", "")
	m.MarkInProgress("task-2")
	m.MarkFailed("task-2", "")
	m.MarkInProgress("task-3")

	want := strings.Join([]string{
		"1. [x] A",
		"2. [!] B",
		"3. [-] C",
		"4. [ ] D",
	}, "\n")
	if got := m.Render(); got != want {
		t.Errorf("Render mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}

	// Render is pure: repeated calls return identical output without touching history.
	if got := m.Render(); got != want {
		t.Error("second Render differs")
	}
	if len(m.Snapshot().History) != 5 {
		t.Error("Render modified history")
	}
}

func TestRenderCacheInvalidatedByTransition(t *testing.T) {
	m := seeded(t, "A")
	if got := m.Render(); got != "1. [ ] A" {
		t.Fatalf("unexpected render: %q", got)
	}
	m.MarkInProgress("task-1")
	if got := m.Render(); got != "1. [-] A" {
		t.Errorf("stale render after transition: %q", got)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	m := NewManager()
	m.Seed([]TaskSpec{{Description: "Write", Metadata: map[string]string{"path": "a.txt"}}})

	snap := m.Snapshot()
	snap.Tasks[0].Status = StatusComplete
	snap.Tasks[0].Metadata["path"] = "evil.txt"

	task, _ := m.Get("task-1")
	if task.Status != StatusPending {
		t.Error("snapshot mutation leaked into manager status")
	}
	if task.Metadata["path"] != "a.txt" {
		t.Error("snapshot mutation leaked into manager metadata")
	}
}

func TestGoalCompleteAndAllTerminal(t *testing.T) {
	empty := NewManager()
	if empty.GoalComplete() {
		t.Error("empty manager must not report goal complete")
	}

	m := seeded(t, "A", "B")
	m.MarkInProgress("task-1")
	m.MarkComplete("task-1", "")
	if m.GoalComplete() || m.AllTerminal() {
		t.Error("expected incomplete with one pending task")
	}

	m.MarkInProgress("task-2")
	m.MarkFailed("task-2", "")
	if m.GoalComplete() {
		t.Error("failed task must prevent goal completion")
	}
	if !m.AllTerminal() {
		t.Error("expected all terminal")
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	m := seeded(t, "A")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.MarkInProgress("task-1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one successful transition, got %d", wins)
	}
	if got := len(m.Snapshot().History); got != 1 {
		t.Errorf("expected 1 history event, got %d", got)
	}
}
