package planner

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/oracle"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
)

func descriptions(specs []progress.TaskSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Description
	}
	return out
}

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		goal string
		max  int
		want []string
	}{
		{"sentences", "A. B. C.", 6, []string{"A", "B", "C"}},
		{"question and exclamation", "Why? Do it!", 6, []string{"Why", "Do it"}},
		{"conjunctions", "Read the notes and summarise them, then publish", 6,
			[]string{"Read the notes", "summarise them", "publish"}},
		{"case-insensitive conjunctions", "Fetch data AND clean it THEN store", 6,
			[]string{"Fetch data", "clean it", "store"}},
		{"words containing conjunctions stay whole", "Understand the brand", 6,
			[]string{"Understand the brand"}},
		{"periods inside words", "Read notes.txt. List files.", 6, []string{"Read notes.txt", "List files"}},
		{"dedupe case-insensitive", "List files. list FILES. Read x", 6, []string{"List files", "Read x"}},
		{"cap", "a, b, c, d, e, f, g, h", 6, []string{"a", "b", "c", "d", "e", "f"}},
		{"unlimited", "a, b, c", 0, []string{"a", "b", "c"}},
		{"whitespace collapsed", "  write   it  ", 6, []string{"write it"}},
		{"punctuation only keeps goal", "...", 6, []string{"..."}},
		{"empty", "   ", 6, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := descriptions(Segment(tt.goal, tt.max))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Segment(%q) = %q, want %q", tt.goal, got, tt.want)
			}
		})
	}
}

func TestSegmentAnnotations(t *testing.T) {
	goal := `Write result to file [path=out.txt content="hi, and bye."]. Read it [path=out.txt]. Keep [draft] notes`
	specs := Segment(goal, 6)

	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d: %+v", len(specs), specs)
	}
	if specs[0].Description != "Write result to file" {
		t.Errorf("spec 0 description = %q", specs[0].Description)
	}
	wantMeta := map[string]string{"path": "out.txt", "content": "hi, and bye."}
	if !reflect.DeepEqual(specs[0].Metadata, wantMeta) {
		t.Errorf("spec 0 metadata = %v, want %v", specs[0].Metadata, wantMeta)
	}
	if specs[1].Metadata["path"] != "out.txt" {
		t.Errorf("spec 1 metadata = %v", specs[1].Metadata)
	}
	// Non key=value brackets are plain text.
	if specs[2].Description != "Keep [draft] notes" || specs[2].Metadata != nil {
		t.Errorf("spec 2 = %+v", specs[2])
	}
}

func TestSegmentNulBytesInGoal(t *testing.T) {
	tests := []struct {
		name string
		goal string
		want []progress.TaskSpec
	}{
		{
			name: "out of range group index",
			goal: "copy \x003\x00 bytes. B.",
			want: []progress.TaskSpec{{Description: "copy 3 bytes"}, {Description: "B"}},
		},
		{
			name: "valid group index is literal text",
			goal: "write [path=a.txt] and \x000\x00 echo",
			want: []progress.TaskSpec{
				{Description: "write", Metadata: map[string]string{"path": "a.txt"}},
				{Description: "0 echo"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(tt.goal, 6)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Segment(%q) = %+v, want %+v", tt.goal, got, tt.want)
			}
		})
	}
}

func TestSegmentDeterministic(t *testing.T) {
	goal := "Research Go, write a summary [path=s.md content=x] then list files."
	first := Segment(goal, 6)
	for i := 0; i < 10; i++ {
		if !reflect.DeepEqual(first, Segment(goal, 6)) {
			t.Fatal("Segment is not deterministic")
		}
	}
}

func newPlanner(t *testing.T, o oracle.Oracle) (*Planner, *progress.Manager) {
	t.Helper()
	pm := progress.NewManager()
	if o == nil {
		o = oracle.NewLocal("echo")
	}
	return New(o, pm, "", DefaultMaxTasks, nil), pm
}

func TestInitialize(t *testing.T) {
	p, pm := newPlanner(t, nil)

	plan, err := p.Initialize(context.Background(), "A. B. C.")
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if pm.Len() != 3 || len(plan.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d/%d", pm.Len(), len(plan.Tasks))
	}
	for i, want := range []string{"A", "B", "C"} {
		if plan.Tasks[i].Description != want {
			t.Errorf("task %d = %q, want %q", i, plan.Tasks[i].Description, want)
		}
	}
	if plan.Next == nil || plan.Next.ID != "task-1" {
		t.Errorf("next = %+v", plan.Next)
	}
	if plan.Rationale != "echo::Goal: A. B. C.. Tasks: A, B, C." {
		t.Errorf("rationale = %q", plan.Rationale)
	}
	if p.Rationale() != plan.Rationale {
		t.Error("Rationale() not updated")
	}
}

func TestInitializeEmptyGoal(t *testing.T) {
	p, _ := newPlanner(t, nil)
	if _, err := p.Initialize(context.Background(), "  "); !errors.Is(err, ErrEmptyGoal) {
		t.Errorf("expected ErrEmptyGoal, got %v", err)
	}
}

func TestRationaleUsesCurrentPrompt(t *testing.T) {
	var seen string
	o := oracle.Func(func(ctx context.Context, prompt string) (string, error) {
		seen = prompt
		return "ok", nil
	})
	p, _ := newPlanner(t, o)
	p.SetPrompt("LEARNED")
	p.Initialize(context.Background(), "Do X")

	if !strings.HasPrefix(seen, "LEARNED\nGoal: Do X. Tasks: Do X.") {
		t.Errorf("oracle saw %q", seen)
	}
}

func TestRefreshPlanOrdering(t *testing.T) {
	p, pm := newPlanner(t, nil)
	p.Initialize(context.Background(), "A. B. C. D.")

	pm.MarkInProgress("task-1")
	pm.MarkComplete("task-1", "")
	pm.MarkInProgress("task-3")

	plan, err := p.RefreshPlan(context.Background())
	if err != nil {
		t.Fatalf("RefreshPlan failed: %v", err)
	}
	var got []string
	for _, task := range plan.Tasks {
		got = append(got, task.ID)
	}
	want := []string{"task-3", "task-2", "task-4", "task-1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if plan.Next.ID != "task-3" {
		t.Errorf("next = %s", plan.Next.ID)
	}
}

func TestRefreshPlanIdempotent(t *testing.T) {
	p, pm := newPlanner(t, nil)
	p.Initialize(context.Background(), "A. B.")
	pm.MarkInProgress("task-1")

	before := pm.Snapshot()
	first, _ := p.RefreshPlan(context.Background())
	second, _ := p.RefreshPlan(context.Background())
	after := pm.Snapshot()

	if !reflect.DeepEqual(before, after) {
		t.Error("RefreshPlan changed progress state")
	}
	if !reflect.DeepEqual(first.Tasks, second.Tasks) {
		t.Error("repeated RefreshPlan changed ordering")
	}
}

func TestRefreshPlanAllTerminal(t *testing.T) {
	p, pm := newPlanner(t, nil)
	p.Initialize(context.Background(), "A")
	pm.MarkInProgress("task-1")
	pm.MarkFailed("task-1", "")

	plan, _ := p.RefreshPlan(context.Background())
	if plan.Next != nil {
		t.Errorf("expected no next task, got %+v", plan.Next)
	}
}

func TestRefreshBeforeInitialize(t *testing.T) {
	p, _ := newPlanner(t, nil)
	if _, err := p.RefreshPlan(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestOracleErrorPropagates(t *testing.T) {
	cause := &oracle.Error{Provider: "x", Attempts: 1, Err: errors.New("down")}
	o := oracle.Func(func(ctx context.Context, prompt string) (string, error) {
		return "", cause
	})
	p, pm := newPlanner(t, o)

	plan, err := p.Initialize(context.Background(), "A. B.")
	var oErr *oracle.Error
	if !errors.As(err, &oErr) {
		t.Fatalf("expected *oracle.Error, got %v", err)
	}
	// Tasks are still seeded and ordered.
	if pm.Len() != 2 || len(plan.Tasks) != 2 {
		t.Errorf("expected seeded tasks despite oracle failure")
	}
}

func TestSetPromptIgnoresEmpty(t *testing.T) {
	p, _ := newPlanner(t, nil)
	if p.CurrentPrompt() != DefaultPrompt {
		t.Fatalf("initial prompt = %q", p.CurrentPrompt())
	}
	p.SetPrompt("")
	if p.CurrentPrompt() != DefaultPrompt {
		t.Error("empty SetPrompt changed prompt")
	}
}
