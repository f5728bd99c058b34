// Package planner decomposes a goal into tasks, orders them for execution and
// asks the generation oracle for an advisory rationale.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/oracle"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
)

// DefaultPrompt is the planning prompt used before any has been learned.
const DefaultPrompt = "You are the dynamic planner for an adaptive multi-agent system. " +
	"Break goals into concrete, trackable tasks ordered by execution priority. " +
	"Return concise task descriptions suitable for progress tracking."

// DefaultMaxTasks caps goal segmentation.
const DefaultMaxTasks = 6

// ErrEmptyGoal is returned by Initialize for a blank goal.
var ErrEmptyGoal = errors.New("planner: goal is empty")

// Plan is the planner's current view of the work.
type Plan struct {
	Tasks     []*progress.Task // Priority order
	Next      *progress.Task   // First non-terminal task, nil when all are terminal
	Rationale string
}

// Planner owns goal decomposition and the planning prompt.
type Planner struct {
	mu        sync.Mutex
	oracle    oracle.Oracle
	progress  *progress.Manager
	prompt    string
	goal      string
	maxTasks  int
	rationale string
	logger    *slog.Logger
}

// New creates a planner. An empty prompt selects DefaultPrompt.
func New(o oracle.Oracle, pm *progress.Manager, prompt string, maxTasks int, logger *slog.Logger) *Planner {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		oracle:   o,
		progress: pm,
		prompt:   prompt,
		maxTasks: maxTasks,
		logger:   logger.With("component", "planner"),
	}
}

// Initialize segments the goal, seeds the progress manager and produces the
// first plan.
func (p *Planner) Initialize(ctx context.Context, goal string) (Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return Plan{}, ErrEmptyGoal
	}

	specs := Segment(goal, p.maxTasks)
	if err := p.progress.Seed(specs); err != nil {
		return Plan{}, fmt.Errorf("seed tasks: %w", err)
	}

	p.mu.Lock()
	p.goal = goal
	p.mu.Unlock()

	p.logger.Info("goal segmented", "tasks", len(specs))
	return p.plan(ctx)
}

// RefreshPlan reorders the current tasks and regenerates the rationale.
// It never changes task status or history, and the ordering does not depend
// on the oracle.
func (p *Planner) RefreshPlan(ctx context.Context) (Plan, error) {
	p.mu.Lock()
	initialized := p.goal != ""
	p.mu.Unlock()
	if !initialized {
		return Plan{}, errors.New("planner: RefreshPlan called before Initialize")
	}
	return p.plan(ctx)
}

func (p *Planner) plan(ctx context.Context) (Plan, error) {
	ordered := Prioritize(p.progress.Snapshot().Tasks)

	descs := make([]string, len(ordered))
	for i, t := range ordered {
		descs[i] = t.Description
	}

	p.mu.Lock()
	prompt, goal := p.prompt, p.goal
	p.mu.Unlock()

	message := prompt + "\n" + fmt.Sprintf("Goal: %s. Tasks: %s.", goal, strings.Join(descs, ", "))
	rationale, err := p.oracle.Generate(ctx, message)
	if err != nil {
		return Plan{Tasks: ordered, Next: next(ordered)}, fmt.Errorf("generate rationale: %w", err)
	}

	p.mu.Lock()
	p.rationale = rationale
	p.mu.Unlock()

	return Plan{Tasks: ordered, Next: next(ordered), Rationale: rationale}, nil
}

// Prioritize returns tasks ordered in_progress first, then pending, then
// terminal. Ties keep their input order.
func Prioritize(tasks []*progress.Task) []*progress.Task {
	ordered := append([]*progress.Task(nil), tasks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].Status) < rank(ordered[j].Status)
	})
	return ordered
}

func rank(s progress.Status) int {
	switch s {
	case progress.StatusInProgress:
		return 0
	case progress.StatusPending:
		return 1
	default:
		return 2
	}
}

func next(ordered []*progress.Task) *progress.Task {
	for _, t := range ordered {
		if !t.Status.Terminal() {
			return t
		}
	}
	return nil
}

// CurrentPrompt returns the planning prompt.
func (p *Planner) CurrentPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompt
}

// SetPrompt replaces the planning prompt. Empty prompts are ignored.
func (p *Planner) SetPrompt(prompt string) {
	if prompt == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = prompt
}

// Rationale returns the most recent rationale.
func (p *Planner) Rationale() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rationale
}

// Goal returns the goal passed to Initialize.
func (p *Planner) Goal() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.goal
}
