// Package workflow drives the plan, execute, record and refresh loop for a
// single goal.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/actor"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/events"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/optimizer"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/persistence"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/planner"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
)

// DefaultMaxIterations bounds a run when no cap is configured.
const DefaultMaxIterations = 25

// ErrAlreadyRun is returned when Run is called twice on one orchestrator.
var ErrAlreadyRun = errors.New("workflow: orchestrator has already run")

// Config configures the loop.
type Config struct {
	MaxIterations int
}

// Deps holds the collaborators of a run. Progress, Planner, Actor and
// Optimizer are required; the rest are optional.
type Deps struct {
	Progress  *progress.Manager
	Planner   *planner.Planner
	Actor     *actor.Actor
	Optimizer *optimizer.Optimizer

	Bus      *events.Bus         // Receives task, optimizer and workflow events
	Store    persistence.Store   // Run ledger; failures are logged, never fatal
	Observer func(Snapshot)      // Called after seeding and after every iteration
	Logger   *slog.Logger
	NewRunID func() string
}

// Orchestrator runs one goal to a terminal state.
type Orchestrator struct {
	cfg  Config
	deps Deps

	mu        sync.Mutex
	state     State
	runID     string
	goal      string
	iteration int
	steps     map[string][]actor.Step
	startedAt time.Time

	logger *slog.Logger
	now    func() time.Time

	persisted int // History events already written to the store
}

// New validates deps and creates an idle orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Progress == nil || deps.Planner == nil || deps.Actor == nil || deps.Optimizer == nil {
		return nil, errors.New("workflow: progress, planner, actor and optimizer are required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}

	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		state:  StateIdle,
		steps:  make(map[string][]actor.Step),
		logger: deps.Logger.With("component", "workflow"),
		now:    time.Now,
	}, nil
}

// Run executes the loop until every task is complete, every task is
// terminal, the iteration cap is hit, or a fatal error occurs. The report is
// always returned; the error is non-nil only for the Failed state.
// Cancellation is honoured between iterations.
func (o *Orchestrator) Run(ctx context.Context, goal string) (*Report, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	o.state = StateRunning
	o.runID = o.deps.NewRunID()
	o.goal = goal
	o.startedAt = o.now()
	o.mu.Unlock()

	log := o.logger.With("run_id", o.runID)
	log.Info("run started", "goal", goal)
	o.ledger("create run", func(s persistence.Store) error {
		return s.CreateRun(ctx, persistence.Run{ID: o.runID, Goal: goal, State: string(StateRunning), StartedAt: o.startedAt})
	})

	plan, err := o.deps.Planner.Initialize(ctx, goal)
	if err != nil {
		return o.fail(ctx, fmt.Errorf("initialize plan: %w", err))
	}
	o.persistTasks(ctx)
	o.notify()

	for {
		if o.deps.Progress.GoalComplete() {
			return o.finish(ctx, StateComplete, nil)
		}
		if plan.Next == nil {
			return o.finish(ctx, StatePartial, nil)
		}
		if o.Iteration() >= o.cfg.MaxIterations {
			log.Warn("iteration cap reached", "max_iterations", o.cfg.MaxIterations)
			return o.finish(ctx, StateExhausted, nil)
		}
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, fmt.Errorf("run cancelled: %w", err))
		}

		if err := o.step(ctx, plan.Next); err != nil {
			return o.fail(ctx, err)
		}

		plan, err = o.deps.Planner.RefreshPlan(ctx)
		if err != nil {
			return o.fail(ctx, fmt.Errorf("refresh plan: %w", err))
		}
		o.publishProgress()
		o.notify()
	}
}

// step runs one task through the actor and feeds the outcome back.
func (o *Orchestrator) step(ctx context.Context, task *progress.Task) error {
	o.mu.Lock()
	o.iteration++
	o.mu.Unlock()

	pm := o.deps.Progress
	if err := pm.MarkInProgress(task.ID); err != nil {
		return err
	}
	o.persistHistory(ctx)

	start := o.now()
	o.deps.Bus.Publish(events.TaskStartedEvent{ID: task.ID, Description: task.Description, Timestamp: start})

	outcome := o.deps.Actor.Execute(ctx, o.goal, task)

	o.mu.Lock()
	o.steps[task.ID] = append(o.steps[task.ID], outcome.Steps...)
	o.mu.Unlock()
	for _, s := range outcome.Steps {
		o.deps.Bus.Publish(events.TaskStepEvent{
			ID: task.ID, Thought: s.Thought, Action: s.Action, Observation: s.Observation, Timestamp: o.now(),
		})
	}

	newPrompt, changed := o.deps.Optimizer.Record(o.deps.Planner.CurrentPrompt(), outcome.Observation, outcome.Score, outcome.Observation)
	if changed {
		o.deps.Planner.SetPrompt(newPrompt)
		o.deps.Bus.Publish(events.PromptUpdatedEvent{
			Prompt: newPrompt, CompositeScore: o.deps.Optimizer.CompositeScore(), Timestamp: o.now(),
		})
	}

	duration := o.now().Sub(start)
	var err error
	if outcome.Status == progress.StatusComplete {
		err = pm.MarkComplete(task.ID, outcome.Observation)
		o.deps.Bus.Publish(events.TaskCompletedEvent{ID: task.ID, Observation: outcome.Observation, Duration: duration, Timestamp: o.now()})
	} else {
		err = pm.MarkFailed(task.ID, outcome.Observation)
		o.deps.Bus.Publish(events.TaskFailedEvent{ID: task.ID, Err: outcome.Err, Duration: duration, Timestamp: o.now()})
	}
	if err != nil {
		return err
	}

	o.logger.Info("task finished", "run_id", o.runID, "task_id", task.ID, "status", outcome.Status, "tool", outcome.Tool)
	o.persistHistory(ctx)
	o.persistTasks(ctx)
	return nil
}

// fail ends the run in StateFailed with a synthetic rationale.
func (o *Orchestrator) fail(ctx context.Context, cause error) (*Report, error) {
	o.logger.Error("run failed", "run_id", o.runID, "error", cause)
	return o.finish(ctx, StateFailed, cause)
}

func (o *Orchestrator) finish(ctx context.Context, state State, cause error) (*Report, error) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	report := o.report(cause)
	o.logger.Info("run finished", "run_id", o.runID, "state", state, "iterations", report.Iterations)

	// Ledger writes must land even when ctx was the reason for stopping.
	finishCtx := context.WithoutCancel(ctx)
	o.persistHistory(finishCtx)
	o.persistTasks(finishCtx)
	body, err := json.Marshal(report)
	if err != nil {
		o.logger.Warn("encode report", "error", err)
		body = nil
	}
	o.ledger("finish run", func(s persistence.Store) error {
		return s.FinishRun(finishCtx, persistence.Run{
			ID:         report.RunID,
			State:      string(state),
			Success:    report.Success,
			Degraded:   report.Degraded,
			Iterations: report.Iterations,
			Rationale:  report.Rationale,
			Error:      report.Error,
			FinishedAt: report.FinishedAt,
		}, body)
	})

	o.deps.Bus.Publish(events.WorkflowFinishedEvent{RunID: report.RunID, State: string(state), Success: report.Success, Timestamp: report.FinishedAt})
	o.notify()

	return report, cause
}

func (o *Orchestrator) report(cause error) *Report {
	snap := o.deps.Progress.Snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()

	steps := make(map[string][]actor.Step, len(o.steps))
	for id, s := range o.steps {
		steps[id] = append([]actor.Step(nil), s...)
	}

	r := &Report{
		Goal:       o.goal,
		History:    snap.History,
		Tasks:      viewTasks(snap.Tasks),
		Rationale:  o.deps.Planner.Rationale(),
		RunID:      o.runID,
		State:      o.state,
		Success:    o.state == StateComplete,
		Degraded:   o.deps.Optimizer.Degraded() != nil,
		Iterations: o.iteration,
		Steps:      steps,
		Optimizer:  o.deps.Optimizer.Metrics(),
		StartedAt:  o.startedAt,
		FinishedAt: o.now(),
	}
	if cause != nil {
		r.Error = cause.Error()
		r.Rationale = fmt.Sprintf("Workflow failed: %v", cause)
	}
	return r
}

// Snapshot returns the current live state.
func (o *Orchestrator) Snapshot() Snapshot {
	snap := o.deps.Progress.Snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()

	return Snapshot{
		RunID:     o.runID,
		Goal:      o.goal,
		State:     o.state,
		Iteration: o.iteration,
		Tasks:     viewTasks(snap.Tasks),
		History:   snap.History,
		Optimizer: o.deps.Optimizer.Metrics(),
		Rationale: o.deps.Planner.Rationale(),
		Checklist: o.deps.Progress.Render(),
		UpdatedAt: o.now(),
	}
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Iteration returns the number of tasks dispatched so far.
func (o *Orchestrator) Iteration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.iteration
}

// RunID returns the ID assigned when Run started.
func (o *Orchestrator) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

func (o *Orchestrator) notify() {
	if o.deps.Observer != nil {
		o.deps.Observer(o.Snapshot())
	}
}

func (o *Orchestrator) publishProgress() {
	counts := o.deps.Progress.Counts()
	o.deps.Bus.Publish(events.ProgressEvent{
		Total:      o.deps.Progress.Len(),
		Complete:   counts[progress.StatusComplete],
		InProgress: counts[progress.StatusInProgress],
		Failed:     counts[progress.StatusFailed],
		Pending:    counts[progress.StatusPending],
		Iteration:  o.Iteration(),
		Checklist:  o.deps.Progress.Render(),
		Timestamp:  o.now(),
	})
}

// ledger runs fn against the store when one is configured. Errors are
// logged and swallowed.
func (o *Orchestrator) ledger(op string, fn func(persistence.Store) error) {
	if o.deps.Store == nil {
		return
	}
	if err := fn(o.deps.Store); err != nil {
		o.logger.Warn("ledger write failed", "run_id", o.runID, "op", op, "error", err)
	}
}

func (o *Orchestrator) persistTasks(ctx context.Context) {
	o.ledger("save tasks", func(s persistence.Store) error {
		return s.SaveTasks(ctx, o.runID, o.deps.Progress.Snapshot().Tasks)
	})
}

// persistHistory appends history events not yet written to the store.
func (o *Orchestrator) persistHistory(ctx context.Context) {
	if o.deps.Store == nil {
		return
	}
	history := o.deps.Progress.Snapshot().History
	for ; o.persisted < len(history); o.persisted++ {
		ev := history[o.persisted]
		if err := o.deps.Store.AppendEvent(ctx, o.runID, ev); err != nil {
			o.logger.Warn("ledger write failed", "run_id", o.runID, "op", "append event", "error", err)
			return
		}
	}
}
