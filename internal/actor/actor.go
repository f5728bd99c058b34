// Package actor executes a single task by dispatching it to at most one tool
// through an ordered rule table.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/tools"
)

// ActionFinish is the action of the last step of every execution.
const ActionFinish = "finish"

// Step is one thought/action/observation entry of an execution trace.
type Step struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

// Outcome is the result of executing one task.
type Outcome struct {
	TaskID      string
	Tool        string // Empty when no rule matched
	Steps       []Step
	Status      progress.Status // StatusComplete or StatusFailed
	Score       float64         // 1 for complete, 0 for failed
	Observation string          // Observation of the final step
	Err         error           // *tools.ExecutionError on failure
}

// Dispatch is the tool selected for a task.
type Dispatch struct {
	Rule   string
	Tool   string
	Params map[string]string
}

// Actor dispatches tasks to tools.
type Actor struct {
	rules    []compiledRule
	registry *tools.Registry
	logger   *slog.Logger
}

// New compiles the rule table against the registry. Rules naming a tool the
// registry does not hold are rejected here, not at dispatch time.
func New(rules []Rule, registry *tools.Registry, logger *slog.Logger) (*Actor, error) {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}

	compiled, err := compile(rules, func(name string) bool {
		_, ok := registry.Get(name)
		return ok
	})
	if err != nil {
		return nil, err
	}

	return &Actor{
		rules:    compiled,
		registry: registry,
		logger:   logger.With("component", "actor"),
	}, nil
}

// Select returns the first matching rule's dispatch, or false when no rule
// matches. It never calls a tool.
func (a *Actor) Select(task *progress.Task) (Dispatch, bool) {
	for _, r := range a.rules {
		if r.matches(task) {
			return Dispatch{Rule: r.Name, Tool: r.Tool, Params: r.params(task)}, true
		}
	}
	return Dispatch{}, false
}

// Execute runs the task synchronously. The final step always has action
// "finish".
func (a *Actor) Execute(ctx context.Context, goal string, task *progress.Task) Outcome {
	out := Outcome{TaskID: task.ID}
	log := a.logger.With("task_id", task.ID)

	dispatch, ok := a.Select(task)
	if !ok {
		summary := fmt.Sprintf("Completed task '%s' without external tools.", task.Description)
		log.Debug("no rule matched")
		return finish(out, progress.StatusComplete, summary)
	}

	out.Tool = dispatch.Tool
	tool, _ := a.registry.Get(dispatch.Tool)
	log.Debug("dispatching", "rule", dispatch.Rule, "tool", dispatch.Tool)

	res := tools.Invoke(ctx, tool, tools.Request{
		Task:   task.Description,
		Goal:   goal,
		Params: dispatch.Params,
	})
	thought := fmt.Sprintf("Use %s tool to progress the task.", dispatch.Tool)

	if !res.Success {
		cause := res.Err
		var execErr *tools.ExecutionError
		if errors.As(res.Err, &execErr) {
			cause = execErr.Err
		}
		obs := fmt.Sprintf("Tool %s failed: %v", dispatch.Tool, cause)
		log.Warn("tool execution failed", "tool", dispatch.Tool, "error", res.Err)
		out.Steps = append(out.Steps, Step{Thought: thought, Action: dispatch.Tool, Observation: obs})
		out.Err = res.Err
		return finish(out, progress.StatusFailed, obs)
	}

	out.Steps = append(out.Steps, Step{Thought: thought, Action: dispatch.Tool, Observation: res.Output})
	return finish(out, progress.StatusComplete, res.Output)
}

func finish(out Outcome, status progress.Status, observation string) Outcome {
	out.Steps = append(out.Steps, Step{
		Thought:     "Summarise the outcome and finalise the task.",
		Action:      ActionFinish,
		Observation: observation,
	})
	out.Status = status
	out.Observation = observation
	if status == progress.StatusComplete {
		out.Score = 1
	}
	return out
}
