package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	Topic() string
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask      = "task"
	TopicOptimizer = "optimizer"
	TopicWorkflow  = "workflow"
)

// Event type constants
const (
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskStep         = "task.step"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypePromptUpdated    = "optimizer.prompt_updated"
	EventTypeProgress         = "workflow.progress"
	EventTypeWorkflowFinished = "workflow.finished"
)

// TaskStartedEvent is published when a task is dispatched to the actor.
type TaskStartedEvent struct {
	ID          string
	Description string
	Timestamp   time.Time
}

func (e TaskStartedEvent) Topic() string     { return TopicTask }
func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskStepEvent carries one actor step.
type TaskStepEvent struct {
	ID          string
	Thought     string
	Action      string
	Observation string
	Timestamp   time.Time
}

func (e TaskStepEvent) Topic() string     { return TopicTask }
func (e TaskStepEvent) EventType() string { return EventTypeTaskStep }
func (e TaskStepEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes.
type TaskCompletedEvent struct {
	ID          string
	Observation string
	Duration    time.Duration
	Timestamp   time.Time
}

func (e TaskCompletedEvent) Topic() string     { return TopicTask }
func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) Topic() string     { return TopicTask }
func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// PromptUpdatedEvent is published when the optimizer adopts a new prompt.
type PromptUpdatedEvent struct {
	Prompt         string
	CompositeScore float64
	Timestamp      time.Time
}

func (e PromptUpdatedEvent) Topic() string     { return TopicOptimizer }
func (e PromptUpdatedEvent) EventType() string { return EventTypePromptUpdated }
func (e PromptUpdatedEvent) TaskID() string    { return "" }

// ProgressEvent is published after every iteration.
type ProgressEvent struct {
	Total      int
	Complete   int
	InProgress int
	Failed     int
	Pending    int
	Iteration  int
	Checklist  string
	Timestamp  time.Time
}

func (e ProgressEvent) Topic() string     { return TopicWorkflow }
func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }

// WorkflowFinishedEvent is published once when a run terminates.
type WorkflowFinishedEvent struct {
	RunID     string
	State     string
	Success   bool
	Timestamp time.Time
}

func (e WorkflowFinishedEvent) Topic() string     { return TopicWorkflow }
func (e WorkflowFinishedEvent) EventType() string { return EventTypeWorkflowFinished }
func (e WorkflowFinishedEvent) TaskID() string    { return "" }
