// Package optimizer adapts the planning prompt from a rolling window of task
// outcome scores and persists every outcome to an append-only JSONL trace so
// the learned prompt survives restarts.
package optimizer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// reminderPrefix separates the base prompt from appended feedback.
const reminderPrefix = "\nReminder: incorporate feedback -> "

// feedbackRunes caps how much of a failing observation is folded into the prompt.
const feedbackRunes = 80

// Config holds optimizer settings.
type Config struct {
	WindowSize     int     // Rolling window capacity (W), at least 1
	ScoreThreshold float64 // Composite score below which the prompt is improved
	TracePath      string  // JSONL trace file; empty disables persistence
	DefaultPrompt  string  // Prompt used when no learned prompt is restored
}

// TraceExample is one outcome held in the window.
type TraceExample struct {
	Prompt   string  `json:"prompt"`
	Response string  `json:"response"`
	Score    float64 `json:"score"`
}

// Metrics is a point-in-time view of optimizer state.
type Metrics struct {
	CompositeScore float64   `json:"composite_score"`
	LatestScore    float64   `json:"latest_score"`
	TotalTraces    int       `json:"total_traces"`
	BestPrompt     string    `json:"best_prompt"`
	Scores         []float64 `json:"scores"`
	Degraded       bool      `json:"degraded"`
}

// Optimizer is the online prompt optimizer. It is safe for concurrent use,
// though the workflow drives it from a single goroutine.
type Optimizer struct {
	mu sync.Mutex

	cfg         Config
	window      []TraceExample
	prompt      string
	lastFailure string // Most recent failing observation, feeds ImprovePrompt
	warmStarted bool

	loaded  int // Valid records replayed at startup
	written int // Records recorded this run

	trace    *traceFile
	degraded error // Non-nil once persistence has failed

	logger *slog.Logger
	now    func() time.Time
}

// New creates an optimizer and replays the trace file into it.
// Only invalid configuration returns an error. Trace read or open failures
// put the optimizer into degraded in-memory mode instead.
func New(cfg Config, logger *slog.Logger) (*Optimizer, error) {
	if cfg.WindowSize < 1 {
		return nil, fmt.Errorf("optimizer: window size must be at least 1, got %d", cfg.WindowSize)
	}
	if cfg.ScoreThreshold < 0 || cfg.ScoreThreshold > 1 {
		return nil, fmt.Errorf("optimizer: score threshold must be within [0,1], got %v", cfg.ScoreThreshold)
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Optimizer{
		cfg:    cfg,
		prompt: cfg.DefaultPrompt,
		logger: logger.With("component", "optimizer"),
		now:    time.Now,
	}

	if cfg.TracePath == "" {
		return o, nil
	}

	o.load()

	if o.degraded == nil {
		tf, err := openTraceFile(cfg.TracePath)
		if err != nil {
			o.degrade(err)
		} else {
			o.trace = tf
		}
	}

	return o, nil
}

// load replays persisted records. Called once from New.
func (o *Optimizer) load() {
	records, skipped, err := ReadTrace(o.cfg.TracePath)
	if skipped > 0 {
		o.logger.Warn("skipped malformed trace lines", "path", o.cfg.TracePath, "count", skipped)
	}
	if err != nil {
		o.degrade(err)
	}

	for _, rec := range records {
		o.push(TraceExample{Prompt: rec.Prompt, Response: rec.Response, Score: rec.Score})
		if rec.Score < o.cfg.ScoreThreshold {
			o.lastFailure = rec.ObservationSummary
		}
	}
	o.loaded = len(records)

	// The learned prompt is the newest new_prompt in the file.
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].NewPrompt != "" {
			o.prompt = records[i].NewPrompt
			o.warmStarted = true
			break
		}
	}

	if len(records) > 0 {
		o.logger.Info("trace replayed",
			"path", o.cfg.TracePath,
			"records", len(records),
			"window", len(o.window),
			"warm_start", o.warmStarted)
	}
}

func (o *Optimizer) push(ex TraceExample) {
	o.window = append(o.window, ex)
	if over := len(o.window) - o.cfg.WindowSize; over > 0 {
		o.window = append(o.window[:0:0], o.window[over:]...)
	}
}

func (o *Optimizer) degrade(err error) {
	if o.degraded != nil {
		return
	}
	o.degraded = err
	o.logger.Error("trace persistence disabled, continuing in memory", "error", err)
	if o.trace != nil {
		_ = o.trace.Close()
		o.trace = nil
	}
}

// Record adds an outcome to the window, improves the prompt if the composite
// score has dropped below the threshold, and appends the outcome to the trace.
// It returns the new prompt and true when the prompt changed.
// The trace record carries new_prompt only when the prompt changed, so a
// low score whose reminder already ends the prompt writes none.
func (o *Optimizer) Record(prompt, response string, score float64, observation string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.push(TraceExample{Prompt: prompt, Response: response, Score: score})
	if score < o.cfg.ScoreThreshold {
		o.lastFailure = observation
	}

	var newPrompt string
	changed := false
	if composite := o.composite(); composite < o.cfg.ScoreThreshold {
		candidate := improve(o.prompt, o.lastFailure)
		if candidate != o.prompt {
			newPrompt = candidate
			o.prompt = candidate
			changed = true
			o.logger.Info("prompt improved", "composite_score", composite)
		}
	}

	o.written++

	if o.trace != nil {
		err := o.trace.Append(TraceRecord{
			Prompt:             prompt,
			Response:           response,
			Score:              score,
			ObservationSummary: observation,
			NewPrompt:          newPrompt,
			Timestamp:          o.now().UTC(),
		})
		if err != nil {
			o.degrade(err)
		}
	}

	return newPrompt, changed
}

// ImprovePrompt returns the current prompt with the observation folded in as
// a reminder. It does not change optimizer state.
func (o *Optimizer) ImprovePrompt(observation string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return improve(o.prompt, observation)
}

func improve(base, observation string) string {
	fb := []rune(observation)
	if len(fb) > feedbackRunes {
		fb = fb[:feedbackRunes]
	}
	reminder := reminderPrefix + string(fb)
	if len(base) >= len(reminder) && base[len(base)-len(reminder):] == reminder {
		return base
	}
	return base + reminder
}

// CompositeScore returns the mean score over the window, or 1.0 when empty.
func (o *Optimizer) CompositeScore() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.composite()
}

func (o *Optimizer) composite() float64 {
	if len(o.window) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, ex := range o.window {
		sum += ex.Score
	}
	return sum / float64(len(o.window))
}

// CurrentPrompt returns the prompt the planner should use.
func (o *Optimizer) CurrentPrompt() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prompt
}

// WarmStarted reports whether the current prompt was restored from the trace.
func (o *Optimizer) WarmStarted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.warmStarted
}

// Window returns a copy of the window, oldest first.
func (o *Optimizer) Window() []TraceExample {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]TraceExample(nil), o.window...)
}

// Degraded returns the persistence error that disabled the trace, or nil.
func (o *Optimizer) Degraded() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.degraded
}

// Metrics returns the current optimizer metrics.
func (o *Optimizer) Metrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	scores := make([]float64, len(o.window))
	for i, ex := range o.window {
		scores[i] = ex.Score
	}
	latest := 0.0
	if len(scores) > 0 {
		latest = scores[len(scores)-1]
	}

	return Metrics{
		CompositeScore: o.composite(),
		LatestScore:    latest,
		TotalTraces:    o.loaded + o.written,
		BestPrompt:     o.prompt,
		Scores:         scores,
		Degraded:       o.degraded != nil,
	}
}

// Close releases the trace file.
func (o *Optimizer) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.trace == nil {
		return nil
	}
	err := o.trace.Close()
	o.trace = nil
	if err != nil {
		return fmt.Errorf("close trace: %w", err)
	}
	return nil
}
