// Package oracle provides text generation backends used by the planner.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Oracle generates text from a prompt.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Error is returned when generation fails after all retries.
type Error struct {
	Provider string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config defines the configuration for an oracle.
type Config struct {
	Provider    string        // "local", "openai", or "command"
	Model       string        // Model name; also the echo prefix for "local"
	BaseURL     string        // OpenAI-compatible endpoint (vLLM, OpenRouter, ...)
	APIKeyEnv   string        // Environment variable holding the API key
	Command     string        // Executable for "command"
	Args        []string      // Extra arguments for "command"
	WorkDir     string        // Working directory for "command"
	Timeout     time.Duration // Per-call timeout, 0 for none
	MaxRetries  int           // Retries after the first attempt
	Temperature float64
}

// New creates the configured oracle wrapped with retry and circuit breaking.
// The ProcessManager is only used by the "command" provider and may be nil.
// logger receives circuit breaker transitions; nil selects slog.Default.
func New(cfg Config, pm *ProcessManager, logger *slog.Logger) (Oracle, error) {
	var base Oracle
	switch cfg.Provider {
	case "", "local":
		base = NewLocal(cfg.Model)
	case "openai":
		o, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		base = o
	case "command":
		o, err := NewCommand(cfg, pm)
		if err != nil {
			return nil, err
		}
		base = o
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "local"
	}
	return NewResilient(provider, base, cfg.Timeout, cfg.MaxRetries, DefaultRetryConfig(), logger), nil
}
