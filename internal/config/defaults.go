package config

import (
	"github.com/afishnamedqwerty/GEPA-AIME/internal/actor"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/planner"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/tools"
)

// DefaultConfig returns the default configuration: the local oracle, every
// built-in tool and the built-in dispatch rules.
func DefaultConfig() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			MaxIterations: 25,
		},
		Planner: PlannerConfig{
			MaxTasks:      planner.DefaultMaxTasks,
			DefaultPrompt: planner.DefaultPrompt,
		},
		Optimizer: OptimizerConfig{
			WindowSize:     5,
			ScoreThreshold: 0.5,
			TracePath:      ".aime/gepa_trace.jsonl",
		},
		Oracle: OracleConfig{
			Provider:       "local",
			Model:          "local",
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSeconds: 60,
			MaxRetries:     2,
			Temperature:    0.2,
		},
		Tools: ToolsConfig{
			Workspace: ".",
			Enabled:   tools.DefaultSpecs(),
		},
		Dispatch: DispatchConfig{
			Rules: actor.DefaultRules(),
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    ".aime/runs.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   ".aime/aime.log",
		},
		Dashboard: DashboardConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}
