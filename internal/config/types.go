// Package config loads, validates and saves aime settings.
package config

import (
	"time"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/actor"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/optimizer"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/oracle"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/tools"
)

// Config is the top-level configuration.
type Config struct {
	Workflow  WorkflowConfig  `mapstructure:"workflow" yaml:"workflow"`
	Planner   PlannerConfig   `mapstructure:"planner" yaml:"planner"`
	Optimizer OptimizerConfig `mapstructure:"optimizer" yaml:"optimizer"`
	Oracle    OracleConfig    `mapstructure:"oracle" yaml:"oracle"`
	Tools     ToolsConfig     `mapstructure:"tools" yaml:"tools"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" yaml:"dispatch"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
}

// WorkflowConfig bounds the orchestration loop.
type WorkflowConfig struct {
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// PlannerConfig controls goal segmentation and the initial prompt.
type PlannerConfig struct {
	MaxTasks      int    `mapstructure:"max_tasks" yaml:"max_tasks"` // 0 means unlimited
	DefaultPrompt string `mapstructure:"default_prompt" yaml:"default_prompt"`
}

// OptimizerConfig controls the online prompt optimizer.
type OptimizerConfig struct {
	WindowSize     int     `mapstructure:"window_size" yaml:"window_size"`
	ScoreThreshold float64 `mapstructure:"score_threshold" yaml:"score_threshold"`
	TracePath      string  `mapstructure:"trace_path" yaml:"trace_path"` // Empty disables persistence
}

// OracleConfig selects and tunes the text generation backend.
type OracleConfig struct {
	Provider       string   `mapstructure:"provider" yaml:"provider"` // local, openai, command
	Model          string   `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL        string   `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKeyEnv      string   `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	Command        string   `mapstructure:"command" yaml:"command,omitempty"`
	Args           []string `mapstructure:"args" yaml:"args,omitempty"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int      `mapstructure:"max_retries" yaml:"max_retries"`
	Temperature    float64  `mapstructure:"temperature" yaml:"temperature"`
}

// ToolsConfig lists the enabled tools and the workspace they operate in.
type ToolsConfig struct {
	Workspace string       `mapstructure:"workspace" yaml:"workspace"`
	Enabled   []tools.Spec `mapstructure:"enabled" yaml:"enabled"`
}

// DispatchConfig holds the actor's rule table, evaluated in order.
type DispatchConfig struct {
	Rules []actor.Rule `mapstructure:"rules" yaml:"rules"`
}

// StoreConfig controls the SQLite run ledger.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
	File   string `mapstructure:"file" yaml:"file"`     // Empty disables the file sink
}

// DashboardConfig controls the read-only HTTP status endpoint.
type DashboardConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// OracleSettings converts the oracle section into an oracle.Config.
func (c *Config) OracleSettings() oracle.Config {
	return oracle.Config{
		Provider:    c.Oracle.Provider,
		Model:       c.Oracle.Model,
		BaseURL:     c.Oracle.BaseURL,
		APIKeyEnv:   c.Oracle.APIKeyEnv,
		Command:     c.Oracle.Command,
		Args:        c.Oracle.Args,
		WorkDir:     c.Tools.Workspace,
		Timeout:     time.Duration(c.Oracle.TimeoutSeconds) * time.Second,
		MaxRetries:  c.Oracle.MaxRetries,
		Temperature: c.Oracle.Temperature,
	}
}

// OptimizerSettings converts the optimizer section into an optimizer.Config.
func (c *Config) OptimizerSettings() optimizer.Config {
	return optimizer.Config{
		WindowSize:     c.Optimizer.WindowSize,
		ScoreThreshold: c.Optimizer.ScoreThreshold,
		TracePath:      c.Optimizer.TracePath,
		DefaultPrompt:  c.Planner.DefaultPrompt,
	}
}
