package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. AIME_OPTIMIZER_WINDOW_SIZE.
const EnvPrefix = "AIME"

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): environment, project config,
// global config, defaults. Missing files are not errors; malformed files and
// invalid values are.
func Load(globalPath, projectPath string) (*Config, error) {
	v := newViper()

	if err := mergeConfigFile(v, globalPath, false); err != nil {
		return nil, fmt.Errorf("loading global config: %w", err)
	}
	if err := mergeConfigFile(v, projectPath, false); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return decode(v)
}

// LoadFile reads a single explicit config file on top of the defaults.
// Unlike Load, a missing file is an error.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	if err := mergeConfigFile(v, path, true); err != nil {
		return nil, err
	}
	return decode(v)
}

// LoadDefault loads configuration from conventional paths, or from explicit
// when it is non-empty.
// Global: ~/.aime/config.yaml
// Project: .aime/config.yaml (relative to cwd)
func LoadDefault(explicit string) (*Config, error) {
	if explicit != "" {
		return LoadFile(explicit)
	}
	return Load(GlobalPath(), ProjectPath())
}

// GlobalPath returns the per-user config file path.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".aime", "config.yaml")
}

// ProjectPath returns the project config file path relative to cwd.
func ProjectPath() string {
	return filepath.Join(".aime", "config.yaml")
}

// newViper returns a private viper instance seeded with scalar defaults so
// that every key can be overridden from the environment.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("workflow.max_iterations", d.Workflow.MaxIterations)
	v.SetDefault("planner.max_tasks", d.Planner.MaxTasks)
	v.SetDefault("planner.default_prompt", d.Planner.DefaultPrompt)
	v.SetDefault("optimizer.window_size", d.Optimizer.WindowSize)
	v.SetDefault("optimizer.score_threshold", d.Optimizer.ScoreThreshold)
	v.SetDefault("optimizer.trace_path", d.Optimizer.TracePath)
	v.SetDefault("oracle.provider", d.Oracle.Provider)
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.base_url", d.Oracle.BaseURL)
	v.SetDefault("oracle.api_key_env", d.Oracle.APIKeyEnv)
	v.SetDefault("oracle.command", d.Oracle.Command)
	v.SetDefault("oracle.timeout_seconds", d.Oracle.TimeoutSeconds)
	v.SetDefault("oracle.max_retries", d.Oracle.MaxRetries)
	v.SetDefault("oracle.temperature", d.Oracle.Temperature)
	v.SetDefault("tools.workspace", d.Tools.Workspace)
	v.SetDefault("store.enabled", d.Store.Enabled)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("dashboard.addr", d.Dashboard.Addr)
	return v
}

// mergeConfigFile merges path into v. The format follows the extension.
func mergeConfigFile(v *viper.Viper, path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// decode unmarshals v over the defaults and validates the result.
func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	// Lists from a file replace the defaults rather than merging by index.
	if v.IsSet("tools.enabled") {
		cfg.Tools.Enabled = nil
	}
	if v.IsSet("dispatch.rules") {
		cfg.Dispatch.Rules = nil
	}
	if v.IsSet("oracle.args") {
		cfg.Oracle.Args = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}
