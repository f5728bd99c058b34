package oracle

import (
	"context"
	"errors"
	"strings"
)

// Command runs an external CLI per generation. The prompt is written to the
// process's stdin and trimmed stdout is the response.
type Command struct {
	name    string
	args    []string
	workDir string
	pm      *ProcessManager
}

// NewCommand creates a command oracle. pm may be nil, in which case
// subprocesses are not tracked for shutdown.
func NewCommand(cfg Config, pm *ProcessManager) (*Command, error) {
	if cfg.Command == "" {
		return nil, errors.New("command oracle: command is required")
	}
	return &Command{
		name:    cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		workDir: cfg.WorkDir,
		pm:      pm,
	}, nil
}

// Generate runs the command once.
func (c *Command) Generate(ctx context.Context, prompt string) (string, error) {
	cmd := newCommand(ctx, c.name, c.args...)
	cmd.Dir = c.workDir

	stdout, err := runPrompt(cmd, prompt, c.pm)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}
