package oracle

import (
	"context"
	"strings"
)

// Local is a deterministic offline oracle. It echoes the last line of the
// prompt prefixed with the model name, which keeps runs reproducible without
// network access.
type Local struct {
	model string
}

// NewLocal creates a local echo oracle.
func NewLocal(model string) *Local {
	if model == "" {
		model = "local"
	}
	return &Local{model: model}
}

// Generate returns "<model>::<last non-empty prompt line>".
func (l *Local) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	return l.model + "::" + strings.TrimSpace(lines[len(lines)-1]), nil
}
