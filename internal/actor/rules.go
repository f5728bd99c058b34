package actor

import (
	"fmt"
	"regexp"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
)

// Rule maps a task to a tool. A rule matches when Pattern matches the task
// description (case-insensitive) and every key in Require is present in the
// task metadata.
type Rule struct {
	Name    string   `mapstructure:"name" yaml:"name"`
	Tool    string   `mapstructure:"tool" yaml:"tool"`
	Pattern string   `mapstructure:"pattern" yaml:"pattern"`
	Require []string `mapstructure:"require" yaml:"require,omitempty"`
	// Defaults fill parameters the task metadata does not provide.
	Defaults map[string]string `mapstructure:"defaults" yaml:"defaults,omitempty"`
	// DescriptionParam, when set, receives the task description unless the
	// metadata already supplies it.
	DescriptionParam string `mapstructure:"description_param" yaml:"description_param,omitempty"`
}

// DefaultRules returns the built-in dispatch table, in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "write",
			Tool:    "write_file",
			Pattern: `\b(write|draft|document)\b`,
			Require: []string{"path", "content"},
		},
		{
			Name:    "read",
			Tool:    "read_file",
			Pattern: `\bread\b`,
			Require: []string{"path"},
		},
		{
			Name:     "list",
			Tool:     "list_dir",
			Pattern:  `\b(list|directory|files)\b`,
			Defaults: map[string]string{"path": "."},
		},
		{
			Name:             "search",
			Tool:             "web_search",
			Pattern:          `\b(research|search|look up|find)\b`,
			DescriptionParam: "query",
		},
	}
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// ValidateRules checks that every rule names a tool and has a valid pattern.
// knownTool reports whether a tool name resolves; pass nil to skip that check.
func ValidateRules(rules []Rule, knownTool func(string) bool) error {
	_, err := compile(rules, knownTool)
	return err
}

func compile(rules []Rule, knownTool func(string) bool) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		label := r.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if r.Tool == "" {
			return nil, fmt.Errorf("rule %s: tool is required", label)
		}
		if knownTool != nil && !knownTool(r.Tool) {
			return nil, fmt.Errorf("rule %s: unknown tool %q", label, r.Tool)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", label, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	return compiled, nil
}

func (r compiledRule) matches(task *progress.Task) bool {
	if !r.re.MatchString(task.Description) {
		return false
	}
	for _, key := range r.Require {
		if _, ok := task.Metadata[key]; !ok {
			return false
		}
	}
	return true
}

func (r compiledRule) params(task *progress.Task) map[string]string {
	params := make(map[string]string, len(r.Defaults)+len(task.Metadata)+1)
	for k, v := range r.Defaults {
		params[k] = v
	}
	for k, v := range task.Metadata {
		params[k] = v
	}
	if r.DescriptionParam != "" {
		if _, ok := task.Metadata[r.DescriptionParam]; !ok {
			params[r.DescriptionParam] = task.Description
		}
	}
	return params
}
