// Package tools defines the tool capability contract, the built-in tools and
// the registry the actor resolves tool names against.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"
)

// Request carries the inputs of a single tool invocation.
type Request struct {
	Task   string            // Description of the task being executed
	Goal   string            // Goal the task belongs to
	Params map[string]string // Tool parameters (path, content, query, ...)
}

// Tool is a capability the actor can invoke.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, req Request) (string, error)
}

// Result is the outcome of an invocation.
type Result struct {
	Success bool
	Output  string
	Err     error // *ExecutionError when Success is false
}

// ExecutionError wraps a failure raised by a tool.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Invoke runs a tool and maps its return values onto a Result.
func Invoke(ctx context.Context, tool Tool, req Request) Result {
	out, err := tool.Run(ctx, req)
	if err != nil {
		return Result{Output: out, Err: &ExecutionError{Tool: tool.Name(), Err: err}}
	}
	return Result{Success: true, Output: out}
}

// Spec names a tool instance and the built-in type that implements it.
type Spec struct {
	Name string `mapstructure:"name" yaml:"name"`
	Type string `mapstructure:"type" yaml:"type"`
}

// Env holds shared resources handed to tool constructors.
type Env struct {
	Fs    afero.Fs    // Sandboxed workspace filesystem
	Locks *PathLocker // Per-path write locks
}

// Factory constructs a tool with the given instance name.
type Factory func(name string, env Env) Tool

var factories = map[string]Factory{
	"read_file":  func(name string, env Env) Tool { return &ReadFile{name: name, fs: env.Fs} },
	"write_file": func(name string, env Env) Tool { return &WriteFile{name: name, fs: env.Fs, locks: env.Locks} },
	"list_dir":   func(name string, env Env) Tool { return &ListDir{name: name, fs: env.Fs} },
	"web_search": func(name string, env Env) Tool { return &WebSearch{name: name} },
}

// Types returns the names of all built-in tool types.
func Types() []string {
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultSpecs enables every built-in tool under its type name.
func DefaultSpecs() []Spec {
	specs := make([]Spec, 0, len(factories))
	for _, t := range Types() {
		specs = append(specs, Spec{Name: t, Type: t})
	}
	return specs
}

// Registry maps tool names to tool instances.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs every configured tool up front. An unknown type or a
// duplicate name fails the whole build.
func Build(specs []Spec, env Env) (*Registry, error) {
	if env.Fs == nil {
		return nil, errors.New("tools: workspace filesystem is required")
	}
	if env.Locks == nil {
		env.Locks = NewPathLocker()
	}

	reg := NewRegistry()
	for _, spec := range specs {
		factory, ok := factories[spec.Type]
		if !ok {
			return nil, fmt.Errorf("tool %q: unknown type %q", spec.Name, spec.Type)
		}
		name := spec.Name
		if name == "" {
			name = spec.Type
		}
		if err := reg.Register(factory(name, env)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// WorkspaceFs returns a filesystem rooted at dir on the OS filesystem.
func WorkspaceFs(dir string) afero.Fs {
	return afero.NewBasePathFs(afero.NewOsFs(), dir)
}
