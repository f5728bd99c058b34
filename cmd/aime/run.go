package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/actor"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/config"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/dashboard"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/events"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/logging"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/optimizer"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/oracle"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/persistence"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/planner"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/progress"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/tools"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/tui"
	"github.com/afishnamedqwerty/GEPA-AIME/internal/workflow"
)

type runOptions struct {
	tui           bool
	serve         bool
	addr          string
	maxIterations int
	noStore       bool
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run a goal to completion and print the JSON report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			opts.apply(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := execute(ctx, cfg, *opts, strings.Join(args, " "), cmd.OutOrStdout())
			if report != nil && report.State == workflow.StateFailed {
				return fmt.Errorf("run failed: %s", report.Error)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show a live terminal UI")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "serve live state over HTTP")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "dashboard listen address (overrides dashboard.addr)")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "iteration cap (overrides workflow.max_iterations)")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "do not record the run in the SQLite ledger")
	return cmd
}

func (o runOptions) apply(cfg *config.Config) {
	if o.addr != "" {
		cfg.Dashboard.Addr = o.addr
	}
	if o.maxIterations > 0 {
		cfg.Workflow.MaxIterations = o.maxIterations
	}
	if o.noStore {
		cfg.Store.Enabled = false
	}
}

// runtime holds the components of one run.
type runtime struct {
	logger    *logging.Logger
	processes *oracle.ProcessManager
	optimizer *optimizer.Optimizer
	store     persistence.Store
	bus       *events.Bus
	state     *dashboard.StateHolder
	orch      *workflow.Orchestrator
	prompt    string
}

// build wires every component from cfg.
func build(ctx context.Context, cfg *config.Config, quiet bool) (*runtime, error) {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Quiet:  quiet,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{logger: logger, processes: oracle.NewProcessManager(), bus: events.NewBus(), state: &dashboard.StateHolder{}}

	fail := func(err error) (*runtime, error) {
		rt.close()
		return nil, err
	}

	gen, err := oracle.New(cfg.OracleSettings(), rt.processes, logger.Logger)
	if err != nil {
		return fail(fmt.Errorf("creating oracle: %w", err))
	}

	rt.optimizer, err = optimizer.New(cfg.OptimizerSettings(), logger.Logger)
	if err != nil {
		return fail(fmt.Errorf("creating optimizer: %w", err))
	}

	if err := os.MkdirAll(cfg.Tools.Workspace, 0755); err != nil {
		return fail(fmt.Errorf("creating workspace: %w", err))
	}
	registry, err := tools.Build(cfg.Tools.Enabled, tools.Env{Fs: tools.WorkspaceFs(cfg.Tools.Workspace)})
	if err != nil {
		return fail(fmt.Errorf("building tools: %w", err))
	}
	act, err := actor.New(cfg.Dispatch.Rules, registry, logger.Logger)
	if err != nil {
		return fail(fmt.Errorf("creating actor: %w", err))
	}

	if cfg.Store.Enabled {
		store, err := persistence.NewSQLiteStore(ctx, cfg.Store.Path)
		if err != nil {
			logger.Warn("run ledger unavailable", "path", cfg.Store.Path, "error", err)
		} else {
			rt.store = store
		}
	}

	rt.prompt = rt.optimizer.CurrentPrompt()
	pm := progress.NewManager()
	rt.orch, err = workflow.New(workflow.Config{MaxIterations: cfg.Workflow.MaxIterations}, workflow.Deps{
		Progress:  pm,
		Planner:   planner.New(gen, pm, rt.prompt, cfg.Planner.MaxTasks, logger.Logger),
		Actor:     act,
		Optimizer: rt.optimizer,
		Bus:       rt.bus,
		Store:     rt.store,
		Observer:  rt.state.Update,
		Logger:    logger.Logger,
	})
	if err != nil {
		return fail(err)
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.processes != nil {
		if err := rt.processes.KillAll(); err != nil {
			rt.logger.Warn("kill oracle subprocesses", "error", err)
		}
	}
	if rt.optimizer != nil {
		if err := rt.optimizer.Close(); err != nil {
			rt.logger.Warn("close optimizer", "error", err)
		}
	}
	if rt.store != nil {
		rt.store.Close()
	}
	rt.bus.Close()
	rt.logger.Close()
}

// execute runs goal and writes the JSON report to out. With the TUI enabled
// the report is written after the UI exits.
func execute(ctx context.Context, cfg *config.Config, opts runOptions, goal string, out io.Writer) (*workflow.Report, error) {
	rt, err := build(ctx, cfg, opts.tui)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	var report *workflow.Report
	var runErr error

	g.Go(func() error {
		report, runErr = rt.orch.Run(runCtx, goal)
		if !opts.tui {
			stopServe()
		}
		return nil
	})

	if opts.serve {
		srv := dashboard.NewServer(rt.state, dashboard.Options{
			Addr:       cfg.Dashboard.Addr,
			RequestLog: !opts.tui,
			Logger:     rt.logger.Logger,
		})
		g.Go(func() error {
			return srv.ListenAndServe(serveCtx)
		})
	}

	if opts.tui {
		model := tui.New(rt.bus, cfg, goal, rt.prompt, config.GlobalPath(), config.ProjectPath())
		p := tea.NewProgram(model, tea.WithAltScreen())
		tuiDone := make(chan struct{})

		g.Go(func() error {
			defer close(tuiDone)
			_, err := p.Run()
			// Leaving the UI ends the run and the dashboard.
			cancelRun()
			stopServe()
			return err
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
				p.Quit()
			case <-tuiDone:
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if report == nil {
		return nil, runErr
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return report, fmt.Errorf("writing report: %w", err)
	}
	return report, runErr
}
