// Command aime runs goals through the plan, act and optimize loop.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "aime",
		Short: "Goal-driven task loop with an online prompt optimizer",
		Long: `aime splits a goal into tasks, executes them one at a time with tools,
scores each outcome and adapts its planning prompt from recent scores.
The learned prompt is kept in a JSONL trace and restored on the next run.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(flags.envFile)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (default is ~/.aime/config.yaml merged with .aime/config.yaml)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(newRunCmd(flags), newRunsCmd(flags), newTracesCmd(flags), newConfigCmd(flags))
	return root
}

// loadEnv loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadDefault(flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
