package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/afishnamedqwerty/GEPA-AIME/internal/config"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return showConfig(cfg, cmd.OutOrStdout())
		},
	}

	var global, force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to the project or global config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ProjectPath()
			if global {
				path = config.GlobalPath()
			}
			if err := initConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&global, "global", false, "write ~/.aime/config.yaml instead of .aime/config.yaml")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Show the config file search paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if flags.configFile != "" {
				fmt.Fprintf(out, "explicit: %s\n", flags.configFile)
			}
			fmt.Fprintf(out, "global:   %s\n", config.GlobalPath())
			fmt.Fprintf(out, "project:  %s\n", config.ProjectPath())
			return nil
		},
	}

	cmd.AddCommand(show, initCmd, path)
	return cmd
}

func showConfig(cfg *config.Config, out io.Writer) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

// initConfig writes DefaultConfig to path. An existing file is kept unless
// force is set.
func initConfig(path string, force bool) error {
	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}
	return config.Save(config.DefaultConfig(), path)
}
