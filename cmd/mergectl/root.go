package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/logging"
)

// commandContext loads configuration once for whichever subcommand runs.
type commandContext struct {
	configPath *string
	verbose    *bool
	cfg        *config.Config
}

func (c *commandContext) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	var (
		cfg *config.Config
		err error
	)
	if *c.configPath != "" {
		cfg, err = config.Load(*c.configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) logger() *slog.Logger {
	if !*c.verbose {
		return logging.Discard()
	}
	cfg, err := c.config()
	if err != nil {
		return logging.Discard()
	}
	logCfg := cfg.Log
	logCfg.Format = "text"
	logger, err := logging.New(logCfg)
	if err != nil {
		return logging.Discard()
	}
	return logger
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var verboseFlag bool
	ctx := &commandContext{configPath: &configFlag, verbose: &verboseFlag}

	rootCmd := &cobra.Command{
		Use:           "mergectl",
		Short:         "Operator tooling for the statements service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (defaults to environment)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log pipeline activity to stderr")

	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newPresetsCommand(ctx))
	rootCmd.AddCommand(newSegmentsCommand())
	rootCmd.AddCommand(newMergeCommand(ctx))
	rootCmd.AddCommand(newSessionsCommand())

	return rootCmd
}
