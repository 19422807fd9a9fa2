package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/irrigation_agent/pkg/logger"
)

const defaultFieldID = 12

type rootFlags struct {
	configPath string
	retryLimit int
	seed       int64
	logLevel   string
	publish    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "irrigation-agent [field_id]",
		Short:         "Decide whether a field needs irrigation",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(cmd, flags, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", os.Getenv("IRRIGATION_CONFIG"), "Path to a YAML configuration file")
	pf.IntVar(&flags.retryLimit, "retry-limit", 0, "Maximum sensor attempts per decision")
	pf.Int64Var(&flags.seed, "seed", 0, "Seed for the simulated sensors")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flags.publish, "publish", false, "Publish every decision on the message broker")

	cmd.AddCommand(newDecideCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// load resolves the configuration with flags taking precedence.
func (f *rootFlags) load(cmd *cobra.Command) (Config, *logger.Logger, error) {
	cfg, err := loadConfig(f.configPath, os.Getenv)
	if err != nil {
		return cfg, nil, err
	}

	changed := cmd.Flags().Changed
	if changed("retry-limit") {
		cfg.Retry.Limit = f.retryLimit
	}
	if changed("seed") {
		cfg.Sensor.Simulator.Seed = f.seed
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("publish") {
		cfg.Events.Publish = f.publish
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	log, err := logger.New(logger.Options{
		Level:         cfg.Log.Level,
		HumanReadable: cfg.Log.HumanReadable,
		Writer:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
