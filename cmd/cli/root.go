package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-consolidator/internal/app"
	"github.com/dvloznov/statement-consolidator/internal/config"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// cli carries state shared by the commands of one invocation.
type cli struct {
	configFile string
	logLevel   string
	backend    string
	timeout    time.Duration

	app    *app.App
	ctx    context.Context
	cancel context.CancelFunc
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "stmt",
		Short:         "Extract transactions from statements and consolidate them into a ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.cancel != nil {
				c.cancel()
			}
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}

	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "Config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override log.level")
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "Override storage.backend")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Minute, "Overall command timeout")

	root.AddCommand(
		newExtractCmd(c),
		newImportCmd(c),
		newAccountsCmd(c),
		newArchiveCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.backend != "" {
		cfg.Storage.Backend = c.backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log := logger.NewFromOptions(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, c.cancel = context.WithTimeout(ctx, c.timeout)
	c.ctx = logger.WithContext(ctx, log)

	a, err := app.New(c.ctx, cfg, log)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}
