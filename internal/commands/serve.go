package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"compliancedash/config"
	"compliancedash/internal/dashboard"
	"compliancedash/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the transaction feed and serve the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// viper config
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}

			// zap logger
			log, err := logger.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := dashboard.Run(ctx, cfg, log); err != nil {
				log.Error("dashboard failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config", "", "directory containing config.yaml")
	return cmd
}
