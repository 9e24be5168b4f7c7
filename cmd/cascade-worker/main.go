package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/cascade/pkg/config"
	"github.com/cuemby/cascade/pkg/job"
	"github.com/cuemby/cascade/pkg/log"
	"github.com/cuemby/cascade/pkg/worker"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cascade-worker",
	Short: "cascade-worker runs a worker agent",
	Long: `cascade-worker polls a cascade coordinator for work, executes
claimed tasks, and reports results back.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"cascade-worker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().String("config-dir", ".", "Directory to search for config.yml")
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worker agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, _ := cmd.Flags().GetString("config-dir")

		cfg, err := config.LoadWorker(configDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: true})
		logger := log.WithComponent("main")

		w := worker.New(worker.Config{
			GatewayURL:        cfg.GatewayURL,
			AccessKey:         cfg.AccessKey,
			SecretKey:         cfg.SecretKey,
			PollInterval:      cfg.PollInterval,
			HeartbeatInterval: cfg.HeartbeatInterval,
			Concurrency:       cfg.MaxCapacity,
		}, job.NoopExecutor{})

		if err := w.Start(); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		logger.Info().Str("gateway_url", cfg.GatewayURL).Msg("cascade-worker started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutting down")
		if err := w.Stop(); err != nil {
			return fmt.Errorf("stop worker: %w", err)
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}
