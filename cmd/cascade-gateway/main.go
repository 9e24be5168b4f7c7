package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/cascade/pkg/api"
	"github.com/cuemby/cascade/pkg/config"
	"github.com/cuemby/cascade/pkg/credential"
	"github.com/cuemby/cascade/pkg/cron"
	"github.com/cuemby/cascade/pkg/dispatcher"
	"github.com/cuemby/cascade/pkg/events"
	"github.com/cuemby/cascade/pkg/log"
	"github.com/cuemby/cascade/pkg/metrics"
	"github.com/cuemby/cascade/pkg/reclaimer"
	"github.com/cuemby/cascade/pkg/registry"
	"github.com/cuemby/cascade/pkg/storage"
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
	Use:   "cascade-gateway",
	Short: "cascade-gateway runs the coordinator process",
	Long: `cascade-gateway is the single coordinator of a cascade deployment:
it owns the catalog (feeds, tasks), dispatches allocations on a cron
schedule, and serves the HTTP API that worker agents poll.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"cascade-gateway version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().String("config-dir", ".", "Directory to search for config.yml")
	rootCmd.PersistentFlags().Bool("enable-pprof", false, "Enable pprof profiling endpoints")
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, _ := cmd.Flags().GetString("config-dir")
		pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")

		cfg, err := config.LoadGateway(configDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: true})
		logger := log.WithComponent("main")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("storage", false, "initializing")
		metrics.RegisterComponent("cron", false, "initializing")
		metrics.RegisterComponent("api", false, "initializing")

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()
		metrics.RegisterComponent("storage", true, "bootstrapped")

		cred := credential.New(store)
		reg := registry.New(store)
		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		rec := reclaimer.New(store).WithThreshold(cfg.ReclaimThreshold).WithInterval(cfg.ReclaimInterval)
		disp := dispatcher.New(store, rec, log.WithComponent("dispatcher"))
		sched := cron.New(store, disp)

		collector := metrics.NewCollector(store)
		collector.Start()
		defer collector.Stop()

		rec.Start()
		defer rec.Stop()

		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
		metrics.RegisterComponent("cron", true, "ready")

		srv := api.NewServer(store, cred, reg, disp, sched, broker, cfg.OperatorToken)

		if pprofEnabled {
			go func() {
				if err := http.ListenAndServe("127.0.0.1:6060", nil); err != nil {
					logger.Warn().Err(err).Msg("pprof server exited")
				}
			}()
			logger.Info().Msg("pprof enabled at http://127.0.0.1:6060/debug/pprof/")
		}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(cfg.ListenAddr); err != nil {
				errCh <- err
			}
		}()
		time.Sleep(100 * time.Millisecond)
		metrics.RegisterComponent("api", true, "ready")
		logger.Info().Str("addr", cfg.ListenAddr).Msg("cascade-gateway started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("api server: %w", err)
		case <-sigCh:
			logger.Info().Msg("shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}
