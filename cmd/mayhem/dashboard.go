package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mayhemchaos/mayhem-go/pkg/dashboard"
	"github.com/mayhemchaos/mayhem-go/pkg/experiment"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/monitoring"
	"github.com/mayhemchaos/mayhem-go/pkg/safety"
)

var (
	dashboardAddr       string
	dashboardConfigFile string
	dashboardMonitorURL string
	dashboardMonitorKey string
)

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().StringVar(&dashboardAddr, "addr", ":8080", "Listen address")
	dashboardCmd.Flags().StringVarP(&dashboardConfigFile, "config", "c", "config/safety_config.yaml", "Path to the safety config")
	dashboardCmd.Flags().StringVar(&dashboardMonitorURL, "monitoring-url", "http://localhost:9090", "Prometheus base URL")
	dashboardCmd.Flags().StringVar(&dashboardMonitorKey, "monitoring-api-key", "", "Bearer token for the monitoring endpoint")
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the live metrics dashboard",
	Long: "Serves a websocket endpoint streaming metric snapshots with baseline\n" +
		"comparison, a prometheus exposition endpoint for the framework's own\n" +
		"counters and a JSON status endpoint. Edits to the safety config are\n" +
		"picked up without a restart.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		config, err := safety.LoadConfig(dashboardConfigFile)
		if err != nil {
			return err
		}
		evaluator := safety.NewEvaluator(config)
		summary := evaluator.EnvironmentSummary()
		log.Infof("[Dashboard]: Environment %v (policy: %v)", summary.EnvironmentType, summary.PolicySource)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// policy edits take effect on the next evaluation, the cached
		// environment classification is re-detected as well
		go dashboard.WatchConfig(ctx, dashboardConfigFile, func() {
			reloaded, err := safety.LoadConfig(dashboardConfigFile)
			if err != nil {
				log.Warnf("config reload failed, keeping previous config, err: %v", err)
				return
			}
			evaluator.Config = reloaded
			evaluator.Cache.Invalidate()
			log.Info("[Config]: Safety config reloaded")
		})

		runner := experiment.NewDefaultRunner(experiment.DefaultGracePeriod)
		monitor := monitoring.NewClient(dashboardMonitorURL, dashboardMonitorKey)
		hub := dashboard.NewHub()
		producer := dashboard.NewProducer(monitor, runner, hub, dashboard.DefaultPollInterval, dashboard.DefaultErrorBackoff)
		server := dashboard.NewServer(dashboardAddr, hub, producer, runner)

		log.Infof("[Dashboard]: Serving on %v", dashboardAddr)
		return server.Run(ctx)
	},
}
