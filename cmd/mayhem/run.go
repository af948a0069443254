package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kyokomi/emoji"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v2"

	"github.com/mayhemchaos/mayhem-go/pkg/cerrors"
	"github.com/mayhemchaos/mayhem-go/pkg/experiment"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/monitoring"
	"github.com/mayhemchaos/mayhem-go/pkg/report"
	"github.com/mayhemchaos/mayhem-go/pkg/safety"
	"github.com/mayhemchaos/mayhem-go/pkg/telemetry"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

var (
	runExperimentFile string
	runConfigFile     string
	runDryRun         bool
	runMonitorURL     string
	runMonitorAPIKey  string
	runReport         bool
	runReportDir      string
	runGracePeriod    int
	runAssumeYes      bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runExperimentFile, "experiment", "e", "", "Path to the experiment YAML (required)")
	runCmd.Flags().StringVarP(&runConfigFile, "config", "c", "config/safety_config.yaml", "Path to the safety config")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Evaluate the safety verdict without injecting any fault")
	runCmd.Flags().StringVar(&runMonitorURL, "monitoring-url", "", "Prometheus base URL for baseline capture and impact comparison")
	runCmd.Flags().StringVar(&runMonitorAPIKey, "monitoring-api-key", "", "Bearer token for the monitoring endpoint")
	runCmd.Flags().BoolVar(&runReport, "report", false, "Write an HTML report after the experiment")
	runCmd.Flags().StringVar(&runReportDir, "report-dir", "./reports", "Directory for generated reports")
	runCmd.Flags().IntVar(&runGracePeriod, "grace-period", 5, "Seconds to wait for graceful fault termination before SIGKILL")
	runCmd.Flags().BoolVarP(&runAssumeYes, "yes", "y", false, "Skip the interactive confirmation demanded by the policy")
	runCmd.MarkFlagRequired("experiment")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate an experiment against the safety policy and run it",
	Long: "Loads the experiment definition, resolves the environment, evaluates the\n" +
		"request against the environment's policy and, if authorized, injects the\n" +
		"fault for the requested duration and reverts it. SIGINT and SIGTERM\n" +
		"trigger an emergency stop that reverts every active fault before exit.",
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	config, err := safety.LoadConfig(runConfigFile)
	if err != nil {
		return err
	}
	for _, defect := range config.Validate() {
		log.Warnf("[Config]: %v", defect)
	}

	request, err := loadExperiment(runExperimentFile)
	if err != nil {
		return err
	}
	if err := request.Validate(); err != nil {
		return err
	}

	evaluator := safety.NewEvaluator(config)
	summary := evaluator.EnvironmentSummary()
	log.InfoWithValues("[Safety]: Environment resolved", logrus.Fields{
		"Environment":  summary.EnvironmentType,
		"PolicySource": summary.PolicySource,
		"Hostname":     summary.Details.Hostname,
	})

	authorized, violations := evaluator.Evaluate(request)
	if !authorized {
		log.Error("[Safety]: Experiment rejected" + emoji.Sprint(" :thumbsdown:"))
		for _, violation := range violations {
			log.Errorf("[Violation]: %v: %v", violation.Kind, violation.Message)
		}
		os.Exit(1)
	}
	log.Info("[Safety]: Experiment authorized" + emoji.Sprint(" :thumbsup:"))

	if runDryRun {
		log.Info("[DryRun]: Skipping fault injection")
		return nil
	}

	if summary.Policy.RequireConfirmation && !runAssumeYes {
		fmt.Printf("The %v policy requires confirmation. Type 'yes' to proceed: ", summary.EnvironmentType)
		if !confirmExecution(os.Stdin) {
			log.Warn("[Safety]: Experiment aborted, confirmation withheld")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flushTelemetry := func() {}
	if endpoint := os.Getenv(telemetry.OTELEndpointEnv); endpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, endpoint)
		if err != nil {
			log.Warnf("unable to initialize telemetry, err: %v", err)
		} else {
			spanCtx, runSpan := telemetry.StartSpan(ctx, request.Name)
			ctx = spanCtx
			flushTelemetry = telemetryFlush(runSpan, shutdown)
		}
	}
	// os.Exit skips deferred calls, the exit paths below flush explicitly
	defer flushTelemetry()

	var monitor *monitoring.Client
	if runMonitorURL != "" && request.Target.Service != "" {
		monitor = monitoring.NewClient(runMonitorURL, runMonitorAPIKey)
		baseline := monitor.CaptureBaseline(request.Target.Service)
		log.Infof("[Monitor]: Captured baseline with %v metrics for %v", len(baseline), request.Target.Service)
	}

	runner := experiment.NewDefaultRunner(time.Duration(runGracePeriod) * time.Second)
	results, execErr := runner.Execute(ctx, request)
	interrupted := execErr != nil && ctx.Err() != nil

	comparison := map[string]monitoring.Comparison{}
	if monitor != nil {
		comparison = monitor.CompareWithBaseline(request.Target.Service)
		for metric, impact := range comparison {
			log.InfoWithValues("[Monitor]: Metric impact", logrus.Fields{
				"Metric":        metric,
				"Baseline":      impact.Baseline,
				"Current":       impact.Current,
				"ChangePercent": impact.ChangePercent,
			})
		}
	}

	failed := false
	for experimentType, result := range results {
		switch result.Status {
		case types.ResultFailed:
			failed = true
			log.Errorf("[Result]: %v reversal failed, reason: %v", experimentType, result.Reason)
		default:
			log.Infof("[Result]: %v %v%v", experimentType, result.Status, emoji.Sprint(" :thumbsup:"))
		}
	}

	if runReport && len(results) > 0 {
		path, err := report.NewReporter(runReportDir).Generate(request, results, comparison)
		if err != nil {
			log.Warnf("unable to write report, err: %v", err)
		} else {
			log.Infof("[Report]: Written to %v", path)
		}
	}

	if interrupted {
		log.Warn("[Abort]: Experiment interrupted, faults reverted")
		flushTelemetry()
		os.Exit(130)
	}
	if execErr != nil {
		return execErr
	}
	if failed {
		flushTelemetry()
		os.Exit(1)
	}
	return nil
}

// telemetryFlush returns an idempotent hook that ends the run span and
// flushes the exporter, safe to call both deferred and ahead of os.Exit
func telemetryFlush(span trace.Span, shutdown func(context.Context) error) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			span.End()
			if err := shutdown(context.Background()); err != nil {
				log.Warnf("unable to flush telemetry, err: %v", err)
			}
		})
	}
}

// confirmExecution reads one line from the operator and accepts only an
// explicit "yes"
func confirmExecution(in io.Reader) bool {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}

// loadExperiment parses an experiment definition from a yaml document
func loadExperiment(path string) (*types.ExperimentRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("unable to read experiment file, err: %v", err)
	}
	request := types.ExperimentRequest{}
	if err := yaml.Unmarshal(data, &request); err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Reason:    err.Error(),
			Target:    path,
		}
	}
	return &request, nil
}
