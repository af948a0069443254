package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

var (
	templateType   string
	templateOutput string
)

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.Flags().StringVarP(&templateType, "type", "t", "cpu", "Template type (cpu|memory|network)")
	templateCmd.Flags().StringVarP(&templateOutput, "output", "o", "", "Output file, stdout when empty")
}

var experimentTemplates = map[string]types.ExperimentRequest{
	"cpu": {
		Name:        "CPU Stress Test",
		Type:        types.CPUStress,
		Description: "Simulate high CPU load on test servers",
		Target: types.Target{
			Environment: "test",
			Service:     "web-server",
			Hosts:       []string{"test-server-01", "test-server-02"},
		},
		Duration:  300,
		Intensity: 80,
		SuccessCriteria: []string{
			"Autoscaling group scales up within 2 minutes",
			"No request timeouts during experiment",
		},
	},
	"memory": {
		Name:        "Memory Pressure Test",
		Type:        types.MemoryExhaust,
		Description: "Simulate memory pressure on test servers",
		Target: types.Target{
			Environment: "test",
			Service:     "web-server",
			Hosts:       []string{"test-server-01"},
		},
		Duration: 180,
		MemoryMB: 1024,
		SuccessCriteria: []string{
			"OOM killer does not trigger",
			"Service remains responsive",
		},
	},
	"network": {
		Name:        "Network Latency Test",
		Type:        types.NetworkLatency,
		Description: "Introduce network latency between services",
		Target: types.Target{
			Environment: "test",
			Service:     "api-gateway",
			Hosts:       []string{"test-api-01"},
		},
		Duration:  240,
		Interface: "eth0",
		LatencyMs: 100,
		SuccessCriteria: []string{
			"Circuit breakers activate appropriately",
			"Timeout mechanisms function correctly",
		},
	},
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write a starter experiment definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		template, ok := experimentTemplates[templateType]
		if !ok {
			return errors.Errorf("unknown template type %v, available: cpu, memory, network", templateType)
		}
		data, err := yaml.Marshal(template)
		if err != nil {
			return err
		}
		if templateOutput == "" {
			fmt.Print(string(data))
			return nil
		}
		if err := os.WriteFile(templateOutput, data, 0644); err != nil {
			return errors.Errorf("unable to write template, err: %v", err)
		}
		log.Infof("Template created: %v", templateOutput)
		return nil
	},
}
