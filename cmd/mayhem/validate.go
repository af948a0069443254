package main

import (
	"os"

	"github.com/kyokomi/emoji"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/safety"
)

var validateConfigFile string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateConfigFile, "config", "c", "config/safety_config.yaml", "Path to the safety config")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the safety config for structural defects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		config, err := safety.LoadConfig(validateConfigFile)
		if err != nil {
			return err
		}

		for name, policy := range config.EnvironmentPolicies {
			log.InfoWithValues("[Config]: Environment policy", logrus.Fields{
				"Environment":  name,
				"Enabled":      policy.Enabled,
				"MaxDuration":  policy.MaxDuration,
				"AllowedTypes": policy.AllowedExperimentTypes,
			})
		}

		defects := config.Validate()
		if len(defects) > 0 {
			for _, defect := range defects {
				log.Errorf("[Defect]: %v", defect)
			}
			log.Error("Config invalid" + emoji.Sprint(" :thumbsdown:"))
			os.Exit(1)
		}
		log.Info("Config valid" + emoji.Sprint(" :thumbsup:"))
		return nil
	},
}
