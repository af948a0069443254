package safety

import (
	"testing"

	"github.com/mayhemchaos/mayhem-go/pkg/cerrors"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

const sampleConfig = `
settings:
  auto_detect_environment: true
environment_policies:
  production:
    enabled: false
    max_duration: 0
    protected_services: ["*"]
    require_confirmation: true
  staging:
    enabled: true
    max_duration: 600
    allowed_experiment_types:
      - cpu_stress
      - network_latency
    protected_services:
      - database
  default:
    enabled: true
    max_duration: 900
    allowed_experiment_types:
      - cpu_stress
experiment_safety:
  cpu_stress:
    max_intensity: 90
  network_latency:
    max_latency_ms: 1000
    allowed_interfaces: [eth0]
audit:
  enabled: true
  log_file: audit.log
`

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig() returned error: %v", err)
	}
	if !config.Settings.AutoDetectEnvironment {
		t.Error("auto_detect_environment not parsed")
	}
	if len(config.EnvironmentPolicies) != 3 {
		t.Errorf("parsed %v policies, want 3", len(config.EnvironmentPolicies))
	}
	staging := config.EnvironmentPolicies["staging"]
	if staging.MaxDuration != 600 {
		t.Errorf("staging max_duration = %v, want 600", staging.MaxDuration)
	}
	if !staging.AllowsType(types.NetworkLatency) {
		t.Error("staging should allow network_latency")
	}
	if staging.AllowsType(types.MemoryExhaust) {
		t.Error("staging should not allow memory_exhaust")
	}
	if config.ExperimentSafety.CPUStress.MaxIntensity != 90 {
		t.Errorf("cpu max_intensity = %v, want 90", config.ExperimentSafety.CPUStress.MaxIntensity)
	}
	if !config.EnvironmentPolicies["production"].RequireConfirmation {
		t.Error("production require_confirmation not parsed")
	}
	if !config.Audit.Enabled || config.Audit.LogFile != "audit.log" {
		t.Error("audit section not parsed")
	}
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig([]byte("settings: [not, a, mapping"))
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if cerrors.GetErrorType(err) != cerrors.ErrorTypeConfiguration {
		t.Errorf("error code = %v, want %v", cerrors.GetErrorType(err), cerrors.ErrorTypeConfiguration)
	}
}

func TestPolicyFor(t *testing.T) {
	config, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig() returned error: %v", err)
	}

	tests := []struct {
		envType        string
		expectedSource string
		enabled        bool
	}{
		{"staging", "staging", true},
		{"production", "production", false},
		{"development", "default", true},
		{"unheard-of", "default", true},
	}

	for _, tt := range tests {
		t.Run(tt.envType, func(t *testing.T) {
			policy, source := config.PolicyFor(tt.envType)
			if source != tt.expectedSource {
				t.Errorf("policy source = %v, want %v", source, tt.expectedSource)
			}
			if policy.Enabled != tt.enabled {
				t.Errorf("policy enabled = %v, want %v", policy.Enabled, tt.enabled)
			}
		})
	}
}

func TestPolicyForGlobalDurationCeiling(t *testing.T) {
	config := &Config{
		Settings: Settings{MaxExperimentDuration: 3600},
		EnvironmentPolicies: map[string]EnvironmentPolicy{
			"default": {Enabled: true, AllowedExperimentTypes: []string{Wildcard}},
			"staging": {Enabled: true, MaxDuration: 600, AllowedExperimentTypes: []string{Wildcard}},
		},
	}

	policy, _ := config.PolicyFor("development")
	if policy.MaxDuration != 3600 {
		t.Errorf("policy without max_duration got ceiling %v, want global 3600", policy.MaxDuration)
	}

	policy, _ = config.PolicyFor("staging")
	if policy.MaxDuration != 600 {
		t.Errorf("policy with its own max_duration got ceiling %v, want 600", policy.MaxDuration)
	}
}

func TestPolicyForMissingDefault(t *testing.T) {
	config := &Config{EnvironmentPolicies: map[string]EnvironmentPolicy{
		"staging": {Enabled: true, MaxDuration: 600},
	}}

	policy, source := config.PolicyFor("unknown")
	if source != "restricted" {
		t.Fatalf("policy source = %v, want restricted", source)
	}
	if policy.Enabled {
		t.Error("restricted policy must not be enabled")
	}
	if policy.AllowsType(types.CPUStress) {
		t.Error("restricted policy must not allow any experiment type")
	}
	if len(policy.ProtectedServices) != 1 || policy.ProtectedServices[0] != Wildcard {
		t.Errorf("restricted policy protected services = %v, want [*]", policy.ProtectedServices)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		defects int
	}{
		{
			name:    "Empty config",
			config:  &Config{},
			defects: 1,
		},
		{
			name: "Missing default policy",
			config: &Config{EnvironmentPolicies: map[string]EnvironmentPolicy{
				"staging": {Enabled: true, MaxDuration: 600, AllowedExperimentTypes: []string{"cpu_stress"}},
			}},
			defects: 1,
		},
		{
			name: "Enabled policy without duration or types",
			config: &Config{EnvironmentPolicies: map[string]EnvironmentPolicy{
				"default": {Enabled: true},
			}},
			defects: 2,
		},
		{
			name: "Valid config",
			config: &Config{EnvironmentPolicies: map[string]EnvironmentPolicy{
				"default": {Enabled: true, MaxDuration: 900, AllowedExperimentTypes: []string{"cpu_stress"}},
			}},
			defects: 0,
		},
		{
			name: "Global ceiling covers missing policy duration",
			config: &Config{
				Settings: Settings{MaxExperimentDuration: 3600},
				EnvironmentPolicies: map[string]EnvironmentPolicy{
					"default": {Enabled: true, AllowedExperimentTypes: []string{"cpu_stress"}},
				},
			},
			defects: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.config.Validate()); got != tt.defects {
				t.Errorf("Validate() returned %v defects (%v), want %v", got, tt.config.Validate(), tt.defects)
			}
		})
	}
}
