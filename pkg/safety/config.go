package safety

import (
	"fmt"
	"os"

	"github.com/mayhemchaos/mayhem-go/pkg/cerrors"
	"github.com/mayhemchaos/mayhem-go/pkg/discovery"
	"github.com/mayhemchaos/mayhem-go/pkg/environment"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
	"gopkg.in/yaml.v2"
)

// Wildcard in an allow-list or protected-services list matches everything
const Wildcard = "*"

// Settings are the global knobs of the safety config
type Settings struct {
	AutoDetectEnvironment bool `yaml:"auto_detect_environment"`
	// MaxExperimentDuration is the global ceiling in seconds applied when a
	// policy omits its own max_duration
	MaxExperimentDuration int `yaml:"max_experiment_duration,omitempty"`
}

// EnvironmentPolicy holds the permissions and limits bound to one
// environment type
type EnvironmentPolicy struct {
	Enabled                bool     `yaml:"enabled"`
	MaxDuration            int      `yaml:"max_duration"`
	AllowedExperimentTypes []string `yaml:"allowed_experiment_types,omitempty"`
	ProtectedServices      []string `yaml:"protected_services,omitempty"`
	RequireConfirmation    bool     `yaml:"require_confirmation,omitempty"`
}

// AllowsType reports whether the experiment type is in the policy
// allow-list, honouring the wildcard
func (p EnvironmentPolicy) AllowsType(experimentType types.ExperimentType) bool {
	for _, allowed := range p.AllowedExperimentTypes {
		if allowed == Wildcard || allowed == string(experimentType) {
			return true
		}
	}
	return false
}

// TypeLimits are the per-experiment-type parameter ceilings
type TypeLimits struct {
	MaxIntensity      int      `yaml:"max_intensity,omitempty"`
	MaxMemoryMB       int      `yaml:"max_memory_mb,omitempty"`
	MaxLatencyMs      int      `yaml:"max_latency_ms,omitempty"`
	AllowedInterfaces []string `yaml:"allowed_interfaces,omitempty"`
}

// ExperimentSafety is the experiment_safety section, parameter ceilings
// keyed by experiment type
type ExperimentSafety struct {
	CPUStress      TypeLimits `yaml:"cpu_stress,omitempty"`
	MemoryExhaust  TypeLimits `yaml:"memory_exhaust,omitempty"`
	NetworkLatency TypeLimits `yaml:"network_latency,omitempty"`
}

// AuditConfig controls the append-only audit trail
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogFile string `yaml:"log_file,omitempty"`
}

// Config is the complete safety configuration document
type Config struct {
	Settings             Settings                     `yaml:"settings"`
	EnvironmentPolicies  map[string]EnvironmentPolicy `yaml:"environment_policies"`
	EnvironmentDetection environment.DetectionConfig  `yaml:"environment_detection,omitempty"`
	ServiceDiscovery     discovery.Config             `yaml:"service_discovery,omitempty"`
	ExperimentSafety     ExperimentSafety             `yaml:"experiment_safety,omitempty"`
	Audit                AuditConfig                  `yaml:"audit,omitempty"`
}

// defaultMemorySanityMB caps memory_exhaust when no explicit ceiling is
// configured
const defaultMemorySanityMB = 8192

// LoadConfig reads and parses the safety config file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Reason:    fmt.Sprintf("unable to read safety config: %v", err),
			Target:    path,
		}
	}
	return ParseConfig(data)
}

// ParseConfig parses a safety config document
func ParseConfig(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeConfiguration,
			Reason:    fmt.Sprintf("unable to parse safety config: %v", err),
		}
	}
	return config, nil
}

// RestrictedPolicy is the maximally restrictive synthetic policy used
// when even the mandatory default policy is missing. Nothing is enabled,
// nothing is allowed, everything is protected.
func RestrictedPolicy() EnvironmentPolicy {
	return EnvironmentPolicy{
		Enabled:           false,
		MaxDuration:       0,
		ProtectedServices: []string{Wildcard},
	}
}

// PolicyFor resolves the policy for an environment type: exact match,
// else the mandatory default policy, else the restricted synthetic policy.
// The second return names the resolution used.
func (c *Config) PolicyFor(envType string) (EnvironmentPolicy, string) {
	if policy, ok := c.EnvironmentPolicies[envType]; ok {
		return c.withGlobalCeiling(policy), envType
	}
	if policy, ok := c.EnvironmentPolicies[environment.DefaultEnvironment]; ok {
		return c.withGlobalCeiling(policy), environment.DefaultEnvironment
	}
	return RestrictedPolicy(), "restricted"
}

// withGlobalCeiling substitutes settings.max_experiment_duration for a
// policy that omits its own max_duration
func (c *Config) withGlobalCeiling(policy EnvironmentPolicy) EnvironmentPolicy {
	if policy.MaxDuration <= 0 {
		policy.MaxDuration = c.Settings.MaxExperimentDuration
	}
	return policy
}

// Validate returns the configuration defects without raising. An empty
// result means the config is usable as-is.
func (c *Config) Validate() []string {
	var defects []string

	if len(c.EnvironmentPolicies) == 0 {
		defects = append(defects, "environment_policies section is missing or empty")
		return defects
	}

	if _, ok := c.EnvironmentPolicies[environment.DefaultEnvironment]; !ok {
		defects = append(defects, "mandatory 'default' policy is missing from environment_policies")
	}

	for name, policy := range c.EnvironmentPolicies {
		if policy.Enabled && policy.MaxDuration <= 0 && c.Settings.MaxExperimentDuration <= 0 {
			defects = append(defects, fmt.Sprintf("policy %q is enabled but neither max_duration nor settings.max_experiment_duration is positive", name))
		}
		if policy.Enabled && len(policy.AllowedExperimentTypes) == 0 {
			defects = append(defects, fmt.Sprintf("policy %q is enabled but allows no experiment types", name))
		}
	}

	for _, rule := range c.EnvironmentDetection.ClassificationRules {
		if rule.Name == "" {
			defects = append(defects, "classification rule with empty name")
		}
	}

	return defects
}

// limitsFor returns the parameter ceilings of an experiment type
func (c *Config) limitsFor(experimentType types.ExperimentType) TypeLimits {
	switch experimentType {
	case types.CPUStress:
		return c.ExperimentSafety.CPUStress
	case types.MemoryExhaust:
		return c.ExperimentSafety.MemoryExhaust
	case types.NetworkLatency:
		return c.ExperimentSafety.NetworkLatency
	}
	return TypeLimits{}
}
