package environment

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/utils/common"
)

// DefaultEnvironment is the sentinel type returned when no classification
// rule matches
const DefaultEnvironment = "default"

// prodIdentifiers is the legacy hostname substring check used when
// auto-detection is disabled and no explicit override is set
var prodIdentifiers = []string{"prod", "production", "prd"}

// ProviderConfig holds the metadata endpoint settings of a single cloud provider
type ProviderConfig struct {
	MetadataURL string `yaml:"metadata_url"`
	// Timeout per metadata call in seconds, defaults to 2
	Timeout int `yaml:"timeout,omitempty"`
}

// Patterns are the match conditions of a classification rule, tested in
// the order hostname, environment_vars, cloud_tags
type Patterns struct {
	Hostname        []string `yaml:"hostname,omitempty"`
	EnvironmentVars []string `yaml:"environment_vars,omitempty"`
	CloudTags       []string `yaml:"cloud_tags,omitempty"`
}

// Rule is a single classification rule, its name doubles as the
// environment type it classifies into
type Rule struct {
	Name     string   `yaml:"name"`
	Patterns Patterns `yaml:"patterns"`
}

// DetectionConfig is the environment_detection section of the safety config
type DetectionConfig struct {
	CloudProviders      map[string]ProviderConfig `yaml:"cloud_providers,omitempty"`
	ClassificationRules []Rule                    `yaml:"classification_rules,omitempty"`
}

// Metadata holds the provider metadata gathered by a cloud probe
type Metadata struct {
	InstanceID    string            `json:"instance_id,omitempty"`
	InstanceType  string            `json:"instance_type,omitempty"`
	InstanceName  string            `json:"instance_name,omitempty"`
	ProjectID     string            `json:"project_id,omitempty"`
	ResourceGroup string            `json:"resource_group,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// MatchedRule records which rule matched and on what evidence
type MatchedRule struct {
	Rule    string `json:"rule"`
	Kind    string `json:"type"`
	Pattern string `json:"pattern"`
	Value   string `json:"value"`
}

// Details holds the evidence gathered during environment detection
type Details struct {
	Hostname             string            `json:"hostname"`
	EnvironmentVariables map[string]string `json:"environment_variables,omitempty"`
	CloudProvider        string            `json:"cloud_provider,omitempty"`
	CloudMetadata        Metadata          `json:"cloud_metadata,omitempty"`
	MatchedRules         []MatchedRule     `json:"matched_rules,omitempty"`
}

// CloudProbe detects a single cloud provider via its metadata endpoint.
// A probe must never fail past its own boundary, on any error it reports
// not-detected.
type CloudProbe interface {
	Provider() string
	Probe(config ProviderConfig) (*Metadata, bool)
}

// Detector classifies the current host into an environment type using
// the configured classification rules, first match wins
type Detector struct {
	config DetectionConfig
	probes []CloudProbe

	// overridable for tests
	hostname func() (string, error)
	getenv   func(string) string
}

// NewDetector returns a detector with the default probe set (aws, gcp, azure)
func NewDetector(config DetectionConfig) *Detector {
	return &Detector{
		config:   config,
		probes:   []CloudProbe{&AWSProbe{}, &GCPProbe{}, &AzureProbe{}},
		hostname: os.Hostname,
		getenv:   os.Getenv,
	}
}

// WithProbes replaces the cloud probe set, used by tests and callers that
// want to restrict detection to specific providers
func (d *Detector) WithProbes(probes ...CloudProbe) *Detector {
	d.probes = probes
	return d
}

// Detect classifies the current environment and returns the detection
// evidence. It never fails, the worst case is the default environment type.
func (d *Detector) Detect() (string, Details) {
	hostname, err := d.hostname()
	if err != nil {
		log.Debugf("unable to read hostname, err: %v", err)
	}

	details := Details{
		Hostname:             hostname,
		EnvironmentVariables: map[string]string{},
	}

	// cloud detection is attempted once, best-effort, a provider failure
	// degrades to classification on hostname/env-var rules only
	d.detectCloud(&details)

	envType := d.classify(&details)
	return envType, details
}

// detectCloud tries each configured provider in probe registration order
// and records the first that responds
func (d *Detector) detectCloud(details *Details) {
	if len(d.config.CloudProviders) == 0 {
		return
	}

	for _, probe := range d.probes {
		providerConfig, ok := d.config.CloudProviders[probe.Provider()]
		if !ok {
			continue
		}
		metadata, detected := probe.Probe(providerConfig)
		if !detected {
			log.Debugf("cloud provider %v not detected", probe.Provider())
			continue
		}
		details.CloudProvider = probe.Provider()
		if metadata != nil {
			details.CloudMetadata = *metadata
		}
		return
	}
}

// classify evaluates the classification rules in declared order,
// short-circuiting on the first match
func (d *Detector) classify(details *Details) string {
	for _, rule := range d.config.ClassificationRules {

		for _, pattern := range rule.Patterns.Hostname {
			if matchPattern(details.Hostname, pattern) {
				details.MatchedRules = append(details.MatchedRules, MatchedRule{
					Rule:    rule.Name,
					Kind:    "hostname",
					Pattern: pattern,
					Value:   details.Hostname,
				})
				return rule.Name
			}
		}

		if name, ok := d.matchEnvVars(rule, details); ok {
			return name
		}

		if name, ok := matchCloudTags(rule, details); ok {
			return name
		}
	}

	return DefaultEnvironment
}

func (d *Detector) matchEnvVars(rule Rule, details *Details) (string, bool) {
	for _, envPattern := range rule.Patterns.EnvironmentVars {
		key, expected, ok := splitPattern(envPattern)
		if !ok {
			continue
		}
		actual := d.getenv(key)
		details.EnvironmentVariables[key] = actual
		if actual == expected {
			details.MatchedRules = append(details.MatchedRules, MatchedRule{
				Rule:    rule.Name,
				Kind:    "environment_var",
				Pattern: envPattern,
				Value:   fmt.Sprintf("%v=%v", key, actual),
			})
			return rule.Name, true
		}
	}
	return "", false
}

func matchCloudTags(rule Rule, details *Details) (string, bool) {
	tags := details.CloudMetadata.Tags
	if len(tags) == 0 {
		return "", false
	}
	for _, tagPattern := range rule.Patterns.CloudTags {
		key, expected, ok := splitPattern(tagPattern)
		if !ok {
			continue
		}
		if actual, present := tags[key]; present && actual == expected {
			details.MatchedRules = append(details.MatchedRules, MatchedRule{
				Rule:    rule.Name,
				Kind:    "cloud_tag",
				Pattern: tagPattern,
				Value:   fmt.Sprintf("%v=%v", key, actual),
			})
			return rule.Name, true
		}
	}
	return "", false
}

// splitPattern splits a KEY=value pattern
func splitPattern(pattern string) (string, string, bool) {
	index := strings.Index(pattern, "=")
	if index < 0 {
		return "", "", false
	}
	return pattern[:index], pattern[index+1:], true
}

// matchPattern matches text against a glob-like pattern, case-insensitive.
// The * and ? wildcards are translated to an anchored regex.
func matchPattern(text, pattern string) bool {
	var builder strings.Builder
	builder.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			builder.WriteString(".*")
		case '?':
			builder.WriteString(".")
		default:
			builder.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	builder.WriteString("$")

	matched, err := regexp.MatchString("(?i)"+builder.String(), text)
	if err != nil {
		log.Warnf("invalid hostname pattern %v, err: %v", pattern, err)
		return false
	}
	return matched
}

// ManualOverride resolves the environment type when auto-detection is
// disabled: the explicit override variable first, then the legacy hostname
// substring check, then default.
func ManualOverride() (string, Details) {
	hostname, _ := os.Hostname()
	details := Details{Hostname: hostname}

	if override := common.Getenv("CHAOS_ENVIRONMENT", ""); override != "" {
		details.MatchedRules = append(details.MatchedRules, MatchedRule{
			Rule:    override,
			Kind:    "environment_var",
			Pattern: "CHAOS_ENVIRONMENT",
			Value:   override,
		})
		return override, details
	}

	lowered := strings.ToLower(hostname)
	for _, identifier := range prodIdentifiers {
		if strings.Contains(lowered, identifier) {
			details.MatchedRules = append(details.MatchedRules, MatchedRule{
				Rule:    "production",
				Kind:    "hostname",
				Pattern: identifier,
				Value:   hostname,
			})
			return "production", details
		}
	}

	return DefaultEnvironment, details
}
