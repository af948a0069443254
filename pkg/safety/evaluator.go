package safety

import (
	"fmt"

	"github.com/mayhemchaos/mayhem-go/pkg/discovery"
	"github.com/mayhemchaos/mayhem-go/pkg/environment"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
	"github.com/sirupsen/logrus"
)

// Evaluator combines environment classification, the policy store and the
// service protection registry into a single authorization decision
type Evaluator struct {
	Config   *Config
	Cache    *environment.Cache
	Detector *environment.Detector
	Sources  []discovery.Source
	Audit    *AuditLogger
}

// NewEvaluator wires the evaluator from config with a fresh environment
// cache and the enabled discovery sources
func NewEvaluator(config *Config) *Evaluator {
	evaluator := &Evaluator{
		Config:   config,
		Cache:    environment.NewCache(),
		Detector: environment.NewDetector(config.EnvironmentDetection),
		Sources:  discovery.SourcesFromConfig(config.ServiceDiscovery),
	}
	if config.Audit.Enabled {
		evaluator.Audit = NewAuditLogger(config.Audit)
	}
	return evaluator
}

// resolveEnvironment returns the cached environment classification,
// detecting on first use. When auto-detection is disabled it falls back
// to the manual override chain.
func (e *Evaluator) resolveEnvironment() (string, environment.Details) {
	return e.Cache.Resolve(func() (string, environment.Details) {
		if e.Config.Settings.AutoDetectEnvironment {
			return e.Detector.Detect()
		}
		return environment.ManualOverride()
	})
}

// Evaluate checks an experiment request against the resolved environment
// policy. All checks run, violations accumulate, so the caller always
// sees the complete violation set. Zero violations means authorized.
func (e *Evaluator) Evaluate(request *types.ExperimentRequest) (bool, []Violation) {
	envType, _ := e.resolveEnvironment()
	policy, policySource := e.Config.PolicyFor(envType)

	log.InfoWithValues("[Safety]: Evaluating experiment request", logrus.Fields{
		"Experiment":  request.Name,
		"Type":        request.Type,
		"Environment": envType,
		"Policy":      policySource,
	})

	var violations []Violation

	if !policy.Enabled {
		violations = append(violations, Violation{
			Kind:    ViolationEnvironmentDisabled,
			Message: fmt.Sprintf("chaos experiments are disabled in the %v environment", envType),
			Details: map[string]interface{}{"environment": envType, "policy": policySource},
		})
	}

	if !policy.AllowsType(request.Type) {
		violations = append(violations, Violation{
			Kind:    ViolationExperimentTypeForbidden,
			Message: fmt.Sprintf("experiment type %v is not allowed in the %v environment", request.Type, envType),
			Details: map[string]interface{}{"type": string(request.Type), "allowed": policy.AllowedExperimentTypes},
		})
	}

	if request.Duration > policy.MaxDuration {
		violations = append(violations, Violation{
			Kind:    ViolationDurationExceeded,
			Message: fmt.Sprintf("duration %vs exceeds the policy maximum of %vs", request.Duration, policy.MaxDuration),
			Details: map[string]interface{}{"duration": request.Duration, "max_duration": policy.MaxDuration},
		})
	}

	registry := discovery.NewRegistry(policy.ProtectedServices, e.Sources...)
	if request.Target.Service != "" && registry.IsProtected(request.Target.Service) {
		violations = append(violations, Violation{
			Kind:    ViolationProtectedService,
			Message: fmt.Sprintf("service %v is protected and can't be targeted", request.Target.Service),
			Details: map[string]interface{}{"service": request.Target.Service},
		})
	}

	violations = append(violations, e.checkParameters(request)...)

	authorized := len(violations) == 0

	if e.Audit != nil {
		// best-effort, a failed audit write never changes the decision
		e.Audit.Record(request, envType, authorized, violations)
	}

	return authorized, violations
}

// checkParameters runs the type-specific ceilings from experiment_safety
func (e *Evaluator) checkParameters(request *types.ExperimentRequest) []Violation {
	var violations []Violation
	limits := e.Config.limitsFor(request.Type)

	switch request.Type {
	case types.CPUStress:
		if limits.MaxIntensity > 0 && request.Intensity > limits.MaxIntensity {
			violations = append(violations, Violation{
				Kind:    ViolationCPUIntensityExceeded,
				Message: fmt.Sprintf("cpu intensity %v%% exceeds the maximum of %v%%", request.Intensity, limits.MaxIntensity),
				Details: map[string]interface{}{"intensity": request.Intensity, "max_intensity": limits.MaxIntensity},
			})
		}

	case types.MemoryExhaust:
		maxMemory := limits.MaxMemoryMB
		if maxMemory == 0 {
			maxMemory = defaultMemorySanityMB
		}
		if request.MemoryMB > maxMemory {
			violations = append(violations, Violation{
				Kind:    ViolationMemoryAmountExcessive,
				Message: fmt.Sprintf("memory amount %vMB exceeds the sanity ceiling of %vMB", request.MemoryMB, maxMemory),
				Details: map[string]interface{}{"memory_mb": request.MemoryMB, "max_memory_mb": maxMemory},
			})
		}

	case types.NetworkLatency:
		if limits.MaxLatencyMs > 0 && request.LatencyMs > limits.MaxLatencyMs {
			violations = append(violations, Violation{
				Kind:    ViolationNetworkLatencyExceeded,
				Message: fmt.Sprintf("latency %vms exceeds the maximum of %vms", request.LatencyMs, limits.MaxLatencyMs),
				Details: map[string]interface{}{"latency_ms": request.LatencyMs, "max_latency_ms": limits.MaxLatencyMs},
			})
		}
		if len(limits.AllowedInterfaces) > 0 && !containsString(limits.AllowedInterfaces, request.Interface) {
			violations = append(violations, Violation{
				Kind:    ViolationInterfaceNotAllowed,
				Message: fmt.Sprintf("interface %v is not in the allowed interface list", request.Interface),
				Details: map[string]interface{}{"interface": request.Interface, "allowed_interfaces": limits.AllowedInterfaces},
			})
		}
	}

	return violations
}

// EnvironmentSummary is a read-only diagnostic projection of the resolved
// environment and its policy
type EnvironmentSummary struct {
	EnvironmentType string              `json:"environment_type"`
	Details         environment.Details `json:"details"`
	Policy          EnvironmentPolicy   `json:"policy"`
	PolicySource    string              `json:"policy_source"`
}

// EnvironmentSummary resolves (and caches) the environment and reports it
// together with the policy that would govern a request
func (e *Evaluator) EnvironmentSummary() EnvironmentSummary {
	envType, details := e.resolveEnvironment()
	policy, policySource := e.Config.PolicyFor(envType)
	return EnvironmentSummary{
		EnvironmentType: envType,
		Details:         details,
		Policy:          policy,
		PolicySource:    policySource,
	}
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
