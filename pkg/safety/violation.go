package safety

// ViolationKind classifies one reason an experiment request is denied
type ViolationKind string

const (
	ViolationEnvironmentDisabled     ViolationKind = "environment_disabled"
	ViolationExperimentTypeForbidden ViolationKind = "experiment_type_forbidden"
	ViolationDurationExceeded        ViolationKind = "duration_exceeded"
	ViolationProtectedService        ViolationKind = "protected_service"
	ViolationCPUIntensityExceeded    ViolationKind = "cpu_intensity_exceeded"
	ViolationMemoryAmountExcessive   ViolationKind = "memory_amount_excessive"
	ViolationNetworkLatencyExceeded  ViolationKind = "network_latency_exceeded"
	ViolationInterfaceNotAllowed     ViolationKind = "interface_not_allowed"
)

// Violation is a normal, enumerable decision output, not an error. A
// request with zero violations is authorized.
type Violation struct {
	Kind    ViolationKind          `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HasViolation reports whether the set contains a violation of the kind
func HasViolation(violations []Violation, kind ViolationKind) bool {
	for _, violation := range violations {
		if violation.Kind == kind {
			return true
		}
	}
	return false
}
