package types

import (
	"fmt"
	"time"
)

// ExperimentType identifies the fault-injection mechanism of an experiment
type ExperimentType string

const (
	CPUStress      ExperimentType = "cpu_stress"
	MemoryExhaust  ExperimentType = "memory_exhaust"
	NetworkLatency ExperimentType = "network_latency"
)

// ResultStatus is the terminal state of a single fault reversal
type ResultStatus string

const (
	ResultCompleted   ResultStatus = "completed"
	ResultForceKilled ResultStatus = "force_killed"
	ResultFailed      ResultStatus = "failed"
)

// Target holds the blast radius of an experiment
type Target struct {
	Environment string   `yaml:"environment"`
	Service     string   `yaml:"service"`
	Hosts       []string `yaml:"hosts,omitempty"`
}

// ExperimentRequest is the experiment definition, consumed read-only.
// The yaml shape matches the experiment documents produced by the
// template command.
type ExperimentRequest struct {
	Name        string         `yaml:"name"`
	Type        ExperimentType `yaml:"type"`
	Description string         `yaml:"description,omitempty"`
	Target      Target         `yaml:"target"`

	// Duration of the fault in seconds, must be > 0
	Duration int `yaml:"duration"`

	// cpu_stress
	Intensity int `yaml:"intensity,omitempty"`
	// memory_exhaust
	MemoryMB int `yaml:"memory_mb,omitempty"`
	// network_latency
	Interface string `yaml:"interface,omitempty"`
	LatencyMs int    `yaml:"latency_ms,omitempty"`

	SuccessCriteria []string `yaml:"success_criteria,omitempty"`
}

// Validate checks the structural sanity of a request before it reaches
// the safety evaluator
func (r *ExperimentRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("experiment name can't be empty")
	}
	if r.Type == "" {
		return fmt.Errorf("experiment type can't be empty")
	}
	if r.Duration <= 0 {
		return fmt.Errorf("experiment duration must be positive, got %v", r.Duration)
	}
	return nil
}

// ExperimentResult records the outcome of one injector reversal
type ExperimentResult struct {
	Type   ExperimentType `json:"type"`
	Status ResultStatus   `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

// StatusSnapshot is the read-only view of the running experiment shared
// with the dashboard producer. It is replaced atomically as a whole so
// readers never observe a torn update.
type StatusSnapshot struct {
	Running       bool           `json:"running"`
	Name          string         `json:"name,omitempty"`
	Type          ExperimentType `json:"type,omitempty"`
	TargetService string         `json:"target_service,omitempty"`
	StartTime     time.Time      `json:"start_time,omitempty"`
	Duration      int            `json:"duration,omitempty"`
}
