// Package experiment owns the running-experiment registry and the fault
// injectors. The central property of the whole framework lives here: no
// destructive external state may remain active after Stop or
// EmergencyStop returns.
package experiment

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

// Handle is the opaque reference to a running fault. It is a small
// tagged union, process-based faults carry the spawned process, rule-based
// faults carry the system state that must be reverted.
type Handle interface {
	Describe() string
}

// ProcessHandle references a spawned stress process
type ProcessHandle struct {
	Cmd *exec.Cmd
}

func (h *ProcessHandle) Describe() string {
	if h.Cmd == nil || h.Cmd.Process == nil {
		return "process (not started)"
	}
	return fmt.Sprintf("process pid %v", h.Cmd.Process.Pid)
}

// RuleHandle references an inserted traffic-shaping rule
type RuleHandle struct {
	Interface string
}

func (h *RuleHandle) Describe() string {
	return fmt.Sprintf("netem rule on %v", h.Interface)
}

// Injector starts and reverses one kind of disruptive action. Stop must
// be best-effort and must always attempt the reversal, its result reports
// whether the fault ended cleanly, had to be force-killed, or the
// reversal itself failed.
type Injector interface {
	Kind() types.ExperimentType
	Start(ctx context.Context, request *types.ExperimentRequest) (Handle, error)
	Stop(handle Handle, grace time.Duration) types.ExperimentResult
}
