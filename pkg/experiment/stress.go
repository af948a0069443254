package experiment

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/cerrors"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/math"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

const processAlreadyFinished = "os: process already finished"

// StressInjector spawns a stress-ng process as the disruptive action.
// The same implementation backs cpu_stress and memory_exhaust, they only
// differ in the stressor arguments.
type StressInjector struct {
	kind     types.ExperimentType
	stressor func(request *types.ExperimentRequest) string

	// runCommand is overridable for tests
	runCommand func(ctx context.Context, command string) (Handle, error)
}

// NewCPUStressInjector stresses one cpu at the requested load percentage
func NewCPUStressInjector() *StressInjector {
	return newStressInjector(types.CPUStress, func(request *types.ExperimentRequest) string {
		intensity := request.Intensity
		if intensity == 0 {
			intensity = 80
		}
		// stress-ng caps cpu load at 100 percent
		intensity = math.Minimum(intensity, 100)
		return fmt.Sprintf("stress-ng --cpu 1 --cpu-load %v --timeout %vs", intensity, request.Duration)
	})
}

// NewMemoryExhaustInjector consumes the requested amount of memory
func NewMemoryExhaustInjector() *StressInjector {
	return newStressInjector(types.MemoryExhaust, func(request *types.ExperimentRequest) string {
		memoryMB := request.MemoryMB
		if memoryMB == 0 {
			memoryMB = 1024
		}
		return fmt.Sprintf("stress-ng --vm 1 --vm-bytes %vM --timeout %vs", memoryMB, request.Duration)
	})
}

func newStressInjector(kind types.ExperimentType, stressor func(*types.ExperimentRequest) string) *StressInjector {
	return &StressInjector{
		kind:       kind,
		stressor:   stressor,
		runCommand: startShellCommand,
	}
}

func (i *StressInjector) Kind() types.ExperimentType {
	return i.kind
}

// Start launches the stress process. On failure nothing is left behind,
// there is no partial state to roll back.
func (i *StressInjector) Start(ctx context.Context, request *types.ExperimentRequest) (Handle, error) {
	command := i.stressor(request)
	log.Infof("[Chaos]: starting process: %v", command)

	handle, err := i.runCommand(ctx, command)
	if err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeChaosInject,
			Reason:    fmt.Sprintf("fail to start the stress process, err: %v", err),
			Target:    string(i.kind),
		}
	}
	return handle, nil
}

// Stop requests graceful termination and waits up to the grace period,
// force-killing the process if it is still alive afterwards
func (i *StressInjector) Stop(handle Handle, grace time.Duration) types.ExperimentResult {
	processHandle, ok := handle.(*ProcessHandle)
	if !ok || processHandle.Cmd == nil || processHandle.Cmd.Process == nil {
		return types.ExperimentResult{
			Type:   i.kind,
			Status: types.ResultFailed,
			Reason: "no process handle recorded",
		}
	}
	cmd := processHandle.Cmd

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if strings.Contains(err.Error(), processAlreadyFinished) {
			return types.ExperimentResult{Type: i.kind, Status: types.ResultCompleted}
		}
		return types.ExperimentResult{
			Type:   i.kind,
			Status: types.ResultFailed,
			Reason: fmt.Sprintf("fail to signal the stress process, err: %v", err),
		}
	}

	// channel to check the completion of the stress process
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		return types.ExperimentResult{Type: i.kind, Status: types.ResultCompleted}
	case <-time.After(grace):
		log.Warnf("[Cleanup]: the %v process survived the %v grace period, killing it", i.kind, grace)
		if err := cmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), processAlreadyFinished) {
			return types.ExperimentResult{
				Type:   i.kind,
				Status: types.ResultFailed,
				Reason: fmt.Sprintf("fail to kill the stress process, err: %v", err),
			}
		}
		<-done
		return types.ExperimentResult{Type: i.kind, Status: types.ResultForceKilled}
	}
}

// startShellCommand starts the command through the shell and returns the
// process handle without waiting for completion. The process is not bound
// to the context, termination is owned by Stop so the graceful reversal
// path also runs on cancellation.
func startShellCommand(_ context.Context, command string) (Handle, error) {
	cmd := exec.Command("/bin/bash", "-c", command)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &ProcessHandle{Cmd: cmd}, nil
}
