package experiment

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/cerrors"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

const (
	qdiscNotFound    = "Cannot delete qdisc with handle of zero"
	qdiscNoFileFound = "RTNETLINK answers: No such file or directory"
)

// NetemInjector inserts a netem delay qdisc on a network interface. The
// fault is host state rather than a process, so reversal issues the exact
// inverse tc command.
type NetemInjector struct {
	// runCommand is overridable for tests
	runCommand func(command string) (string, error)
}

func NewNetemInjector() *NetemInjector {
	return &NetemInjector{runCommand: runShellCommand}
}

func (i *NetemInjector) Kind() types.ExperimentType {
	return types.NetworkLatency
}

// Start adds the delay qdisc. A failed apply may still have left a rule
// behind, so the inverse command is attempted before the error is
// returned and no handle is recorded.
func (i *NetemInjector) Start(_ context.Context, request *types.ExperimentRequest) (Handle, error) {
	networkInterface := request.Interface
	if networkInterface == "" {
		networkInterface = "eth0"
	}
	latency := request.LatencyMs
	if latency == 0 {
		latency = 100
	}

	tc := fmt.Sprintf("tc qdisc add dev %v root netem delay %vms", networkInterface, latency)
	log.Infof("[Chaos]: %v", tc)

	if out, err := i.runCommand(tc); err != nil {
		if revertOut, revertErr := i.runCommand(removeCommand(networkInterface)); revertErr != nil && !qdiscAbsent(revertOut) {
			log.Warnf("unable to clear partially applied qdisc on %v, err: %v", networkInterface, revertErr)
		}
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeChaosInject,
			Reason:    fmt.Sprintf("fail to apply the netem rule, err: %v, out: %v", err, strings.TrimSpace(out)),
			Target:    networkInterface,
		}
	}

	return &RuleHandle{Interface: networkInterface}, nil
}

// Stop removes the qdisc. An already-removed qdisc counts as reverted.
func (i *NetemInjector) Stop(handle Handle, _ time.Duration) types.ExperimentResult {
	ruleHandle, ok := handle.(*RuleHandle)
	if !ok {
		return types.ExperimentResult{
			Type:   types.NetworkLatency,
			Status: types.ResultFailed,
			Reason: "no rule handle recorded",
		}
	}

	tc := removeCommand(ruleHandle.Interface)
	log.Infof("[Cleanup]: %v", tc)

	if out, err := i.runCommand(tc); err != nil && !qdiscAbsent(out) {
		return types.ExperimentResult{
			Type:   types.NetworkLatency,
			Status: types.ResultFailed,
			Reason: fmt.Sprintf("fail to remove the netem rule, err: %v, out: %v", err, strings.TrimSpace(out)),
		}
	}

	return types.ExperimentResult{Type: types.NetworkLatency, Status: types.ResultCompleted}
}

func removeCommand(networkInterface string) string {
	return fmt.Sprintf("tc qdisc del dev %v root", networkInterface)
}

// qdiscAbsent recognizes the tc outputs that mean there is nothing left
// to remove
func qdiscAbsent(out string) bool {
	return strings.Contains(out, qdiscNotFound) || strings.Contains(out, qdiscNoFileFound)
}

// runShellCommand runs the command through the shell and returns its
// combined output
func runShellCommand(command string) (string, error) {
	cmd := exec.Command("/bin/bash", "-c", command)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
