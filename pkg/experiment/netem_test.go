package experiment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

func TestNetemStart(t *testing.T) {
	tests := []struct {
		name     string
		request  *types.ExperimentRequest
		expected string
	}{
		{
			name:     "Defaults applied",
			request:  &types.ExperimentRequest{Name: "latency", Type: types.NetworkLatency, Duration: 60},
			expected: "tc qdisc add dev eth0 root netem delay 100ms",
		},
		{
			name: "Explicit interface and latency",
			request: &types.ExperimentRequest{
				Name: "latency", Type: types.NetworkLatency, Duration: 60,
				Interface: "ens5", LatencyMs: 250,
			},
			expected: "tc qdisc add dev ens5 root netem delay 250ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var commands []string
			injector := &NetemInjector{runCommand: func(command string) (string, error) {
				commands = append(commands, command)
				return "", nil
			}}

			handle, err := injector.Start(context.Background(), tt.request)
			if err != nil {
				t.Fatalf("Start() returned error: %v", err)
			}
			if len(commands) != 1 || commands[0] != tt.expected {
				t.Errorf("commands = %v, want [%v]", commands, tt.expected)
			}
			ruleHandle, ok := handle.(*RuleHandle)
			if !ok {
				t.Fatalf("handle type = %T, want *RuleHandle", handle)
			}
			if tt.request.Interface != "" && ruleHandle.Interface != tt.request.Interface {
				t.Errorf("handle interface = %v, want %v", ruleHandle.Interface, tt.request.Interface)
			}
		})
	}
}

func TestNetemStartFailureAttemptsRevert(t *testing.T) {
	var commands []string
	injector := &NetemInjector{runCommand: func(command string) (string, error) {
		commands = append(commands, command)
		if len(commands) == 1 {
			return "RTNETLINK answers: Operation not permitted", fmt.Errorf("exit status 2")
		}
		return "", nil
	}}

	_, err := injector.Start(context.Background(), &types.ExperimentRequest{
		Name: "latency", Type: types.NetworkLatency, Duration: 60,
	})
	if err == nil {
		t.Fatal("expected Start() to fail")
	}
	if len(commands) != 2 {
		t.Fatalf("expected the inverse command after a failed apply, got %v", commands)
	}
	if commands[1] != "tc qdisc del dev eth0 root" {
		t.Errorf("revert command = %v", commands[1])
	}
}

func TestNetemStop(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		err      error
		expected types.ResultStatus
	}{
		{"Rule removed", "", nil, types.ResultCompleted},
		{"Qdisc already absent (handle of zero)", qdiscNotFound, fmt.Errorf("exit status 2"), types.ResultCompleted},
		{"Qdisc already absent (no such file)", qdiscNoFileFound, fmt.Errorf("exit status 2"), types.ResultCompleted},
		{"Removal failed", "RTNETLINK answers: Operation not permitted", fmt.Errorf("exit status 2"), types.ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			injector := &NetemInjector{runCommand: func(command string) (string, error) {
				return tt.out, tt.err
			}}

			result := injector.Stop(&RuleHandle{Interface: "eth0"}, time.Second)
			if result.Status != tt.expected {
				t.Errorf("Stop() status = %v, want %v", result.Status, tt.expected)
			}
		})
	}
}

func TestNetemStopWrongHandle(t *testing.T) {
	injector := NewNetemInjector()
	result := injector.Stop(&fakeHandle{id: "bogus"}, time.Second)
	if result.Status != types.ResultFailed {
		t.Errorf("Stop() with foreign handle status = %v, want %v", result.Status, types.ResultFailed)
	}
}
