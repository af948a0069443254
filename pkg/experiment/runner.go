package experiment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/cerrors"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
	"github.com/mayhemchaos/mayhem-go/pkg/utils/common"
	"github.com/sirupsen/logrus"
)

// DefaultGracePeriod bounds the wait for graceful process termination
// before the force-kill
const DefaultGracePeriod = 5 * time.Second

// RunningExperiment is one entry of the active-experiment registry.
// Entries are immutable, created by Start and destroyed by Stop.
type RunningExperiment struct {
	Type      types.ExperimentType
	Handle    Handle
	StartedAt time.Time
}

// Runner owns the running-experiment registry and guarantees that every
// recorded fault is reverted on Stop or EmergencyStop. The registry is
// written only by the lifecycle flow and read concurrently by the
// dashboard producer, hence the RWMutex.
type Runner struct {
	mu        sync.RWMutex
	injectors map[types.ExperimentType]Injector
	running   map[types.ExperimentType]RunningExperiment
	status    types.StatusSnapshot
	grace     time.Duration
}

// NewRunner returns a runner with no injectors registered
func NewRunner(grace time.Duration) *Runner {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Runner{
		injectors: map[types.ExperimentType]Injector{},
		running:   map[types.ExperimentType]RunningExperiment{},
		grace:     grace,
	}
}

// NewDefaultRunner returns a runner with the builtin injector set
func NewDefaultRunner(grace time.Duration) *Runner {
	runner := NewRunner(grace)
	runner.Register(NewCPUStressInjector())
	runner.Register(NewMemoryExhaustInjector())
	runner.Register(NewNetemInjector())
	return runner
}

// Register adds an injector to the dispatch table, keyed by its kind.
// Adding an experiment type means registering an implementation here.
func (r *Runner) Register(injector Injector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.injectors[injector.Kind()] = injector
}

// Start dispatches the request to the injector registered for its type
// and records the running fault. On injector failure nothing is recorded
// and the error propagates, there is nothing to roll back.
func (r *Runner) Start(ctx context.Context, request *types.ExperimentRequest) error {
	r.mu.Lock()
	injector, ok := r.injectors[request.Type]
	if !ok {
		r.mu.Unlock()
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeUnsupportedType,
			Reason:    fmt.Sprintf("no injector registered for experiment type %q", request.Type),
			Target:    request.Name,
		}
	}
	if _, active := r.running[request.Type]; active {
		r.mu.Unlock()
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeLifecycle,
			Reason:    fmt.Sprintf("an experiment of type %v is already running", request.Type),
			Target:    request.Name,
		}
	}
	// reserve the slot before releasing the lock so a concurrent Start of
	// the same type fails the duplicate check instead of overwriting the
	// handle recorded below
	r.running[request.Type] = RunningExperiment{
		Type:      request.Type,
		StartedAt: time.Now(),
	}
	r.mu.Unlock()

	// the injector start runs outside the lock, it may block on the
	// underlying system command
	handle, err := injector.Start(ctx, request)
	if err != nil {
		r.mu.Lock()
		delete(r.running, request.Type)
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[request.Type] = RunningExperiment{
		Type:      request.Type,
		Handle:    handle,
		StartedAt: time.Now(),
	}
	r.status = types.StatusSnapshot{
		Running:       true,
		Name:          request.Name,
		Type:          request.Type,
		TargetService: request.Target.Service,
		StartTime:     time.Now(),
		Duration:      request.Duration,
	}

	log.InfoWithValues("[Chaos]: Experiment started", logrus.Fields{
		"Experiment": request.Name,
		"Type":       request.Type,
		"Handle":     handle.Describe(),
	})
	return nil
}

// Stop reverses every recorded fault. Reversal is best-effort, one
// entry's failure never blocks attempting the rest, and the registry is
// cleared only after every reversal has been attempted.
func (r *Runner) Stop() map[types.ExperimentType]types.ExperimentResult {
	r.mu.Lock()
	entries := make([]RunningExperiment, 0, len(r.running))
	for _, entry := range r.running {
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	results := map[types.ExperimentType]types.ExperimentResult{}
	for _, entry := range entries {
		results[entry.Type] = r.revert(entry)
	}

	r.mu.Lock()
	r.running = map[types.ExperimentType]RunningExperiment{}
	r.status = types.StatusSnapshot{}
	r.mu.Unlock()

	return results
}

// EmergencyStop is the guaranteed-cleanup path for error and interrupt
// handlers. It is identical to Stop except that it is safe to call
// unconditionally: twice in a row, before Start completed, or with an
// empty registry it is an idempotent no-op.
func (r *Runner) EmergencyStop() map[types.ExperimentType]types.ExperimentResult {
	r.mu.RLock()
	active := len(r.running)
	r.mu.RUnlock()

	if active == 0 {
		return map[types.ExperimentType]types.ExperimentResult{}
	}

	log.Warn("[Abort]: Emergency stop initiated!")
	return r.Stop()
}

func (r *Runner) revert(entry RunningExperiment) types.ExperimentResult {
	r.mu.RLock()
	injector, ok := r.injectors[entry.Type]
	r.mu.RUnlock()
	if !ok {
		// the injector was registered at Start time, losing it would be
		// a programming error
		return types.ExperimentResult{
			Type:   entry.Type,
			Status: types.ResultFailed,
			Reason: "injector no longer registered",
		}
	}

	result := injector.Stop(entry.Handle, r.grace)
	if result.Status == types.ResultFailed {
		log.ErrorWithValues("[Cleanup]: Fault reversal failed", logrus.Fields{
			"Type":   entry.Type,
			"Reason": result.Reason,
		})
	} else {
		log.Infof("[Cleanup]: %v reverted with status %v", entry.Type, result.Status)
	}
	return result
}

// Running returns a copy of the active-experiment registry
func (r *Runner) Running() []RunningExperiment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]RunningExperiment, 0, len(r.running))
	for _, entry := range r.running {
		entries = append(entries, entry)
	}
	return entries
}

// Status returns the current experiment-status snapshot. The snapshot is
// replaced as a whole under the lock, readers never observe a torn update.
func (r *Runner) Status() types.StatusSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Execute runs the full lifecycle: start, interruptible wait for the
// experiment duration, stop. Cancellation at any point after Start routes
// to EmergencyStop, the slot is never left running.
func (r *Runner) Execute(ctx context.Context, request *types.ExperimentRequest) (map[types.ExperimentType]types.ExperimentResult, error) {
	if err := r.Start(ctx, request); err != nil {
		return nil, err
	}

	log.Infof("[Wait]: Experiment running for %v seconds", request.Duration)
	if err := common.WaitForDurationOrInterrupt(ctx, request.Duration); err != nil {
		log.Warnf("[Abort]: Experiment wait interrupted, err: %v", err)
		return r.EmergencyStop(), cerrors.Error{
			ErrorCode: cerrors.ErrorTypeLifecycle,
			Phase:     "Wait",
			Reason:    fmt.Sprintf("experiment interrupted: %v", err),
			Target:    request.Name,
		}
	}

	log.Info("[Chaos]: Stopping the experiment")
	return r.Stop(), nil
}
