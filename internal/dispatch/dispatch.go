// Package dispatch runs one metered function invocation:
//
//	RESOLVING -> VALIDATING -> CHARGING -> EXECUTING -> RECORDING -> DONE
//
// Any of the first four states may end in ERROR. Points charged before
// EXECUTING are kept when the provider call fails, and the per-user ledger
// lock is released before the provider is called.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alecgard/jeton/internal/audit"
	"github.com/alecgard/jeton/internal/catalog"
	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/processor"
	"github.com/alecgard/jeton/internal/provider"
)

// State is a step of the invocation state machine.
type State int

const (
	StateResolving State = iota
	StateValidating
	StateCharging
	StateExecuting
	StateRecording
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "RESOLVING"
	case StateValidating:
		return "VALIDATING"
	case StateCharging:
		return "CHARGING"
	case StateExecuting:
		return "EXECUTING"
	case StateRecording:
		return "RECORDING"
	case StateDone:
		return "DONE"
	case StateError:
		return "ERROR"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Resolver finds the processor for a function name.
type Resolver interface {
	Resolve(name string) (processor.Processor, error)
	IsAvailable(name string) bool
}

// Charger deducts points atomically and returns the new balance.
type Charger interface {
	Deduct(ctx context.Context, userID string, amount int64, reason, function string) (int64, error)
}

// Recorder appends usage records. It must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// MetricsRecorder is an optional interface for recording dispatch metrics.
type MetricsRecorder interface {
	IncDispatch(function, outcome string)
	ObserveProcessorDuration(function string, seconds float64)
	IncProviderError(provider, class string)
}

// Outcome labels used for metrics.
const (
	OutcomeSuccess            = "success"
	OutcomeUnknownFunction    = "unknown_function"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeInsufficientPoints = "insufficient_points"
	OutcomeProcessingFailed   = "processing_failed"
	OutcomeError              = "error"
)

// Result is a successful invocation.
type Result struct {
	Function        string `json:"function"`
	Output          string `json:"output"`
	PointsCharged   int64  `json:"points_charged"`
	Balance         int64  `json:"balance"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// Dispatcher composes the registry, ledger and audit log for each request.
type Dispatcher struct {
	resolver Resolver
	charger  Charger
	recorder Recorder
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// New creates a Dispatcher. A nil logger uses slog.Default().
func New(resolver Resolver, charger Charger, recorder Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		resolver: resolver,
		charger:  charger,
		recorder: recorder,
		logger:   logger,
	}
}

// SetMetrics sets the optional metrics recorder.
func (d *Dispatcher) SetMetrics(m MetricsRecorder) {
	d.metrics = m
}

// Invoke runs function for userID on input. Errors are returned as produced
// by the failing component: catalog.ErrUnknownFunction,
// processor.ErrInvalidInput, ledger.ErrInsufficientPoints (as
// *ledger.InsufficientPointsError), *processor.ProcessingError, or a storage
// error from the ledger.
func (d *Dispatcher) Invoke(ctx context.Context, userID, function, input string) (*Result, error) {
	log := d.logger.With("user_id", userID, "function", function)
	state := StateResolving

	fail := func(outcome string, err error) (*Result, error) {
		log.Info("invocation failed", "state", state.String(), "error", err)
		d.count(function, outcome)
		return nil, err
	}

	proc, err := d.resolver.Resolve(function)
	if err != nil {
		return fail(OutcomeUnknownFunction, err)
	}
	if !d.resolver.IsAvailable(function) {
		return fail(OutcomeUnknownFunction, fmt.Errorf("%w: %s is disabled", catalog.ErrUnknownFunction, function))
	}

	state = StateValidating
	if !proc.ValidateInput(input) {
		return fail(OutcomeInvalidInput, fmt.Errorf("%w for %s", processor.ErrInvalidInput, function))
	}

	state = StateCharging
	cost, err := proc.RequiredPoints()
	if err != nil {
		return fail(OutcomeUnknownFunction, err)
	}
	balance, err := d.charger.Deduct(ctx, userID, cost, "use "+function, function)
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, ledger.ErrInsufficientPoints) {
			outcome = OutcomeInsufficientPoints
		}
		return fail(outcome, err)
	}

	output, elapsedMs, procErr := processor.Timed(ctx, proc, input)
	if d.metrics != nil {
		d.metrics.ObserveProcessorDuration(function, float64(elapsedMs)/1000)
	}
	if procErr != nil {
		d.countProviderError(procErr)
		var pe *processor.ProcessingError
		if !errors.As(procErr, &pe) {
			procErr = &processor.ProcessingError{Function: function, Err: procErr}
		}
	}

	entry := audit.Entry{
		UserID:          userID,
		Function:        function,
		Input:           input,
		PointsConsumed:  cost,
		ExecutionTimeMs: elapsedMs,
		Status:          audit.StatusSuccess,
	}
	if procErr != nil {
		entry.Status = audit.StatusFailed
		entry.ErrorMessage = procErr.Error()
	} else {
		entry.Output = &output
	}
	d.recorder.Record(ctx, entry)

	if procErr != nil {
		log.Warn("processing failed after charge", "state", StateError.String(), "points", cost, "balance", balance, "error", procErr)
		d.count(function, OutcomeProcessingFailed)
		return nil, procErr
	}

	log.Info("invocation succeeded", "state", StateDone.String(), "points", cost, "balance", balance, "execution_time_ms", elapsedMs)
	d.count(function, OutcomeSuccess)
	return &Result{
		Function:        function,
		Output:          output,
		PointsCharged:   cost,
		Balance:         balance,
		ExecutionTimeMs: elapsedMs,
	}, nil
}

func (d *Dispatcher) count(function, outcome string) {
	if d.metrics != nil {
		d.metrics.IncDispatch(function, outcome)
	}
}

// countProviderError labels a processor failure with the backend that
// produced it. Failures raised before any provider call count as "none".
func (d *Dispatcher) countProviderError(err error) {
	if d.metrics == nil {
		return
	}
	name := "none"
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		name = pe.Provider
	}
	d.metrics.IncProviderError(name, provider.Classify(err))
}
