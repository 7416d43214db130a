// Package engine implements the branch workflow state machines: the phase
// transition engine enforcing the plan's ordered phases, and the nested
// cycle transition engine active only inside the implementation phase. Both
// support strict forward transitions gated on deliverables, and forced
// overrides that bypass the gates but always leave an audit record.
package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
	"github.com/fyrsmithlabs/phasegate/internal/gate"
	"github.com/fyrsmithlabs/phasegate/internal/plan"
	"github.com/fyrsmithlabs/phasegate/internal/reconcile"
	"github.com/fyrsmithlabs/phasegate/internal/state"
)

const instrumentationName = "github.com/fyrsmithlabs/phasegate/internal/engine"

// Config configures the transition engines.
type Config struct {
	// ImplementationPhase names the phase that hosts iteration cycles.
	ImplementationPhase string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ImplementationPhase: "implementation",
	}
}

// Engine is the top-level phase state machine. It owns the nested cycle
// engine and invokes its reset logic on implementation-phase entry and exit,
// so the cycle engine never polls phase state.
type Engine struct {
	config     *Config
	plans      *plan.Store
	states     *state.Store
	gates      *gate.Engine
	reconciler *reconcile.Reconciler
	cycles     *CycleEngine
	logger     *zap.Logger

	// Telemetry
	tracer            trace.Tracer
	meter             metric.Meter
	transitionCounter metric.Int64Counter
	forcedCounter     metric.Int64Counter
}

// NewEngine creates the phase engine and its nested cycle engine.
func NewEngine(cfg *Config, plans *plan.Store, states *state.Store, gates *gate.Engine, reconciler *reconcile.Reconciler, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ImplementationPhase == "" {
		cfg.ImplementationPhase = DefaultConfig().ImplementationPhase
	}
	if plans == nil {
		return nil, errors.New("plan store is required")
	}
	if states == nil {
		return nil, errors.New("state store is required")
	}
	if gates == nil {
		return nil, errors.New("gate engine is required")
	}
	if reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:     cfg,
		plans:      plans,
		states:     states,
		gates:      gates,
		reconciler: reconciler,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}
	e.cycles = newCycleEngine(e)
	e.initMetrics()
	return e, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (e *Engine) initMetrics() {
	var err error

	e.transitionCounter, err = e.meter.Int64Counter(
		"phasegate.transitions_total",
		metric.WithDescription("Total number of phase and cycle transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		e.logger.Warn("failed to create transition counter", zap.Error(err))
	}

	e.forcedCounter, err = e.meter.Int64Counter(
		"phasegate.forced_transitions_total",
		metric.WithDescription("Total number of forced overrides"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		e.logger.Warn("failed to create forced counter", zap.Error(err))
	}
}

// countTransition increments the transition counter, split by kind and
// forced flag.
func (e *Engine) countTransition(ctx context.Context, kind string, forced bool) {
	if e.transitionCounter != nil {
		e.transitionCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", kind), attribute.Bool("forced", forced)))
	}
	if forced && e.forcedCounter != nil {
		e.forcedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// GetState returns the cached state for branch, transparently reconstructing
// it from the plan store and commit history on a cache miss. Two calls with
// no intervening mutation yield identical results and perform at most one
// reconstruction write.
func (e *Engine) GetState(ctx context.Context, branch string) (*state.BranchState, error) {
	ctx, span := e.tracer.Start(ctx, "engine.get_state")
	defer span.End()
	span.SetAttributes(attribute.String("branch", branch))

	st, err := e.states.Load(ctx, branch)
	if err == nil {
		return st, nil
	}
	var notFound *errdefs.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}
	return e.reconciler.Reconstruct(ctx, branch)
}

// EvaluateExit evaluates the exit gate of phase without transitioning.
func (e *Engine) EvaluateExit(ctx context.Context, phase string, issueID int) (*gate.Result, error) {
	return e.gates.EvaluateExit(ctx, phase, issueID)
}

// EvaluateEntry evaluates the entry gate of phase without transitioning.
func (e *Engine) EvaluateEntry(ctx context.Context, phase string, issueID int) (*gate.Result, error) {
	return e.gates.EvaluateEntry(ctx, phase, issueID)
}

// TransitionCycle advances the nested cycle machine one step forward.
func (e *Engine) TransitionCycle(ctx context.Context, branch string, toCycle int) (*state.BranchState, error) {
	return e.cycles.Transition(ctx, branch, toCycle)
}

// ForceCycleTransition jumps the nested cycle machine to any declared cycle
// with a mandatory audit trail.
func (e *Engine) ForceCycleTransition(ctx context.Context, branch string, toCycle int, skipReason, humanApproval string) (*state.BranchState, error) {
	return e.cycles.ForceTransition(ctx, branch, toCycle, skipReason, humanApproval)
}

// requireAuditFields validates the two mandatory fields of a forced call.
func requireAuditFields(skipReason, humanApproval string) error {
	if skipReason == "" {
		return errdefs.NewValidationError("forced transition requires a non-empty skip reason",
			"pass a justification describing why the gates are being bypassed")
	}
	if humanApproval == "" {
		return errdefs.NewValidationError("forced transition requires a non-empty human approval",
			"pass the name or handle of the human who approved the override")
	}
	return nil
}
