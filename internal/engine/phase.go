package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
	"github.com/fyrsmithlabs/phasegate/internal/gate"
	"github.com/fyrsmithlabs/phasegate/internal/plan"
	"github.com/fyrsmithlabs/phasegate/internal/state"
)

// TransitionResult is the outcome of a successful phase transition: the
// persisted state plus any non-blocking entry-gate warnings for the target
// phase.
type TransitionResult struct {
	State *state.BranchState
	// EntryWarnings are failing entry-gate checks of the target phase. They
	// never block: a consuming phase is not held hostage by a producing
	// phase's incompleteness.
	EntryWarnings []gate.CheckResult
}

// Transition moves branch to toPhase, enforcing strict forward-one-step
// ordering and the current phase's exit gate. On a refusal the caller
// receives the full list of failing deliverables and the forced override
// path.
func (e *Engine) Transition(ctx context.Context, branch, toPhase string) (*TransitionResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.transition")
	defer span.End()
	span.SetAttributes(attribute.String("branch", branch), attribute.String("to_phase", toPhase))

	st, err := e.GetState(ctx, branch)
	if err != nil {
		return nil, err
	}
	p, err := e.plans.Load(ctx, st.IssueID)
	if err != nil {
		return nil, err
	}

	if err := validateForwardStep(p, st.CurrentPhase, toPhase); err != nil {
		return nil, err
	}

	exitResult, err := e.gates.EvaluateExit(ctx, st.CurrentPhase, st.IssueID)
	if err != nil {
		return nil, err
	}
	if !exitResult.Passed() {
		return nil, &errdefs.GateFailure{
			Gate:     exitResult.Gate,
			Items:    exitResult.FailedItems(),
			Override: fmt.Sprintf("force the transition to %q with a skip reason and human approval", toPhase),
		}
	}

	if toPhase == e.config.ImplementationPhase {
		if err := e.validateImplementationEntry(p, st); err != nil {
			return nil, err
		}
	}

	entryResult, err := e.gates.EvaluateEntry(ctx, toPhase, st.IssueID)
	if err != nil {
		return nil, err
	}
	warnings := entryResult.Failed()
	if len(warnings) > 0 {
		e.logger.Warn("entry gate incomplete for target phase",
			zap.String("branch", branch),
			zap.String("phase", toPhase),
			zap.Strings("deliverables", entryResult.FailedIDs()))
	}

	fromPhase := st.CurrentPhase
	e.applyPhaseChange(st, p, toPhase)
	st.PhaseHistory = append(st.PhaseHistory, state.PhaseTransitionRecord{
		FromPhase: fromPhase,
		ToPhase:   toPhase,
		Timestamp: time.Now().UTC(),
	})

	if err := e.states.Save(ctx, st); err != nil {
		return nil, err
	}
	e.countTransition(ctx, "phase", false)
	e.logger.Info("phase transition",
		zap.String("branch", branch),
		zap.String("from", fromPhase),
		zap.String("to", toPhase))
	return &TransitionResult{State: st, EntryWarnings: warnings}, nil
}

// ForceTransition moves branch to any phase of the plan, bypassing ordering
// and gate blocking. Both audit fields are mandatory; the gates are still
// evaluated so the record names exactly which gate identifiers were
// bypassed.
func (e *Engine) ForceTransition(ctx context.Context, branch, toPhase, skipReason, humanApproval string) (*TransitionResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.force_transition")
	defer span.End()
	span.SetAttributes(attribute.String("branch", branch), attribute.String("to_phase", toPhase))

	if err := requireAuditFields(skipReason, humanApproval); err != nil {
		return nil, err
	}

	st, err := e.GetState(ctx, branch)
	if err != nil {
		return nil, err
	}
	p, err := e.plans.Load(ctx, st.IssueID)
	if err != nil {
		return nil, err
	}

	if p.PhaseIndex(toPhase) < 0 {
		return nil, unknownPhaseError(p, toPhase)
	}
	if toPhase == st.CurrentPhase {
		return nil, errdefs.Validationf("branch %q is already in phase %q", branch, toPhase)
	}

	// The gates are bypassed, not skipped silently: evaluate them anyway so
	// the audit record and the warning name everything that would have
	// blocked.
	exitResult, err := e.gates.EvaluateExit(ctx, st.CurrentPhase, st.IssueID)
	if err != nil {
		return nil, err
	}
	skippedGates := exitResult.FailedIDs()
	if len(skippedGates) > 0 {
		e.logger.Warn("forced transition bypassed exit gates",
			zap.String("branch", branch),
			zap.String("from", st.CurrentPhase),
			zap.String("to", toPhase),
			zap.Strings("skipped_gates", skippedGates),
			zap.String("skip_reason", skipReason),
			zap.String("human_approval", humanApproval))
	}

	entryResult, err := e.gates.EvaluateEntry(ctx, toPhase, st.IssueID)
	if err != nil {
		return nil, err
	}
	warnings := entryResult.Failed()
	if len(warnings) > 0 {
		e.logger.Warn("entry gate incomplete for target phase",
			zap.String("branch", branch),
			zap.String("phase", toPhase),
			zap.Strings("deliverables", entryResult.FailedIDs()))
	}

	fromPhase := st.CurrentPhase
	e.applyPhaseChange(st, p, toPhase)
	st.PhaseHistory = append(st.PhaseHistory, state.PhaseTransitionRecord{
		FromPhase:     fromPhase,
		ToPhase:       toPhase,
		Timestamp:     time.Now().UTC(),
		Forced:        true,
		SkipReason:    skipReason,
		HumanApproval: humanApproval,
		SkippedGates:  skippedGates,
	})

	if err := e.states.Save(ctx, st); err != nil {
		return nil, err
	}
	e.countTransition(ctx, "phase", true)
	e.logger.Info("forced phase transition",
		zap.String("branch", branch),
		zap.String("from", fromPhase),
		zap.String("to", toPhase),
		zap.String("skip_reason", skipReason))
	return &TransitionResult{State: st, EntryWarnings: warnings}, nil
}

// applyPhaseChange mutates the state for the phase move, invoking the cycle
// reset logic on implementation entry and exit.
func (e *Engine) applyPhaseChange(st *state.BranchState, p *plan.ProjectPlan, toPhase string) {
	impl := e.config.ImplementationPhase
	if st.CurrentPhase == impl && toPhase != impl {
		e.cycles.leaveImplementation(st)
	}
	st.CurrentPhase = toPhase
	if toPhase == impl {
		e.cycles.enterImplementation(st, p)
	}
}

// validateImplementationEntry enforces the two implementation-phase entry
// rules: the plan must declare at least one cycle, and a re-entry with all
// declared cycles already consumed needs new planning first. Both are
// blocking errors distinct from a generic exit-gate failure.
func (e *Engine) validateImplementationEntry(p *plan.ProjectPlan, st *state.BranchState) error {
	total := p.TotalCycles()
	if total < 1 {
		return errdefs.NewValidationError(
			fmt.Sprintf("plan for issue %d declares no implementation cycles", p.IssueID),
			"define the cycle plan (total_cycles and per-cycle deliverables) before entering the implementation phase")
	}
	if st.LastCycle != nil && *st.LastCycle >= total {
		return errdefs.NewValidationError(
			fmt.Sprintf("all %d declared cycles are already consumed (last cycle %d)", total, *st.LastCycle),
			"plan additional cycles for this issue before re-entering the implementation phase")
	}
	return nil
}

// validateForwardStep enforces the strict forward-only, one-step-at-a-time
// ordering of the non-forced transition path.
func validateForwardStep(p *plan.ProjectPlan, fromPhase, toPhase string) error {
	if toPhase == fromPhase {
		return errdefs.Validationf("branch is already in phase %q", toPhase)
	}
	toIdx := p.PhaseIndex(toPhase)
	if toIdx < 0 {
		return unknownPhaseError(p, toPhase)
	}
	fromIdx := p.PhaseIndex(fromPhase)
	if fromIdx == len(p.RequiredPhases)-1 {
		return errdefs.NewValidationError(
			fmt.Sprintf("phase %q is the terminal phase of workflow %q", fromPhase, p.WorkflowName),
			"the workflow is complete; a forced transition can still move backwards if rework is needed")
	}
	if toIdx != fromIdx+1 {
		return errdefs.NewValidationError(
			fmt.Sprintf("cannot transition from %q to %q: phases advance one step at a time (next is %q)",
				fromPhase, toPhase, p.RequiredPhases[fromIdx+1]),
			"use a forced transition with a skip reason and human approval to jump phases")
	}
	return nil
}

// unknownPhaseError names the plan's phases so the caller can see the valid
// set.
func unknownPhaseError(p *plan.ProjectPlan, toPhase string) error {
	return errdefs.NewValidationError(
		fmt.Sprintf("phase %q is not part of workflow %q", toPhase, p.WorkflowName),
		fmt.Sprintf("valid phases in order: %s", strings.Join(p.RequiredPhases, " -> ")))
}
