package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
	"github.com/fyrsmithlabs/phasegate/internal/plan"
	"github.com/fyrsmithlabs/phasegate/internal/state"
)

// CycleEngine is the nested state machine for implementation-phase iteration
// cycles. It holds a reference back to the phase engine for its stores and
// configuration; the phase engine explicitly invokes enterImplementation and
// leaveImplementation, so this machine never polls phase state.
type CycleEngine struct {
	phase *Engine
}

// newCycleEngine wires the cycle machine to its owning phase engine.
func newCycleEngine(phase *Engine) *CycleEngine {
	return &CycleEngine{phase: phase}
}

// Transition advances branch to toCycle, which must be exactly the next
// cycle. The cycle being left must pass its own deliverable gate.
func (c *CycleEngine) Transition(ctx context.Context, branch string, toCycle int) (*state.BranchState, error) {
	e := c.phase
	ctx, span := e.tracer.Start(ctx, "engine.transition_cycle")
	defer span.End()
	span.SetAttributes(attribute.String("branch", branch), attribute.Int("to_cycle", toCycle))

	st, p, err := c.loadInImplementation(ctx, branch)
	if err != nil {
		return nil, err
	}

	current := *st.CurrentCycle
	total := p.TotalCycles()
	if toCycle < 1 || toCycle > total {
		return nil, errdefs.NewValidationError(
			fmt.Sprintf("cycle %d is outside the declared range 1..%d", toCycle, total),
			"merge additional cycle definitions into the plan to extend the range")
	}
	if toCycle != current+1 {
		return nil, errdefs.NewValidationError(
			fmt.Sprintf("cannot move from cycle %d to cycle %d: cycles advance one step at a time (next is %d)",
				current, toCycle, current+1),
			"use a forced cycle transition with a skip reason and human approval to jump cycles")
	}

	gateResult, err := e.gates.EvaluateCycle(ctx, st.IssueID, current)
	if err != nil {
		return nil, err
	}
	if !gateResult.Passed() {
		return nil, &errdefs.GateFailure{
			Gate:     gateResult.Gate,
			Items:    gateResult.FailedItems(),
			Override: fmt.Sprintf("force the cycle transition to %d with a skip reason and human approval", toCycle),
		}
	}

	now := time.Now().UTC()
	c.completeOpenRecord(st, current, now)
	st.CycleHistory = append(st.CycleHistory, state.CycleTransitionRecord{
		Cycle:     toCycle,
		Name:      cycleName(p, toCycle),
		EnteredAt: now,
	})
	st.CurrentCycle = state.IntPtr(toCycle)

	if err := e.states.Save(ctx, st); err != nil {
		return nil, err
	}
	e.countTransition(ctx, "cycle", false)
	e.logger.Info("cycle transition",
		zap.String("branch", branch),
		zap.Int("from_cycle", current),
		zap.Int("to_cycle", toCycle))
	return st, nil
}

// ForceTransition jumps branch to any declared cycle. Both audit fields are
// mandatory. Every skipped cycle's gate is still evaluated so operators can
// see exactly what was bypassed; failures warn, never block. Skipped checks
// are not re-validated later if a skipped cycle is completed out of order.
func (c *CycleEngine) ForceTransition(ctx context.Context, branch string, toCycle int, skipReason, humanApproval string) (*state.BranchState, error) {
	e := c.phase
	ctx, span := e.tracer.Start(ctx, "engine.force_cycle_transition")
	defer span.End()
	span.SetAttributes(attribute.String("branch", branch), attribute.Int("to_cycle", toCycle))

	if err := requireAuditFields(skipReason, humanApproval); err != nil {
		return nil, err
	}

	st, p, err := c.loadInImplementation(ctx, branch)
	if err != nil {
		return nil, err
	}

	current := *st.CurrentCycle
	total := p.TotalCycles()
	if toCycle < 1 || toCycle > total {
		return nil, errdefs.NewValidationError(
			fmt.Sprintf("cycle %d is outside the declared range 1..%d", toCycle, total),
			"merge additional cycle definitions into the plan to extend the range")
	}

	var skipped []int
	for n := current + 1; n < toCycle; n++ {
		skipped = append(skipped, n)
	}
	for _, n := range skipped {
		gateResult, err := e.gates.EvaluateCycle(ctx, st.IssueID, n)
		if err != nil {
			return nil, err
		}
		for _, failed := range gateResult.Failed() {
			e.logger.Warn("forced cycle transition bypassed deliverable",
				zap.String("branch", branch),
				zap.Int("skipped_cycle", n),
				zap.String("deliverable", failed.ID),
				zap.String("reason", failed.Reason),
				zap.String("skip_reason", skipReason))
		}
	}

	now := time.Now().UTC()
	c.completeOpenRecord(st, current, now)
	st.CycleHistory = append(st.CycleHistory, state.CycleTransitionRecord{
		Cycle:         toCycle,
		Name:          cycleName(p, toCycle),
		EnteredAt:     now,
		Forced:        true,
		SkipReason:    skipReason,
		HumanApproval: humanApproval,
		SkippedCycles: skipped,
	})
	st.CurrentCycle = state.IntPtr(toCycle)

	if err := e.states.Save(ctx, st); err != nil {
		return nil, err
	}
	e.countTransition(ctx, "cycle", true)
	e.logger.Info("forced cycle transition",
		zap.String("branch", branch),
		zap.Int("from_cycle", current),
		zap.Int("to_cycle", toCycle),
		zap.Ints("skipped_cycles", skipped))
	return st, nil
}

// loadInImplementation loads state and plan, validating that the branch is
// currently inside the implementation phase with a declared cycle plan.
func (c *CycleEngine) loadInImplementation(ctx context.Context, branch string) (*state.BranchState, *plan.ProjectPlan, error) {
	e := c.phase
	st, err := e.GetState(ctx, branch)
	if err != nil {
		return nil, nil, err
	}
	if st.CurrentPhase != e.config.ImplementationPhase {
		return nil, nil, errdefs.NewValidationError(
			fmt.Sprintf("branch %q is in phase %q; cycle transitions are only valid in phase %q",
				branch, st.CurrentPhase, e.config.ImplementationPhase),
			"transition the branch into the implementation phase first")
	}
	p, err := e.plans.Load(ctx, st.IssueID)
	if err != nil {
		return nil, nil, err
	}
	if p.TotalCycles() < 1 {
		return nil, nil, errdefs.NewValidationError(
			fmt.Sprintf("plan for issue %d declares no cycle deliverables", st.IssueID),
			"define the cycle plan for this issue before transitioning cycles")
	}
	if st.CurrentCycle == nil {
		// Implementation phase without a cycle position happens only after a
		// forced entry bypassed cycle initialization; resume at cycle 1.
		st.CurrentCycle = state.IntPtr(1)
	}
	return st, p, nil
}

// completeOpenRecord stamps completed_at on the open history record of the
// cycle being left, if one exists.
func (c *CycleEngine) completeOpenRecord(st *state.BranchState, cycle int, now time.Time) {
	for i := len(st.CycleHistory) - 1; i >= 0; i-- {
		rec := &st.CycleHistory[i]
		if rec.Cycle == cycle && rec.CompletedAt == nil {
			rec.CompletedAt = &now
			return
		}
	}
}

// enterImplementation initializes the cycle position on implementation-phase
// entry: cycle 1 on first entry, the next unconsumed cycle on re-entry. A
// forced entry with no declared cycles leaves the position unset and the
// cycle machine recovers when first used.
func (c *CycleEngine) enterImplementation(st *state.BranchState, p *plan.ProjectPlan) {
	total := p.TotalCycles()
	if total < 1 {
		st.CurrentCycle = nil
		return
	}
	resume := 1
	if st.LastCycle != nil {
		resume = *st.LastCycle + 1
		if resume > total {
			// Only reachable through a forced entry; park on the final
			// declared cycle rather than inventing an undeclared one.
			resume = total
		}
	}
	st.CurrentCycle = state.IntPtr(resume)
	st.CycleHistory = append(st.CycleHistory, state.CycleTransitionRecord{
		Cycle:     resume,
		Name:      cycleName(p, resume),
		EnteredAt: time.Now().UTC(),
	})
}

// leaveImplementation retires the cycle position into the last-cycle
// high-water mark and closes the open history record.
func (c *CycleEngine) leaveImplementation(st *state.BranchState) {
	if st.CurrentCycle == nil {
		return
	}
	now := time.Now().UTC()
	c.completeOpenRecord(st, *st.CurrentCycle, now)
	st.LastCycle = state.IntPtr(*st.CurrentCycle)
	st.CurrentCycle = nil
}

// cycleName resolves the declared name of a cycle number.
func cycleName(p *plan.ProjectPlan, number int) string {
	if c, ok := p.Cycle(number); ok {
		return c.Name
	}
	return ""
}
