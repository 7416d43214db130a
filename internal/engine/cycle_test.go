package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/phasegate/internal/deliverable"
	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
	"github.com/fyrsmithlabs/phasegate/internal/state"
)

// implementationState is a branch parked in implementation at cycle n.
func implementationState(n int) *state.BranchState {
	st := baseState("implementation")
	st.CurrentCycle = state.IntPtr(n)
	st.CycleHistory = []state.CycleTransitionRecord{{Cycle: n, Name: "skeleton"}}
	return st
}

func TestTransitionCycle_ForwardStep(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, implementationState(1))

	st, err := h.engine.TransitionCycle(context.Background(), "feature/229-x", 2)
	require.NoError(t, err)
	require.NotNil(t, st.CurrentCycle)
	assert.Equal(t, 2, *st.CurrentCycle)

	// The record being left is stamped complete; the new cycle is open.
	require.Len(t, st.CycleHistory, 2)
	assert.NotNil(t, st.CycleHistory[0].CompletedAt)
	assert.Equal(t, 2, st.CycleHistory[1].Cycle)
	assert.Equal(t, "core", st.CycleHistory[1].Name)
	assert.Nil(t, st.CycleHistory[1].CompletedAt)
}

func TestTransitionCycle_RejectsSkippingAhead(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, implementationState(1))

	_, err := h.engine.TransitionCycle(context.Background(), "feature/229-x", 3)
	require.Error(t, err)
	var validation *errdefs.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Error(), "next is 2")
}

func TestTransitionCycle_RejectsOutOfRange(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, implementationState(4))

	_, err := h.engine.TransitionCycle(context.Background(), "feature/229-x", 5)
	require.Error(t, err)
	var validation *errdefs.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Error(), "1..4")
}

func TestTransitionCycle_OnlyValidInImplementationPhase(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, baseState("design"))

	_, err := h.engine.TransitionCycle(context.Background(), "feature/229-x", 2)
	require.Error(t, err)
	var validation *errdefs.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Hint, "implementation")
}

func TestTransitionCycle_RequiresCycleDeliverables(t *testing.T) {
	p := standardPlan()
	p.CyclePlan = nil
	h := newHarness(t, p)
	h.seedState(t, implementationState(1))

	_, err := h.engine.TransitionCycle(context.Background(), "feature/229-x", 2)
	require.Error(t, err)
	var validation *errdefs.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Hint, "define the cycle plan")
}

func TestTransitionCycle_BlockedByCycleGate(t *testing.T) {
	p := standardPlan()
	p.CyclePlan.Cycles[0].Deliverables = []deliverable.Spec{
		fileExistsSpec("skeleton-built", "src/skeleton.go"),
	}
	h := newHarness(t, p)
	h.seedState(t, implementationState(1))

	_, err := h.engine.TransitionCycle(context.Background(), "feature/229-x", 2)
	require.Error(t, err)

	var gateFailure *errdefs.GateFailure
	require.ErrorAs(t, err, &gateFailure)
	assert.Equal(t, "cycle:1", gateFailure.Gate)
	assert.Equal(t, []string{"skeleton-built"}, gateFailure.IDs())
	assert.Contains(t, gateFailure.Override, "force")
}

func TestTransitionCycle_PassesWhenCycleGateSatisfied(t *testing.T) {
	p := standardPlan()
	p.CyclePlan.Cycles[0].Deliverables = []deliverable.Spec{
		fileExistsSpec("skeleton-built", "src/skeleton.go"),
	}
	h := newHarness(t, p)
	h.seedState(t, implementationState(1))

	require.NoError(t, os.MkdirAll(filepath.Join(h.workspace, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.workspace, "src", "skeleton.go"), []byte("package src"), 0o644))

	st, err := h.engine.TransitionCycle(context.Background(), "feature/229-x", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, *st.CurrentCycle)
}

func TestForceCycleTransition_RequiresAuditFields(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, implementationState(1))

	_, err := h.engine.ForceCycleTransition(context.Background(), "feature/229-x", 3, "", "approved")
	require.Error(t, err)
	var validation *errdefs.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestForceCycleTransition_RecordsSkippedCycles(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, implementationState(1))

	st, err := h.engine.ForceCycleTransition(context.Background(), "feature/229-x", 3, "skip", "approved")
	require.NoError(t, err)
	require.NotNil(t, st.CurrentCycle)
	assert.Equal(t, 3, *st.CurrentCycle)

	record := st.CycleHistory[len(st.CycleHistory)-1]
	assert.True(t, record.Forced)
	assert.Equal(t, "skip", record.SkipReason)
	assert.Equal(t, "approved", record.HumanApproval)
	assert.Equal(t, []int{2}, record.SkippedCycles)
}

func TestForceCycleTransition_EvaluatesSkippedGatesWithoutBlocking(t *testing.T) {
	p := standardPlan()
	// Cycle 2 has a deliverable that cannot pass; the forced jump over it
	// must still succeed.
	p.CyclePlan.Cycles[1].Deliverables = []deliverable.Spec{
		fileExistsSpec("core-built", "src/core.go"),
	}
	h := newHarness(t, p)
	h.seedState(t, implementationState(1))

	st, err := h.engine.ForceCycleTransition(context.Background(), "feature/229-x", 4, "merged scopes", "dana")
	require.NoError(t, err)
	assert.Equal(t, 4, *st.CurrentCycle)

	record := st.CycleHistory[len(st.CycleHistory)-1]
	assert.Equal(t, []int{2, 3}, record.SkippedCycles)
}

func TestForceCycleTransition_BackwardsJumpHasNoSkippedCycles(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, implementationState(3))

	st, err := h.engine.ForceCycleTransition(context.Background(), "feature/229-x", 1, "redo skeleton", "dana")
	require.NoError(t, err)
	assert.Equal(t, 1, *st.CurrentCycle)

	record := st.CycleHistory[len(st.CycleHistory)-1]
	assert.True(t, record.Forced)
	assert.Empty(t, record.SkippedCycles)
}

func TestForceCycleTransition_RejectsOutOfRange(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, implementationState(1))

	_, err := h.engine.ForceCycleTransition(context.Background(), "feature/229-x", 9, "skip", "approved")
	require.Error(t, err)
	var validation *errdefs.ValidationError
	assert.ErrorAs(t, err, &validation)
}
