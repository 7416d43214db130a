package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phasegate/internal/deliverable"
	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
	"github.com/fyrsmithlabs/phasegate/internal/gate"
	"github.com/fyrsmithlabs/phasegate/internal/plan"
	"github.com/fyrsmithlabs/phasegate/internal/reconcile"
	"github.com/fyrsmithlabs/phasegate/internal/state"
)

// fakeHistory serves canned commit messages, most recent first.
type fakeHistory struct {
	messages map[string][]string
}

func (f *fakeHistory) Messages(_ context.Context, branch string, limit int) ([]string, error) {
	msgs := f.messages[branch]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// harness wires a full engine over temp-directory stores.
type harness struct {
	engine    *Engine
	plans     *plan.Store
	states    *state.Store
	history   *fakeHistory
	workspace string
}

func newHarness(t *testing.T, p *plan.ProjectPlan) *harness {
	t.Helper()
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")

	plans := plan.NewStore(filepath.Join(dir, "plan.yaml"), nil)
	states := state.NewStore(filepath.Join(dir, "branches.json"), nil)
	history := &fakeHistory{messages: map[string][]string{}}
	reconciler := reconcile.NewReconciler(plans, states, history, 50, nil)
	gates := gate.NewEngine(plans, workspace, nil)

	eng, err := NewEngine(nil, plans, states, gates, reconciler, zap.NewNop())
	require.NoError(t, err)

	if p != nil {
		require.NoError(t, plans.Save(context.Background(), p))
	}
	return &harness{engine: eng, plans: plans, states: states, history: history, workspace: workspace}
}

// standardPlan has the full six-phase workflow, no deliverables, and four
// empty cycles.
func standardPlan() *plan.ProjectPlan {
	return &plan.ProjectPlan{
		IssueID:        229,
		WorkflowName:   "standard",
		RequiredPhases: []string{"research", "planning", "design", "implementation", "validation", "documentation"},
		ParentBranch:   "epic/76",
		CyclePlan: &plan.CyclePlan{
			TotalCycles: 4,
			Cycles: []plan.Cycle{
				{Number: 1, Name: "skeleton"},
				{Number: 2, Name: "core"},
				{Number: 3, Name: "integration"},
				{Number: 4, Name: "hardening"},
			},
		},
	}
}

// seedState plants a cached state directly, bypassing reconstruction.
func (h *harness) seedState(t *testing.T, st *state.BranchState) {
	t.Helper()
	require.NoError(t, h.states.Save(context.Background(), st))
}

func baseState(phase string) *state.BranchState {
	return &state.BranchState{
		Branch:       "feature/229-x",
		IssueID:      229,
		WorkflowName: "standard",
		ParentBranch: "epic/76",
		CurrentPhase: phase,
		PhaseHistory: []state.PhaseTransitionRecord{},
		CycleHistory: []state.CycleTransitionRecord{},
	}
}

func fileExistsSpec(id, file string) deliverable.Spec {
	return deliverable.Spec{
		ID:          id,
		Description: id,
		Validates:   deliverable.Validates{FileExists: &deliverable.FileExists{File: file}},
	}
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestGetState_CacheHit(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.seedState(t, baseState("planning"))

	st, err := h.engine.GetState(context.Background(), "feature/229-x")
	require.NoError(t, err)
	assert.Equal(t, "planning", st.CurrentPhase)
	assert.False(t, st.Reconstructed)
}

func TestGetState_ReconstructsOnMiss(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.history.messages["feature/229-x"] = []string{
		"phase:design rough out the machine",
		"phase:planning plan it",
	}

	st, err := h.engine.GetState(context.Background(), "feature/229-x")
	require.NoError(t, err)
	assert.Equal(t, "design", st.CurrentPhase)
	assert.Equal(t, "epic/76", st.ParentBranch)
	assert.True(t, st.Reconstructed)
	assert.Empty(t, st.PhaseHistory)
}

func TestGetState_IsIdempotent(t *testing.T) {
	h := newHarness(t, standardPlan())
	h.history.messages["feature/229-x"] = []string{"phase:planning plan it"}
	ctx := context.Background()

	first, err := h.engine.GetState(ctx, "feature/229-x")
	require.NoError(t, err)

	// Remove the history: a second lookup must be a plain cache hit, not a
	// second reconstruction.
	h.history.messages = map[string][]string{}

	second, err := h.engine.GetState(ctx, "feature/229-x")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetState_UnknownBranchShapeFails(t *testing.T) {
	h := newHarness(t, standardPlan())

	_, err := h.engine.GetState(context.Background(), "detached")
	require.Error(t, err)
	var validation *errdefs.ValidationError
	assert.ErrorAs(t, err, &validation)
}
