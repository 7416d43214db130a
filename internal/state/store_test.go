package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "branches.json"), nil)
}

func sampleState() *BranchState {
	return &BranchState{
		Branch:       "feature/229-retry-loop",
		IssueID:      229,
		WorkflowName: "standard",
		ParentBranch: "epic/76",
		CurrentPhase: "planning",
		PhaseHistory: []PhaseTransitionRecord{
			{
				FromPhase: "research",
				ToPhase:   "planning",
				Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			},
		},
		CycleHistory: []CycleTransitionRecord{},
	}
}

func TestStore_SaveLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState()))

	loaded, err := store.Load(ctx, "feature/229-retry-loop")
	require.NoError(t, err)
	assert.Equal(t, 229, loaded.IssueID)
	assert.Equal(t, "planning", loaded.CurrentPhase)
	assert.Equal(t, "epic/76", loaded.ParentBranch)
	require.Len(t, loaded.PhaseHistory, 1)
	assert.Equal(t, "research", loaded.PhaseHistory[0].FromPhase)
	assert.Nil(t, loaded.CurrentCycle)
}

func TestStore_Load_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), "feature/1-unknown")
	require.Error(t, err)
	var notFound *errdefs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestStore_Save_RejectsIncompleteState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Save(ctx, &BranchState{CurrentPhase: "planning"})
	require.Error(t, err)

	err = store.Save(ctx, &BranchState{Branch: "feature/1-x"})
	require.Error(t, err)
}

func TestStore_Save_OverwritesEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := sampleState()
	require.NoError(t, store.Save(ctx, st))

	st.CurrentPhase = "design"
	st.PhaseHistory = append(st.PhaseHistory, PhaseTransitionRecord{
		FromPhase: "planning",
		ToPhase:   "design",
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, store.Save(ctx, st))

	loaded, err := store.Load(ctx, st.Branch)
	require.NoError(t, err)
	assert.Equal(t, "design", loaded.CurrentPhase)
	assert.Len(t, loaded.PhaseHistory, 2)
}

func TestStore_CycleFieldsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := sampleState()
	st.CurrentPhase = "implementation"
	st.CurrentCycle = IntPtr(2)
	completed := time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC)
	st.CycleHistory = []CycleTransitionRecord{
		{Cycle: 1, Name: "skeleton", EnteredAt: completed.Add(-time.Hour), CompletedAt: &completed},
		{Cycle: 2, Name: "hardening", EnteredAt: completed},
	}
	require.NoError(t, store.Save(ctx, st))

	loaded, err := store.Load(ctx, st.Branch)
	require.NoError(t, err)
	require.NotNil(t, loaded.CurrentCycle)
	assert.Equal(t, 2, *loaded.CurrentCycle)
	require.Len(t, loaded.CycleHistory, 2)
	require.NotNil(t, loaded.CycleHistory[0].CompletedAt)
	assert.True(t, loaded.CycleHistory[0].CompletedAt.Equal(completed))
	assert.Nil(t, loaded.CycleHistory[1].CompletedAt)
}

func TestBranchState_LastTransition(t *testing.T) {
	st := &BranchState{}
	assert.Nil(t, st.LastTransition())

	st = sampleState()
	last := st.LastTransition()
	require.NotNil(t, last)
	assert.Equal(t, "planning", last.ToPhase)
}
