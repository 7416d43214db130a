// Package reconcile rebuilds a branch's cached workflow state when the local
// cache has no entry, typically after a fresh checkout on a new machine.
// Everything needed is derivable from version-controlled sources: the branch
// name carries the issue, the plan store carries the workflow, and commit
// message phase labels carry the current position. Histories are not
// recoverable; a reconstructed state starts with empty audit trails and is
// flagged as reconstructed.
package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
	"github.com/fyrsmithlabs/phasegate/internal/gitlog"
	"github.com/fyrsmithlabs/phasegate/internal/plan"
	"github.com/fyrsmithlabs/phasegate/internal/state"
	"github.com/fyrsmithlabs/phasegate/pkg/git"
)

// DefaultCommitWindow is how many recent commits the phase-label scan
// covers.
const DefaultCommitWindow = 50

// phaseLabel extracts phase:<name> tokens from commit messages. The higher
// tool layer writes these labels; reconstruction only reads them.
var phaseLabel = regexp.MustCompile(`(?i)phase:\s*([a-z0-9_-]+)`)

// Reconciler rebuilds branch state from the plan store and commit history.
type Reconciler struct {
	plans        *plan.Store
	states       *state.Store
	history      gitlog.Reader
	commitWindow int
	logger       *zap.Logger
}

// NewReconciler creates a reconciler. A commitWindow of zero falls back to
// DefaultCommitWindow.
func NewReconciler(plans *plan.Store, states *state.Store, history gitlog.Reader, commitWindow int, logger *zap.Logger) *Reconciler {
	if commitWindow <= 0 {
		commitWindow = DefaultCommitWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		plans:        plans,
		states:       states,
		history:      history,
		commitWindow: commitWindow,
		logger:       logger,
	}
}

// Reconstruct deterministically rebuilds and persists the state for branch.
// It is invoked only when the state store has no entry. Given the same plan
// and the same commit-history window the result is always the same.
func (r *Reconciler) Reconstruct(ctx context.Context, branch string) (*state.BranchState, error) {
	ref, err := git.ParseBranch(branch)
	if err != nil {
		return nil, errdefs.NewValidationError(err.Error(),
			"workflow branches must be named <type>/<number>-<slug>")
	}

	p, err := r.plans.Load(ctx, ref.IssueID)
	if err != nil {
		return nil, err
	}

	messages, err := r.history.Messages(ctx, branch, r.commitWindow)
	if err != nil {
		return nil, fmt.Errorf("scanning commit history for %q: %w", branch, err)
	}

	currentPhase := inferPhase(messages, p.RequiredPhases)

	st := &state.BranchState{
		Branch:        branch,
		IssueID:       ref.IssueID,
		WorkflowName:  p.WorkflowName,
		ParentBranch:  p.ParentBranch,
		CurrentPhase:  currentPhase,
		PhaseHistory:  []state.PhaseTransitionRecord{},
		CycleHistory:  []state.CycleTransitionRecord{},
		Reconstructed: true,
	}

	if err := r.states.Save(ctx, st); err != nil {
		return nil, err
	}

	r.logger.Info("reconstructed branch state",
		zap.String("branch", branch),
		zap.Int("issue_id", ref.IssueID),
		zap.String("current_phase", currentPhase),
		zap.Int("commits_scanned", len(messages)))
	return st, nil
}

// inferPhase picks the phase from the most recent commit message carrying a
// label matching one of the required phases. With no matching label anywhere
// in the window, work has not progressed past the first phase.
func inferPhase(messages, requiredPhases []string) string {
	known := make(map[string]string, len(requiredPhases))
	for _, phase := range requiredPhases {
		known[strings.ToLower(phase)] = phase
	}

	for _, msg := range messages {
		for _, m := range phaseLabel.FindAllStringSubmatch(msg, -1) {
			if phase, ok := known[strings.ToLower(m[1])]; ok {
				return phase
			}
		}
	}
	return requiredPhases[0]
}
