// Package gate resolves a phase's or cycle's declared deliverables and
// evaluates them. An exit gate blocks non-forced transitions; an entry gate
// only warns, so a consuming phase is never held hostage by a producing
// phase's incompleteness. The blocking policy lives in the transition
// engines; this package just evaluates and reports.
package gate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phasegate/internal/deliverable"
	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
	"github.com/fyrsmithlabs/phasegate/internal/plan"
)

// CheckResult is one evaluated deliverable.
type CheckResult struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
	Reason      string `json:"reason,omitempty"`
}

// Result is the outcome of evaluating one gate: the ordered per-item
// results. A gate with no declared deliverables yields zero checks and
// trivially passes.
type Result struct {
	// Gate identifies what was evaluated, e.g. "exit:planning",
	// "entry:design", "cycle:2".
	Gate   string        `json:"gate"`
	Checks []CheckResult `json:"checks"`
}

// Passed reports whether every check passed.
func (r *Result) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the failing checks in declaration order.
func (r *Result) Failed() []CheckResult {
	var failed []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// FailedIDs returns the ids of the failing checks in declaration order.
func (r *Result) FailedIDs() []string {
	var ids []string
	for _, c := range r.Checks {
		if !c.Passed {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// FailedItems converts the failing checks into gate-failure items.
func (r *Result) FailedItems() []errdefs.GateItem {
	var items []errdefs.GateItem
	for _, c := range r.Checks {
		if !c.Passed {
			items = append(items, errdefs.GateItem{ID: c.ID, Description: c.Description, Reason: c.Reason})
		}
	}
	return items
}

// Engine evaluates deliverable gates against the workspace. It holds an
// injected plan store, never a process-wide singleton, so tests can point it
// at a temp-directory store.
type Engine struct {
	plans         *plan.Store
	workspaceRoot string
	logger        *zap.Logger
}

// NewEngine creates a gate engine rooted at workspaceRoot.
func NewEngine(plans *plan.Store, workspaceRoot string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{plans: plans, workspaceRoot: workspaceRoot, logger: logger}
}

// EvaluateExit evaluates the exit gate of phase for issueID.
func (e *Engine) EvaluateExit(ctx context.Context, phase string, issueID int) (*Result, error) {
	p, err := e.plans.Load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return e.evaluate(fmt.Sprintf("exit:%s", phase), p.PhaseDeliverables(phase), issueID)
}

// EvaluateEntry evaluates the entry gate of phase for issueID. The result
// shape is identical to an exit gate; the caller applies the warn-only
// policy.
func (e *Engine) EvaluateEntry(ctx context.Context, phase string, issueID int) (*Result, error) {
	p, err := e.plans.Load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return e.evaluate(fmt.Sprintf("entry:%s", phase), p.PhaseDeliverables(phase), issueID)
}

// EvaluateCycle evaluates the per-cycle deliverable gate of one declared
// iteration cycle.
func (e *Engine) EvaluateCycle(ctx context.Context, issueID, cycleNumber int) (*Result, error) {
	p, err := e.plans.Load(ctx, issueID)
	if err != nil {
		return nil, err
	}
	c, ok := p.Cycle(cycleNumber)
	if !ok {
		return nil, errdefs.Validationf("plan for issue %d declares no cycle %d", issueID, cycleNumber)
	}
	return e.evaluate(fmt.Sprintf("cycle:%d", cycleNumber), c.Deliverables, issueID)
}

// evaluate runs every check in order. Expected failures become failing
// results; only a malformed spec that bypassed write-time validation
// surfaces as an error.
func (e *Engine) evaluate(gateName string, specs []deliverable.Spec, issueID int) (*Result, error) {
	result := &Result{Gate: gateName, Checks: make([]CheckResult, 0, len(specs))}
	for _, spec := range specs {
		err := deliverable.Check(spec, e.workspaceRoot, issueID)
		if err == nil {
			result.Checks = append(result.Checks, CheckResult{
				ID:          spec.ID,
				Description: spec.Description,
				Passed:      true,
			})
			continue
		}
		var failure *deliverable.CheckFailure
		if !errors.As(err, &failure) {
			return nil, fmt.Errorf("evaluating gate %s: %w", gateName, err)
		}
		result.Checks = append(result.Checks, CheckResult{
			ID:          spec.ID,
			Description: spec.Description,
			Passed:      false,
			Reason:      failure.Reason,
		})
	}
	return result, nil
}
