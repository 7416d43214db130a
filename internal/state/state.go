// Package state provides the local, per-branch cached workflow state. The
// document is not version-controlled: it is a disposable cache, fully
// reconstructible from the plan store and commit history, so losing it on a
// machine switch costs history detail but never correctness.
package state

import (
	"time"
)

// BranchState is the cached workflow position of one branch.
type BranchState struct {
	// Branch is the primary key.
	Branch string `json:"branch"`

	// IssueID links the branch to its project plan.
	IssueID int `json:"issue_id"`

	// WorkflowName and ParentBranch are denormalized from the plan at
	// initialization or reconstruction time for fast local reads.
	WorkflowName string `json:"workflow_name"`
	ParentBranch string `json:"parent_branch,omitempty"`

	// CurrentPhase is one of the plan's required phases. Never empty once
	// the state has been written.
	CurrentPhase string `json:"current_phase"`

	// PhaseHistory is the append-only audit trail of phase transitions.
	PhaseHistory []PhaseTransitionRecord `json:"phase_history"`

	// CurrentCycle is set only while CurrentPhase is the implementation
	// phase.
	CurrentCycle *int `json:"current_cycle,omitempty"`

	// LastCycle is the historical high-water mark, retained after leaving
	// the implementation phase.
	LastCycle *int `json:"last_cycle,omitempty"`

	// CycleHistory is the append-only audit trail of cycle transitions.
	CycleHistory []CycleTransitionRecord `json:"cycle_history"`

	// Reconstructed is true when this state was rebuilt from the plan and
	// commit history rather than read from an unbroken local cache. A
	// reconstructed state has empty histories: only the current position is
	// recoverable, not the path taken to it.
	Reconstructed bool `json:"reconstructed"`
}

// PhaseTransitionRecord is one entry in the phase audit trail. Forced
// entries always carry the justification and approval that authorized the
// override, plus the gates that were bypassed.
type PhaseTransitionRecord struct {
	FromPhase     string    `json:"from_phase"`
	ToPhase       string    `json:"to_phase"`
	Timestamp     time.Time `json:"timestamp"`
	Forced        bool      `json:"forced"`
	SkipReason    string    `json:"skip_reason,omitempty"`
	HumanApproval string    `json:"human_approval,omitempty"`
	SkippedGates  []string  `json:"skipped_gates,omitempty"`
}

// CycleTransitionRecord is one entry in the cycle audit trail.
type CycleTransitionRecord struct {
	Cycle         int        `json:"cycle"`
	Name          string     `json:"name"`
	EnteredAt     time.Time  `json:"entered_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Forced        bool       `json:"forced"`
	SkipReason    string     `json:"skip_reason,omitempty"`
	HumanApproval string     `json:"human_approval,omitempty"`
	SkippedCycles []int      `json:"skipped_cycles,omitempty"`
}

// InCycle reports whether the branch is currently inside an iteration cycle.
func (s *BranchState) InCycle() bool {
	return s.CurrentCycle != nil
}

// LastTransition returns the most recent phase transition record, or nil for
// a state with no recorded history.
func (s *BranchState) LastTransition() *PhaseTransitionRecord {
	if len(s.PhaseHistory) == 0 {
		return nil
	}
	return &s.PhaseHistory[len(s.PhaseHistory)-1]
}

// IntPtr returns a pointer to n, for the optional cycle fields.
func IntPtr(n int) *int {
	return &n
}
