// Package plan provides the canonical, version-controlled project plan: one
// document per issue declaring the workflow name, the ordered required
// phases, per-phase deliverable gates, and the optional cycle plan for the
// implementation phase. The plan travels with the repository, which is what
// lets branch state be reconstructed on a fresh checkout.
package plan

import (
	"fmt"

	"github.com/fyrsmithlabs/phasegate/internal/deliverable"
)

// ProjectPlan is the per-issue workflow declaration. It is created once
// before work starts; deliverables may be merged in later but the plan is
// never silently overwritten wholesale.
type ProjectPlan struct {
	// IssueID is the unique key for this plan.
	IssueID int `yaml:"issue_id" json:"issue_id"`

	// WorkflowName identifies which ordered phase list applies.
	WorkflowName string `yaml:"workflow_name" json:"workflow_name"`

	// RequiredPhases is the ordered, duplicate-free phase list defining the
	// total ordering the transition engine enforces.
	RequiredPhases []string `yaml:"required_phases" json:"required_phases"`

	// ParentBranch is the branch this issue's work branches from, if any.
	ParentBranch string `yaml:"parent_branch,omitempty" json:"parent_branch,omitempty"`

	// Deliverables maps phase name to that phase's ordered gate checks.
	// An absent or empty list means no gate for that phase.
	Deliverables map[string][]deliverable.Spec `yaml:"deliverables,omitempty" json:"deliverables,omitempty"`

	// CyclePlan declares the implementation-phase iteration cycles, if any.
	CyclePlan *CyclePlan `yaml:"cycle_plan,omitempty" json:"cycle_plan,omitempty"`
}

// CyclePlan declares the ordered iteration cycles nested inside the
// implementation phase.
type CyclePlan struct {
	TotalCycles int     `yaml:"total_cycles" json:"total_cycles"`
	Cycles      []Cycle `yaml:"cycles" json:"cycles"`
}

// Cycle is one declared iteration: a 1-based number, a name, its own
// deliverable gate, and free-text criteria that are documented but never
// machine-checked.
type Cycle struct {
	Number            int                `yaml:"number" json:"number"`
	Name              string             `yaml:"name" json:"name"`
	Deliverables      []deliverable.Spec `yaml:"deliverables,omitempty" json:"deliverables,omitempty"`
	ExitCriteria      string             `yaml:"exit_criteria,omitempty" json:"exit_criteria,omitempty"`
	PhaseExitCriteria string             `yaml:"phase_exit_criteria,omitempty" json:"phase_exit_criteria,omitempty"`
}

// Validate checks the plan's structural invariants: a non-empty,
// duplicate-free phase list, well-formed deliverable specs, and cycle
// numbers forming a unique 1..N sequence matching total_cycles.
func (p *ProjectPlan) Validate() error {
	if p.IssueID <= 0 {
		return fmt.Errorf("plan issue_id must be a positive integer, got %d", p.IssueID)
	}
	if len(p.RequiredPhases) == 0 {
		return fmt.Errorf("plan for issue %d declares no required_phases", p.IssueID)
	}
	seen := make(map[string]struct{}, len(p.RequiredPhases))
	for _, phase := range p.RequiredPhases {
		if phase == "" {
			return fmt.Errorf("plan for issue %d has an empty phase name", p.IssueID)
		}
		if _, dup := seen[phase]; dup {
			return fmt.Errorf("plan for issue %d lists phase %q twice", p.IssueID, phase)
		}
		seen[phase] = struct{}{}
	}

	for phase, specs := range p.Deliverables {
		if _, known := seen[phase]; !known {
			return fmt.Errorf("plan for issue %d declares deliverables for unknown phase %q", p.IssueID, phase)
		}
		if err := validateSpecList(specs); err != nil {
			return fmt.Errorf("phase %q: %w", phase, err)
		}
	}

	if p.CyclePlan != nil {
		if err := p.CyclePlan.Validate(); err != nil {
			return fmt.Errorf("plan for issue %d: %w", p.IssueID, err)
		}
	}
	return nil
}

// Validate checks that cycle numbers are a unique 1..N sequence and
// total_cycles matches the declared cycle count.
func (cp *CyclePlan) Validate() error {
	if cp.TotalCycles != len(cp.Cycles) {
		return fmt.Errorf("cycle_plan total_cycles=%d does not match %d declared cycles", cp.TotalCycles, len(cp.Cycles))
	}
	seen := make(map[int]struct{}, len(cp.Cycles))
	for _, c := range cp.Cycles {
		if c.Number < 1 || c.Number > cp.TotalCycles {
			return fmt.Errorf("cycle number %d outside 1..%d", c.Number, cp.TotalCycles)
		}
		if _, dup := seen[c.Number]; dup {
			return fmt.Errorf("cycle number %d declared twice", c.Number)
		}
		seen[c.Number] = struct{}{}
		if err := validateSpecList(c.Deliverables); err != nil {
			return fmt.Errorf("cycle %d: %w", c.Number, err)
		}
	}
	return nil
}

// validateSpecList checks every spec and id uniqueness within the list.
func validateSpecList(specs []deliverable.Spec) error {
	ids := make(map[string]struct{}, len(specs))
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return err
		}
		if _, dup := ids[specs[i].ID]; dup {
			return fmt.Errorf("duplicate deliverable id %q", specs[i].ID)
		}
		ids[specs[i].ID] = struct{}{}
	}
	return nil
}

// PhaseIndex returns the position of phase in RequiredPhases, or -1 if the
// phase is unknown to this plan.
func (p *ProjectPlan) PhaseIndex(phase string) int {
	for i, name := range p.RequiredPhases {
		if name == phase {
			return i
		}
	}
	return -1
}

// FinalPhase returns the terminal phase of the workflow.
func (p *ProjectPlan) FinalPhase() string {
	return p.RequiredPhases[len(p.RequiredPhases)-1]
}

// PhaseDeliverables returns the declared gate for phase. A nil result is a
// valid, trivially-passing gate.
func (p *ProjectPlan) PhaseDeliverables(phase string) []deliverable.Spec {
	if p.Deliverables == nil {
		return nil
	}
	return p.Deliverables[phase]
}

// Cycle returns the declared cycle with the given number.
func (p *ProjectPlan) Cycle(number int) (*Cycle, bool) {
	if p.CyclePlan == nil {
		return nil, false
	}
	for i := range p.CyclePlan.Cycles {
		if p.CyclePlan.Cycles[i].Number == number {
			return &p.CyclePlan.Cycles[i], true
		}
	}
	return nil, false
}

// TotalCycles returns the declared cycle count, zero when no cycle plan
// exists yet.
func (p *ProjectPlan) TotalCycles() int {
	if p.CyclePlan == nil {
		return 0
	}
	return p.CyclePlan.TotalCycles
}
