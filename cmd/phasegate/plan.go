package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// planCmd groups project-plan operations.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Project plan operations",
}

// planValidateCmd checks a plan's structural invariants.
var planValidateCmd = &cobra.Command{
	Use:   "validate <issue>",
	Short: "Validate the project plan for an issue",
	Long: `Load and validate the plan for an issue: required phases, deliverable
declarations, and the cycle plan's numbering.

Examples:
  phasegate plan validate 229`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanValidate,
}

func init() {
	planCmd.AddCommand(planValidateCmd)
}

func runPlanValidate(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck // stderr sync failure is harmless

	issueID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("issue id %q is not an integer", args[0])
	}

	p, err := rt.plans.Load(cmd.Context(), issueID)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	fmt.Printf("plan for issue %d is valid\n", p.IssueID)
	fmt.Printf("workflow: %s\n", p.WorkflowName)
	fmt.Printf("phases:   %v\n", p.RequiredPhases)
	if p.CyclePlan != nil {
		fmt.Printf("cycles:   %d\n", p.CyclePlan.TotalCycles)
	}
	gated := 0
	for _, specs := range p.Deliverables {
		gated += len(specs)
	}
	fmt.Printf("declared deliverables: %d\n", gated)
	return nil
}
