package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/phasegate/internal/engine"
)

var (
	transitionBranch   string
	transitionForce    bool
	transitionReason   string
	transitionApprover string
)

// transitionCmd moves a branch to another workflow phase.
var transitionCmd = &cobra.Command{
	Use:   "transition <phase>",
	Short: "Transition a branch to the next workflow phase",
	Long: `Transition a branch to another phase.

Without --force the target must be the immediate next phase and the current
phase's exit gate must pass. With --force any phase is reachable and gates
are bypassed, but --reason and --approved-by are required and the bypassed
gates are recorded in the audit trail.

Examples:
  # Ordinary forward transition
  phasegate transition design

  # Forced jump with audit fields
  phasegate transition validation --force --reason "prototype track" --approved-by "dana"`,
	Args: cobra.ExactArgs(1),
	RunE: runTransition,
}

func init() {
	transitionCmd.Flags().StringVar(&transitionBranch, "branch", "", "branch to transition (default: current branch)")
	transitionCmd.Flags().BoolVar(&transitionForce, "force", false, "bypass ordering and gate blocking")
	transitionCmd.Flags().StringVar(&transitionReason, "reason", "", "justification for a forced transition")
	transitionCmd.Flags().StringVar(&transitionApprover, "approved-by", "", "human who approved a forced transition")
}

func runTransition(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck // stderr sync failure is harmless

	branch := transitionBranch
	if branch == "" {
		if branch, err = resolveBranch(rt, nil); err != nil {
			return err
		}
	}
	toPhase := args[0]

	ctx := cmd.Context()
	if transitionForce {
		result, err := rt.engine.ForceTransition(ctx, branch, toPhase, transitionReason, transitionApprover)
		if err != nil {
			return err
		}
		reportTransition(result, toPhase)
		return nil
	}

	result, err := rt.engine.Transition(ctx, branch, toPhase)
	if err != nil {
		return err
	}
	reportTransition(result, toPhase)
	return nil
}

// reportTransition prints the outcome plus any entry-gate warnings.
func reportTransition(result *engine.TransitionResult, toPhase string) {
	fmt.Printf("now in phase %q\n", toPhase)
	if result.State.CurrentCycle != nil {
		fmt.Printf("current cycle: %d\n", *result.State.CurrentCycle)
	}
	for _, warning := range result.EntryWarnings {
		fmt.Printf("warning: entry deliverable %q incomplete: %s\n", warning.ID, warning.Reason)
	}
}
