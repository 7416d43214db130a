package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	cycleBranch   string
	cycleForce    bool
	cycleReason   string
	cycleApprover string
)

// cycleCmd moves a branch to another implementation cycle.
var cycleCmd = &cobra.Command{
	Use:   "cycle <number>",
	Short: "Transition a branch to another implementation cycle",
	Long: `Transition a branch to another iteration cycle. Only valid while the
branch is in the implementation phase.

Without --force the target must be the immediate next cycle and the current
cycle's deliverable gate must pass. With --force any declared cycle is
reachable; each skipped cycle's gate is still evaluated and every bypassed
deliverable is logged.

Examples:
  # Finish cycle 1, start cycle 2
  phasegate cycle 2

  # Jump to cycle 4, skipping 2 and 3
  phasegate cycle 4 --force --reason "merged scopes" --approved-by "dana"`,
	Args: cobra.ExactArgs(1),
	RunE: runCycle,
}

func init() {
	cycleCmd.Flags().StringVar(&cycleBranch, "branch", "", "branch to transition (default: current branch)")
	cycleCmd.Flags().BoolVar(&cycleForce, "force", false, "bypass cycle ordering and gate blocking")
	cycleCmd.Flags().StringVar(&cycleReason, "reason", "", "justification for a forced cycle transition")
	cycleCmd.Flags().StringVar(&cycleApprover, "approved-by", "", "human who approved a forced cycle transition")
}

func runCycle(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck // stderr sync failure is harmless

	toCycle, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("cycle number %q is not an integer", args[0])
	}

	branch := cycleBranch
	if branch == "" {
		if branch, err = resolveBranch(rt, nil); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if cycleForce {
		st, err := rt.engine.ForceCycleTransition(ctx, branch, toCycle, cycleReason, cycleApprover)
		if err != nil {
			return err
		}
		fmt.Printf("now in cycle %d\n", *st.CurrentCycle)
		return nil
	}

	st, err := rt.engine.TransitionCycle(ctx, branch, toCycle)
	if err != nil {
		return err
	}
	fmt.Printf("now in cycle %d\n", *st.CurrentCycle)
	return nil
}
