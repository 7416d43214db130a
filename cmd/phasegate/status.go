package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/phasegate/pkg/git"
)

// statusCmd shows the workflow position of a branch.
var statusCmd = &cobra.Command{
	Use:   "status [branch]",
	Short: "Show the workflow state of a branch",
	Long: `Show the current phase, cycle, and last transition of a branch.

With no argument the current git branch is used. A branch with no cached
state is reconstructed from the project plan and commit history.

Examples:
  # Status of the checked-out branch
  phasegate status

  # Status of another branch
  phasegate status feature/229-retry-loop`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck // stderr sync failure is harmless

	branch, err := resolveBranch(rt, args)
	if err != nil {
		return err
	}

	st, err := rt.engine.GetState(cmd.Context(), branch)
	if err != nil {
		return err
	}
	printState(st)
	return nil
}

// resolveBranch picks the branch argument or detects the checked-out one.
func resolveBranch(rt *runtime, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	branch, err := git.DetectBranch(rt.cfg.WorkspaceRoot)
	if err != nil {
		return "", fmt.Errorf("detecting current branch: %w", err)
	}
	if git.IsMainBranch(branch) {
		return "", fmt.Errorf("branch %q carries no workflow state; name a workflow branch explicitly", branch)
	}
	return branch, nil
}
