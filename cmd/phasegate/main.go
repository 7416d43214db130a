// Package main implements the phasegate CLI for branch workflow operations:
// inspecting branch state, transitioning phases and cycles, and validating
// project plans.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phasegate/internal/config"
	"github.com/fyrsmithlabs/phasegate/internal/engine"
	"github.com/fyrsmithlabs/phasegate/internal/errdefs"
	"github.com/fyrsmithlabs/phasegate/internal/gate"
	"github.com/fyrsmithlabs/phasegate/internal/gitlog"
	"github.com/fyrsmithlabs/phasegate/internal/logging"
	"github.com/fyrsmithlabs/phasegate/internal/plan"
	"github.com/fyrsmithlabs/phasegate/internal/reconcile"
	"github.com/fyrsmithlabs/phasegate/internal/state"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps the engine error taxonomy to distinct exit codes so the
// surrounding agent tooling can branch on the failure class.
func exitCode(err error) int {
	var gateFailure *errdefs.GateFailure
	if errors.As(err, &gateFailure) {
		return 3
	}
	var validation *errdefs.ValidationError
	var notFound *errdefs.NotFoundError
	if errors.As(err, &validation) || errors.As(err, &notFound) {
		return 2
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "phasegate",
	Short: "Branch workflow governance: phases, cycles, deliverable gates",
	Long: `phasegate tracks which phase of the development workflow each git branch
is in, enforces ordered phase and cycle transitions, and gates transitions on
declared deliverables. Forced overrides are always available and always
audited.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .phasegate/config.yaml)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(transitionCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(planCmd)
}

// runtime bundles everything a command needs after setup.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	plans  *plan.Store
	engine *engine.Engine
}

// setup loads config and wires the stores, reconciler, gate engine, and
// transition engine together.
func setup() (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	plans := plan.NewStore(cfg.ResolvePath(cfg.PlanFile), logger)
	states := state.NewStore(cfg.ResolvePath(cfg.StateFile), logger)
	history := gitlog.NewRepoReader(cfg.WorkspaceRoot, cfg.Git.ScanTimeout.Duration())
	reconciler := reconcile.NewReconciler(plans, states, history, cfg.Git.CommitWindow, logger)
	gates := gate.NewEngine(plans, cfg.WorkspaceRoot, logger)

	eng, err := engine.NewEngine(&engine.Config{
		ImplementationPhase: cfg.Engine.ImplementationPhase,
	}, plans, states, gates, reconciler, logger)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, plans: plans, engine: eng}, nil
}

// printState renders a branch state for humans.
func printState(st *state.BranchState) {
	fmt.Printf("branch:        %s\n", st.Branch)
	fmt.Printf("issue:         %d\n", st.IssueID)
	fmt.Printf("workflow:      %s\n", st.WorkflowName)
	if st.ParentBranch != "" {
		fmt.Printf("parent branch: %s\n", st.ParentBranch)
	}
	fmt.Printf("current phase: %s\n", st.CurrentPhase)
	if st.CurrentCycle != nil {
		fmt.Printf("current cycle: %d\n", *st.CurrentCycle)
	}
	if st.LastCycle != nil {
		fmt.Printf("last cycle:    %d\n", *st.LastCycle)
	}
	if st.Reconstructed {
		fmt.Println("state was reconstructed from the plan and commit history; transition history is empty")
	}
	if last := st.LastTransition(); last != nil {
		forced := ""
		if last.Forced {
			forced = fmt.Sprintf(" (forced: %s, approved by %s)", last.SkipReason, last.HumanApproval)
		}
		fmt.Printf("last move:     %s -> %s at %s%s\n",
			last.FromPhase, last.ToPhase, last.Timestamp.Format("2006-01-02 15:04:05 MST"), forced)
	}
}
