package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/checkd/internal/lifecycle"
)

var (
	// lifecycle command flags
	lcPromoteOnly bool
	lcDemoteOnly  bool
)

func init() {
	lifecycleCmd.Flags().BoolVar(&lcPromoteOnly, "promote-only", false, "run only the promotion pass")
	lifecycleCmd.Flags().BoolVar(&lcDemoteOnly, "demote-only", false, "run only the demotion pass")
	lifecycleCmd.MarkFlagsMutuallyExclusive("promote-only", "demote-only")
}

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Adapt rule severities from recorded violations",
	Long: `Scan the violation telemetry and adjust rule severities: rules whose
warnings recurred past their threshold inside their window are promoted
to error; promoted targets quiet for their full cooldown are demoted
back to warning. Mutations are written to the rule store.

Examples:
  # Run both passes
  checkd lifecycle

  # Only escalate
  checkd lifecycle --promote-only`,
	Args: cobra.NoArgs,
	RunE: runLifecycle,
}

func runLifecycle(cmd *cobra.Command, args []string) error {
	comps, err := newComponents()
	if err != nil {
		return fail(err)
	}

	engine, err := lifecycle.NewEngine(comps.store, comps.registry, comps.log, logger)
	if err != nil {
		return fail(err)
	}

	ctx := cmd.Context()
	var mutations int
	switch {
	case lcPromoteOnly:
		mutations, err = engine.RunPromotion(ctx)
	case lcDemoteOnly:
		mutations, err = engine.RunDemotion(ctx)
	default:
		mutations, err = engine.Run(ctx)
	}
	if err != nil {
		return fail(err)
	}

	fmt.Printf("%d rule mutation(s)\n", mutations)
	return nil
}
