// stages.go implements the `gantry stages` subcommand: print the
// resolved execution plan for a branch without running anything.
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gantry/internal/config"
	"github.com/mmr-tortoise/gantry/internal/engine"
	"github.com/mmr-tortoise/gantry/internal/git"
)

// NewStagesCommand creates the `stages` subcommand.
func NewStagesCommand() *cobra.Command {
	var (
		branch  string
		workdir string
	)

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Show the execution plan",
		Long: `Resolve and print the execution plan: stage order, parallel branch
names, and which branch-gated stages would run for the given branch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := pipelineFile
			if path == "" {
				var err error
				path, err = config.Locate(workdir)
				if err != nil {
					return err
				}
			}
			pipeline, err := config.Load(path)
			if err != nil {
				return err
			}

			if branch == "" {
				if ws, wsErr := git.Open(workdir); wsErr == nil {
					branch, _ = ws.CurrentBranch()
				}
			}

			plan := engine.Plan(pipeline, branch)
			printPlan(pipeline.Name, branch, plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch to plan for (default: the checked-out branch)")
	cmd.Flags().StringVarP(&workdir, "workdir", "C", ".", "Workspace directory to run in")
	return cmd
}

// printPlan outputs the plan in text or JSON format.
func printPlan(pipeline, branch string, plan []engine.PlannedStage) {
	if IsJSONOutput() {
		out := map[string]interface{}{
			"pipeline": pipeline,
			"branch":   branch,
			"stages":   plan,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Pipeline %q, planning for branch %q:\n", pipeline, branch)
	for i, stage := range plan {
		detail := stage.Kind
		if len(stage.Branches) > 0 {
			detail = fmt.Sprintf("parallel: %s", strings.Join(stage.Branches, ", "))
		}

		note := ""
		if !stage.WillRun {
			note = fmt.Sprintf("  [skipped: only %s]", strings.Join(stage.OnlyBranches, ", "))
		} else if stage.AllowFailure {
			note = "  [failure allowed]"
		}

		fmt.Printf("  %2d. %-24s %s%s\n", i+1, stage.Name, detail, note)
	}
}
