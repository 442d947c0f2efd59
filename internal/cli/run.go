// run.go implements the `gantry run` subcommand: execute the pipeline
// end to end and print the run report.
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gantry/internal/config"
	"github.com/mmr-tortoise/gantry/internal/docker"
	"github.com/mmr-tortoise/gantry/internal/engine"
	"github.com/mmr-tortoise/gantry/internal/git"
	"github.com/mmr-tortoise/gantry/internal/logging"
	"github.com/mmr-tortoise/gantry/internal/model"
)

// NewRunCommand creates the `run` subcommand.
func NewRunCommand() *cobra.Command {
	var (
		branch      string
		buildNumber string
		workdir     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the pipeline",
		Long: `Execute the pipeline definition against the workspace.

The branch and build number come from flags, the GANTRY_/conventional
CI environment variables, or (for the branch) the Git workspace, in
that order of precedence. Stages gated on other branches are skipped;
a failing stage halts the run; post actions always execute.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, workdir, branch, buildNumber)
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch to run as (default: BRANCH_NAME or the checked-out branch)")
	cmd.Flags().StringVar(&buildNumber, "build-number", "", "Build number for the image tag (default: BUILD_NUMBER or 0)")
	cmd.Flags().StringVarP(&workdir, "workdir", "C", ".", "Workspace directory to run in")

	return cmd
}

// runPipeline wires settings, definition, Docker client and engine
// together for one run.
func runPipeline(cmd *cobra.Command, workdir, branch, buildNumber string) error {
	logger := logging.New(verbose, jsonOutput)

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	// Flags beat environment.
	if branch != "" {
		settings.Branch = branch
	}
	if buildNumber != "" {
		settings.BuildNumber = buildNumber
	}

	// Best-effort branch resolution before the run, so branch gates on
	// stages preceding checkout evaluate correctly. The checkout stage
	// repeats this authoritatively.
	if settings.Branch == "" {
		if ws, wsErr := git.Open(workdir); wsErr == nil {
			if b, bErr := ws.CurrentBranch(); bErr == nil {
				settings.Branch = b
			}
		}
	}

	path := pipelineFile
	if path == "" {
		path, err = config.Locate(workdir)
		if err != nil {
			return err
		}
	}
	pipeline, err := config.Load(path)
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithWorkdir(workdir),
	}

	// The Docker client is optional: a pipeline without container
	// stages runs fine without a daemon. Failures here only disable
	// the daemon ping and the post-run prune.
	if cli, cliErr := docker.NewClient(); cliErr == nil {
		defer cli.Close()
		opts = append(opts, engine.WithDockerClient(cli))
	} else {
		logger.Debug().Err(cliErr).Msg("docker API client unavailable")
	}

	report, runErr := engine.New(pipeline, settings, opts...).Run(cmd.Context())
	printRunReport(report)
	return runErr
}

// printRunReport outputs the run report in text or JSON format.
func printRunReport(report *model.RunReport) {
	if report == nil {
		return
	}
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Pipeline %q  build #%s  branch %s\n", report.Pipeline, report.BuildNumber, report.Branch)
	for _, stage := range report.Stages {
		switch stage.Status {
		case model.StatusSkipped:
			fmt.Printf("  - %-24s skipped (%s)\n", stage.Name, stage.SkipReason)
		case model.StatusFailed:
			fmt.Printf("  ✗ %-24s failed after %s\n", stage.Name, roundDuration(stage.Duration))
			if stage.Error != "" {
				fmt.Printf("      %s\n", stage.Error)
			}
		default:
			fmt.Printf("  ✓ %-24s %s\n", stage.Name, roundDuration(stage.Duration))
		}
		for _, branch := range stage.Branches {
			marker := "✓"
			if branch.Status == model.StatusFailed {
				marker = "✗"
			}
			fmt.Printf("      %s %-20s %s\n", marker, branch.Name, roundDuration(branch.Duration))
		}
	}

	if len(report.ImageTags) > 0 {
		fmt.Println("  Image tags:")
		for _, tag := range report.ImageTags {
			fmt.Printf("    %s\n", tag)
		}
	}

	outcome := "succeeded"
	if !report.Succeeded {
		outcome = "failed"
	}
	fmt.Printf("Run %s in %s\n", outcome, roundDuration(report.Duration))
}

// roundDuration trims durations for display; sub-millisecond noise
// has no place in a build summary.
func roundDuration(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
