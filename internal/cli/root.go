// Package cli implements the cobra-based CLI commands for gantry.
//
// Each subcommand (run, validate, stages) is defined in its own file
// within this package. This file defines the root command that serves
// as the parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// Global flag variables shared across all subcommands, bound to cobra
// persistent flags on the root command.
var (
	// jsonOutput switches command output and logs to JSON.
	jsonOutput bool

	// verbose enables debug-level logging, including per-step command
	// output.
	verbose bool

	// pipelineFile is the path to the pipeline definition. Empty means
	// the default file names are probed in the workspace directory.
	pipelineFile string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package for --version output.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself performs no action — it provides help text
// and global flags. Functionality lives in the subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gantry",
		Short: "Declarative build-test-deploy pipeline runner",
		Long: `gantry executes a declarative pipeline definition (gantry.yaml) against
the current workspace: sequential and parallel shell stages, container
image build and push, compose-based deployment, and a post-deploy
health check, with branch gating and post-run cleanup.`,

		// We format errors ourselves (text or JSON), so cobra's own
		// usage/error printing is silenced.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&pipelineFile, "file", "f", "", "Path to the pipeline definition (default: gantry.yaml in the workspace)")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewStagesCommand())

	return rootCmd
}

// Execute runs the root command and translates errors into OS exit
// codes. CLIError values carry their own code; anything else exits 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		if cliErr, ok := err.(*model.CLIError); ok {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error in the format selected by --json.
// Errors always go to stderr; stdout is reserved for command output.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	if underlying != nil && verbose {
		fmt.Fprintf(os.Stderr, "  caused by: %v\n", underlying)
	}
}

// IsJSONOutput reports whether --json was passed.
func IsJSONOutput() bool {
	return jsonOutput
}
