// validate.go implements the `gantry validate` subcommand: parse and
// validate the pipeline definition without executing anything.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/gantry/internal/config"
)

// NewValidateCommand creates the `validate` subcommand.
func NewValidateCommand() *cobra.Command {
	var workdir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline definition",
		Long: `Parse the pipeline definition, apply defaults and run structural
validation. Exits non-zero with a description of the first problem
found; prints a short confirmation when the definition is valid.`,
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

			if IsJSONOutput() {
				out := map[string]interface{}{
					"valid":    true,
					"file":     path,
					"pipeline": pipeline.Name,
					"stages":   len(pipeline.Stages),
				}
				data, _ := json.MarshalIndent(out, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("%s: pipeline %q is valid (%d stages, timeout %s)\n",
				path, pipeline.Name, len(pipeline.Stages), pipeline.Timeout.Std())
			return nil
		},
	}

	cmd.Flags().StringVarP(&workdir, "workdir", "C", ".", "Workspace directory to look for the definition in")
	return cmd
}
