// compose.go drives docker compose for the deploy stage.
//
// Compose is invoked as the modern plugin subcommand ("docker compose",
// not the legacy docker-compose binary). Multiple compose files merge
// in order, later files overriding earlier ones, which is how the
// deploy section layers an environment-specific override on the base
// stack definition.
package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// ComposeUp brings the stack up detached:
// `docker compose -p project -f f1 -f f2 up -d --remove-orphans`.
//
// envVars are injected into the compose process environment for
// variable substitution in the YAML (IMAGE_TAG, DB_TYPE and friends).
// --remove-orphans drops containers left over from services that were
// removed from the stack definition between deploys.
func ComposeUp(ctx context.Context, projectDir, project string, composeFiles []string, envVars map[string]string) error {
	args := composeArgs(project, composeFiles)
	args = append(args, "up", "-d", "--remove-orphans")
	return runCompose(ctx, projectDir, args, envVars)
}

// ComposeDown stops and removes the stack's containers and networks:
// `docker compose -p project -f ... down`. Volumes are kept — the
// deployed application's data outlives a redeploy.
func ComposeDown(ctx context.Context, projectDir, project string, composeFiles []string) error {
	args := composeArgs(project, composeFiles)
	args = append(args, "down")
	return runCompose(ctx, projectDir, args, nil)
}

// composeArgs builds the shared flag prefix for compose invocations.
func composeArgs(project string, composeFiles []string) []string {
	args := make([]string, 0, len(composeFiles)*2+4)
	args = append(args, "compose")
	if project != "" {
		args = append(args, "-p", project)
	}
	for _, f := range composeFiles {
		args = append(args, "-f", f)
	}
	return args
}

// runCompose executes a docker compose command as a child process in
// the given directory, with extra environment variables layered over
// the inherited environment. Compose resolves relative paths in the
// YAML against the working directory, so projectDir must be the
// workspace root.
func runCompose(ctx context.Context, projectDir string, args []string, envVars map[string]string) error {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = projectDir

	cmd.Env = os.Environ()
	for k, v := range envVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapCLIError(
			model.ExitDeployError,
			fmt.Sprintf("docker compose failed: %s", strings.TrimSpace(string(output))),
			err,
		)
	}
	return nil
}
