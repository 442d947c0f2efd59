// builtin.go implements the stages with dedicated semantics: checkout,
// setup, build-image, push-image, deploy, health-check and the
// security-scan placeholder. Everything else in a pipeline is plain
// shell steps handled by engine.go.
package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mmr-tortoise/gantry/internal/config"
	"github.com/mmr-tortoise/gantry/internal/docker"
	"github.com/mmr-tortoise/gantry/internal/git"
	"github.com/mmr-tortoise/gantry/internal/health"
	"github.com/mmr-tortoise/gantry/internal/model"
)

// execBuiltin dispatches a `uses:` stage to its implementation.
// Validate has already rejected unknown kinds, so the default arm is
// a programming-error guard, not a user-facing path.
func (e *Engine) execBuiltin(ctx context.Context, stage *config.Stage, result *model.StageResult, logger zerolog.Logger) error {
	switch stage.Uses {
	case config.KindCheckout:
		return e.stageCheckout(stage, logger)
	case config.KindSetup:
		return e.stageSetup(ctx, logger)
	case config.KindBuildImage:
		return e.stageBuildImage(ctx, logger)
	case config.KindPushImage:
		return e.stagePushImage(ctx, logger)
	case config.KindDeploy:
		return e.stageDeploy(ctx, logger)
	case config.KindHealthCheck:
		return e.stageHealthCheck(ctx, logger)
	case config.KindSecurityScan:
		logger.Info().Msg("no scanner configured, skipping image scan")
		return nil
	default:
		return fmt.Errorf("unknown built-in stage kind %q", stage.Uses)
	}
}

// stageCheckout resolves the workspace's Git metadata, switching to a
// pinned ref first when the stage declares one. When no branch was
// supplied via flag or environment, the checked-out branch becomes the
// effective branch for gating.
func (e *Engine) stageCheckout(stage *config.Stage, logger zerolog.Logger) error {
	ws, err := git.Open(e.workdir)
	if err != nil {
		return err
	}

	if stage.Ref != "" {
		if err := ws.Checkout(stage.Ref); err != nil {
			return err
		}
		logger.Info().Str("ref", stage.Ref).Msg("checked out pinned ref")
	}

	if e.branch == "" {
		branch, err := ws.CurrentBranch()
		if err != nil {
			return err
		}
		e.branch = branch
	}

	commit, err := ws.HeadSHA()
	if err != nil {
		return err
	}
	e.commit = commit

	clean, err := ws.IsClean()
	if err != nil {
		return err
	}
	if !clean {
		logger.Warn().Msg("working tree has uncommitted changes; build is not reproducible")
	}

	logger.Info().Str("branch", e.branch).Str("commit", commit).Msg("workspace resolved")
	return nil
}

// requiredTools are probed by the setup stage. Each entry is the
// command line that prints the tool's version.
var requiredTools = [][]string{
	{"node", "--version"},
	{"npm", "--version"},
	{"docker", "--version"},
}

// stageSetup verifies the external toolchain is present and, when a
// Docker API client is wired, that the daemon answers. Failing here
// costs seconds; failing at the image-build stage costs the whole
// preceding build.
func (e *Engine) stageSetup(ctx context.Context, logger zerolog.Logger) error {
	for _, tool := range requiredTools {
		version, err := toolVersion(ctx, tool[0], tool[1:]...)
		if err != nil {
			return model.WrapCLIError(
				model.ExitToolMissing,
				fmt.Sprintf("required tool %q not found on PATH", tool[0]),
				err,
			)
		}
		logger.Info().Str("tool", tool[0]).Str("version", version).Msg("tool present")

		if tool[0] == "node" && e.settings.NodeVersion != "" {
			if !nodeVersionMatches(version, e.settings.NodeVersion) {
				return model.NewCLIError(
					model.ExitToolMissing,
					fmt.Sprintf("node %s found, but NODE_VERSION requires major version %s", version, e.settings.NodeVersion),
				)
			}
		}
	}

	if e.docker != nil {
		if err := e.docker.Ping(ctx); err != nil {
			return err
		}
		logger.Info().Msg("docker daemon responding")
	}
	return nil
}

// toolVersion runs a version command and returns its trimmed first line.
func toolVersion(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

// nodeVersionMatches checks a `node --version` string (e.g. "v18.19.0")
// against a required major version (e.g. "18").
func nodeVersionMatches(version, requiredMajor string) bool {
	version = strings.TrimPrefix(version, "v")
	major, _, _ := strings.Cut(version, ".")
	return major == requiredMajor
}

// stageBuildImage builds the container image and records the applied
// tags for the push stage and the report.
func (e *Engine) stageBuildImage(ctx context.Context, logger zerolog.Logger) error {
	ref := e.settings.ImageRef(e.cfg.Image)
	tags, err := docker.BuildImage(ctx, docker.BuildOptions{
		Ref:         ref,
		BuildNumber: e.settings.BuildNumber,
		ContextDir:  e.contextDir(),
		Dockerfile:  e.cfg.Image.Dockerfile,
		Branch:      e.branch,
		Commit:      e.commit,
		BuildArgs:   e.cfg.Image.BuildArgs,
	})
	if err != nil {
		return err
	}

	e.imageTags = tags
	logger.Info().Strs("tags", tags).Msg("image built")
	return nil
}

// contextDir resolves the build context relative to the workspace.
func (e *Engine) contextDir() string {
	if e.cfg.Image.Context == "." || e.cfg.Image.Context == "" {
		return e.workdir
	}
	return filepath.Join(e.workdir, e.cfg.Image.Context)
}

// stagePushImage logs in to the registry and pushes every tag the
// build stage applied. It refuses to run before a build: pushing a
// stale "latest" from a previous run would silently deploy old code.
func (e *Engine) stagePushImage(ctx context.Context, logger zerolog.Logger) error {
	if len(e.imageTags) == 0 {
		return fmt.Errorf("no image built in this run; declare a build-image stage before push-image")
	}

	ref := e.settings.ImageRef(e.cfg.Image)
	if ref.Registry == "" {
		return model.NewCLIError(
			model.ExitConfigError,
			"no registry configured (image.registry or DOCKER_REGISTRY)",
		)
	}

	if err := docker.Login(ctx, ref.Registry, e.settings.RegistryUser, e.settings.RegistryPassword); err != nil {
		return err
	}
	if err := docker.Push(ctx, e.imageTags); err != nil {
		return err
	}

	logger.Info().Strs("tags", e.imageTags).Str("registry", ref.Registry).Msg("image pushed")
	return nil
}

// stageDeploy preflights the published host ports, then brings the
// compose stack up with the run's substitution variables.
func (e *Engine) stageDeploy(ctx context.Context, logger zerolog.Logger) error {
	if err := e.scanner.CheckFree(e.freshPorts(ctx)); err != nil {
		return model.WrapCLIError(model.ExitDeployError, "deploy preflight failed", err)
	}

	env := mergeMaps(e.cfg.Deploy.Env, map[string]string{
		"IMAGE_TAG": e.settings.BuildNumber,
	})
	if e.settings.DBType != "" {
		env["DB_TYPE"] = e.settings.DBType
	}

	if err := docker.ComposeUp(ctx, e.workdir, e.cfg.Deploy.Project, e.cfg.Deploy.ComposeFiles, env); err != nil {
		return err
	}

	logger.Info().Str("project", e.cfg.Deploy.Project).
		Strs("files", e.cfg.Deploy.ComposeFiles).Msg("compose stack up")
	return nil
}

// freshPorts returns the declared deploy ports that need a preflight
// check. When the target compose project is already running (a
// redeploy), its own containers hold the ports; compose will recreate
// them, so the preflight skips the check entirely in that case.
func (e *Engine) freshPorts(ctx context.Context) []int {
	if len(e.cfg.Deploy.Ports) == 0 {
		return nil
	}
	if e.docker != nil && e.projectRunning(ctx) {
		return nil
	}
	return e.cfg.Deploy.Ports
}

// projectRunning reports whether any container of the deploy project
// is currently up, via the compose project label.
func (e *Engine) projectRunning(ctx context.Context) bool {
	running, err := docker.ProjectContainers(ctx, e.docker, e.cfg.Deploy.Project)
	if err != nil {
		return false
	}
	return len(running) > 0
}

// stageHealthCheck probes the deployed application.
func (e *Engine) stageHealthCheck(ctx context.Context, logger zerolog.Logger) error {
	prober := &health.Prober{
		URL:      e.cfg.Health.URL,
		Attempts: e.cfg.Health.Attempts,
		Interval: e.cfg.Health.Interval.Std(),
		Timeout:  e.cfg.Health.Timeout.Std(),
		Logger:   logger,
	}
	return prober.Check(ctx)
}
