package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/gantry/internal/config"
	"github.com/mmr-tortoise/gantry/internal/docker"
	"github.com/mmr-tortoise/gantry/internal/model"
	"github.com/mmr-tortoise/gantry/internal/port"
	"github.com/mmr-tortoise/gantry/internal/shell"
)

// postTimeout bounds the post-action phase. Post actions run on a
// fresh context because the run context may already be past its
// deadline, but cleanup must not hang forever either.
const postTimeout = 5 * time.Minute

// Engine executes one pipeline run. It is single-use: construct,
// call Run once, read the report.
type Engine struct {
	cfg      *config.Pipeline
	settings *config.Settings
	logger   zerolog.Logger
	workdir  string
	docker   *docker.Client
	scanner  *port.Scanner

	// branch is the effective branch for gating. Seeded from settings,
	// refined by the checkout stage when settings leave it empty.
	branch string

	// commit is the short HEAD SHA resolved by the checkout stage.
	commit string

	// imageTags records the tags applied by the build-image stage, for
	// the push-image stage and the report.
	imageTags []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the root logger. Stage loggers derive from it.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithWorkdir sets the workspace directory steps execute in.
// Defaults to the current directory.
func WithWorkdir(dir string) Option {
	return func(e *Engine) { e.workdir = dir }
}

// WithDockerClient injects the Docker API client used by the setup
// ping and the post-run prune. Runs whose pipelines have no container
// stages can omit it.
func WithDockerClient(cli *docker.Client) Option {
	return func(e *Engine) { e.docker = cli }
}

// New creates an Engine for one run of the given pipeline.
func New(cfg *config.Pipeline, settings *config.Settings, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		settings: settings,
		logger:   zerolog.Nop(),
		workdir:  ".",
		scanner:  port.NewScanner(),
		branch:   settings.Branch,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the pipeline and returns the run report. The report is
// returned even on failure so callers can print it; the error carries
// the exit code.
func (e *Engine) Run(ctx context.Context) (*model.RunReport, error) {
	report := &model.RunReport{
		Pipeline:    e.cfg.Name,
		RunID:       uuid.NewString(),
		Branch:      e.branch,
		BuildNumber: e.settings.BuildNumber,
		StartedAt:   time.Now(),
	}

	e.logger.Info().
		Str("pipeline", e.cfg.Name).
		Str("run_id", report.RunID).
		Str("branch", e.branch).
		Str("build", e.settings.BuildNumber).
		Dur("timeout", e.cfg.Timeout.Std()).
		Msg("starting pipeline run")

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout.Std())
	defer cancel()

	halted := false
	var haltedAt model.StageResult
	for i := range e.cfg.Stages {
		stage := &e.cfg.Stages[i]
		result := model.StageResult{Name: stage.Name, Status: model.StatusSkipped}

		switch {
		case halted:
			result.SkipReason = "earlier stage failed"
			e.logger.Info().Str("stage", stage.Name).Msg("skipping stage: earlier stage failed")

		case !stage.GatedFor(e.branch):
			result.SkipReason = fmt.Sprintf("branch %q not in %v", e.branch, stage.OnlyBranches)
			e.logger.Info().Str("stage", stage.Name).Str("branch", e.branch).
				Msg("skipping stage: branch gate not matched")

		default:
			e.execStage(runCtx, stage, &result)
			if result.Failed() {
				if stage.AllowFailure {
					e.logger.Warn().Str("stage", stage.Name).
						Msg("stage failed but allows failure; continuing")
				} else {
					halted = true
				}
			}
		}

		report.Stages = append(report.Stages, result)
		if halted && haltedAt.Name == "" {
			haltedAt = result
		}
	}

	report.Succeeded = !halted
	report.Branch = e.branch
	report.Commit = e.commit
	report.ImageTags = e.imageTags

	e.runPost(report)
	report.Duration = time.Since(report.StartedAt)

	if !report.Succeeded {
		// haltedAt, not FailedStage: an earlier allow_failure stage may
		// also be in the failed state without having halted the run.
		return report, model.NewCLIError(
			model.ExitStageFailed,
			fmt.Sprintf("pipeline failed at stage %q: %s", haltedAt.Name, haltedAt.Error),
		)
	}

	e.logger.Info().Dur("duration", report.Duration).Msg("pipeline run succeeded")
	return report, nil
}

// execStage runs a single non-skipped stage and fills in its result.
func (e *Engine) execStage(ctx context.Context, stage *config.Stage, result *model.StageResult) {
	logger := e.logger.With().Str("stage", stage.Name).Logger()
	logger.Info().Msg("stage started")

	start := time.Now()
	result.Status = model.StatusRunning

	var err error
	switch {
	case stage.Uses != "":
		err = e.execBuiltin(ctx, stage, result, logger)
	case len(stage.Parallel) > 0:
		err = e.execParallel(ctx, stage, result, logger)
	default:
		err = e.execSteps(ctx, stage, result, logger)
	}

	result.Duration = time.Since(start)
	if err != nil {
		result.Status = model.StatusFailed
		result.Error = err.Error()
		logger.Error().Err(err).Dur("duration", result.Duration).Msg("stage failed")
		return
	}
	result.Status = model.StatusSucceeded
	logger.Info().Dur("duration", result.Duration).Msg("stage succeeded")
}

// execSteps runs a sequential shell stage.
func (e *Engine) execSteps(ctx context.Context, stage *config.Stage, result *model.StageResult, logger zerolog.Logger) error {
	runner := e.runner(stage.Dir, stage.Env, logger)
	steps, err := runner.RunAll(ctx, stage.Steps)
	result.Steps = steps
	return err
}

// execParallel fans the stage's branches out on an errgroup. Every
// branch runs to completion even when a sibling fails — results would
// otherwise be incomplete — so the group deliberately does not carry a
// cancel-on-error context; only the pipeline deadline interrupts a
// branch. The first error decides the stage.
func (e *Engine) execParallel(ctx context.Context, stage *config.Stage, result *model.StageResult, logger zerolog.Logger) error {
	result.Branches = make([]model.StageResult, len(stage.Parallel))

	var g errgroup.Group
	for i := range stage.Parallel {
		branch := &stage.Parallel[i]
		branchResult := &result.Branches[i]
		branchResult.Name = branch.Name

		branchLogger := logger.With().Str("parallel", branch.Name).Logger()
		runner := e.runner(
			firstNonEmpty(branch.Dir, stage.Dir),
			mergeMaps(stage.Env, branch.Env),
			branchLogger,
		)

		g.Go(func() error {
			start := time.Now()
			steps, err := runner.RunAll(ctx, branch.Steps)
			branchResult.Steps = steps
			branchResult.Duration = time.Since(start)
			if err != nil {
				branchResult.Status = model.StatusFailed
				branchResult.Error = err.Error()
				return fmt.Errorf("branch %q: %w", branch.Name, err)
			}
			branchResult.Status = model.StatusSucceeded
			return nil
		})
	}
	return g.Wait()
}

// runPost executes the post-action phase. It never alters the run
// outcome: always-step and prune failures are logged and swallowed,
// and the conditional success/failure lists are swallowed too — they
// are notification hooks, and a failing notifier must not turn a green
// build red after the fact.
func (e *Engine) runPost(report *model.RunReport) {
	post := e.cfg.Post
	if len(post.Always) == 0 && len(post.Success) == 0 && len(post.Failure) == 0 && !post.Prune {
		return
	}

	logger := e.logger.With().Str("stage", "post").Logger()
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	runner := e.runner("", nil, logger)
	runner.RunAllSwallow(ctx, post.Always)

	if post.Prune && e.docker != nil {
		pruned, err := e.docker.Prune(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("docker prune failed (ignored)")
		} else {
			logger.Info().
				Int("containers", pruned.ContainersDeleted).
				Int("images", pruned.ImagesDeleted).
				Uint64("bytes", pruned.SpaceReclaimed).
				Msg("docker resources pruned")
		}
	}

	if report.Succeeded {
		runner.RunAllSwallow(ctx, post.Success)
	} else {
		runner.RunAllSwallow(ctx, post.Failure)
	}
}

// runner builds a shell runner for a stage or branch, layering the
// stage-level env over the pipeline environment and the standard
// per-run variables.
func (e *Engine) runner(dir string, env map[string]string, logger zerolog.Logger) *shell.Runner {
	workdir := e.workdir
	if dir != "" {
		workdir = filepath.Join(e.workdir, dir)
	}
	return &shell.Runner{
		Dir:    workdir,
		Env:    mergeMaps(e.cfg.Environment, e.stdEnv(), env),
		Logger: logger,
	}
}

// stdEnv is the set of per-run variables every step can rely on.
func (e *Engine) stdEnv() map[string]string {
	env := map[string]string{
		"BUILD_NUMBER": e.settings.BuildNumber,
		"BRANCH_NAME":  e.branch,
	}
	if e.commit != "" {
		env["GIT_COMMIT"] = e.commit
	}
	if e.settings.DBType != "" {
		env["DB_TYPE"] = e.settings.DBType
	}
	if e.settings.Registry != "" {
		env["DOCKER_REGISTRY"] = e.settings.Registry
	}
	if e.settings.NodeVersion != "" {
		env["NODE_VERSION"] = e.settings.NodeVersion
	}
	return env
}

// mergeMaps overlays maps left to right; later maps win. Nil maps are
// skipped. Always returns a fresh map.
func mergeMaps(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
