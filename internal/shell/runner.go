// Package shell executes pipeline steps as child shell processes.
//
// Every non-built-in stage in a pipeline definition is a list of shell
// command lines. The Runner executes them through `sh -c`, captures
// combined stdout/stderr for the run report, and respects context
// cancellation so a pipeline timeout kills in-flight commands.
package shell

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// maxCapturedOutput bounds how much combined output is kept per step in
// the run report. The full output still reaches the debug log; the
// report keeps only the tail, which is where failure diagnostics
// usually are.
const maxCapturedOutput = 4096

// Runner executes shell steps with a fixed working directory and
// environment. One Runner is built per stage (or parallel branch), so
// stage-level dir/env apply to every step uniformly.
type Runner struct {
	// Dir is the working directory for every step. Empty means the
	// current process working directory.
	Dir string

	// Env holds extra environment variables appended to the process
	// environment for every step.
	Env map[string]string

	// Logger receives one info line per step and the command output at
	// debug level.
	Logger zerolog.Logger
}

// Run executes a single command line via `sh -c` and returns its result.
//
// A non-zero exit code yields both a populated StepResult and a non-nil
// error, so callers can record the result and decide whether the
// failure halts the stage. Context cancellation (pipeline timeout)
// surfaces as the context error.
func (r *Runner) Run(ctx context.Context, command string) (model.StepResult, error) {
	r.Logger.Info().Str("cmd", command).Msg("running step")

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.Dir

	// Inherit the process environment and layer the stage env on top.
	// os.Environ returns a copy, so this never mutates our own env.
	cmd.Env = os.Environ()
	for k, v := range r.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	text := strings.TrimSpace(string(output))
	if text != "" {
		r.Logger.Debug().Str("cmd", command).Msg(text)
	}

	result := model.StepResult{
		Command:  command,
		Output:   tail(text, maxCapturedOutput),
		Duration: elapsed,
	}

	if err != nil {
		result.ExitCode = exitCodeOf(err)
		// Prefer the context error when the command died because the
		// pipeline deadline expired — "signal: killed" alone is not a
		// useful diagnosis.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, err
	}
	return result, nil
}

// RunAll executes steps in order, stopping at the first failure.
// It always returns the results of the steps that ran, including the
// failed one.
func (r *Runner) RunAll(ctx context.Context, steps []string) ([]model.StepResult, error) {
	results := make([]model.StepResult, 0, len(steps))
	for _, step := range steps {
		res, err := r.Run(ctx, step)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RunAllSwallow executes steps in order, logging failures instead of
// returning them. Used for post `always` steps, which have "|| true"
// semantics: cleanup must not change the run outcome.
func (r *Runner) RunAllSwallow(ctx context.Context, steps []string) []model.StepResult {
	results := make([]model.StepResult, 0, len(steps))
	for _, step := range steps {
		res, err := r.Run(ctx, step)
		results = append(results, res)
		if err != nil {
			r.Logger.Warn().Str("cmd", step).Err(err).Msg("post step failed (ignored)")
		}
	}
	return results
}

// exitCodeOf extracts the process exit code from an exec error.
// Returns -1 when the process never ran or was killed by a signal.
func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// tail returns at most n trailing bytes of s, cutting at a line
// boundary where possible.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if idx := strings.IndexByte(s, '\n'); idx >= 0 && idx < len(s)-1 {
		s = s[idx+1:]
	}
	return s
}
