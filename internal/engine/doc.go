// Package engine executes a pipeline definition.
//
// The engine walks the declared stages strictly in order. A stage is
// either a list of shell steps, a set of parallel branches (fanned out
// with errgroup), or a built-in kind (checkout, setup, build-image,
// push-image, deploy, health-check, security-scan) with dedicated
// semantics. A failing stage halts every subsequent stage unless the
// stage allows failure; branch-gated stages are skipped, not executed,
// when the current branch does not match.
//
// The whole run is bounded by the pipeline timeout. Post actions run
// after the stage walk on a fresh context, so cleanup still happens
// when the run was cancelled by its own deadline: `always` steps and
// the Docker prune run regardless of outcome and swallow their own
// failures, then the success or failure list runs depending on the
// result.
package engine
