// Package git provides the Git operations the checkout stage needs.
//
// It shells out to the `git` CLI rather than using a Go Git library:
// the pipeline runs inside an existing clone prepared by the developer
// or the surrounding automation, and the only operations required are
// metadata queries (branch, HEAD) plus an optional ref checkout — all
// of which the CLI answers authoritatively.
//
// All errors from Git commands are wrapped in model.CLIError with
// ExitGitError so the CLI exits with the Git-specific status.
package git

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// Workspace is a handle to a local Git working tree.
type Workspace struct {
	// Dir is the working tree root, used as the git working directory.
	Dir string
}

// Open verifies that dir is inside a Git working tree and returns a
// Workspace handle for it.
func Open(dir string) (*Workspace, error) {
	w := &Workspace{Dir: dir}
	out, err := w.run("rev-parse", "--is-inside-work-tree")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) != "true" {
		return nil, model.NewCLIError(
			model.ExitGitError,
			fmt.Sprintf("%s is not inside a Git working tree", dir),
		)
	}
	return w, nil
}

// CurrentBranch returns the short name of the checked-out branch.
// Returns an empty string in detached HEAD state, where no branch name
// exists; callers gate stages on the branch, and a detached workspace
// matches no gate.
func (w *Workspace) CurrentBranch() (string, error) {
	out, err := w.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		// rev-parse prints the literal string "HEAD" when detached.
		return "", nil
	}
	return branch, nil
}

// HeadSHA returns the abbreviated SHA of the current HEAD commit.
func (w *Workspace) HeadSHA() (string, error) {
	out, err := w.run("rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Checkout switches the working tree to the given ref (branch, tag or
// commit). Used when the pipeline definition pins a ref for the
// checkout stage; a plain run leaves the tree as-is.
func (w *Workspace) Checkout(ref string) error {
	_, err := w.run("checkout", ref)
	return err
}

// IsClean reports whether the working tree has no uncommitted changes.
// The checkout stage logs a warning for dirty trees — a build from a
// dirty tree is reproducible only by accident.
func (w *Workspace) IsClean() (bool, error) {
	out, err := w.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

// run executes a git command in the workspace directory and returns
// its combined output. On failure the output is folded into the error
// message, since git writes its diagnostics to stderr.
func (w *Workspace) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = w.Dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitGitError,
			fmt.Sprintf("git %s failed: %s",
				strings.Join(args, " "),
				strings.TrimSpace(string(output))),
			err,
		)
	}
	return string(output), nil
}
