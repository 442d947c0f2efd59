package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepo creates a temporary directory with an initialized Git
// repository containing a single commit on a known branch. A local
// user identity is configured so `git commit` works in CI environments
// without global Git config.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	runTestGit(t, dir, "init", "-b", "main")
	runTestGit(t, dir, "config", "user.email", "test@example.com")
	runTestGit(t, dir, "config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test Repo\n"), 0644))
	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "-m", "initial commit")

	return dir
}

// runTestGit runs a git command in dir and fails the test on a
// non-zero exit.
func runTestGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

// TestOpen verifies repository detection for both a valid repo and a
// plain directory.
func TestOpen(t *testing.T) {
	repo := setupTestRepo(t)

	ws, err := Open(repo)
	require.NoError(t, err)
	assert.Equal(t, repo, ws.Dir)

	_, err = Open(t.TempDir())
	assert.Error(t, err, "a plain directory is not a working tree")
}

// TestCurrentBranch covers the normal branch case and detached HEAD.
func TestCurrentBranch(t *testing.T) {
	repo := setupTestRepo(t)
	ws, err := Open(repo)
	require.NoError(t, err)

	branch, err := ws.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	// Detach HEAD: the branch name disappears and CurrentBranch
	// reports empty rather than the literal "HEAD".
	sha, err := ws.HeadSHA()
	require.NoError(t, err)
	runTestGit(t, repo, "checkout", "--detach", sha)

	branch, err = ws.CurrentBranch()
	require.NoError(t, err)
	assert.Empty(t, branch)
}

// TestHeadSHA verifies a short SHA is returned.
func TestHeadSHA(t *testing.T) {
	repo := setupTestRepo(t)
	ws, err := Open(repo)
	require.NoError(t, err)

	sha, err := ws.HeadSHA()
	require.NoError(t, err)
	assert.NotEmpty(t, sha)
	assert.LessOrEqual(t, len(sha), 12, "rev-parse --short should abbreviate")
}

// TestIsClean verifies clean/dirty detection.
func TestIsClean(t *testing.T) {
	repo := setupTestRepo(t)
	ws, err := Open(repo)
	require.NoError(t, err)

	clean, err := ws.IsClean()
	require.NoError(t, err)
	assert.True(t, clean, "a fresh commit leaves the tree clean")

	require.NoError(t, os.WriteFile(filepath.Join(repo, "dirty.txt"), []byte("x"), 0644))
	clean, err = ws.IsClean()
	require.NoError(t, err)
	assert.False(t, clean)
}

// TestCheckout verifies switching refs.
func TestCheckout(t *testing.T) {
	repo := setupTestRepo(t)
	ws, err := Open(repo)
	require.NoError(t, err)

	runTestGit(t, repo, "branch", "feature/auth")
	require.NoError(t, ws.Checkout("feature/auth"))

	branch, err := ws.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "feature/auth", branch)

	assert.Error(t, ws.Checkout("no-such-ref"))
}
