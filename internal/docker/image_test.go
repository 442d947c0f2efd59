package docker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// TestBuildArgs verifies flag construction for docker build: both tags
// on one invocation, labels for provenance, build args, and the
// context directory last.
func TestBuildArgs(t *testing.T) {
	opts := BuildOptions{
		Ref:         model.ImageRef{Registry: "reg.example.com", Repository: "acme/webapp"},
		BuildNumber: "42",
		ContextDir:  "/work",
		Dockerfile:  "Dockerfile",
		Branch:      "main",
		Commit:      "abc1234",
		BuildArgs:   map[string]string{"NODE_ENV": "production"},
	}
	tags := opts.Ref.Tags(opts.BuildNumber)

	args := buildArgs(opts, tags)

	joined := strings.Join(args, " ")
	assert.Equal(t, "build", args[0])
	assert.Equal(t, "/work", args[len(args)-1], "the context directory must be the final argument")

	// Both tags ride the same build, so they always share an image ID.
	assert.Contains(t, joined, "-t reg.example.com/acme/webapp:42")
	assert.Contains(t, joined, "-t reg.example.com/acme/webapp:latest")

	assert.Contains(t, joined, "--label org.opencontainers.image.revision=abc1234")
	assert.Contains(t, joined, "--label org.opencontainers.image.ref.name=main")
	assert.Contains(t, joined, "--build-arg NODE_ENV=production")
}

// TestBuildArgs_NoProvenance verifies the revision/ref labels are
// omitted when checkout never resolved them.
func TestBuildArgs_NoProvenance(t *testing.T) {
	opts := BuildOptions{
		Ref:         model.ImageRef{Repository: "webapp"},
		BuildNumber: "7",
		ContextDir:  ".",
		Dockerfile:  "Dockerfile",
	}

	args := buildArgs(opts, opts.Ref.Tags(opts.BuildNumber))

	joined := strings.Join(args, " ")
	assert.NotContains(t, joined, "org.opencontainers.image.revision")
	assert.NotContains(t, joined, "org.opencontainers.image.ref.name")
	assert.Contains(t, joined, labelBuildNumber+"=7", "the build number label is always present")
}

// TestLogin_MissingCredentials verifies the push stage fails cleanly
// when credentials were never provided, without invoking docker.
func TestLogin_MissingCredentials(t *testing.T) {
	err := Login(t.Context(), "reg.example.com", "", "")

	require.Error(t, err)
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

// TestLastLines verifies output trimming keeps the end of long build logs.
func TestLastLines(t *testing.T) {
	long := "one\ntwo\nthree\nfour\nfive"
	assert.Equal(t, "four\nfive", lastLines(long, 2))
	assert.Equal(t, long, lastLines(long, 10), "short output passes through untouched")
	assert.Equal(t, "", lastLines("   \n ", 3))
}
