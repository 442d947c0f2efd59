// image.go implements the image build, login and push operations used
// by the build-image and push-image stages.
//
// These go through the docker CLI rather than the SDK: `docker build`
// brings BuildKit, .dockerignore handling and context upload semantics
// that the SDK's ImageBuild endpoint does not replicate without
// significant tar plumbing, and `docker login --password-stdin` is the
// documented safe way to pass registry credentials.
package docker

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// OCI annotation keys applied to built images. Carrying the source
// revision and build number on the image makes `docker image inspect`
// answer "what is running" without consulting build logs.
const (
	labelRevision    = "org.opencontainers.image.revision"
	labelRefName     = "org.opencontainers.image.ref.name"
	labelBuildNumber = "com.mmr-tortoise.gantry.build-number"
)

// BuildOptions parameterizes an image build.
type BuildOptions struct {
	// Ref is the image the build produces.
	Ref model.ImageRef

	// BuildNumber seeds the unique tag. Tags applied are exactly
	// Ref.Tags(BuildNumber): the numeric tag and "latest".
	BuildNumber string

	// ContextDir is the docker build context.
	ContextDir string

	// Dockerfile is the Dockerfile path relative to the context.
	Dockerfile string

	// Branch and Commit are recorded as OCI labels when non-empty.
	Branch string
	Commit string

	// BuildArgs are forwarded via --build-arg.
	BuildArgs map[string]string
}

// BuildImage runs `docker build` for the given options and returns the
// full list of tags applied, in order.
//
// Both the build-number tag and the latest tag are passed as -t flags
// on the same build, so the two tags always reference the same image
// ID — there is no tag-then-retag window.
func BuildImage(ctx context.Context, opts BuildOptions) ([]string, error) {
	if err := opts.Ref.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "invalid image reference", err)
	}

	tags := opts.Ref.Tags(opts.BuildNumber)
	args := buildArgs(opts, tags)

	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("docker build failed: %s", lastLines(string(output), 15)),
			err,
		)
	}
	return tags, nil
}

// buildArgs assembles the docker build argument list. Split out from
// BuildImage so tests can verify flag construction without a daemon.
func buildArgs(opts BuildOptions, tags []string) []string {
	// docker resolves -f relative to the process working directory, not
	// the context, so a relative Dockerfile is anchored in the context
	// here.
	dockerfile := opts.Dockerfile
	if !filepath.IsAbs(dockerfile) {
		dockerfile = filepath.Join(opts.ContextDir, dockerfile)
	}

	args := []string{"build", "-f", dockerfile}
	for _, tag := range tags {
		args = append(args, "-t", tag)
	}

	if opts.Commit != "" {
		args = append(args, "--label", labelRevision+"="+opts.Commit)
	}
	if opts.Branch != "" {
		args = append(args, "--label", labelRefName+"="+opts.Branch)
	}
	args = append(args, "--label", labelBuildNumber+"="+opts.BuildNumber)

	// Sorted iteration is not needed here: docker build flags are
	// order-insensitive, and map order only affects log noise.
	for k, v := range opts.BuildArgs {
		args = append(args, "--build-arg", k+"="+v)
	}

	return append(args, opts.ContextDir)
}

// Login authenticates the docker CLI against a registry. The password
// travels over stdin (--password-stdin); it never appears in the
// process argument list or the logs.
func Login(ctx context.Context, registry, user, password string) error {
	if user == "" || password == "" {
		return model.NewCLIError(
			model.ExitConfigError,
			"registry credentials not set (REGISTRY_USER / REGISTRY_PASSWORD)",
		)
	}

	cmd := exec.CommandContext(ctx, "docker", "login", "--username", user, "--password-stdin", registry)
	cmd.Stdin = strings.NewReader(password)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("docker login to %s failed: %s", registry, strings.TrimSpace(string(output))),
			err,
		)
	}
	return nil
}

// Push pushes a list of tags, stopping at the first failure.
func Push(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		cmd := exec.CommandContext(ctx, "docker", "push", tag)
		output, err := cmd.CombinedOutput()
		if err != nil {
			return model.WrapCLIError(
				model.ExitDockerNotRunning,
				fmt.Sprintf("docker push %s failed: %s", tag, lastLines(string(output), 5)),
				err,
			)
		}
	}
	return nil
}

// lastLines returns the trailing n lines of s. Build and push output
// can run to thousands of lines; the failure is at the end.
func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
