// Package docker provides the container-side operations of a pipeline
// run: image build/tag/push, compose stack deployment, and post-run
// resource pruning.
//
// Two access paths are used deliberately:
//   - The Docker Engine SDK (github.com/docker/docker/client) for
//     daemon ping, image inspection and pruning — API calls with
//     structured results.
//   - The docker CLI via os/exec for build, login, push and compose,
//     where the CLI's behavior (BuildKit, credential handling, compose
//     file merging) is the contract the pipeline author expects.
//
// The client handles automatic Docker socket detection across Linux,
// macOS and Windows, with DOCKER_HOST taking precedence when set.
package docker
