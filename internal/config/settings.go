package config

import (
	"os"

	"github.com/kelseyhightower/envconfig"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// Settings holds the run parameters supplied by the surrounding
// environment rather than the pipeline definition: the CI-style
// variables a host would inject into a build (build number, branch,
// registry coordinates, credentials).
//
// Values are read with the GANTRY_ prefix first (GANTRY_BUILD_NUMBER,
// GANTRY_BRANCH, ...), then backfilled from the conventional CI names
// so gantry drops into existing environments without renaming anything.
type Settings struct {
	// BuildNumber seeds the unique image tag. Defaults to "0" when the
	// environment provides nothing and no flag is given.
	BuildNumber string `envconfig:"BUILD_NUMBER"`

	// Branch is the branch the run executes against. When empty, the
	// run command resolves it from the Git workspace.
	Branch string `envconfig:"BRANCH"`

	// Registry overrides image.registry from the definition.
	Registry string `envconfig:"REGISTRY"`

	// ImageName overrides image.repository from the definition.
	ImageName string `envconfig:"IMAGE_NAME"`

	// RegistryUser and RegistryPassword authenticate the push stage.
	// The password is written to docker login over stdin, never passed
	// as an argument.
	RegistryUser     string `envconfig:"REGISTRY_USER"`
	RegistryPassword string `envconfig:"REGISTRY_PASSWORD"`

	// NodeVersion is the expected major Node.js version. When set, the
	// setup stage checks `node --version` against it.
	NodeVersion string `envconfig:"NODE_VERSION"`

	// DBType is forwarded to the compose deploy environment (the stack
	// templates select a database service on it).
	DBType string `envconfig:"DB_TYPE"`
}

// LoadSettings reads Settings from the process environment.
//
// Precedence per field: GANTRY_<NAME> beats the conventional name,
// which beats the zero value. Flag overrides are applied by the CLI
// layer after this returns.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("gantry", &s); err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			"failed to read settings from environment",
			err,
		)
	}

	// Backfill from the conventional CI variable names.
	fallback(&s.BuildNumber, "BUILD_NUMBER")
	fallback(&s.Branch, "BRANCH_NAME")
	fallback(&s.Registry, "DOCKER_REGISTRY")
	fallback(&s.ImageName, "IMAGE_NAME")
	fallback(&s.RegistryUser, "REGISTRY_USER")
	fallback(&s.RegistryPassword, "REGISTRY_PASSWORD")
	fallback(&s.NodeVersion, "NODE_VERSION")
	fallback(&s.DBType, "DB_TYPE")

	if s.BuildNumber == "" {
		s.BuildNumber = "0"
	}
	return &s, nil
}

// fallback assigns the named environment variable to dst if dst is
// still empty and the variable is set.
func fallback(dst *string, name string) {
	if *dst != "" {
		return
	}
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

// ImageRef combines the definition's image section with environment
// overrides into the final image reference.
func (s *Settings) ImageRef(spec ImageSpec) model.ImageRef {
	ref := model.ImageRef{
		Registry:   spec.Registry,
		Repository: spec.Repository,
	}
	if s.Registry != "" {
		ref.Registry = s.Registry
	}
	if s.ImageName != "" {
		ref.Repository = s.ImageName
	}
	return ref
}
