package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// clearSettingsEnv unsets every variable LoadSettings reads, so tests
// are insulated from the surrounding environment.
func clearSettingsEnv(t *testing.T) {
	t.Helper()
	names := []string{
		"GANTRY_BUILD_NUMBER", "GANTRY_BRANCH", "GANTRY_REGISTRY",
		"GANTRY_IMAGE_NAME", "GANTRY_REGISTRY_USER", "GANTRY_REGISTRY_PASSWORD",
		"GANTRY_NODE_VERSION", "GANTRY_DB_TYPE",
		"BUILD_NUMBER", "BRANCH_NAME", "DOCKER_REGISTRY", "IMAGE_NAME",
		"REGISTRY_USER", "REGISTRY_PASSWORD", "NODE_VERSION", "DB_TYPE",
	}
	for _, name := range names {
		t.Setenv(name, "")
	}
}

// TestLoadSettings_Defaults verifies zero-environment behavior: only
// the build number gets a default.
func TestLoadSettings_Defaults(t *testing.T) {
	clearSettingsEnv(t)

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "0", s.BuildNumber, "build number should default to 0")
	assert.Empty(t, s.Branch)
	assert.Empty(t, s.Registry)
}

// TestLoadSettings_ConventionalNames verifies the unprefixed CI
// variable names are honored.
func TestLoadSettings_ConventionalNames(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv("BUILD_NUMBER", "17")
	t.Setenv("BRANCH_NAME", "main")
	t.Setenv("DOCKER_REGISTRY", "registry.example.com")
	t.Setenv("IMAGE_NAME", "acme/webapp")
	t.Setenv("DB_TYPE", "postgres")

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "17", s.BuildNumber)
	assert.Equal(t, "main", s.Branch)
	assert.Equal(t, "registry.example.com", s.Registry)
	assert.Equal(t, "acme/webapp", s.ImageName)
	assert.Equal(t, "postgres", s.DBType)
}

// TestLoadSettings_PrefixedBeatsConventional verifies GANTRY_ variables
// take precedence over the conventional names.
func TestLoadSettings_PrefixedBeatsConventional(t *testing.T) {
	clearSettingsEnv(t)
	t.Setenv("BUILD_NUMBER", "17")
	t.Setenv("GANTRY_BUILD_NUMBER", "42")

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "42", s.BuildNumber, "GANTRY_BUILD_NUMBER should beat BUILD_NUMBER")
}

// TestSettingsImageRef verifies environment overrides of the image
// section from the definition.
func TestSettingsImageRef(t *testing.T) {
	spec := ImageSpec{Registry: "file.example.com", Repository: "file/app"}

	noOverride := (&Settings{}).ImageRef(spec)
	assert.Equal(t, model.ImageRef{Registry: "file.example.com", Repository: "file/app"}, noOverride)

	overridden := (&Settings{Registry: "env.example.com", ImageName: "env/app"}).ImageRef(spec)
	assert.Equal(t, model.ImageRef{Registry: "env.example.com", Repository: "env/app"}, overridden)
}
