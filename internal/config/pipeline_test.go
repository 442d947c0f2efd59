package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleYAML is a minimal but representative pipeline definition,
// exercising parallel branches, branch gates and the built-in stages.
const sampleYAML = `
name: webapp
timeout: 25m
environment:
  CI: "true"
stages:
  - name: checkout
    uses: checkout
  - name: install
    parallel:
      - name: server
        dir: server
        steps: ["npm ci"]
      - name: client
        dir: client
        steps: ["npm ci"]
  - name: tests
    dir: server
    steps: ["npm test"]
  - name: build image
    uses: build-image
  - name: push
    uses: push-image
    only_branches: [main]
  - name: deploy
    uses: deploy
    only_branches: [main]
  - name: health
    uses: health-check
    only_branches: [main]
image:
  registry: registry.example.com
  repository: acme/webapp
deploy:
  compose_files: [docker-compose.yml]
  ports: [3000]
health:
  url: http://localhost:3000/health
post:
  always: ["rm -rf tmp"]
  prune: true
`

// writeDefinition writes content to a file in a temp dir and returns
// its path.
func writeDefinition(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoad verifies a YAML definition decodes with defaults applied.
func TestLoad(t *testing.T) {
	p, err := Load(writeDefinition(t, "gantry.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "webapp", p.Name)
	assert.Equal(t, 25*time.Minute, p.Timeout.Std())
	assert.Len(t, p.Stages, 7)

	// Defaults fill the omitted fields.
	assert.Equal(t, ".", p.Image.Context)
	assert.Equal(t, "Dockerfile", p.Image.Dockerfile)
	assert.Equal(t, DefaultHealthAttempts, p.Health.Attempts)
	assert.Equal(t, DefaultHealthInterval, p.Health.Interval.Std())
	assert.Equal(t, "webapp", p.Deploy.Project, "project should default to the pipeline name")

	install := p.Stages[1]
	require.Len(t, install.Parallel, 2)
	assert.Equal(t, "server", install.Parallel[0].Name)
	assert.Equal(t, "client", install.Parallel[1].Name)

	push := p.Stages[4]
	assert.Equal(t, []string{"main"}, push.OnlyBranches)
}

// TestLoad_TimeoutDefault verifies the 30-minute default when the
// definition omits a timeout.
func TestLoad_TimeoutDefault(t *testing.T) {
	p, err := Load(writeDefinition(t, "gantry.yaml", `
name: minimal
stages:
  - name: hello
    steps: ["echo hello"]
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, p.Timeout.Std())
}

// TestLoad_JSONC verifies a JSONC definition (comments and trailing
// commas) decodes to the same pipeline as its YAML equivalent.
func TestLoad_JSONC(t *testing.T) {
	jsoncDef := `{
  // web application pipeline
  "name": "webapp",
  "stages": [
    {"name": "hello", "steps": ["echo hello"],}, // trailing comma on purpose
  ],
}`
	yamlDef := `
name: webapp
stages:
  - name: hello
    steps: ["echo hello"]
`

	fromJSONC, err := Load(writeDefinition(t, "gantry.jsonc", jsoncDef))
	require.NoError(t, err)
	fromYAML, err := Load(writeDefinition(t, "gantry.yaml", yamlDef))
	require.NoError(t, err)

	assert.Equal(t, fromYAML, fromJSONC, "JSONC and YAML definitions should decode identically")
}

// TestLoad_MissingFile returns a config error, not a panic.
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// TestValidate_Errors exercises the structural validation rules.
func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no stages",
			yaml:    "name: empty\nstages: []\n",
			wantErr: "at least one stage",
		},
		{
			name: "duplicate stage names",
			yaml: `
name: dup
stages:
  - name: build
    steps: ["true"]
  - name: build
    steps: ["true"]
`,
			wantErr: "duplicate stage name",
		},
		{
			name: "steps and parallel together",
			yaml: `
name: both
stages:
  - name: confused
    steps: ["true"]
    parallel:
      - name: a
        steps: ["true"]
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "empty stage body",
			yaml: `
name: hollow
stages:
  - name: nothing
`,
			wantErr: "one of uses, steps or parallel",
		},
		{
			name: "unknown builtin",
			yaml: `
name: unknown
stages:
  - name: mystery
    uses: teleport
`,
			wantErr: "unknown built-in stage kind",
		},
		{
			name: "build-image without repository",
			yaml: `
name: noimage
stages:
  - name: build
    uses: build-image
`,
			wantErr: "image.repository",
		},
		{
			name: "deploy without compose files",
			yaml: `
name: nodeploy
stages:
  - name: deploy
    uses: deploy
`,
			wantErr: "deploy.compose_files",
		},
		{
			name: "health-check without url",
			yaml: `
name: nohealth
stages:
  - name: health
    uses: health-check
`,
			wantErr: "health.url",
		},
		{
			name: "parallel branch without steps",
			yaml: `
name: emptybranch
stages:
  - name: install
    parallel:
      - name: server
`,
			wantErr: "must declare steps",
		},
		{
			name: "ref outside checkout",
			yaml: `
name: badref
stages:
  - name: tests
    steps: ["true"]
    ref: release
`,
			wantErr: "ref is only valid",
		},
		{
			name: "port out of range",
			yaml: `
name: badport
stages:
  - name: hello
    steps: ["true"]
deploy:
  compose_files: [docker-compose.yml]
  ports: [70000]
`,
			wantErr: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeDefinition(t, "gantry.yaml", tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestLocate probes the default file names in order.
func TestLocate(t *testing.T) {
	dir := t.TempDir()
	_, err := Locate(dir)
	assert.Error(t, err, "empty directory should yield a config error")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "gantry.yml"), []byte("x"), 0644))
	path, err := Locate(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gantry.yml"), path)

	// A gantry.yaml takes precedence over gantry.yml.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gantry.yaml"), []byte("x"), 0644))
	path, err = Locate(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gantry.yaml"), path)
}

// TestDurationUnmarshal covers duration strings and bare integers
// (interpreted as seconds).
func TestDurationUnmarshal(t *testing.T) {
	p, err := Load(writeDefinition(t, "gantry.yaml", `
name: durations
timeout: 90s
stages:
  - name: hello
    steps: ["true"]
health:
  url: http://localhost/health
  interval: 2
`))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, p.Timeout.Std())
	assert.Equal(t, 2*time.Second, p.Health.Interval.Std())
}

// TestStageGatedFor verifies branch gate evaluation.
func TestStageGatedFor(t *testing.T) {
	ungated := Stage{Name: "tests"}
	assert.True(t, ungated.GatedFor("main"))
	assert.True(t, ungated.GatedFor(""))

	gated := Stage{Name: "deploy", OnlyBranches: []string{"main", "release"}}
	assert.True(t, gated.GatedFor("main"))
	assert.True(t, gated.GatedFor("release"))
	assert.False(t, gated.GatedFor("feature/auth"))
	assert.False(t, gated.GatedFor(""), "detached HEAD matches no gate")
}
