package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/gantry/internal/model"
)

// Default values applied by Load when the definition omits them.
const (
	// DefaultTimeout bounds the whole run. Thirty minutes is generous
	// for a build-test-deploy cycle of a typical web application.
	DefaultTimeout = 30 * time.Minute

	// DefaultHealthAttempts is the bounded retry budget for the
	// post-deploy HTTP probe.
	DefaultHealthAttempts = 3

	// DefaultHealthInterval is the pause between probe attempts.
	DefaultHealthInterval = 10 * time.Second

	// DefaultHealthTimeout bounds a single probe attempt.
	DefaultHealthTimeout = 5 * time.Second
)

// Built-in stage kinds. A stage that declares `uses:` with one of these
// names gets dedicated semantics from the engine instead of plain shell
// steps.
const (
	// KindCheckout resolves the workspace's branch and HEAD commit.
	KindCheckout = "checkout"

	// KindSetup probes the required external toolchain (node, npm,
	// docker) and fails fast when a tool is missing.
	KindSetup = "setup"

	// KindBuildImage builds the container image and applies both the
	// build-number tag and the latest tag.
	KindBuildImage = "build-image"

	// KindPushImage authenticates against the registry and pushes
	// every tag applied by the build stage.
	KindPushImage = "push-image"

	// KindDeploy runs the port preflight and brings the compose stack up.
	KindDeploy = "deploy"

	// KindHealthCheck probes the deployed application over HTTP with
	// a bounded retry budget.
	KindHealthCheck = "health-check"

	// KindSecurityScan is a named placeholder: the stage logs that
	// scanning is not configured and succeeds. It exists so pipeline
	// files can reserve the slot before wiring a real scanner.
	KindSecurityScan = "security-scan"
)

// knownKinds is the set of valid `uses:` values, used by Validate.
var knownKinds = map[string]bool{
	KindCheckout:     true,
	KindSetup:        true,
	KindBuildImage:   true,
	KindPushImage:    true,
	KindDeploy:       true,
	KindHealthCheck:  true,
	KindSecurityScan: true,
}

// Duration wraps time.Duration with YAML support for strings like
// "30m" or "10s". yaml.v3 has no native duration decoding.
type Duration time.Duration

// UnmarshalYAML decodes a duration from a YAML scalar. Accepts
// time.ParseDuration strings ("90s", "1h30m") and bare integers,
// interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	// Bare integers come through as strings here; try ParseDuration
	// first and fall back to seconds for plain numbers.
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		var secs int
		if err2 := value.Decode(&secs); err2 != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		parsed = time.Duration(secs) * time.Second
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Branch is one named branch of a parallel stage.
type Branch struct {
	// Name identifies the branch in logs and the run report.
	Name string `yaml:"name"`

	// Steps are the shell commands the branch runs, in order.
	Steps []string `yaml:"steps"`

	// Dir is an optional working directory, relative to the workspace.
	Dir string `yaml:"dir,omitempty"`

	// Env holds extra environment variables for every step of the branch.
	Env map[string]string `yaml:"env,omitempty"`
}

// Stage is one unit of pipeline work. Exactly one of Uses, Steps or
// Parallel must be set.
type Stage struct {
	// Name identifies the stage. Must be unique within the pipeline.
	Name string `yaml:"name"`

	// Uses selects a built-in stage kind instead of shell steps.
	Uses string `yaml:"uses,omitempty"`

	// Ref pins the checkout stage to a branch, tag or commit. Only
	// valid on a checkout stage; empty leaves the working tree as-is.
	Ref string `yaml:"ref,omitempty"`

	// Steps are the shell commands of a sequential stage.
	Steps []string `yaml:"steps,omitempty"`

	// Parallel declares named branches executed concurrently. The
	// stage fails if any branch fails.
	Parallel []Branch `yaml:"parallel,omitempty"`

	// OnlyBranches gates the stage on the current Git branch. An empty
	// list means the stage always runs; otherwise the stage is skipped
	// unless the run's branch is in the list.
	OnlyBranches []string `yaml:"only_branches,omitempty"`

	// AllowFailure lets the run continue past a failure of this stage.
	// The stage is still reported as failed.
	AllowFailure bool `yaml:"allow_failure,omitempty"`

	// Dir is an optional working directory for all steps, relative to
	// the workspace.
	Dir string `yaml:"dir,omitempty"`

	// Env holds extra environment variables for every step of the stage.
	Env map[string]string `yaml:"env,omitempty"`
}

// GatedFor reports whether the stage may run on the given branch.
func (s *Stage) GatedFor(branch string) bool {
	if len(s.OnlyBranches) == 0 {
		return true
	}
	for _, b := range s.OnlyBranches {
		if b == branch {
			return true
		}
	}
	return false
}

// ImageSpec parameterizes the build-image and push-image stages.
type ImageSpec struct {
	// Registry is the registry host images are pushed to. May be empty
	// for local-only builds. Settings.Registry overrides it when set.
	Registry string `yaml:"registry,omitempty"`

	// Repository is the image name (e.g. "acme/webapp").
	// Settings.ImageName overrides it when set.
	Repository string `yaml:"repository,omitempty"`

	// Context is the docker build context directory. Defaults to ".".
	Context string `yaml:"context,omitempty"`

	// Dockerfile is the path to the Dockerfile, relative to the
	// context. Defaults to "Dockerfile".
	Dockerfile string `yaml:"dockerfile,omitempty"`

	// BuildArgs are passed to docker build via --build-arg.
	BuildArgs map[string]string `yaml:"build_args,omitempty"`
}

// DeploySpec parameterizes the deploy stage.
type DeploySpec struct {
	// ComposeFiles lists the compose files, merged in order.
	ComposeFiles []string `yaml:"compose_files,omitempty"`

	// Project is the compose project name (-p). Defaults to the
	// pipeline name with spaces replaced by hyphens.
	Project string `yaml:"project,omitempty"`

	// Env holds extra environment variables for the compose process
	// (e.g. IMAGE_TAG, DB_TYPE substitutions in the YAML).
	Env map[string]string `yaml:"env,omitempty"`

	// Ports lists host ports the stack will publish. The deploy stage
	// verifies they are free before bringing the stack up, except when
	// the previous stack of the same project already holds them.
	Ports []int `yaml:"ports,omitempty"`
}

// HealthSpec parameterizes the health-check stage.
type HealthSpec struct {
	// URL is the HTTP endpoint to probe (e.g. "http://localhost:3000/health").
	URL string `yaml:"url"`

	// Attempts is the bounded retry budget. Defaults to 3.
	Attempts int `yaml:"attempts,omitempty"`

	// Interval is the pause between attempts. Defaults to 10s.
	Interval Duration `yaml:"interval,omitempty"`

	// Timeout bounds a single probe attempt. Defaults to 5s.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// PostSpec declares the post-run step lists. Always steps run after
// every run regardless of outcome and their failures are swallowed;
// success and failure steps run conditionally on the run result.
type PostSpec struct {
	Always  []string `yaml:"always,omitempty"`
	Success []string `yaml:"success,omitempty"`
	Failure []string `yaml:"failure,omitempty"`

	// Prune requests Docker resource cleanup (stopped containers,
	// dangling images) after the run, via the Docker API.
	Prune bool `yaml:"prune,omitempty"`
}

// Pipeline is the root of a gantry pipeline definition file.
type Pipeline struct {
	// Name identifies the pipeline in logs and reports.
	Name string `yaml:"name"`

	// Timeout bounds the whole run wall-clock. Defaults to 30m.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Environment is injected into every step of every stage.
	Environment map[string]string `yaml:"environment,omitempty"`

	// Stages is the ordered stage list.
	Stages []Stage `yaml:"stages"`

	Image  ImageSpec  `yaml:"image,omitempty"`
	Deploy DeploySpec `yaml:"deploy,omitempty"`
	Health HealthSpec `yaml:"health,omitempty"`
	Post   PostSpec   `yaml:"post,omitempty"`
}

// defaultFileNames are probed, in order, when no --file flag is given.
var defaultFileNames = []string{
	"gantry.yaml",
	"gantry.yml",
	"gantry.jsonc",
	"gantry.json",
}

// Locate finds the pipeline definition file in dir. Returns the path
// of the first default file name that exists.
func Locate(dir string) (string, error) {
	for _, name := range defaultFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", model.NewCLIError(
		model.ExitConfigError,
		fmt.Sprintf("no pipeline definition found in %s (looked for %s)",
			dir, strings.Join(defaultFileNames, ", ")),
	)
}

// Load reads, decodes, defaults and validates a pipeline definition.
//
// Files ending in .json or .jsonc are passed through jsonc.ToJSON to
// strip comments and trailing commas, then decoded with the same YAML
// decoder as .yaml/.yml files (YAML 1.2 is a superset of JSON, so one
// decode path serves both formats).
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to read pipeline definition %s", path),
			err,
		)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("failed to parse pipeline definition %s", path),
			err,
		)
	}

	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, model.WrapCLIError(
			model.ExitConfigError,
			fmt.Sprintf("invalid pipeline definition %s", path),
			err,
		)
	}
	return &p, nil
}

// applyDefaults fills zero-valued optional fields with documented defaults.
func (p *Pipeline) applyDefaults() {
	if p.Timeout == 0 {
		p.Timeout = Duration(DefaultTimeout)
	}
	if p.Image.Context == "" {
		p.Image.Context = "."
	}
	if p.Image.Dockerfile == "" {
		p.Image.Dockerfile = "Dockerfile"
	}
	if p.Health.Attempts == 0 {
		p.Health.Attempts = DefaultHealthAttempts
	}
	if p.Health.Interval == 0 {
		p.Health.Interval = Duration(DefaultHealthInterval)
	}
	if p.Health.Timeout == 0 {
		p.Health.Timeout = Duration(DefaultHealthTimeout)
	}
	if p.Deploy.Project == "" && p.Name != "" {
		p.Deploy.Project = strings.ToLower(strings.ReplaceAll(p.Name, " ", "-"))
	}
}

// Validate checks the structural integrity of the definition. It is
// called by Load, and directly by `gantry validate`.
func (p *Pipeline) Validate() error {
	if err := model.ValidateName(p.Name); err != nil {
		return fmt.Errorf("pipeline name: %w", err)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline must declare at least one stage")
	}

	seen := make(map[string]bool, len(p.Stages))
	for i := range p.Stages {
		s := &p.Stages[i]
		if err := model.ValidateName(s.Name); err != nil {
			return fmt.Errorf("stage %d: %w", i+1, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true

		if err := s.validateBody(); err != nil {
			return fmt.Errorf("stage %q: %w", s.Name, err)
		}

		if s.Ref != "" && s.Uses != KindCheckout {
			return fmt.Errorf("stage %q: ref is only valid on a checkout stage", s.Name)
		}

		// Built-in stages that depend on a section of the definition
		// must have that section present.
		switch s.Uses {
		case KindBuildImage, KindPushImage:
			if p.Image.Repository == "" {
				return fmt.Errorf("stage %q: image.repository must be set", s.Name)
			}
		case KindDeploy:
			if len(p.Deploy.ComposeFiles) == 0 {
				return fmt.Errorf("stage %q: deploy.compose_files must be set", s.Name)
			}
		case KindHealthCheck:
			if p.Health.URL == "" {
				return fmt.Errorf("stage %q: health.url must be set", s.Name)
			}
		}
	}

	if p.Health.Attempts < 1 {
		return fmt.Errorf("health.attempts must be at least 1, got %d", p.Health.Attempts)
	}
	for _, port := range p.Deploy.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("deploy port %d out of range (1-65535)", port)
		}
	}
	return nil
}

// validateBody enforces the exactly-one-of rule for a stage's payload
// (uses / steps / parallel) and checks parallel branch integrity.
func (s *Stage) validateBody() error {
	set := 0
	if s.Uses != "" {
		set++
	}
	if len(s.Steps) > 0 {
		set++
	}
	if len(s.Parallel) > 0 {
		set++
	}
	if set == 0 {
		return fmt.Errorf("must declare one of uses, steps or parallel")
	}
	if set > 1 {
		return fmt.Errorf("uses, steps and parallel are mutually exclusive")
	}

	if s.Uses != "" && !knownKinds[s.Uses] {
		return fmt.Errorf("unknown built-in stage kind %q", s.Uses)
	}

	branchSeen := make(map[string]bool, len(s.Parallel))
	for i := range s.Parallel {
		b := &s.Parallel[i]
		if err := model.ValidateName(b.Name); err != nil {
			return fmt.Errorf("parallel branch %d: %w", i+1, err)
		}
		if branchSeen[b.Name] {
			return fmt.Errorf("duplicate parallel branch name %q", b.Name)
		}
		branchSeen[b.Name] = true
		if len(b.Steps) == 0 {
			return fmt.Errorf("parallel branch %q must declare steps", b.Name)
		}
	}
	return nil
}
