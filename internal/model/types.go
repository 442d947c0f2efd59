package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// StageStatus represents the lifecycle state of a single pipeline stage.
// A stage moves through at most one transition during a run:
//
//	Pending → Running → Succeeded | Failed
//	Pending → Skipped (branch gate not matched, or an earlier stage failed)
type StageStatus string

const (
	// StatusPending indicates the stage has not started yet. Reports only
	// ever contain this status when a run is inspected mid-flight.
	StatusPending StageStatus = "pending"

	// StatusRunning indicates the stage is currently executing.
	StatusRunning StageStatus = "running"

	// StatusSucceeded indicates every step of the stage exited zero.
	StatusSucceeded StageStatus = "succeeded"

	// StatusFailed indicates a step exited non-zero (and the stage does
	// not allow failure).
	StatusFailed StageStatus = "failed"

	// StatusSkipped indicates the stage never executed — either its
	// branch gate did not match the current branch, or a preceding
	// stage failed and halted the run.
	StatusSkipped StageStatus = "skipped"
)

// String returns the string representation of StageStatus.
// Satisfies fmt.Stringer for CLI output and logging.
func (s StageStatus) String() string {
	return string(s)
}

// IsValid checks whether the StageStatus value is one of the
// predefined valid states.
func (s StageStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is an end state for a stage.
func (s StageStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// ParseStageStatus converts a string to a StageStatus.
// Returns an error if the string does not match any valid status.
func ParseStageStatus(s string) (StageStatus, error) {
	status := StageStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid stage status: %q (valid: pending, running, succeeded, failed, skipped)", s)
	}
	return status, nil
}

// StepResult captures the outcome of one shell step inside a stage.
//
// Output holds the trailing combined stdout/stderr of the command —
// enough context to diagnose a failure without replaying the run with
// --verbose, but bounded so reports stay readable.
type StepResult struct {
	// Command is the shell command line as written in the pipeline file.
	Command string `json:"command"`

	// Output is the (possibly truncated) combined output of the command.
	Output string `json:"output,omitempty"`

	// ExitCode is the process exit code. Zero means success.
	ExitCode int `json:"exitCode"`

	// Duration is the wall-clock time the command took.
	Duration time.Duration `json:"duration"`
}

// StageResult captures the outcome of one pipeline stage.
//
// For a parallel stage, Steps is empty and Branches holds one nested
// result per parallel branch. SkipReason is set only for StatusSkipped.
type StageResult struct {
	// Name is the stage name from the pipeline definition.
	Name string `json:"name"`

	// Status is the terminal state the stage reached.
	Status StageStatus `json:"status"`

	// Duration is the wall-clock time the stage took. Zero for skipped stages.
	Duration time.Duration `json:"duration"`

	// Steps holds per-command results for a sequential stage.
	Steps []StepResult `json:"steps,omitempty"`

	// Branches holds per-branch results for a parallel stage.
	Branches []StageResult `json:"branches,omitempty"`

	// SkipReason explains why the stage was skipped ("branch gate",
	// "earlier stage failed"). Empty unless Status is StatusSkipped.
	SkipReason string `json:"skipReason,omitempty"`

	// Error is the failure message for a failed stage. Kept as a plain
	// string so StageResult marshals cleanly to JSON.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the stage ended in failure.
func (r *StageResult) Failed() bool {
	return r.Status == StatusFailed
}

// RunReport is the aggregate outcome of a full pipeline run. It is the
// value printed by `gantry run` (text summary or --json) and is the
// primary artifact the engine produces besides the container image.
type RunReport struct {
	// Pipeline is the pipeline name from the definition file.
	Pipeline string `json:"pipeline"`

	// RunID uniquely identifies this run (UUID).
	RunID string `json:"runId"`

	// Branch is the branch the run executed against. Gated stages
	// compare their only_branches list against this value.
	Branch string `json:"branch"`

	// BuildNumber is the monotonically increasing build identifier
	// supplied by the caller (flag or BUILD_NUMBER). It seeds the
	// unique image tag.
	BuildNumber string `json:"buildNumber"`

	// Commit is the short HEAD SHA resolved during checkout, if any.
	Commit string `json:"commit,omitempty"`

	// ImageTags lists every tag applied to the built image, in the
	// order they were applied.
	ImageTags []string `json:"imageTags,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"startedAt"`

	// Duration is the total wall-clock time of the run including
	// post actions.
	Duration time.Duration `json:"duration"`

	// Succeeded is the overall outcome. Post-action failures do not
	// affect it.
	Succeeded bool `json:"succeeded"`

	// Stages holds one result per declared stage, in declaration order.
	Stages []StageResult `json:"stages"`
}

// FailedStage returns the first failed stage result, or nil when the
// run succeeded. Useful for summary output and exit messages.
func (r *RunReport) FailedStage() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Failed() {
			return &r.Stages[i]
		}
	}
	return nil
}

// ImageRef identifies the container image a pipeline builds. The
// registry may be empty for purely local builds (no push stage).
type ImageRef struct {
	// Registry is the registry host (e.g. "registry.example.com"),
	// without a trailing slash.
	Registry string `json:"registry,omitempty"`

	// Repository is the image name within the registry (e.g. "acme/webapp").
	Repository string `json:"repository"`
}

// Name returns the fully qualified image name without a tag.
func (ref ImageRef) Name() string {
	if ref.Registry == "" {
		return ref.Repository
	}
	return ref.Registry + "/" + ref.Repository
}

// Tags returns the full set of tags to apply for a given build number.
// Every build is tagged twice: once with the unique build number and
// once with "latest". The build-number tag is what makes image tags
// unique per build; "latest" is a moving alias for the newest build.
func (ref ImageRef) Tags(buildNumber string) []string {
	name := ref.Name()
	return []string{
		name + ":" + buildNumber,
		name + ":latest",
	}
}

// Validate checks that the reference is usable for building.
func (ref ImageRef) Validate() error {
	if ref.Repository == "" {
		return fmt.Errorf("image reference: repository must not be empty")
	}
	if strings.HasSuffix(ref.Registry, "/") {
		return fmt.Errorf("image reference: registry %q must not end with a slash", ref.Registry)
	}
	return nil
}

// nameRegex validates pipeline and stage names: alphanumeric plus
// hyphens, starting and ending with an alphanumeric character.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid pipeline or stage name.
// Names may contain alphanumerics, spaces, underscores and hyphens, and
// must start and end with an alphanumeric character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name %q: must contain only alphanumerics, spaces, underscores and hyphens, and start/end with an alphanumeric", name)
	}
	return nil
}
