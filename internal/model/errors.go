package model

import "fmt"

// ExitCode defines the CLI exit codes reported by the gantry binary.
// Scripts wrapping gantry can branch on these to distinguish a broken
// pipeline definition from a failing build.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the pipeline definition is missing,
	// unreadable, or failed validation.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitStageFailed indicates a pipeline stage failed and halted the run.
	ExitStageFailed ExitCode = 4

	// ExitGitError indicates a Git operation failed (checkout stage).
	ExitGitError ExitCode = 5

	// ExitToolMissing indicates a required external tool (node, npm,
	// docker) was not found during the setup stage.
	ExitToolMissing ExitCode = 6

	// ExitDeployError indicates the compose deploy or its port
	// preflight failed.
	ExitDeployError ExitCode = 7

	// ExitHealthCheckFailed indicates the post-deploy HTTP probe
	// exhausted its retry budget.
	ExitHealthCheckFailed ExitCode = 8
)

// CLIError is an error that carries an exit code. cli.Execute unwraps
// it at the top of the program to choose the process exit status.
type CLIError struct {
	// Code is the exit code the process should terminate with.
	Code ExitCode

	// Message is the human-readable description shown to the user.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the error message, including the underlying error
// when present.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is / errors.As chains.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError wrapping an underlying error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
