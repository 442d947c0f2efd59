// Package model defines the domain types shared across the gantry CLI.
//
// It contains the pipeline run vocabulary (stage and step results, run
// reports, image references) plus the CLI error contract: typed exit
// codes (ExitCode) and a custom error type (CLIError) that carries an
// exit code so the process can terminate with a meaningful status.
//
// Types in this package are transient — a run report is assembled in
// memory while the engine executes and printed at the end. Nothing is
// persisted between runs; build history lives with the container images
// the pipeline produces.
package model
