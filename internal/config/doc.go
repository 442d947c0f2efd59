// Package config loads and validates gantry pipeline definitions and
// the process-environment settings that parameterize a run.
//
// A pipeline definition is a declarative file (gantry.yaml by default)
// describing the stage graph: ordered stages, parallel branches within
// a stage, branch gates, and the image/deploy/health/post sections that
// parameterize the built-in stages. JSONC definitions are supported via
// github.com/tidwall/jsonc, which strips comments before the document
// is decoded; since YAML is a superset of JSON, both forms go through
// the same gopkg.in/yaml.v3 decoder.
//
// Run settings (build number, branch, registry, credentials) come from
// the process environment via github.com/kelseyhightower/envconfig,
// honoring both GANTRY_-prefixed variables and the conventional CI
// names (BUILD_NUMBER, BRANCH_NAME, DOCKER_REGISTRY, ...).
package config
