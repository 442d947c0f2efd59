package engine

import (
	"github.com/mmr-tortoise/gantry/internal/config"
)

// PlannedStage describes how one stage would execute for a given
// branch, without executing anything. `gantry stages` prints these.
type PlannedStage struct {
	// Name is the stage name.
	Name string `json:"name"`

	// Kind is "shell" for step stages, "parallel" for parallel stages,
	// or the built-in kind for `uses:` stages.
	Kind string `json:"kind"`

	// Branches lists the parallel branch names, for parallel stages.
	Branches []string `json:"branches,omitempty"`

	// OnlyBranches is the stage's branch gate, if any.
	OnlyBranches []string `json:"onlyBranches,omitempty"`

	// WillRun reports whether the stage would execute on the given
	// branch (assuming no earlier failure).
	WillRun bool `json:"willRun"`

	// AllowFailure mirrors the stage's allow_failure flag.
	AllowFailure bool `json:"allowFailure,omitempty"`
}

// Plan resolves the execution plan of a pipeline for a branch.
func Plan(cfg *config.Pipeline, branch string) []PlannedStage {
	plan := make([]PlannedStage, 0, len(cfg.Stages))
	for i := range cfg.Stages {
		stage := &cfg.Stages[i]

		kind := "shell"
		switch {
		case stage.Uses != "":
			kind = stage.Uses
		case len(stage.Parallel) > 0:
			kind = "parallel"
		}

		var branches []string
		for _, b := range stage.Parallel {
			branches = append(branches, b.Name)
		}

		plan = append(plan, PlannedStage{
			Name:         stage.Name,
			Kind:         kind,
			Branches:     branches,
			OnlyBranches: stage.OnlyBranches,
			WillRun:      stage.GatedFor(branch),
			AllowFailure: stage.AllowFailure,
		})
	}
	return plan
}
