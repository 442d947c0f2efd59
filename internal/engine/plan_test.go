package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/gantry/internal/config"
)

// TestPlan verifies stage kinds, parallel branch names and gate
// evaluation in the resolved plan.
func TestPlan(t *testing.T) {
	cfg := &config.Pipeline{
		Name: "webapp",
		Stages: []config.Stage{
			{Name: "checkout", Uses: config.KindCheckout},
			{
				Name: "install",
				Parallel: []config.Branch{
					{Name: "server", Steps: []string{"npm ci"}},
					{Name: "client", Steps: []string{"npm ci"}},
				},
			},
			{Name: "tests", Steps: []string{"npm test"}},
			{Name: "deploy", Uses: config.KindDeploy, OnlyBranches: []string{"main"}},
		},
	}

	t.Run("feature branch", func(t *testing.T) {
		plan := Plan(cfg, "feature/auth")
		require.Len(t, plan, 4)

		assert.Equal(t, "checkout", plan[0].Kind)
		assert.True(t, plan[0].WillRun)

		assert.Equal(t, "parallel", plan[1].Kind)
		assert.Equal(t, []string{"server", "client"}, plan[1].Branches)

		assert.Equal(t, "shell", plan[2].Kind)

		assert.False(t, plan[3].WillRun, "deploy is gated to main")
		assert.Equal(t, []string{"main"}, plan[3].OnlyBranches)
	})

	t.Run("main branch", func(t *testing.T) {
		plan := Plan(cfg, "main")
		assert.True(t, plan[3].WillRun)
	})
}
