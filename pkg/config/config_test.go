package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, []string{"Monday AM", "Monday PM", "Tuesday AM", "Tuesday PM", "Wednesday AM"}, cfg.Planner.Sessions)
	assert.Equal(t, 10.0, cfg.Planner.PrefReward)
	assert.Equal(t, 1000.0, cfg.Planner.VetoPenalty)
	assert.Equal(t, 1.0, cfg.Planner.DeviationWeight)
	assert.Equal(t, 25.0, cfg.Planner.ExtraNeutralPenalty)
	assert.Equal(t, "branchbound", cfg.Solver.Backend)
	assert.Equal(t, 300*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, int64(5*1024*1024), cfg.Plans.MaxUploadBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PLANNER_SESSIONS", " S1, S2 ,,S3")
	t.Setenv("PLANNER_VETO_PENALTY", "250.5")
	t.Setenv("PLANNER_HARD_VETOES", "true")
	t.Setenv("SOLVER_TIME_LIMIT", "45s")
	t.Setenv("PLANS_SIGNED_URL_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2", "S3"}, cfg.Planner.Sessions)
	assert.Equal(t, 250.5, cfg.Planner.VetoPenalty)
	assert.True(t, cfg.Planner.HardVetoes)
	assert.Equal(t, 45*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, 24*time.Hour, cfg.Plans.SignedURLTTL)
}
