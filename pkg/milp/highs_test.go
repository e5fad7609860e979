//go:build highs

package milp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveBudget(t *testing.T) {
	now := time.Now()

	budget, ok := solveBudget(context.Background(), 0, now)
	assert.True(t, ok)
	assert.Zero(t, budget)

	budget, ok = solveBudget(context.Background(), 30*time.Second, now)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, budget)

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(5*time.Second))
	defer cancel()
	budget, ok = solveBudget(ctx, 30*time.Second, now)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, budget)

	cancel()
	_, ok = solveBudget(ctx, 30*time.Second, now)
	assert.False(t, ok)
}

func TestHiGHSAssignment(t *testing.T) {
	sol, err := (&HiGHS{}).Solve(context.Background(), mustAssignment(6), 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 0, sol.Objective, 1e-6)
}

func TestHiGHSExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := (&HiGHS{}).Solve(ctx, mustAssignment(3), time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeLimit, sol.Status)
	assert.Nil(t, sol.Values)
}

func mustAssignment(n int) *Problem {
	p, _ := assignment(n)
	return p
}
