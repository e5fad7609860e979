package milp

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func knapsack() (*Problem, []Var) {
	p := NewProblem("knapsack")
	a, b, c := p.Binary("a"), p.Binary("b"), p.Binary("c")
	p.AddConstraint("w1", []Term{{a, 2}, {b, 3}, {c, 1}}, LessEq, 5)
	p.AddConstraint("w2", []Term{{a, 4}, {b, 1}, {c, 2}}, LessEq, 11)
	p.AddConstraint("w3", []Term{{a, 3}, {b, 4}, {c, 2}}, LessEq, 8)
	p.SetObjective([]Term{{a, -5}, {b, -4}, {c, -3}})
	return p, []Var{a, b, c}
}

func TestBranchAndBoundKnapsack(t *testing.T) {
	p, vars := knapsack()
	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p, time.Minute)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)

	assert.InDelta(t, -9, sol.Objective, 1e-6)
	assert.Equal(t, 1.0, sol.Value(vars[0]))
	assert.Equal(t, 1.0, sol.Value(vars[1]))
	assert.Equal(t, 0.0, sol.Value(vars[2]))
	assert.Greater(t, sol.Nodes, 1)
}

func TestBranchAndBoundGeneralIntegers(t *testing.T) {
	p := NewProblem("ints")
	x, y := p.NonNegInteger("x"), p.NonNegInteger("y")
	p.AddConstraint("cap", []Term{{x, 2}, {y, 2}}, LessEq, 3)
	p.SetObjective([]Term{{x, -1}, {y, -1}})

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, -1, sol.Objective, 1e-9)
	assert.Equal(t, 1.0, sol.Value(x)+sol.Value(y))
}

func TestBranchAndBoundEqualityAndContinuous(t *testing.T) {
	p := NewProblem("mixed")
	x, y := p.Binary("x"), p.Binary("y")
	slack := p.NonNegContinuous("dev")
	p.AddConstraint("pick_one", []Term{{x, 1}, {y, 1}}, Equal, 1)
	p.AddConstraint("dev_pos", []Term{{y, 1}, {slack, -1}}, LessEq, 0.25)
	p.SetObjective([]Term{{x, 2}, {y, 1}, {slack, 3}})

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	// y=1 costs 1 + 3*0.75, x=1 costs 2.
	assert.Equal(t, 1.0, sol.Value(x))
	assert.Equal(t, 0.0, sol.Value(y))
	assert.InDelta(t, 2, sol.Objective, 1e-9)
}

func TestBranchAndBoundInfeasible(t *testing.T) {
	p := NewProblem("infeasible")
	x := p.Binary("x")
	p.AddConstraint("too_much", []Term{{x, 1}}, GreaterEq, 2)
	p.SetObjective([]Term{{x, 1}})

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
	assert.Nil(t, sol.Values)
}

func TestBranchAndBoundUnbounded(t *testing.T) {
	p := NewProblem("unbounded")
	x := p.NonNegContinuous("x")
	p.AddConstraint("floor", []Term{{x, 1}}, GreaterEq, 1)
	p.SetObjective([]Term{{x, -1}})

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusUnbounded, sol.Status)
}

func TestBranchAndBoundCancelledContext(t *testing.T) {
	p, _ := knapsack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol, err := NewBranchAndBound(Options{}).Solve(ctx, p, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeLimit, sol.Status)
	assert.True(t, math.IsInf(sol.Objective, 1))
}

// expiringContext reports a deadline after a fixed number of Err calls, so a
// solve can be stopped at a deterministic point.
type expiringContext struct {
	context.Context
	checks int
}

func (c *expiringContext) Err() error {
	c.checks--
	if c.checks < 0 {
		return context.DeadlineExceeded
	}
	return nil
}

// assignment builds an n x n assignment problem whose cheapest matching is
// the diagonal.
func assignment(n int) (*Problem, [][]Var) {
	p := NewProblem("assignment")
	x := make([][]Var, n)
	var objective []Term
	for i := range x {
		x[i] = make([]Var, n)
		for j := range x[i] {
			x[i][j] = p.Binary(fmt.Sprintf("x_%d_%d", i, j))
			objective = append(objective, Term{x[i][j], math.Abs(float64(i - j))})
		}
	}
	for i := 0; i < n; i++ {
		row, col := make([]Term, n), make([]Term, n)
		for j := 0; j < n; j++ {
			row[j] = Term{x[i][j], 1}
			col[j] = Term{x[j][i], 1}
		}
		p.AddConstraint(fmt.Sprintf("row_%d", i), row, Equal, 1)
		p.AddConstraint(fmt.Sprintf("col_%d", i), col, Equal, 1)
	}
	p.SetObjective(objective)
	return p, x
}

func TestBranchAndBoundAssignment(t *testing.T) {
	p, x := assignment(12)
	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p, time.Minute)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 0, sol.Objective, 1e-9)
	for i := range x {
		assert.Equal(t, 1.0, sol.Value(x[i][i]))
	}
}

func TestBranchAndBoundDeadlineInsideRelaxation(t *testing.T) {
	p, _ := assignment(12)
	// One check for the node loop, one for the first pivot; the deadline
	// then lands in the middle of the root relaxation.
	ctx := &expiringContext{Context: context.Background(), checks: 2}

	sol, err := NewBranchAndBound(Options{}).Solve(ctx, p, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeLimit, sol.Status)
	assert.Equal(t, 1, sol.Nodes)
	assert.Nil(t, sol.Values)
}

func TestBranchAndBoundStopsAtDeadline(t *testing.T) {
	// sum 2x = 31 has no integer solution but every relaxation is feasible,
	// so the search tree is exponential.
	p := NewProblem("parity")
	terms := make([]Term, 31)
	for i := range terms {
		terms[i] = Term{p.Binary(fmt.Sprintf("x%d", i)), 2}
	}
	p.AddConstraint("odd", terms, Equal, 31)
	p.SetObjective(terms[:1])

	start := time.Now()
	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeLimit, sol.Status)
	assert.Greater(t, sol.Nodes, 1)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSolveBoundedUpperBounds(t *testing.T) {
	// min -x - 2y  s.t.  x + y + s = 3,  x <= 2,  y <= 1.5
	a := mat.NewDense(1, 3, []float64{1, 1, 1})
	status, x, err := solveBounded(context.Background(), boundedLP{
		a:     a,
		b:     []float64{3},
		c:     []float64{-1, -2, 0},
		upper: []float64{2, 1.5, math.Inf(1)},
		start: []int{2},
	}, defaultTolerance)
	require.NoError(t, err)
	require.Equal(t, relaxOptimal, status)
	assert.InDelta(t, 1.5, x[0], 1e-9)
	assert.InDelta(t, 1.5, x[1], 1e-9)
	assert.InDelta(t, 0, x[2], 1e-9)
}

func TestSolveBoundedInfeasible(t *testing.T) {
	// x + y = 3 with both bounded by 1.
	a := mat.NewDense(1, 2, []float64{1, 1})
	status, _, err := solveBounded(context.Background(), boundedLP{
		a:     a,
		b:     []float64{3},
		c:     []float64{1, 1},
		upper: []float64{1, 1},
		start: []int{-1},
	}, defaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, relaxInfeasible, status)
}

func TestBranchAndBoundNodeLimit(t *testing.T) {
	p, _ := knapsack()
	sol, err := NewBranchAndBound(Options{MaxNodes: 1}).Solve(context.Background(), p, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusNotSolved, sol.Status)
	assert.Equal(t, 1, sol.Nodes)
}

func TestBranchAndBoundRejectsInvalidProblem(t *testing.T) {
	p := NewProblem("dup")
	x := p.Binary("x")
	p.AddConstraint("row", []Term{{x, 1}}, LessEq, 1)
	p.AddConstraint("row", []Term{{x, 1}}, GreaterEq, 0)

	_, err := NewBranchAndBound(Options{}).Solve(context.Background(), p, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate constraint name")
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, Backends(), BackendBranchAndBound)

	s, err := New(BackendBranchAndBound, Options{})
	require.NoError(t, err)
	assert.IsType(t, &BranchAndBound{}, s)

	_, err = New("does-not-exist", Options{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Optimal", StatusOptimal.String())
	assert.Equal(t, "TimeLimit", StatusTimeLimit.String())
	assert.Equal(t, "Status(42)", Status(42).String())
	assert.Equal(t, ">=", GreaterEq.String())
	assert.Equal(t, "binary", Binary.String())
}
