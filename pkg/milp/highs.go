//go:build highs

package milp

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lanl/highs"
)

// BackendHiGHS is the registry name of the HiGHS backend. It is compiled only
// with the "highs" build tag because it links against libhighs.
const BackendHiGHS = "highs"

func init() {
	Register(BackendHiGHS, func(Options) (Solver, error) {
		return &HiGHS{}, nil
	})
}

// HiGHS solves problems through the lanl/highs cgo bindings.
type HiGHS struct{}

// Solve implements Solver. The budget is handed to HiGHS as its time_limit
// option, so the cgo call returns on its own once the budget is spent.
func (h *HiGHS) Solve(ctx context.Context, p *Problem, timeLimit time.Duration) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("milp: invalid problem: %w", err)
	}
	start := time.Now()
	budget, ok := solveBudget(ctx, timeLimit, start)
	if !ok {
		return &Solution{Status: StatusTimeLimit, Objective: math.Inf(1)}, nil
	}

	raw, err := toHiGHS(p).ToRawModel()
	if err != nil {
		return nil, fmt.Errorf("milp: highs: %w", err)
	}
	if budget > 0 {
		if err := raw.SetFloatOption("time_limit", budget.Seconds()); err != nil {
			return nil, fmt.Errorf("milp: highs time_limit: %w", err)
		}
	}
	sol, err := raw.Solve()
	if err != nil {
		return nil, fmt.Errorf("milp: highs: %w", err)
	}
	res := &Solution{Status: fromHiGHS(sol.Status), Objective: math.Inf(1), Runtime: time.Since(start)}
	if res.Status == StatusOptimal {
		res.Values = append([]float64(nil), sol.ColumnPrimal[:len(p.Vars)]...)
		res.Objective = p.Evaluate(res.Values)
	}
	return res, nil
}

// solveBudget is the smaller of timeLimit and the time left before the context
// deadline. Zero means unbounded; ok is false once the context is done.
func solveBudget(ctx context.Context, timeLimit time.Duration, now time.Time) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	budget := timeLimit
	if deadline, has := ctx.Deadline(); has {
		left := deadline.Sub(now)
		if left <= 0 {
			return 0, false
		}
		if budget <= 0 || left < budget {
			budget = left
		}
	}
	return budget, true
}

func toHiGHS(p *Problem) *highs.Model {
	n := len(p.Vars)
	model := &highs.Model{
		ColCosts: make([]float64, n),
		ColLower: make([]float64, n),
		ColUpper: make([]float64, n),
		VarTypes: make([]highs.VariableType, n),
	}
	for j, v := range p.Vars {
		model.ColLower[j] = v.Lower
		model.ColUpper[j] = v.Upper
		model.VarTypes[j] = highs.ContinuousType
		if v.Integral() {
			model.VarTypes[j] = highs.IntegerType
		}
	}
	for _, t := range p.Objective {
		model.ColCosts[t.Var] += t.Coef
	}
	for i, c := range p.Constraints {
		for _, t := range c.Terms {
			model.ConstMatrix = append(model.ConstMatrix, highs.Nonzero{Row: i, Col: int(t.Var), Val: t.Coef})
		}
		lower, upper := math.Inf(-1), math.Inf(1)
		switch c.Sense {
		case LessEq:
			upper = c.RHS
		case GreaterEq:
			lower = c.RHS
		case Equal:
			lower, upper = c.RHS, c.RHS
		}
		model.RowLower = append(model.RowLower, lower)
		model.RowUpper = append(model.RowUpper, upper)
	}
	return model
}

func fromHiGHS(status highs.ModelStatus) Status {
	switch status {
	case highs.Optimal:
		return StatusOptimal
	case highs.Infeasible:
		return StatusInfeasible
	case highs.Unbounded:
		return StatusUnbounded
	case highs.TimeLimit:
		return StatusTimeLimit
	default:
		return StatusNotSolved
	}
}
