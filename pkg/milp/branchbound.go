package milp

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// BackendBranchAndBound is the registry name of the pure-Go backend.
const BackendBranchAndBound = "branchbound"

const (
	defaultTolerance = 1e-9
	integralityTol   = 1e-6
	feasibilityTol   = 1e-7
)

func init() {
	Register(BackendBranchAndBound, func(opts Options) (Solver, error) {
		return NewBranchAndBound(opts), nil
	})
}

// BranchAndBound is a depth-first branch-and-bound solver whose relaxations
// are solved with a dense bounded-variable simplex over gonum matrices. It suits the small, fully enumerable
// problems the planner produces; large models should use a native backend.
type BranchAndBound struct {
	maxNodes  int
	tolerance float64
}

// NewBranchAndBound constructs the backend.
func NewBranchAndBound(opts Options) *BranchAndBound {
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultTolerance
	}
	return &BranchAndBound{maxNodes: opts.MaxNodes, tolerance: opts.Tolerance}
}

type node struct {
	lower []float64
	upper []float64
}

type relaxStatus int

const (
	relaxOptimal relaxStatus = iota
	relaxInfeasible
	relaxUnbounded
)

type relaxation struct {
	status    relaxStatus
	values    []float64
	objective float64
}

// Solve implements Solver.
func (b *BranchAndBound) Solve(ctx context.Context, p *Problem, timeLimit time.Duration) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("milp: invalid problem: %w", err)
	}
	start := time.Now()
	if timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}

	root := node{lower: make([]float64, len(p.Vars)), upper: make([]float64, len(p.Vars))}
	for i, v := range p.Vars {
		root.lower[i] = v.Lower
		root.upper[i] = v.Upper
		if v.Integral() {
			root.lower[i] = math.Ceil(v.Lower - integralityTol)
			root.upper[i] = math.Floor(v.Upper + integralityTol)
		}
	}

	var (
		incumbent []float64
		bestObj   = math.Inf(1)
		nodes     int
		stack     = []node{root}
	)
	finish := func(status Status) *Solution {
		return &Solution{Status: status, Values: incumbent, Objective: bestObj, Nodes: nodes, Runtime: time.Since(start)}
	}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return finish(StatusTimeLimit), nil
		}
		if b.maxNodes > 0 && nodes >= b.maxNodes {
			return finish(StatusNotSolved), nil
		}
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		res, err := b.relax(ctx, p, current)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StatusTimeLimit), nil
			}
			return nil, fmt.Errorf("milp: relaxation at node %d: %w", nodes, err)
		}
		switch res.status {
		case relaxInfeasible:
			continue
		case relaxUnbounded:
			// A restriction of a bounded problem cannot be unbounded, so this
			// only happens when the root itself is unbounded.
			incumbent = nil
			return finish(StatusUnbounded), nil
		}
		if res.objective >= bestObj-b.pruneGap(bestObj) {
			continue
		}

		j := branchVariable(p, res.values)
		if j < 0 {
			incumbent = roundIntegral(p, res.values)
			bestObj = p.Evaluate(incumbent)
			continue
		}

		value := res.values[j]
		down := current.clone()
		down.upper[j] = math.Floor(value)
		up := current.clone()
		up.lower[j] = math.Floor(value) + 1
		// LIFO: the rounded-up child is explored first.
		if down.upper[j] >= down.lower[j] {
			stack = append(stack, down)
		}
		if up.lower[j] <= up.upper[j] {
			stack = append(stack, up)
		}
	}

	if incumbent == nil {
		return finish(StatusInfeasible), nil
	}
	return finish(StatusOptimal), nil
}

func (b *BranchAndBound) pruneGap(best float64) float64 {
	if math.IsInf(best, 1) {
		return 0
	}
	return 1e-6 * math.Max(1, math.Abs(best))
}

func (n node) clone() node {
	lower := make([]float64, len(n.lower))
	upper := make([]float64, len(n.upper))
	copy(lower, n.lower)
	copy(upper, n.upper)
	return node{lower: lower, upper: upper}
}

// branchVariable picks the most fractional binary, then the most fractional
// integer variable. It returns -1 when the point is integral.
func branchVariable(p *Problem, x []float64) int {
	for _, kind := range []VarKind{Binary, Integer} {
		best, bestFrac := -1, 0.0
		for j, v := range p.Vars {
			if v.Kind != kind {
				continue
			}
			frac := x[j] - math.Floor(x[j])
			dist := math.Min(frac, 1-frac)
			if dist > integralityTol && dist > bestFrac {
				best, bestFrac = j, dist
			}
		}
		if best >= 0 {
			return best
		}
	}
	return -1
}

func roundIntegral(p *Problem, x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range p.Vars {
		out[j] = x[j]
		if v.Integral() {
			out[j] = math.Round(x[j])
		}
		if math.Abs(out[j]) < feasibilityTol {
			out[j] = 0
		}
	}
	return out
}

// relax solves the LP relaxation of p under the node bounds. Variables are
// shifted to x = lower + x' with 0 <= x' <= upper - lower, fixed variables
// become constants and inequalities receive slack columns, giving the
// equality form solveBounded expects. Upper bounds stay implicit.
func (b *BranchAndBound) relax(ctx context.Context, p *Problem, n node) (relaxation, error) {
	lower := append([]float64(nil), n.lower...)
	upper := append([]float64(nil), n.upper...)
	fixed := make([]bool, len(p.Vars))
	for j := range p.Vars {
		if upper[j]-lower[j] <= feasibilityTol {
			fixed[j] = true
			upper[j] = lower[j]
		}
	}

	if !presolveSingletons(p, lower, upper, fixed) {
		return relaxation{status: relaxInfeasible}, nil
	}

	type row struct {
		coefs map[int]float64
		slack float64
		rhs   float64
	}
	rows := make([]row, 0, len(p.Constraints))
	used := make([]bool, len(p.Vars))
	for _, c := range p.Constraints {
		coefs, rhs := reduce(c, lower, fixed)
		if len(coefs) == 0 {
			if !holds(0, c.Sense, rhs) {
				return relaxation{status: relaxInfeasible}, nil
			}
			continue
		}
		r := row{coefs: coefs, rhs: rhs}
		switch c.Sense {
		case LessEq:
			r.slack = 1
		case GreaterEq:
			r.slack = -1
		}
		for j := range coefs {
			used[j] = true
		}
		rows = append(rows, r)
	}

	cost := make([]float64, len(p.Vars))
	for _, t := range p.Objective {
		cost[t.Var] += t.Coef
	}

	values := make([]float64, len(p.Vars))
	copy(values, lower)
	columns := make(map[int]int)
	order := make([]int, 0, len(p.Vars))
	for j := range p.Vars {
		if fixed[j] {
			continue
		}
		if !used[j] {
			// Unconstrained columns sit at whichever bound the cost prefers.
			if cost[j] < 0 {
				if math.IsInf(upper[j], 1) {
					return relaxation{status: relaxUnbounded}, nil
				}
				values[j] = upper[j]
			}
			continue
		}
		columns[j] = len(order)
		order = append(order, j)
	}

	if len(rows) == 0 {
		return relaxation{status: relaxOptimal, values: values, objective: p.Evaluate(values)}, nil
	}

	slackCols := 0
	for _, r := range rows {
		if r.slack != 0 {
			slackCols++
		}
	}
	m, ncols := len(rows), len(order)+slackCols
	lp := boundedLP{
		a:     mat.NewDense(m, ncols, nil),
		b:     make([]float64, m),
		c:     make([]float64, ncols),
		upper: make([]float64, ncols),
		start: make([]int, m),
	}
	for k, j := range order {
		lp.c[k] = cost[j]
		lp.upper[k] = upper[j] - lower[j]
	}
	next := len(order)
	for i, r := range rows {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for j, coef := range r.coefs {
			lp.a.Set(i, columns[j], sign*coef)
		}
		lp.start[i] = -1
		if r.slack != 0 {
			lp.a.Set(i, next, sign*r.slack)
			lp.upper[next] = math.Inf(1)
			if sign*r.slack > 0 {
				lp.start[i] = next
			}
			next++
		}
		lp.b[i] = sign * r.rhs
	}

	status, xs, err := solveBounded(ctx, lp, b.tolerance)
	if err != nil || status != relaxOptimal {
		return relaxation{status: status}, err
	}
	for k, j := range order {
		values[j] = lower[j] + xs[k]
	}
	return relaxation{status: relaxOptimal, values: values, objective: p.Evaluate(values)}, nil
}

// presolveSingletons fixes variables forced by equality rows that have a
// single free column. It returns false when a forced value violates bounds or
// integrality.
func presolveSingletons(p *Problem, lower, upper []float64, fixed []bool) bool {
	for changed := true; changed; {
		changed = false
		for _, c := range p.Constraints {
			if c.Sense != Equal {
				continue
			}
			coefs, rhs := reduce(c, lower, fixed)
			if len(coefs) != 1 {
				continue
			}
			for j, coef := range coefs {
				value := lower[j] + rhs/coef
				if value < lower[j]-feasibilityTol || value > upper[j]+feasibilityTol {
					return false
				}
				if p.Vars[j].Integral() {
					if math.Abs(value-math.Round(value)) > integralityTol {
						return false
					}
					value = math.Round(value)
				}
				lower[j], upper[j], fixed[j] = value, value, true
			}
			changed = true
		}
	}
	return true
}

// reduce expresses a constraint over the shifted free columns and returns the
// remaining coefficients keyed by variable index plus the adjusted rhs.
func reduce(c Constraint, lower []float64, fixed []bool) (map[int]float64, float64) {
	coefs := make(map[int]float64, len(c.Terms))
	rhs := c.RHS
	for _, t := range c.Terms {
		j := int(t.Var)
		rhs -= t.Coef * lower[j]
		if fixed[j] {
			continue
		}
		coefs[j] += t.Coef
	}
	for j, coef := range coefs {
		if coef == 0 {
			delete(coefs, j)
		}
	}
	return coefs, rhs
}

func holds(lhs float64, sense Sense, rhs float64) bool {
	switch sense {
	case LessEq:
		return lhs <= rhs+feasibilityTol
	case GreaterEq:
		return lhs >= rhs-feasibilityTol
	default:
		return math.Abs(lhs-rhs) <= feasibilityTol
	}
}
