package milp

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// errSimplexStalled is returned when the pivot budget of a relaxation is
// exhausted without reaching optimality.
var errSimplexStalled = errors.New("simplex: iteration limit reached")

const (
	pivotTol = 1e-9
	// blandAfter switches pricing to Bland's rule after this many degenerate
	// pivots in a row.
	blandAfter = 50
)

// boundedLP is min c·x subject to A x = b, 0 <= x <= upper, with b >= 0.
// start[i] names a column that is a unit vector on row i and may start in the
// basis, or -1 when the row needs an artificial column.
type boundedLP struct {
	a     *mat.Dense
	b     []float64
	c     []float64
	upper []float64
	start []int
}

// tableau is a dense bounded-variable primal simplex. Nonbasic columns sit at
// zero or at their upper bound; beta holds the values of the basic columns.
type tableau struct {
	t       *mat.Dense
	beta    []float64
	basis   []int
	pos     []int
	atUpper []bool
	upper   []float64
	tol     float64
}

// solveBounded runs phase one on artificial columns, then phase two on c.
// The context is checked before every pivot.
func solveBounded(ctx context.Context, lp boundedLP, tol float64) (relaxStatus, []float64, error) {
	m, n := lp.a.Dims()
	cols := n
	artificial := make([]int, m)
	for i, j := range lp.start {
		artificial[i] = -1
		if j < 0 {
			artificial[i] = cols
			cols++
		}
	}

	s := &tableau{
		t:       mat.NewDense(m, cols, nil),
		beta:    append([]float64(nil), lp.b...),
		basis:   make([]int, m),
		pos:     make([]int, cols),
		atUpper: make([]bool, cols),
		upper:   make([]float64, cols),
		tol:     tol,
	}
	copy(s.upper, lp.upper)
	for j := range s.pos {
		s.pos[j] = -1
	}
	isArtificial := make([]bool, cols)
	for i := 0; i < m; i++ {
		row := s.t.RawRowView(i)
		copy(row[:n], lp.a.RawRowView(i))
		j := lp.start[i]
		if artificial[i] >= 0 {
			j = artificial[i]
			row[j] = 1
			s.upper[j] = math.Inf(1)
			isArtificial[j] = true
		}
		s.basis[i] = j
		s.pos[j] = i
	}

	if cols > n {
		phase1 := make([]float64, cols)
		for j := n; j < cols; j++ {
			phase1[j] = 1
		}
		status, err := s.optimize(ctx, phase1, func(int) bool { return true })
		if err != nil {
			return 0, nil, err
		}
		if status == relaxUnbounded {
			return 0, nil, errors.New("simplex: unbounded phase one")
		}
		var infeasibility float64
		for i, j := range s.basis {
			if isArtificial[j] {
				infeasibility += s.beta[i]
			}
		}
		if infeasibility > feasibilityTol*math.Max(1, floats.Sum(lp.b)) {
			return relaxInfeasible, nil, nil
		}
		// Artificials left in the basis are pinned at zero.
		for j := n; j < cols; j++ {
			s.upper[j] = 0
		}
	}

	cost := make([]float64, cols)
	copy(cost, lp.c)
	status, err := s.optimize(ctx, cost, func(j int) bool { return !isArtificial[j] })
	if err != nil || status != relaxOptimal {
		return status, nil, err
	}

	x := make([]float64, n)
	for j := range x {
		switch {
		case s.pos[j] >= 0:
			x[j] = s.beta[s.pos[j]]
		case s.atUpper[j]:
			x[j] = s.upper[j]
		}
		if x[j] < 0 {
			x[j] = 0
		}
	}
	return relaxOptimal, x, nil
}

func (s *tableau) optimize(ctx context.Context, cost []float64, allowed func(int) bool) (relaxStatus, error) {
	m, n := s.t.Dims()
	d := make([]float64, n)
	copy(d, cost)
	for i, j := range s.basis {
		if cb := cost[j]; cb != 0 {
			floats.AddScaled(d, -cb, s.t.RawRowView(i))
		}
	}

	limit := 50*(m+n) + 1000
	degenerate := 0
	for iter := 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if iter > limit {
			return 0, errSimplexStalled
		}
		q, dir := s.entering(d, allowed, degenerate > blandAfter)
		if q < 0 {
			return relaxOptimal, nil
		}

		// Ratio test: the entering column moves by step in direction dir.
		step, r, leaveUpper := s.upper[q], -1, false
		for i := 0; i < m; i++ {
			delta := -dir * s.t.At(i, q)
			j := s.basis[i]
			var lim float64
			switch {
			case delta < -pivotTol:
				lim = s.beta[i] / -delta
			case delta > pivotTol && !math.IsInf(s.upper[j], 1):
				lim = (s.upper[j] - s.beta[i]) / delta
			default:
				continue
			}
			if lim < step || (r >= 0 && lim == step && j < s.basis[r]) {
				step, r, leaveUpper = lim, i, delta > 0
			}
		}
		if math.IsInf(step, 1) {
			return relaxUnbounded, nil
		}
		if step < 0 {
			step = 0
		}
		if step <= s.tol {
			degenerate++
		} else {
			degenerate = 0
		}

		for i := 0; i < m; i++ {
			if a := s.t.At(i, q); a != 0 {
				s.beta[i] -= dir * step * a
			}
		}
		if r < 0 {
			// Bound flip: the entering column crosses to its other bound.
			s.atUpper[q] = !s.atUpper[q]
			continue
		}

		value := step
		if s.atUpper[q] {
			value = s.upper[q] - step
		}
		leaving := s.basis[r]
		s.atUpper[leaving] = leaveUpper
		s.pos[leaving] = -1
		s.atUpper[q] = false
		s.pivot(r, q, d)
		s.basis[r] = q
		s.pos[q] = r
		s.beta[r] = value
	}
}

// entering prices nonbasic columns. Dantzig's rule picks the largest reduced
// cost; Bland's rule picks the lowest eligible index to escape cycling.
func (s *tableau) entering(d []float64, allowed func(int) bool, bland bool) (int, float64) {
	best, dir, score := -1, 0.0, s.tol
	for j, dj := range d {
		if s.pos[j] >= 0 || !allowed(j) {
			continue
		}
		var gain, sign float64
		switch {
		case !s.atUpper[j] && dj < -s.tol:
			gain, sign = -dj, 1
		case s.atUpper[j] && dj > s.tol:
			gain, sign = dj, -1
		default:
			continue
		}
		if bland {
			return j, sign
		}
		if gain > score {
			best, dir, score = j, sign, gain
		}
	}
	return best, dir
}

func (s *tableau) pivot(r, q int, d []float64) {
	m, _ := s.t.Dims()
	pr := s.t.RawRowView(r)
	floats.Scale(1/pr[q], pr)
	pr[q] = 1
	for i := 0; i < m; i++ {
		if i == r {
			continue
		}
		row := s.t.RawRowView(i)
		if f := row[q]; f != 0 {
			floats.AddScaled(row, -f, pr)
			row[q] = 0
		}
	}
	if f := d[q]; f != 0 {
		floats.AddScaled(d, -f, pr)
		d[q] = 0
	}
}
