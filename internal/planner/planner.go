package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/sma-activity-planner/pkg/export"
	"github.com/noah-isme/sma-activity-planner/pkg/milp"
)

// Planner chains normalization, model construction, the solver call and
// extraction. A Planner holds no per-run state and may be shared.
type Planner struct {
	solver milp.Solver
	opts   Options
}

// Outcome bundles everything a run produced.
type Outcome struct {
	Input    *Input
	Warnings []Warning
	Result   *Result
}

// New validates the options and binds them to a solver backend.
func New(solver milp.Solver, opts Options) (*Planner, error) {
	if solver == nil {
		return nil, fmt.Errorf("planner: solver is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.Sessions = append([]string(nil), opts.Sessions...)
	return &Planner{solver: solver, opts: opts}, nil
}

// Options returns the run parameters.
func (p *Planner) Options() Options {
	o := p.opts
	o.Sessions = append([]string(nil), p.opts.Sessions...)
	return o
}

// WithTimeLimit returns a planner sharing p's solver whose runs stop after d.
// Non-positive durations keep the current limit.
func (p *Planner) WithTimeLimit(d time.Duration) *Planner {
	if d <= 0 {
		return p
	}
	cp := *p
	cp.opts.TimeLimit = d
	return &cp
}

// Run normalizes the raw tables and solves them. Schema and empty-input
// errors abort before any model is built; non-optimal solves are reported in
// the result, not as errors.
func (p *Planner) Run(ctx context.Context, activities, preferences export.Dataset) (*Outcome, error) {
	in, warnings, err := Normalize(activities, preferences, p.opts)
	if err != nil {
		return &Outcome{Warnings: warnings}, err
	}
	res, err := p.Solve(ctx, in)
	if err != nil {
		return &Outcome{Input: in, Warnings: warnings}, err
	}
	return &Outcome{Input: in, Warnings: warnings, Result: res}, nil
}

// Solve builds and solves the model of already normalized input.
func (p *Planner) Solve(ctx context.Context, in *Input) (*Result, error) {
	model, err := BuildModel(in, p.opts)
	if err != nil {
		return nil, err
	}
	sol, err := p.solver.Solve(ctx, model.Problem, p.opts.TimeLimit)
	if err != nil {
		return nil, fmt.Errorf("planner: solve: %w", err)
	}
	return Extract(model, sol), nil
}
