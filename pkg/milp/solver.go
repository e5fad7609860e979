package milp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the outcome reported by a solver.
type Status int

const (
	StatusNotSolved Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	// StatusTimeLimit means the time budget expired before optimality was
	// proven. An incumbent may be attached but must not be treated as optimal.
	StatusTimeLimit
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusNotSolved:
		return "NotSolved"
	case StatusOptimal:
		return "Optimal"
	case StatusInfeasible:
		return "Infeasible"
	case StatusUnbounded:
		return "Unbounded"
	case StatusTimeLimit:
		return "TimeLimit"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Solution carries the solver outcome. Values is indexed by Var and is only
// meaningful when Status is StatusOptimal (or an incumbent under
// StatusTimeLimit).
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
	Nodes     int
	Runtime   time.Duration
}

// Value returns the value assigned to v, or zero when no values are present.
func (s *Solution) Value(v Var) float64 {
	if s == nil || int(v) >= len(s.Values) || v < 0 {
		return 0
	}
	return s.Values[v]
}

// Solver solves a problem within the provided wall-clock budget. A
// non-optimal outcome is reported through Solution.Status; errors are reserved
// for malformed problems and backend failures.
type Solver interface {
	Solve(ctx context.Context, p *Problem, timeLimit time.Duration) (*Solution, error)
}

// Factory builds a solver backend.
type Factory func(opts Options) (Solver, error)

// Options tunes backends. Zero values select backend defaults.
type Options struct {
	MaxNodes  int
	Tolerance float64
}

// ErrUnknownBackend is returned by New for unregistered backend names.
var ErrUnknownBackend = errors.New("milp: unknown solver backend")

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available to New. Backends register themselves
// from init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the named backend.
func New(name string, opts Options) (Solver, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return factory(opts)
}

// Backends lists registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
