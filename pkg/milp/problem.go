// Package milp describes mixed-integer linear programs and the solvers that
// consume them. Problems are always minimisation problems.
package milp

import (
	"fmt"
	"math"
)

// VarKind is the domain of a decision variable.
type VarKind int

const (
	Continuous VarKind = iota
	Integer
	Binary
)

// String implements fmt.Stringer.
func (k VarKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("VarKind(%d)", int(k))
	}
}

// Sense is the relation of a linear constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

// String implements fmt.Stringer.
func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Var references a variable by its column index in a Problem.
type Var int

// Term is a coefficient applied to a variable.
type Term struct {
	Var  Var
	Coef float64
}

// Variable describes one column of the problem.
type Variable struct {
	Name  string
	Kind  VarKind
	Lower float64
	Upper float64
}

// Integral reports whether the variable must take integer values.
func (v Variable) Integral() bool {
	return v.Kind == Integer || v.Kind == Binary
}

// Constraint is a named linear row: sum(Terms) Sense RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Problem is a minimisation MILP. It is built once and treated as read-only
// by solvers.
type Problem struct {
	Name        string
	Vars        []Variable
	Constraints []Constraint
	Objective   []Term
}

// NewProblem creates an empty problem.
func NewProblem(name string) *Problem {
	return &Problem{Name: name}
}

// AddVar appends a variable and returns its reference.
func (p *Problem) AddVar(name string, kind VarKind, lower, upper float64) Var {
	if kind == Binary {
		lower, upper = 0, 1
	}
	p.Vars = append(p.Vars, Variable{Name: name, Kind: kind, Lower: lower, Upper: upper})
	return Var(len(p.Vars) - 1)
}

// Binary adds a 0/1 variable.
func (p *Problem) Binary(name string) Var {
	return p.AddVar(name, Binary, 0, 1)
}

// NonNegInteger adds an integer variable bounded below by zero.
func (p *Problem) NonNegInteger(name string) Var {
	return p.AddVar(name, Integer, 0, math.Inf(1))
}

// NonNegContinuous adds a continuous variable bounded below by zero.
func (p *Problem) NonNegContinuous(name string) Var {
	return p.AddVar(name, Continuous, 0, math.Inf(1))
}

// SetBounds narrows or widens the bounds of an existing variable.
func (p *Problem) SetBounds(v Var, lower, upper float64) {
	p.Vars[v].Lower = lower
	p.Vars[v].Upper = upper
}

// AddConstraint appends a named row.
func (p *Problem) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// SetObjective replaces the objective terms.
func (p *Problem) SetObjective(terms []Term) {
	p.Objective = terms
}

// Var returns the variable description for v.
func (p *Problem) Var(v Var) Variable {
	return p.Vars[v]
}

// Evaluate computes the objective for the given column values.
func (p *Problem) Evaluate(values []float64) float64 {
	var total float64
	for _, t := range p.Objective {
		total += t.Coef * values[t.Var]
	}
	return total
}

// Validate performs structural checks every backend relies on.
func (p *Problem) Validate() error {
	names := make(map[string]struct{}, len(p.Constraints))
	for i, v := range p.Vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) {
			return fmt.Errorf("variable %d (%s) has NaN bound", i, v.Name)
		}
		if math.IsInf(v.Lower, 0) {
			return fmt.Errorf("variable %d (%s) must have a finite lower bound", i, v.Name)
		}
		if v.Upper < v.Lower {
			return fmt.Errorf("variable %d (%s) has upper bound below lower bound", i, v.Name)
		}
	}
	check := func(where string, terms []Term) error {
		for _, t := range terms {
			if int(t.Var) < 0 || int(t.Var) >= len(p.Vars) {
				return fmt.Errorf("%s references unknown variable %d", where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%s has non-finite coefficient on %s", where, p.Vars[t.Var].Name)
			}
		}
		return nil
	}
	for _, c := range p.Constraints {
		if c.Name != "" {
			if _, dup := names[c.Name]; dup {
				return fmt.Errorf("duplicate constraint name %q", c.Name)
			}
			names[c.Name] = struct{}{}
		}
		if err := check("constraint "+c.Name, c.Terms); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("constraint %s has non-finite right-hand side", c.Name)
		}
	}
	return check("objective", p.Objective)
}
