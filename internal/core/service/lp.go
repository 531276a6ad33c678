package service

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize/convex/lp"
)

type Sense int

const (
	LessOrEqual Sense = iota
	Equal
	GreaterOrEqual
)

func (s Sense) String() string {
	switch s {
	case LessOrEqual:
		return "<="
	case Equal:
		return "="
	case GreaterOrEqual:
		return ">="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

type Term struct {
	Var  int
	Coef float64
}

type lpVariable struct {
	name      string
	lower     float64
	upper     float64
	objective float64
}

type lpConstraint struct {
	name  string
	terms []Term
	sense Sense
	rhs   float64
}

// LinearProgram is a maximisation problem over bounded continuous variables.
type LinearProgram struct {
	vars        []lpVariable
	constraints []lpConstraint
}

type LPSolution struct {
	Objective float64
	Values    []float64
}

func NewLinearProgram() *LinearProgram {
	return &LinearProgram{}
}

// AddVariable registers a variable with lower <= x <= upper (upper may be
// +Inf) and its coefficient in the maximised objective.
func (p *LinearProgram) AddVariable(name string, lower, upper, objective float64) int {
	p.vars = append(p.vars, lpVariable{
		name:      name,
		lower:     lower,
		upper:     upper,
		objective: objective,
	})
	return len(p.vars) - 1
}

func (p *LinearProgram) AddConstraint(name string, sense Sense, rhs float64, terms ...Term) {
	p.constraints = append(p.constraints, lpConstraint{
		name:  name,
		terms: terms,
		sense: sense,
		rhs:   rhs,
	})
}

func (p *LinearProgram) NumVariables() int {
	return len(p.vars)
}

// Bounds returns the lower and upper bound of variable v.
func (p *LinearProgram) Bounds(v int) (float64, float64) {
	return p.vars[v].lower, p.vars[v].upper
}

func (p *LinearProgram) NumConstraints() int {
	return len(p.constraints)
}

func (p *LinearProgram) VariableName(i int) string {
	return p.vars[i].name
}

func (p *LinearProgram) Objective(values []float64) float64 {
	var obj float64
	for i, v := range p.vars {
		obj += v.objective * values[i]
	}
	return obj
}

// Solve finds an optimal vertex. Errors are lp.ErrInfeasible and
// lp.ErrUnbounded from the gonum lp package, or errIterationLimit.
func (p *LinearProgram) Solve(tol float64) (*LPSolution, error) {
	return p.SolveContext(context.Background(), tol)
}

// SolveContext is Solve returning ctx.Err() once ctx is done.
func (p *LinearProgram) SolveContext(ctx context.Context, tol float64) (*LPSolution, error) {
	if len(p.vars) == 0 {
		return &LPSolution{}, nil
	}
	upper := make([]float64, len(p.vars))
	for i, v := range p.vars {
		if math.IsInf(v.lower, 0) || math.IsNaN(v.lower) || math.IsNaN(v.upper) {
			return nil, fmt.Errorf("lp: variable %s needs a finite lower bound", v.name)
		}
		if v.lower > v.upper {
			return nil, lp.ErrInfeasible
		}
		// solved over y = x - lower, 0 <= y <= upper - lower
		upper[i] = v.upper - v.lower
	}

	rows := make([]lpConstraint, 0, len(p.constraints))
	for _, c := range p.constraints {
		r := lpConstraint{name: c.name, sense: c.sense, rhs: c.rhs}
		for _, t := range c.terms {
			if t.Coef == 0 {
				continue
			}
			r.rhs -= t.Coef * p.vars[t.Var].lower
			r.terms = append(r.terms, t)
		}
		if len(r.terms) == 0 {
			if !emptyRowFeasible(r) {
				return nil, lp.ErrInfeasible
			}
			continue
		}
		rows = append(rows, r)
	}

	y, err := solveBounded(ctx, rows, upper, p.objective(), math.Max(tol, minOptimalityTol))
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(p.vars))
	for i, v := range p.vars {
		values[i] = v.lower + y[i]
	}
	return &LPSolution{
		Objective: p.Objective(values),
		Values:    values,
	}, nil
}

func (p *LinearProgram) objective() []float64 {
	c := make([]float64, len(p.vars))
	for i, v := range p.vars {
		c[i] = v.objective
	}
	return c
}

func emptyRowFeasible(r lpConstraint) bool {
	switch r.sense {
	case LessOrEqual:
		return r.rhs >= 0
	case GreaterOrEqual:
		return r.rhs <= 0
	default:
		return r.rhs == 0
	}
}
