package service

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

func TestLinearProgramOptimum(t *testing.T) {

	require := require.New(t)

	// max 3x + 2y, x + y <= 4, x + 3y <= 6, 0 <= x <= 3
	p := NewLinearProgram()
	x := p.AddVariable("x", 0, 3, 3)
	y := p.AddVariable("y", 0, math.Inf(1), 2)
	p.AddConstraint("a", LessOrEqual, 4, Term{Var: x, Coef: 1}, Term{Var: y, Coef: 1})
	p.AddConstraint("b", LessOrEqual, 6, Term{Var: x, Coef: 1}, Term{Var: y, Coef: 3})

	sol, err := p.Solve(1e-10)
	require.NoError(err)
	require.InDelta(11, sol.Objective, 1e-9)
	require.InDelta(3, sol.Values[x], 1e-9)
	require.InDelta(1, sol.Values[y], 1e-9)
}

func TestLinearProgramLowerBoundsAndSenses(t *testing.T) {

	require := require.New(t)

	// max -x - y, x in [2, 5], x + y >= 3, x - y = 1
	p := NewLinearProgram()
	x := p.AddVariable("x", 2, 5, -1)
	y := p.AddVariable("y", 0, math.Inf(1), -1)
	p.AddConstraint("sum", GreaterOrEqual, 3, Term{Var: x, Coef: 1}, Term{Var: y, Coef: 1})
	p.AddConstraint("diff", Equal, 1, Term{Var: x, Coef: 1}, Term{Var: y, Coef: -1})

	sol, err := p.Solve(1e-10)
	require.NoError(err)
	require.InDelta(2, sol.Values[x], 1e-9)
	require.InDelta(1, sol.Values[y], 1e-9)
	require.InDelta(-3, sol.Objective, 1e-9)
}

func TestLinearProgramInfeasible(t *testing.T) {

	require := require.New(t)

	p := NewLinearProgram()
	x := p.AddVariable("x", 0, 3, 1)
	p.AddConstraint("floor", GreaterOrEqual, 5, Term{Var: x, Coef: 1})

	_, err := p.Solve(1e-10)
	require.ErrorIs(err, lp.ErrInfeasible)

	p = NewLinearProgram()
	p.AddVariable("x", 4, 3, 1)
	_, err = p.Solve(1e-10)
	require.ErrorIs(err, lp.ErrInfeasible)
}

func TestLinearProgramUnbounded(t *testing.T) {

	require := require.New(t)

	p := NewLinearProgram()
	x := p.AddVariable("x", 0, math.Inf(1), 1)
	y := p.AddVariable("y", 0, math.Inf(1), 0)
	p.AddConstraint("gap", LessOrEqual, 1, Term{Var: x, Coef: 1}, Term{Var: y, Coef: -1})

	_, err := p.Solve(1e-10)
	require.ErrorIs(err, lp.ErrUnbounded)

	// a free variable that is never constrained
	p = NewLinearProgram()
	p.AddVariable("free", 0, math.Inf(1), 1)
	_, err = p.Solve(1e-10)
	require.ErrorIs(err, lp.ErrUnbounded)
}

func TestLinearProgramWithoutRows(t *testing.T) {

	require := require.New(t)

	p := NewLinearProgram()
	x := p.AddVariable("x", 1.5, math.Inf(1), -2)
	p.AddConstraint("empty", LessOrEqual, 0)

	sol, err := p.Solve(1e-10)
	require.NoError(err)
	require.Equal(1.5, sol.Values[x])
	require.Equal(-3.0, sol.Objective)
	require.Equal("x", p.VariableName(x))
	require.Equal(1, p.NumConstraints())
}

func TestLinearProgramBoundFlip(t *testing.T) {

	require := require.New(t)

	// the row never binds, x and y stop at their own upper bounds
	p := NewLinearProgram()
	x := p.AddVariable("x", 0, 2, 1)
	y := p.AddVariable("y", -1, 1, 1)
	p.AddConstraint("loose", LessOrEqual, 10, Term{Var: x, Coef: 1}, Term{Var: y, Coef: 1})

	sol, err := p.Solve(1e-10)
	require.NoError(err)
	require.InDelta(2, sol.Values[x], 1e-9)
	require.InDelta(1, sol.Values[y], 1e-9)
	require.InDelta(3, sol.Objective, 1e-9)
}

func TestLinearProgramDegenerateVertex(t *testing.T) {

	require := require.New(t)

	// three rows meet at the optimum (1, 1)
	p := NewLinearProgram()
	x := p.AddVariable("x", 0, math.Inf(1), 1)
	y := p.AddVariable("y", 0, math.Inf(1), 1)
	p.AddConstraint("a", LessOrEqual, 1, Term{Var: x, Coef: 1})
	p.AddConstraint("b", LessOrEqual, 1, Term{Var: y, Coef: 1})
	p.AddConstraint("c", LessOrEqual, 2, Term{Var: x, Coef: 1}, Term{Var: y, Coef: 1})
	p.AddConstraint("d", Equal, 0, Term{Var: x, Coef: 1}, Term{Var: y, Coef: -1})

	sol, err := p.Solve(1e-10)
	require.NoError(err)
	require.InDelta(1, sol.Values[x], 1e-9)
	require.InDelta(1, sol.Values[y], 1e-9)
}

func TestLinearProgramRedundantEqualities(t *testing.T) {

	require := require.New(t)

	// the same equality twice leaves an artificial in the basis at zero
	p := NewLinearProgram()
	x := p.AddVariable("x", 0, 4, 1)
	y := p.AddVariable("y", 0, 4, 2)
	p.AddConstraint("e1", Equal, 3, Term{Var: x, Coef: 1}, Term{Var: y, Coef: 1})
	p.AddConstraint("e2", Equal, 6, Term{Var: x, Coef: 2}, Term{Var: y, Coef: 2})

	sol, err := p.Solve(1e-10)
	require.NoError(err)
	require.InDelta(0, sol.Values[x], 1e-9)
	require.InDelta(3, sol.Values[y], 1e-9)
	require.InDelta(6, sol.Objective, 1e-9)
}

func TestLinearProgramMatchesDenseSimplex(t *testing.T) {

	require := require.New(t)
	rnd := rand.New(rand.NewPCG(11, 12))

	for run := 0; run < 10; run++ {
		const rows, cols = 6, 8

		// max obj·x, A x <= b, x >= 0 with A, b > 0
		p := NewLinearProgram()
		obj := make([]float64, cols)
		for j := range obj {
			obj[j] = rnd.Float64()
			p.AddVariable("x", 0, math.Inf(1), obj[j])
		}

		// same problem for gonum: min -obj·x, [A I] [x s] = b
		c := make([]float64, cols+rows)
		for j := range obj {
			c[j] = -obj[j]
		}
		A := mat.NewDense(rows, cols+rows, nil)
		b := make([]float64, rows)
		for i := 0; i < rows; i++ {
			terms := make([]Term, cols)
			for j := 0; j < cols; j++ {
				a := 0.1 + rnd.Float64()
				terms[j] = Term{Var: j, Coef: a}
				A.Set(i, j, a)
			}
			A.Set(i, cols+i, 1)
			b[i] = 1 + rnd.Float64()*5
			p.AddConstraint("row", LessOrEqual, b[i], terms...)
		}

		want, _, err := lp.Simplex(c, A, b, 1e-10, nil)
		require.NoError(err)
		sol, err := p.Solve(1e-10)
		require.NoError(err)
		require.InDelta(-want, sol.Objective, 1e-7, "run %d", run)
	}
}

func TestLinearProgramContextCancelled(t *testing.T) {

	require := require.New(t)

	p := NewLinearProgram()
	x := p.AddVariable("x", 0, math.Inf(1), 1)
	p.AddConstraint("cap", LessOrEqual, 1, Term{Var: x, Coef: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.SolveContext(ctx, 1e-10)
	require.ErrorIs(err, context.Canceled)
}
