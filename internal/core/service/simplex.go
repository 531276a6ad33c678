package service

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	minOptimalityTol = 1e-9
	pivotTol         = 1e-9
	ratioTieTol      = 1e-12
	infeasibleTol    = 1e-6
	// consecutive degenerate pivots before switching to Bland's rule
	degeneratePivots = 50
)

var errIterationLimit = errors.New("lp: iteration limit reached")

type columnState int8

const (
	atLower columnState = iota
	atUpper
	inBasis
)

// tableau is a dense bounded-variable simplex tableau. Every column is a
// variable 0 <= v <= upper, rows holds B⁻¹A and value the level of the basic
// variable of each row. Nonbasic variables sit at one of their bounds.
type tableau struct {
	rows    *mat.Dense
	m, n    int
	upper   []float64
	state   []columnState
	basis   []int
	value   []float64
	reduced []float64
	frozen  []bool
}

// solveBounded maximises c·y over 0 <= y <= upper subject to rows. Each row
// gets a slack, surplus or artificial column so that the starting basis is
// the identity with non-negative values; phase one drives the artificials to
// zero.
func solveBounded(ctx context.Context, rows []lpConstraint, upper, c []float64, tol float64) ([]float64, error) {
	nStruct := len(upper)
	if len(rows) == 0 {
		return solveUnconstrained(upper, c)
	}

	// column layout: structural | slack or surplus | artificial
	m := len(rows)
	extra := 0
	artificials := 0
	for i := range rows {
		if rows[i].rhs < 0 {
			rows[i] = negateRow(rows[i])
		}
		if rows[i].sense != Equal {
			extra++
		}
		if rows[i].sense != LessOrEqual {
			artificials++
		}
	}
	n := nStruct + extra + artificials
	t := &tableau{
		rows:    mat.NewDense(m, n, nil),
		m:       m,
		n:       n,
		upper:   make([]float64, n),
		state:   make([]columnState, n),
		basis:   make([]int, m),
		value:   make([]float64, m),
		reduced: make([]float64, n),
		frozen:  make([]bool, n),
	}
	copy(t.upper, upper)
	for j := nStruct; j < n; j++ {
		t.upper[j] = math.Inf(1)
	}

	phaseOne := make([]float64, n)
	nextExtra, nextArtificial := nStruct, nStruct+extra
	for i, r := range rows {
		row := t.rows.RawRowView(i)
		for _, term := range r.terms {
			row[term.Var] += term.Coef
		}
		t.value[i] = r.rhs
		switch r.sense {
		case LessOrEqual:
			row[nextExtra] = 1
			t.basis[i] = nextExtra
			nextExtra++
		case GreaterOrEqual:
			row[nextExtra] = -1
			nextExtra++
			fallthrough
		case Equal:
			row[nextArtificial] = 1
			t.basis[i] = nextArtificial
			phaseOne[nextArtificial] = -1
			nextArtificial++
		}
	}
	for _, j := range t.basis {
		t.state[j] = inBasis
	}

	maxIter := 20*(m+n) + 1000
	if artificials > 0 {
		if err := t.optimize(ctx, phaseOne, tol, maxIter); err != nil {
			if errors.Is(err, lp.ErrUnbounded) {
				// phase one is bounded by zero, only numerical trouble gets here
				return nil, errIterationLimit
			}
			return nil, err
		}
		infeasibility := 0.0
		for i, j := range t.basis {
			if j >= nStruct+extra {
				infeasibility += t.value[i]
			}
		}
		if infeasibility > infeasibleTol*(1+floats.Norm(t.value, math.Inf(1))) {
			return nil, lp.ErrInfeasible
		}
		for j := nStruct + extra; j < n; j++ {
			t.upper[j] = 0
			t.frozen[j] = true
		}
		for i, j := range t.basis {
			if j >= nStruct+extra {
				t.value[i] = 0
			}
		}
	}

	phaseTwo := make([]float64, n)
	copy(phaseTwo, c)
	if err := t.optimize(ctx, phaseTwo, tol, maxIter); err != nil {
		return nil, err
	}

	y := make([]float64, nStruct)
	for j := range y {
		if t.state[j] == atUpper {
			y[j] = t.upper[j]
		}
	}
	for i, j := range t.basis {
		if j < nStruct {
			y[j] = math.Min(math.Max(t.value[i], 0), t.upper[j])
		}
	}
	return y, nil
}

// without rows every variable sits at the bound its objective favours
func solveUnconstrained(upper, c []float64) ([]float64, error) {
	y := make([]float64, len(upper))
	for j := range y {
		if c[j] > 0 {
			if math.IsInf(upper[j], 1) {
				return nil, lp.ErrUnbounded
			}
			y[j] = upper[j]
		}
	}
	return y, nil
}

func negateRow(r lpConstraint) lpConstraint {
	out := lpConstraint{name: r.name, rhs: -r.rhs, terms: make([]Term, len(r.terms))}
	for i, t := range r.terms {
		out.terms[i] = Term{Var: t.Var, Coef: -t.Coef}
	}
	switch r.sense {
	case LessOrEqual:
		out.sense = GreaterOrEqual
	case GreaterOrEqual:
		out.sense = LessOrEqual
	default:
		out.sense = Equal
	}
	return out
}

// priceOut sets the reduced costs of cost for the current basis.
func (t *tableau) priceOut(cost []float64) {
	copy(t.reduced, cost)
	for i, j := range t.basis {
		if cost[j] != 0 {
			floats.AddScaled(t.reduced, -cost[j], t.rows.RawRowView(i))
		}
	}
}

func (t *tableau) optimize(ctx context.Context, cost []float64, tol float64, maxIter int) error {
	t.priceOut(cost)
	degenerate := 0
	for iter := 0; iter < maxIter; iter++ {
		if iter%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		enter := t.entering(tol, degenerate >= degeneratePivots)
		if enter < 0 {
			return nil
		}
		step, err := t.move(enter, degenerate >= degeneratePivots)
		if err != nil {
			return err
		}
		if step <= ratioTieTol {
			degenerate++
		} else {
			degenerate = 0
		}
	}
	return errIterationLimit
}

// entering picks the nonbasic column with the most improving reduced cost,
// or the lowest improving index under Bland's rule. -1 means optimal.
func (t *tableau) entering(tol float64, bland bool) int {
	best, bestScore := -1, 0.0
	for j := 0; j < t.n; j++ {
		if t.state[j] == inBasis || t.frozen[j] || t.upper[j] <= 0 {
			continue
		}
		score := t.reduced[j]
		if t.state[j] == atUpper {
			score = -score
		}
		if score <= tol {
			continue
		}
		if bland {
			return j
		}
		if score > bestScore {
			best, bestScore = j, score
		}
	}
	return best
}

// move runs the ratio test for the entering column and either flips it to
// its other bound or pivots it into the basis. It returns the step length.
func (t *tableau) move(enter int, bland bool) (float64, error) {
	dir := 1.0
	if t.state[enter] == atUpper {
		dir = -1
	}

	step := t.upper[enter]
	leave, leaveAtUpper := -1, false
	bestAlpha := 0.0
	for i := 0; i < t.m; i++ {
		alpha := dir * t.rows.At(i, enter)
		var limit float64
		var toUpper bool
		switch {
		case alpha > pivotTol:
			limit = t.value[i] / alpha
		case alpha < -pivotTol:
			ub := t.upper[t.basis[i]]
			if math.IsInf(ub, 1) {
				continue
			}
			limit = (ub - t.value[i]) / -alpha
			toUpper = true
		default:
			continue
		}
		limit = math.Max(limit, 0)

		better := limit < step-ratioTieTol
		if !better && leave >= 0 && math.Abs(limit-step) <= ratioTieTol {
			if bland {
				better = t.basis[i] < t.basis[leave]
			} else {
				better = math.Abs(alpha) > bestAlpha
			}
		}
		if better {
			step, leave, leaveAtUpper, bestAlpha = limit, i, toUpper, math.Abs(alpha)
		}
	}
	if math.IsInf(step, 1) {
		return 0, lp.ErrUnbounded
	}

	for i := 0; i < t.m; i++ {
		if a := t.rows.At(i, enter); a != 0 {
			t.value[i] -= step * dir * a
		}
	}
	if leave < 0 {
		if t.state[enter] == atLower {
			t.state[enter] = atUpper
		} else {
			t.state[enter] = atLower
		}
		return step, nil
	}

	enteringValue := step
	if dir < 0 {
		enteringValue = t.upper[enter] - step
	}
	leaving := t.basis[leave]
	if leaveAtUpper {
		t.state[leaving] = atUpper
	} else {
		t.state[leaving] = atLower
	}
	t.pivot(leave, enter)
	t.basis[leave] = enter
	t.state[enter] = inBasis
	t.value[leave] = enteringValue
	return step, nil
}

func (t *tableau) pivot(r, q int) {
	pivotRow := t.rows.RawRowView(r)
	floats.Scale(1/pivotRow[q], pivotRow)
	pivotRow[q] = 1
	for i := 0; i < t.m; i++ {
		if i == r {
			continue
		}
		row := t.rows.RawRowView(i)
		if f := row[q]; f != 0 {
			floats.AddScaled(row, -f, pivotRow)
			row[q] = 0
		}
	}
	if f := t.reduced[q]; f != 0 {
		floats.AddScaled(t.reduced, -f, pivotRow)
		t.reduced[q] = 0
	}
}
