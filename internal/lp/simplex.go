package lp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Optimize converts the model to standard form and solves it with the gonum
// simplex. Bounded variables are shifted to the origin; finite upper bounds
// and inequality constraints each contribute one slack column.
func (m *Model) Optimize() (Solution, error) {
	n := len(m.lower)
	if n == 0 {
		return Solution{}, errors.New("lp: model has no variables")
	}
	for i := 0; i < n; i++ {
		if math.IsInf(m.lower[i], 0) || math.IsNaN(m.lower[i]) {
			return Solution{}, fmt.Errorf("lp: variable %s has no finite lower bound", m.names[i])
		}
		if m.upper[i] < m.lower[i] {
			return Solution{}, fmt.Errorf("lp: variable %s has crossed bounds [%g, %g]", m.names[i], m.lower[i], m.upper[i])
		}
	}

	boundRows := 0
	for i := 0; i < n; i++ {
		if !math.IsInf(m.upper[i], 1) {
			boundRows++
		}
	}
	slackCols := boundRows
	for _, c := range m.constrs {
		if c.rel != Equal {
			slackCols++
		}
	}

	rows := boundRows + len(m.constrs)
	cols := n + slackCols
	if rows == 0 {
		return Solution{}, errors.New("lp: model has no constraints")
	}

	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)

	// Upper-bound rows: y_i + s = upper_i - lower_i.
	row := 0
	col := n
	for i := 0; i < n; i++ {
		if math.IsInf(m.upper[i], 1) {
			continue
		}
		a.Set(row, i, 1)
		a.Set(row, col, 1)
		b[row] = m.upper[i] - m.lower[i]
		row++
		col++
	}

	// Constraint rows over the shifted variables.
	for _, c := range m.constrs {
		coefs, err := m.coefficients(c.expr)
		if err != nil {
			return Solution{}, fmt.Errorf("lp: constraint %s: %w", c.name, err)
		}
		rhs := c.rhs
		for i, coef := range coefs {
			a.Set(row, i, coef)
			rhs -= coef * m.lower[i]
		}
		switch c.rel {
		case LessEq:
			a.Set(row, col, 1)
			col++
		case GreaterEq:
			a.Set(row, col, -1)
			col++
		}
		b[row] = rhs
		row++
	}

	objCoefs, err := m.coefficients(m.obj)
	if err != nil {
		return Solution{}, fmt.Errorf("lp: objective: %w", err)
	}
	c := make([]float64, cols)
	constant := 0.0
	for i, coef := range objCoefs {
		constant += coef * m.lower[i]
		if m.sense == Maximize {
			coef = -coef
		}
		c[i] = coef
	}

	opt, x, err := lp.Simplex(c, a, b, m.env.Tol, nil)
	if err != nil {
		return Solution{}, mapSimplexError(err)
	}

	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = m.lower[i] + x[i]
	}
	if m.sense == Maximize {
		opt = -opt
	}
	return Solution{Objective: opt + constant, values: values}, nil
}

func mapSimplexError(err error) error {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return fmt.Errorf("%w: %v", ErrInfeasible, err)
	case errors.Is(err, lp.ErrUnbounded):
		return fmt.Errorf("%w: %v", ErrUnbounded, err)
	default:
		return fmt.Errorf("lp: solve failed: %w", err)
	}
}
