// Package fvm holds a cell-diagonal finite-volume system for one transported
// quantity. Only the diagonal, source and unsteady coefficient are stored;
// neighbour coupling is outside the scope of the porosity terms that write
// into it.
package fvm

import (
	"errors"
	"fmt"

	"github.com/notargets/porosity/field"
)

var ErrSingular = errors.New("singular diagonal")

// Value is the algebra a cell value must support to live in a Matrix
type Value[T any] interface {
	Add(T) T
	Scale(float64) T
}

// Matrix is indexed by cell. The unsteady coefficient is kept apart from the
// diagonal until AssembleDdt folds the time derivative into the system, so
// that it can be rescaled by zone time-derivative modifiers first.
type Matrix[T Value[T]] struct {
	diag      []T
	source    []T
	ddt       []float64
	assembled bool
}

func NewMatrix[T Value[T]](nCells int) *Matrix[T] {
	return &Matrix[T]{
		diag:   make([]T, nCells),
		source: make([]T, nCells),
		ddt:    make([]float64, nCells),
	}
}

func (m *Matrix[T]) NumCells() int { return len(m.diag) }

// Diagonal exposes the diagonal storage
func (m *Matrix[T]) Diagonal() []T { return m.diag }

func (m *Matrix[T]) AddToDiagonal(cell int, d T) { m.diag[cell] = m.diag[cell].Add(d) }

// Source exposes the explicit source storage
func (m *Matrix[T]) Source() []T { return m.source }

func (m *Matrix[T]) AddToSource(cell int, s T) { m.source[cell] = m.source[cell].Add(s) }

// UnsteadyCoeff exposes the per-cell coefficient of the time derivative
func (m *Matrix[T]) UnsteadyCoeff() []float64 { return m.ddt }

func (m *Matrix[T]) SetUnsteadyCoeff(cell int, c float64) { m.ddt[cell] = c }

// SetEulerDdt sets the implicit Euler coefficient rho·V/dt on every cell
func (m *Matrix[T]) SetEulerDdt(rho field.Source, volumes []float64, dt float64) error {
	if len(volumes) != len(m.ddt) {
		return fmt.Errorf("euler ddt: %d volumes for %d cells", len(volumes), len(m.ddt))
	}
	if dt <= 0 {
		return fmt.Errorf("euler ddt: time step must be positive, got %g", dt)
	}
	for i, v := range volumes {
		m.ddt[i] = rho.At(i) * v / dt
	}
	return nil
}

// AssembleDdt adds the explicit part ddt·old of the time derivative to the
// source. The implicit part ddt is applied to the diagonal by the solve.
func (m *Matrix[T]) AssembleDdt(old []T) error {
	if len(old) != len(m.source) {
		return fmt.Errorf("assemble ddt: old field has %d cells, matrix has %d", len(old), len(m.source))
	}
	for i, c := range m.ddt {
		m.source[i] = m.source[i].Add(old[i].Scale(c))
	}
	m.assembled = true
	return nil
}

// Reset zeroes diagonal, source and unsteady coefficient for the next assembly
func (m *Matrix[T]) Reset() {
	var zero T
	for i := range m.diag {
		m.diag[i] = zero
		m.source[i] = zero
		m.ddt[i] = 0
	}
	m.assembled = false
}

// SolveVector performs the point-diagonal solve
// (diag + ddt)·x = source component by component
func SolveVector(m *Matrix[field.Vector]) (field.VectorField, error) {
	x := make(field.VectorField, m.NumCells())
	for i := range x {
		var ddt float64
		if m.assembled {
			ddt = m.ddt[i]
		}
		for k := 0; k < 3; k++ {
			a := m.diag[i][k] + ddt
			if a == 0 {
				return nil, fmt.Errorf("%w: cell %d component %d", ErrSingular, i, k)
			}
			x[i][k] = m.source[i][k] / a
		}
	}
	return x, nil
}

// SolveScalar performs the point-diagonal solve for a scalar system
func SolveScalar(m *Matrix[field.Scalar]) (field.ScalarField, error) {
	x := make(field.ScalarField, m.NumCells())
	for i := range x {
		a := float64(m.diag[i])
		if m.assembled {
			a += m.ddt[i]
		}
		if a == 0 {
			return nil, fmt.Errorf("%w: cell %d", ErrSingular, i)
		}
		x[i] = float64(m.source[i]) / a
	}
	return x, nil
}
