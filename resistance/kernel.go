// Package resistance computes the Darcy-Forchheimer momentum sink of a porous
// zone. A single per-cell loop feeds either a momentum system (vector
// diagonal plus explicit source) or a tensorial diagonal field, chosen by the
// Accumulator handed to Compute.
package resistance

import (
	"errors"
	"fmt"

	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/frame"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrUnknownModel      = errors.New("unknown resistance model")
	ErrModelParameter    = errors.New("invalid resistance model parameter")
)

// MomentumSystem is the part of a vector linear system the kernel writes to
type MomentumSystem interface {
	NumCells() int
	AddToDiagonal(cell int, d field.Vector)
	AddToSource(cell int, s field.Vector)
}

// Accumulator receives the per-cell drag tensor, per unit volume and in
// global components
type Accumulator interface {
	// Len is the number of cells the target can address
	Len() int
	Accumulate(cell int, volume float64, drag field.Tensor, U field.Vector)
}

// IntoSystem accumulates into the diagonal and source of a momentum system.
// The diagonal of the drag tensor is treated implicitly; any off-diagonal
// part, which appears when the zone frame is rotated against the global
// axes, is moved to the source using the current velocity.
type IntoSystem struct {
	System MomentumSystem
}

func (a IntoSystem) Len() int { return a.System.NumCells() }

func (a IntoSystem) Accumulate(cell int, volume float64, drag field.Tensor, U field.Vector) {
	a.System.AddToDiagonal(cell, drag.Diag().Scale(volume))
	if off := drag.OffDiag(); !off.IsZero() {
		a.System.AddToSource(cell, off.Dot(U).Scale(-volume))
	}
}

// IntoTensorField adds the drag tensor to a standalone tensor field such as
// the AU field of a pressure-correction step. AU follows the per unit volume
// convention of A(), so the cell volume is not applied.
type IntoTensorField struct {
	AU field.TensorField
}

func (a IntoTensorField) Len() int { return len(a.AU) }

func (a IntoTensorField) Accumulate(cell int, _ float64, drag field.Tensor, _ field.Vector) {
	a.AU[cell] = a.AU[cell].Add(drag)
}

// Kernel holds the zone resistance tensors rotated once into the global frame
type Kernel struct {
	Frame *frame.Frame
	Dl    field.Vector // Darcy, local diagonal
	Fl    field.Vector // Forchheimer, local diagonal
	Dg    field.Tensor // Rᵗ·diag(Dl)·R
	Fg    field.Tensor // Rᵗ·diag(Fl)·R
}

// NewKernel builds a kernel from normalised local coefficient vectors
func NewKernel(f *frame.Frame, darcy, forchheimer field.Vector) *Kernel {
	return &Kernel{
		Frame: f,
		Dl:    darcy,
		Fl:    forchheimer,
		Dg:    f.ToGlobalTensor(field.DiagTensor(darcy)),
		Fg:    f.ToGlobalTensor(field.DiagTensor(forchheimer)),
	}
}

// DragTensor returns μ·Dg + ρ·|U|·Fg, the global form of the local
// diag(μ·d + ρ·|u_local|·f). The rotation preserves |U|.
func (k *Kernel) DragTensor(rho, mu float64, U field.Vector) field.Tensor {
	return k.Dg.Scale(mu).Add(k.Fg.Scale(rho * U.Mag()))
}

// Compute runs the resistance loop over cells. volumes, mu and U are
// mesh-wide fields; rho is a constant or a mesh-wide field. All sizes are
// checked before anything is written.
func (k *Kernel) Compute(cells []int, volumes []float64, rho, mu field.Source,
	U field.VectorField, acc Accumulator) error {

	if len(cells) == 0 {
		return nil
	}
	if err := CheckSizes(cells, volumes, rho, mu, U); err != nil {
		return err
	}
	if acc.Len() != len(volumes) {
		return fmt.Errorf("%w: target has %d cells, mesh has %d", ErrDimensionMismatch, acc.Len(), len(volumes))
	}

	for _, c := range cells {
		acc.Accumulate(c, volumes[c], k.DragTensor(rho.At(c), mu.At(c), U[c]), U[c])
	}
	return nil
}

// Drag returns the total resistive force Σ V·T·U over cells
func (k *Kernel) Drag(cells []int, volumes []float64, rho, mu field.Source,
	U field.VectorField) (force field.Vector, err error) {

	if len(cells) == 0 {
		return
	}
	if err = CheckSizes(cells, volumes, rho, mu, U); err != nil {
		return
	}
	for _, c := range cells {
		force = force.Add(k.DragTensor(rho.At(c), mu.At(c), U[c]).Dot(U[c]).Scale(volumes[c]))
	}
	return
}

// CheckSizes verifies every mesh-wide input against the volume field and
// that every cell index is addressable
func CheckSizes(cells []int, volumes []float64, rho, mu field.Source, U field.VectorField) error {
	n := len(volumes)
	if len(U) != n {
		return fmt.Errorf("%w: U has %d cells, mesh has %d", ErrDimensionMismatch, len(U), n)
	}
	for _, s := range []struct {
		name string
		src  field.Source
	}{{"rho", rho}, {"mu", mu}} {
		if sz, ok := s.src.(field.Sized); ok && sz.Len() != n {
			return fmt.Errorf("%w: %s has %d cells, mesh has %d", ErrDimensionMismatch, s.name, sz.Len(), n)
		}
	}
	for _, c := range cells {
		if c < 0 || c >= n {
			return fmt.Errorf("%w: cell %d outside [0,%d)", ErrDimensionMismatch, c, n)
		}
	}
	return nil
}
