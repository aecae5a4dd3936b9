// Package frame implements the Cartesian zone-local coordinate system used to
// express anisotropic resistance along the principal axes of a porous zone.
package frame

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/porosity/field"
)

// orthoTol bounds |R·Rᵗ - I| after construction and the parallel-axis test
const orthoTol = 1.e-10

// InvalidFrameError reports a basis from which no orthonormal frame can be built
type InvalidFrameError struct {
	Reason string
}

func (e *InvalidFrameError) Error() string {
	return "invalid coordinate frame: " + e.Reason
}

// Frame is an orthonormal local frame. Rows of the rotation tensor R are the
// local axes expressed in global components, so local = R·global.
type Frame struct {
	origin field.Vector
	e1     field.Vector
	e2     field.Vector
	e3     field.Vector
	R      *mat.Dense
}

// New builds a frame from an origin and two axes. axis1 is normalised, axis2
// is made orthogonal to axis1 by Gram-Schmidt, and the third axis is
// axis1×axis2. An optional axis3 is accepted only when it points along the
// derived third axis.
func New(origin, axis1, axis2 field.Vector, axis3 ...field.Vector) (*Frame, error) {
	if len(axis3) > 1 {
		return nil, &InvalidFrameError{Reason: "more than one third axis supplied"}
	}

	m1 := axis1.Mag()
	if m1 == 0 {
		return nil, &InvalidFrameError{Reason: "axis1 has zero length"}
	}
	e1 := axis1.Scale(1 / m1)

	if axis2.Mag() == 0 {
		return nil, &InvalidFrameError{Reason: "axis2 has zero length"}
	}
	// Gram-Schmidt
	e2 := axis2.Sub(e1.Scale(e1.Dot(axis2)))
	m2 := e2.Mag()
	if m2 <= orthoTol*axis2.Mag() {
		return nil, &InvalidFrameError{Reason: fmt.Sprintf("axis1 %v and axis2 %v are parallel", axis1, axis2)}
	}
	e2 = e2.Scale(1 / m2)
	e3 := e1.Cross(e2)

	if len(axis3) == 1 {
		m3 := axis3[0].Mag()
		if m3 == 0 {
			return nil, &InvalidFrameError{Reason: "axis3 has zero length"}
		}
		if math.Abs(axis3[0].Scale(1/m3).Dot(e3)-1) > 1.e-8 {
			return nil, &InvalidFrameError{Reason: fmt.Sprintf("axis3 %v is not axis1×axis2", axis3[0])}
		}
	}

	f := &Frame{
		origin: origin,
		e1:     e1,
		e2:     e2,
		e3:     e3,
		R: mat.NewDense(3, 3, []float64{
			e1[0], e1[1], e1[2],
			e2[0], e2[1], e2[2],
			e3[0], e3[1], e3[2],
		}),
	}

	// Orthogonality is established here and trusted afterwards
	var rrt mat.Dense
	rrt.Mul(f.R, f.R.T())
	if !mat.EqualApprox(&rrt, eye(), orthoTol) {
		return nil, &InvalidFrameError{Reason: "rotation tensor is not orthogonal"}
	}

	return f, nil
}

// Identity returns the frame aligned with the global axes at the origin
func Identity() *Frame {
	f, err := New(field.Vector{}, field.Vector{1, 0, 0}, field.Vector{0, 1, 0})
	if err != nil {
		panic(err)
	}
	return f
}

func eye() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// Origin returns the frame origin
func (f *Frame) Origin() field.Vector { return f.origin }

// Axes returns the three orthonormal axes in global components
func (f *Frame) Axes() (e1, e2, e3 field.Vector) { return f.e1, f.e2, f.e3 }

// Rotation returns a copy of the rotation tensor R
func (f *Frame) Rotation() *mat.Dense {
	return mat.DenseCopyOf(f.R)
}

// IsAligned reports whether the frame axes coincide with the global axes
func (f *Frame) IsAligned() bool {
	return mat.EqualApprox(f.R, eye(), 0)
}

// ToLocal rotates a global vector into local components
func (f *Frame) ToLocal(v field.Vector) field.Vector {
	var out mat.VecDense
	out.MulVec(f.R, mat.NewVecDense(3, v[:]))
	return field.Vector{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// ToGlobal rotates a local vector into global components
func (f *Frame) ToGlobal(v field.Vector) field.Vector {
	var out mat.VecDense
	out.MulVec(f.R.T(), mat.NewVecDense(3, v[:]))
	return field.Vector{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// ToLocalTensor returns R·T·Rᵗ
func (f *Frame) ToLocalTensor(t field.Tensor) field.Tensor {
	var out mat.Dense
	out.Product(f.R, mat.NewDense(3, 3, t[:]), f.R.T())
	return fromDense(&out)
}

// ToGlobalTensor returns Rᵗ·T·R
func (f *Frame) ToGlobalTensor(t field.Tensor) field.Tensor {
	var out mat.Dense
	out.Product(f.R.T(), mat.NewDense(3, 3, t[:]), f.R)
	return fromDense(&out)
}

func fromDense(m *mat.Dense) (t field.Tensor) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[3*i+j] = m.At(i, j)
		}
	}
	return
}

func (f *Frame) String() string {
	return fmt.Sprintf("cartesian origin=%v e1=%v e2=%v e3=%v", f.origin, f.e1, f.e2, f.e3)
}
