// Package field holds the per-cell value types the porosity kernels operate on.
package field

import (
	"gonum.org/v1/gonum/floats"
)

// Scalar is a cell value of a scalar transported quantity
type Scalar float64

// Add returns s+o
func (s Scalar) Add(o Scalar) Scalar { return s + o }

// Scale returns a*s
func (s Scalar) Scale(a float64) Scalar { return Scalar(a) * s }

// Vector is a cell value of a vector quantity in Cartesian components
type Vector [3]float64

// Add returns v+o
func (v Vector) Add(o Vector) Vector {
	return Vector{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v-o
func (v Vector) Sub(o Vector) Vector {
	return Vector{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns a*v
func (v Vector) Scale(a float64) Vector {
	return Vector{a * v[0], a * v[1], a * v[2]}
}

// Dot returns the inner product v·o
func (v Vector) Dot(o Vector) float64 {
	return floats.Dot(v[:], o[:])
}

// Mag returns the Euclidean norm |v|
func (v Vector) Mag() float64 {
	return floats.Norm(v[:], 2)
}

// Cross returns v×o
func (v Vector) Cross(o Vector) Vector {
	return Vector{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Tensor is a rank-2 tensor stored row-major: T[3*i+j] = T_ij
type Tensor [9]float64

// Identity returns the unit tensor
func Identity() Tensor {
	return Tensor{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// DiagTensor returns diag(v)
func DiagTensor(v Vector) Tensor {
	return Tensor{v[0], 0, 0, 0, v[1], 0, 0, 0, v[2]}
}

// At returns T_ij
func (t Tensor) At(i, j int) float64 { return t[3*i+j] }

// Add returns t+o
func (t Tensor) Add(o Tensor) Tensor {
	var r Tensor
	for i := range t {
		r[i] = t[i] + o[i]
	}
	return r
}

// Scale returns a*t
func (t Tensor) Scale(a float64) Tensor {
	var r Tensor
	for i := range t {
		r[i] = a * t[i]
	}
	return r
}

// Dot returns the tensor-vector product t·v
func (t Tensor) Dot(v Vector) Vector {
	return Vector{
		t[0]*v[0] + t[1]*v[1] + t[2]*v[2],
		t[3]*v[0] + t[4]*v[1] + t[5]*v[2],
		t[6]*v[0] + t[7]*v[1] + t[8]*v[2],
	}
}

// Diag returns the diagonal components (T_xx, T_yy, T_zz)
func (t Tensor) Diag() Vector {
	return Vector{t[0], t[4], t[8]}
}

// OffDiag returns t with its diagonal zeroed
func (t Tensor) OffDiag() Tensor {
	r := t
	r[0], r[4], r[8] = 0, 0, 0
	return r
}

// T returns the transpose
func (t Tensor) T() Tensor {
	return Tensor{
		t[0], t[3], t[6],
		t[1], t[4], t[7],
		t[2], t[5], t[8],
	}
}

// IsZero reports whether every component is exactly zero
func (t Tensor) IsZero() bool {
	return t == Tensor{}
}

// ScalarField is a cell-indexed scalar field
type ScalarField []float64

// VectorField is a cell-indexed vector field
type VectorField []Vector

// TensorField is a cell-indexed tensor field
type TensorField []Tensor

// NewTensorField returns a zeroed tensor field of n cells
func NewTensorField(n int) TensorField { return make(TensorField, n) }

// Clone returns a copy of the field
func (f TensorField) Clone() TensorField {
	c := make(TensorField, len(f))
	copy(c, f)
	return c
}

// Source is a per-cell scalar property such as density or viscosity. A
// constant density is a Uniform, a spatially varying one a ScalarField.
type Source interface {
	At(cell int) float64
}

// Sized is implemented by sources backed by per-cell storage
type Sized interface {
	Len() int
}

// Uniform is a spatially constant Source
type Uniform float64

// At returns the constant value for any cell
func (u Uniform) At(int) float64 { return float64(u) }

// At returns the value stored for cell
func (f ScalarField) At(cell int) float64 { return f[cell] }

// Len returns the number of cells in the field
func (f ScalarField) Len() int { return len(f) }
