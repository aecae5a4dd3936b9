package resistance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/porosity/field"
)

// Normalize resolves the negative-value shorthand of a resistance vector.
// A negative component is a multiplier of the largest non-negative
// component, so (-1, 2, 3) becomes (3, 2, 3) and (-0.5, 2, 4) becomes
// (2, 2, 4). When every component is negative there is no reference value
// and the result is the zero vector.
func Normalize(v field.Vector) field.Vector {
	maxCmpt := math.Max(0, floats.Max(v[:]))
	var out field.Vector
	for i, c := range v {
		if c < 0 {
			out[i] = -c * maxCmpt
		} else {
			out[i] = c
		}
	}
	return out
}

// Collapses reports whether v has negative components but no positive one
// to scale them by, so that Normalize returns the zero vector
func Collapses(v field.Vector) bool {
	return floats.Min(v[:]) < 0 && floats.Max(v[:]) <= 0
}

// ModelType selects how the Darcy and Forchheimer vectors of a zone are obtained
type ModelType uint8

const (
	// DarcyForchheimer takes d and f directly from the zone settings
	DarcyForchheimer ModelType = iota
	// Engelund1953 derives isotropic coefficients from porosity and grain size
	Engelund1953
	// VanGent1995 extends Engelund with a Keulegan-Carpenter correction of
	// the quadratic term for oscillatory flow
	VanGent1995
)

var modelNames = map[ModelType]string{
	DarcyForchheimer: "DarcyForchheimer",
	Engelund1953:     "Engelund1953",
	VanGent1995:      "vanGent1995",
}

func (m ModelType) String() string {
	if s, ok := modelNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ModelType(%d)", uint8(m))
}

// ParseModelType returns the model registered under name. The empty name
// selects DarcyForchheimer.
func ParseModelType(name string) (ModelType, error) {
	if name == "" {
		return DarcyForchheimer, nil
	}
	for m, s := range modelNames {
		if s == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Model is a closed set of coefficient models. Only the fields used by the
// selected Type are read.
type Model struct {
	Type ModelType

	// DarcyForchheimer inputs, local frame, negative shorthand allowed
	D field.Vector
	F field.Vector

	// Empirical inputs
	Alpha float64 // linear (laminar) resistance constant
	Beta  float64 // quadratic (turbulent) resistance constant
	D50   float64 // nominal grain diameter
	KC    float64 // Keulegan-Carpenter number (VanGent1995)
}

// Coefficients returns the normalised local Darcy and Forchheimer vectors of
// the model for a medium of the given porosity
func (m Model) Coefficients(porosity float64) (darcy, forchheimer field.Vector, err error) {
	switch m.Type {
	case DarcyForchheimer:
		return Normalize(m.D), Normalize(m.F), nil

	case Engelund1953:
		if err = m.checkEmpirical(); err != nil {
			return
		}
		n := porosity
		a := m.Alpha * math.Pow(1-n, 3) / (n * n * m.D50 * m.D50)
		b := m.Beta * (1 - n) / (n * n * n * m.D50)
		return isotropic(a), isotropic(b), nil

	case VanGent1995:
		if err = m.checkEmpirical(); err != nil {
			return
		}
		if m.KC <= 0 {
			err = fmt.Errorf("%w: KC must be positive, got %g", ErrModelParameter, m.KC)
			return
		}
		n := porosity
		a := m.Alpha * (1 - n) * (1 - n) / (n * n * n * m.D50 * m.D50)
		b := m.Beta * (1 + 7.5/m.KC) * (1 - n) / (n * n * n * m.D50)
		return isotropic(a), isotropic(b), nil

	default:
		err = fmt.Errorf("%w: %v", ErrUnknownModel, m.Type)
		return
	}
}

func (m Model) checkEmpirical() error {
	if m.D50 <= 0 {
		return fmt.Errorf("%w: d50 must be positive, got %g", ErrModelParameter, m.D50)
	}
	if m.Alpha < 0 || m.Beta < 0 {
		return fmt.Errorf("%w: alpha and beta must be non-negative, got %g, %g",
			ErrModelParameter, m.Alpha, m.Beta)
	}
	return nil
}

func isotropic(a float64) field.Vector { return field.Vector{a, a, a} }
