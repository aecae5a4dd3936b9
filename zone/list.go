package zone

import (
	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/resistance"
)

// List holds the porous zones of a case in configuration order. Contributions
// of overlapping zones accumulate in list order.
type List []*Zone

// NewList builds every zone or none
func NewList(m Mesh, specs []Spec, opts ...Option) (List, error) {
	l := make(List, 0, len(specs))
	names := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if _, dup := names[s.Name]; dup {
			l.Close()
			return nil, configError(s.Name, ErrDuplicateZone)
		}
		names[s.Name] = struct{}{}
		z, err := New(m, s, opts...)
		if err != nil {
			l.Close()
			return nil, err
		}
		l = append(l, z)
	}
	return l, nil
}

// Find returns the zone called name, or nil
func (l List) Find(name string) *Zone {
	for _, z := range l {
		if z.Name() == name {
			return z
		}
	}
	return nil
}

func (l List) AddResistance(sys resistance.MomentumSystem, rho, mu field.Source, U field.VectorField) error {
	for _, z := range l {
		if err := z.AddResistance(sys, rho, mu, U); err != nil {
			return err
		}
	}
	return nil
}

// AddResistanceTensor runs every zone in order. With correct set each zone
// performs its own collective correction, so all ranks must hold the same
// list.
func (l List) AddResistanceTensor(AU field.TensorField, rho, mu field.Source, U field.VectorField,
	correct bool, corrector BoundaryCorrector) error {
	for _, z := range l {
		if err := z.AddResistanceTensor(AU, rho, mu, U, correct, corrector); err != nil {
			return err
		}
	}
	return nil
}

func (l List) ModifyDdt(m UnsteadyMatrix) error {
	for _, z := range l {
		if err := z.ModifyDdt(m); err != nil {
			return err
		}
	}
	return nil
}

func (l List) ApplyPorosity(porosity field.ScalarField) error {
	for _, z := range l {
		if err := z.ApplyPorosity(porosity); err != nil {
			return err
		}
	}
	return nil
}

// Descriptors returns the descriptor of every zone
func (l List) Descriptors() []Spec {
	out := make([]Spec, len(l))
	for i, z := range l {
		out[i] = z.Descriptor()
	}
	return out
}

func (l List) Close() {
	for _, z := range l {
		z.Close()
	}
}
