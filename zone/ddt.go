package zone

// UnsteadyMatrix is any per-cell system with a scalar time-derivative
// coefficient, regardless of the transported quantity
type UnsteadyMatrix interface {
	NumCells() int
	UnsteadyCoeff() []float64
	SetUnsteadyCoeff(cell int, c float64)
}

// DdtFactor returns the apparent inertia factor n + cm·(1-n). It is one for
// n=1, cm=0 and positive for every n in (0,1] and cm >= 0.
func DdtFactor(porosity, addedMassCoeff float64) float64 {
	return porosity + addedMassCoeff*(1-porosity)
}

// ModifyDdt rescales the unsteady coefficient of the zone cells
func (z *Zone) ModifyDdt(m UnsteadyMatrix) error {
	if z.closed {
		return ErrClosed
	}
	if len(z.cells) == 0 {
		return nil
	}
	if m.NumCells() != z.mesh.NumCells() {
		return dimensionError(z.spec.Name, m.NumCells(), z.mesh.NumCells())
	}
	factor := DdtFactor(z.porosity, z.addedMass)
	coeff := m.UnsteadyCoeff()
	for _, c := range z.cells {
		m.SetUnsteadyCoeff(c, coeff[c]*factor)
	}
	return nil
}
