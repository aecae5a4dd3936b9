// Package zone implements porous resistance zones: named sets of cells that
// add Darcy-Forchheimer drag to a momentum equation and rescale the
// time derivative of any transported quantity for porosity and added mass.
//
// A zone is invoked synchronously from one control goroutine per rank. The
// only collective step is the optional boundary correction of
// AddResistanceTensor: every rank owning part of the zone must request it
// with the same flag in the same iteration, or its neighbours block until
// the corrector gives up.
package zone

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/frame"
	"github.com/notargets/porosity/resistance"
)

// Mesh is the view of the mesh a zone needs
type Mesh interface {
	NumCells() int
	CellVolume(cell int) float64
	// Volumes returns the mesh-wide cell volume field
	Volumes() []float64
	ResolveCellZone(name string) ([]int, error)
}

// ProcessorBoundary is implemented by rank-local meshes that know which of
// their cells touch a neighbouring rank
type ProcessorBoundary interface {
	ProcessorBoundaryCells() []int
}

// BoundaryCorrector reconciles a tensor field across processor boundaries.
// It is collective.
type BoundaryCorrector interface {
	CorrectBoundary(AU field.TensorField, boundary []int) error
}

type Option func(*Zone)

// WithLogger sets the logger used for construction and warnings
func WithLogger(l logrus.FieldLogger) Option {
	return func(z *Zone) { z.log = l }
}

type Zone struct {
	spec      Spec
	mesh      Mesh
	cells     []int
	boundary  []int
	frame     *frame.Frame
	kernel    *resistance.Kernel
	porosity  float64
	addedMass float64
	log       logrus.FieldLogger
	closed    bool
}

// New builds the zone described by spec on mesh. Either every part of the
// zone is established or a *ConfigurationError is returned.
func New(m Mesh, spec Spec, opts ...Option) (*Zone, error) {
	if m == nil {
		panic("zone: nil mesh")
	}
	z := &Zone{
		spec:      spec,
		mesh:      m,
		porosity:  spec.Porosity,
		addedMass: spec.AddedMassCoeff,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(z)
	}
	name := spec.Name

	// Scalars
	if err := checkPorosity(spec.Porosity); err != nil {
		return nil, configError(name, err)
	}
	if !(spec.AddedMassCoeff >= 0) {
		return nil, configError(name, fmt.Errorf("%w: %g", ErrAddedMass, spec.AddedMassCoeff))
	}

	// Frame
	f, err := spec.CoordinateSystem.Build()
	if err != nil {
		return nil, configError(name, fmt.Errorf("coordinate system: %w", err))
	}
	z.frame = f

	// Coefficients, fixed at the construction porosity
	model, err := spec.resistanceModel()
	if err != nil {
		return nil, configError(name, err)
	}
	d, fc, err := model.Coefficients(spec.Porosity)
	if err != nil {
		return nil, configError(name, err)
	}
	if model.Type == resistance.DarcyForchheimer {
		if resistance.Collapses(spec.Darcy) {
			z.log.WithField("zone", name).Warnf("Darcy coefficients %v have no positive reference, using zero", spec.Darcy)
		}
		if resistance.Collapses(spec.Forchheimer) {
			z.log.WithField("zone", name).Warnf("Forchheimer coefficients %v have no positive reference, using zero", spec.Forchheimer)
		}
	}
	z.kernel = resistance.NewKernel(f, d, fc)

	// Cells
	if z.cells, err = resolveCells(m, spec.CellZone); err != nil {
		return nil, configError(name, err)
	}
	if pb, ok := m.(ProcessorBoundary); ok {
		z.boundary = intersect(z.cells, pb.ProcessorBoundaryCells())
	}

	z.log.WithFields(logrus.Fields{
		"zone":     name,
		"cellZone": spec.CellZone,
		"cells":    len(z.cells),
		"porosity": z.porosity,
		"model":    model.Type,
	}).Info("creating porous zone")
	z.log.WithField("zone", name).Debugf("D=%v F=%v frame: %v", d, fc, f)

	return z, nil
}

func checkPorosity(n float64) error {
	if !(n > 0 && n <= 1) {
		return fmt.Errorf("%w: %g", ErrPorosityRange, n)
	}
	return nil
}

func resolveCells(m Mesh, cellZone string) ([]int, error) {
	cells, err := m.ResolveCellZone(cellZone)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnresolvedCellZone, cellZone, err)
	}
	n := m.NumCells()
	seen := make(map[int]struct{}, len(cells))
	out := make([]int, len(cells))
	for i, c := range cells {
		if c < 0 || c >= n {
			return nil, fmt.Errorf("%w: cell zone %q holds %d, mesh has %d cells", ErrCellIndex, cellZone, c, n)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: cell zone %q holds %d twice", ErrCellIndex, cellZone, c)
		}
		seen[c] = struct{}{}
		out[i] = c
	}
	return out, nil
}

// intersect returns the elements of a also in b, in the order of a
func intersect(a, b []int) []int {
	in := make(map[int]struct{}, len(b))
	for _, c := range b {
		in[c] = struct{}{}
	}
	var out []int
	for _, c := range a {
		if _, ok := in[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (z *Zone) Name() string { return z.spec.Name }

func (z *Zone) CellZone() string { return z.spec.CellZone }

// Cells returns the mesh-local cell indices of the zone. The slice is shared.
func (z *Zone) Cells() []int { return z.cells }

// BoundaryCells returns the zone cells on a processor boundary
func (z *Zone) BoundaryCells() []int { return z.boundary }

func (z *Zone) Frame() *frame.Frame { return z.frame }

// Darcy returns the normalised local Darcy coefficients
func (z *Zone) Darcy() field.Vector { return z.kernel.Dl }

// Forchheimer returns the normalised local Forchheimer coefficients
func (z *Zone) Forchheimer() field.Vector { return z.kernel.Fl }

func (z *Zone) Porosity() float64 { return z.porosity }

// Kernel returns the precomputed drag tensors of the zone
func (z *Zone) Kernel() *resistance.Kernel { return z.kernel }

func (z *Zone) AddedMassCoeff() float64 { return z.addedMass }

// SetPorosity replaces the porosity used by ModifyDdt and ApplyPorosity. The
// resistance coefficients keep the values derived at construction.
func (z *Zone) SetPorosity(n float64) error {
	if z.closed {
		return ErrClosed
	}
	if err := checkPorosity(n); err != nil {
		return fmt.Errorf("zone %q: %w", z.spec.Name, err)
	}
	z.porosity = n
	return nil
}

// ApplyPorosity writes the zone porosity into a mesh-wide porosity field
func (z *Zone) ApplyPorosity(porosity field.ScalarField) error {
	if z.closed {
		return ErrClosed
	}
	if len(porosity) != z.mesh.NumCells() {
		return fmt.Errorf("%w: porosity field has %d cells, mesh has %d",
			resistance.ErrDimensionMismatch, len(porosity), z.mesh.NumCells())
	}
	for _, c := range z.cells {
		porosity[c] = z.porosity
	}
	return nil
}

// AddResistance adds the implicit diagonal and explicit off-diagonal drag of
// the zone to a momentum system
func (z *Zone) AddResistance(sys resistance.MomentumSystem, rho, mu field.Source, U field.VectorField) error {
	if z.closed {
		return ErrClosed
	}
	if err := z.kernel.Compute(z.cells, z.mesh.Volumes(), rho, mu, U, resistance.IntoSystem{System: sys}); err != nil {
		return fmt.Errorf("zone %q: add resistance: %w", z.spec.Name, err)
	}
	return nil
}

// AddResistanceTensor adds the drag tensor of the zone to AU. When correct is
// set the corrector is called after the local loop with the zone cells on
// processor boundaries, whether or not this rank holds any zone cells.
func (z *Zone) AddResistanceTensor(AU field.TensorField, rho, mu field.Source, U field.VectorField,
	correct bool, corrector BoundaryCorrector) error {

	if z.closed {
		return ErrClosed
	}
	if correct && corrector == nil {
		return fmt.Errorf("zone %q: %w", z.spec.Name, ErrNoCorrector)
	}
	if err := z.kernel.Compute(z.cells, z.mesh.Volumes(), rho, mu, U, resistance.IntoTensorField{AU: AU}); err != nil {
		return fmt.Errorf("zone %q: add resistance tensor: %w", z.spec.Name, err)
	}
	if correct {
		if err := corrector.CorrectBoundary(AU, z.boundary); err != nil {
			return fmt.Errorf("zone %q: boundary correction: %w", z.spec.Name, err)
		}
	}
	return nil
}

// Drag returns the total resistive force of the zone on the flow
func (z *Zone) Drag(rho, mu field.Source, U field.VectorField) (field.Vector, error) {
	if z.closed {
		return field.Vector{}, ErrClosed
	}
	return z.kernel.Drag(z.cells, z.mesh.Volumes(), rho, mu, U)
}

// Descriptor returns the construction record with the current porosity
func (z *Zone) Descriptor() Spec {
	s := z.spec
	s.Porosity = z.porosity
	if s.CoordinateSystem.Type == "" {
		s.CoordinateSystem.Type = CartesianFrame
	}
	if s.Model == "" {
		s.Model = resistance.DarcyForchheimer.String()
	}
	return s
}

// Close releases the mesh reference. Every later operation returns ErrClosed.
func (z *Zone) Close() {
	z.closed = true
	z.mesh = nil
	z.cells = nil
	z.boundary = nil
}

func (z *Zone) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "porous zone %q on cell zone %q: %d cells", z.spec.Name, z.spec.CellZone, len(z.cells))
	fmt.Fprintf(&b, ", porosity %g, added mass %g", z.porosity, z.addedMass)
	fmt.Fprintf(&b, ", D %v, F %v", z.kernel.Dl, z.kernel.Fl)
	if z.closed {
		b.WriteString(" (closed)")
	}
	return b.String()
}
