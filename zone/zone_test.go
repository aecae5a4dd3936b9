package zone

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/frame"
	"github.com/notargets/porosity/fvm"
	"github.com/notargets/porosity/resistance"
)

type testMesh struct {
	vols     []float64
	zones    map[string][]int
	boundary []int
}

func (m *testMesh) NumCells() int               { return len(m.vols) }
func (m *testMesh) CellVolume(cell int) float64 { return m.vols[cell] }
func (m *testMesh) Volumes() []float64          { return m.vols }
func (m *testMesh) ResolveCellZone(name string) ([]int, error) {
	c, ok := m.zones[name]
	if !ok {
		return nil, fmt.Errorf("no cell zone %q", name)
	}
	return c, nil
}

type boundaryMesh struct{ *testMesh }

func (m boundaryMesh) ProcessorBoundaryCells() []int { return m.boundary }

func newTestMesh() *testMesh {
	return &testMesh{
		vols:  []float64{1, 1, 2, 2, 0.5},
		zones: map[string][]int{"porous": {1, 2, 4}, "empty": {}, "all": {0, 1, 2, 3, 4}},
	}
}

func quietLogger() logrus.FieldLogger {
	l, _ := logtest.NewNullLogger()
	return l
}

func baseSpec() Spec {
	return Spec{
		Name:     "filter",
		CellZone: "porous",
		CoordinateSystem: FrameSpec{
			Type:  CartesianFrame,
			Axis1: field.Vector{1, 0, 0},
			Axis2: field.Vector{0, 1, 0},
		},
		Porosity:    0.5,
		Darcy:       field.Vector{100, 0, 0},
		Forchheimer: field.Vector{},
	}
}

func TestNewZone(t *testing.T) {
	z, err := New(newTestMesh(), baseSpec(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "filter", z.Name())
	assert.Equal(t, "porous", z.CellZone())
	assert.Equal(t, []int{1, 2, 4}, z.Cells())
	assert.Equal(t, field.Vector{100, 0, 0}, z.Darcy())
	assert.Equal(t, field.Vector{}, z.Forchheimer())
	assert.Equal(t, 0.5, z.Porosity())
	assert.Equal(t, 0., z.AddedMassCoeff())
	assert.True(t, z.Frame().IsAligned())
	assert.Nil(t, z.BoundaryCells())
	assert.Contains(t, z.String(), `"filter"`)
}

func TestNewZoneNormalizesCoefficients(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s := baseSpec()
	s.Darcy = field.Vector{-1, 2, 3}
	s.Forchheimer = field.Vector{-1, -1, -1}
	z, err := New(newTestMesh(), s, WithLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, field.Vector{3, 2, 3}, z.Darcy())
	assert.Equal(t, field.Vector{}, z.Forchheimer())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned, "collapsed Forchheimer vector should be reported")
}

func TestNewZoneWarnsWithoutPositiveReference(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s := baseSpec()
	s.Darcy = field.Vector{0, -4, 0}
	z, err := New(newTestMesh(), s, WithLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, field.Vector{}, z.Darcy())

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
			assert.Contains(t, e.Message, "Darcy")
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestNewZoneConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Spec)
		target error
	}{
		{"zero porosity", func(s *Spec) { s.Porosity = 0 }, ErrPorosityRange},
		{"porosity above one", func(s *Spec) { s.Porosity = 1.2 }, ErrPorosityRange},
		{"NaN porosity", func(s *Spec) { s.Porosity = math.NaN() }, ErrPorosityRange},
		{"negative added mass", func(s *Spec) { s.AddedMassCoeff = -0.1 }, ErrAddedMass},
		{"unknown cell zone", func(s *Spec) { s.CellZone = "nowhere" }, ErrUnresolvedCellZone},
		{"unknown model", func(s *Spec) { s.Model = "Ergun" }, resistance.ErrUnknownModel},
		{"bad model input", func(s *Spec) { s.Model = "Engelund1953" }, resistance.ErrModelParameter},
		{"cylindrical", func(s *Spec) { s.CoordinateSystem.Type = "cylindrical" }, ErrUnknownFrame},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := baseSpec()
			tc.modify(&s)
			z, err := New(newTestMesh(), s, WithLogger(quietLogger()))
			assert.Nil(t, z)
			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, "filter", ce.Zone)
			assert.True(t, errors.Is(err, tc.target), "got %v", err)
		})
	}

	t.Run("parallel axes", func(t *testing.T) {
		s := baseSpec()
		s.CoordinateSystem.Axis2 = field.Vector{3, 0, 0}
		_, err := New(newTestMesh(), s, WithLogger(quietLogger()))
		var ce *ConfigurationError
		var fe *frame.InvalidFrameError
		assert.True(t, errors.As(err, &ce))
		assert.True(t, errors.As(err, &fe))
	})

	t.Run("cell out of mesh", func(t *testing.T) {
		m := newTestMesh()
		m.zones["bad"] = []int{0, 9}
		s := baseSpec()
		s.CellZone = "bad"
		_, err := New(m, s, WithLogger(quietLogger()))
		assert.True(t, errors.Is(err, ErrCellIndex))
		m.zones["bad"] = []int{0, 1, 0}
		_, err = New(m, s, WithLogger(quietLogger()))
		assert.True(t, errors.Is(err, ErrCellIndex))
	})
}

func TestAddResistanceEndToEnd(t *testing.T) {
	m := &testMesh{vols: []float64{1}, zones: map[string][]int{"porous": {0}}}
	z, err := New(m, baseSpec(), WithLogger(quietLogger()))
	require.NoError(t, err)

	sys := fvm.NewMatrix[field.Vector](1)
	U := field.VectorField{{1, 0, 0}}
	require.NoError(t, z.AddResistance(sys, field.Uniform(1000), field.Uniform(0.001), U))
	assert.InDeltaSlice(t, []float64{0.1, 0, 0}, sys.Diagonal()[0][:], 1.e-14)
	assert.Equal(t, field.Vector{}, sys.Source()[0])

	drag, err := z.Drag(field.Uniform(1000), field.Uniform(0.001), U)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0, 0}, drag[:], 1.e-14)
}

func TestAddResistanceOnlyTouchesZoneCells(t *testing.T) {
	z, err := New(newTestMesh(), baseSpec(), WithLogger(quietLogger()))
	require.NoError(t, err)
	sys := fvm.NewMatrix[field.Vector](5)
	U := field.VectorField{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}}
	require.NoError(t, z.AddResistance(sys, field.Uniform(1), field.Uniform(1), U))
	want := []float64{0, 100, 200, 0, 50}
	for i, d := range sys.Diagonal() {
		assert.InDeltaf(t, want[i], d[0], 1.e-12, "cell %d", i)
	}

	err = z.AddResistance(fvm.NewMatrix[field.Vector](4), field.Uniform(1), field.Uniform(1), U)
	assert.True(t, errors.Is(err, resistance.ErrDimensionMismatch))
}

func TestEmptyZoneIsNoOp(t *testing.T) {
	s := baseSpec()
	s.CellZone = "empty"
	s.Forchheimer = field.Vector{1, 1, 1}
	s.AddedMassCoeff = 0.3
	z, err := New(newTestMesh(), s, WithLogger(quietLogger()))
	require.NoError(t, err)

	sys := fvm.NewMatrix[field.Vector](5)
	sys.SetUnsteadyCoeff(2, 4)
	sys.AddToDiagonal(3, field.Vector{1, 2, 3})
	AU := field.TensorField{{1}, {2}, {3}, {4}, {5}}
	beforeAU := AU.Clone()
	U := make(field.VectorField, 5)

	require.NoError(t, z.AddResistance(sys, field.Uniform(1), field.Uniform(1), U))
	require.NoError(t, z.AddResistanceTensor(AU, field.Uniform(1), field.Uniform(1), U, false, nil))
	require.NoError(t, z.ModifyDdt(sys))

	assert.Equal(t, beforeAU, AU)
	assert.Equal(t, []float64{0, 0, 4, 0, 0}, sys.UnsteadyCoeff())
	assert.Equal(t, field.Vector{1, 2, 3}, sys.Diagonal()[3])
	for _, s := range sys.Source() {
		assert.Equal(t, field.Vector{}, s)
	}
}

type recordingCorrector struct {
	calls    int
	boundary []int
}

func (r *recordingCorrector) CorrectBoundary(AU field.TensorField, boundary []int) error {
	r.calls++
	r.boundary = boundary
	return nil
}

func TestAddResistanceTensorCorrection(t *testing.T) {
	m := newTestMesh()
	m.boundary = []int{0, 4, 2}
	z, err := New(boundaryMesh{m}, baseSpec(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, z.BoundaryCells())

	AU := field.NewTensorField(5)
	U := make(field.VectorField, 5)
	rc := &recordingCorrector{}
	require.NoError(t, z.AddResistanceTensor(AU, field.Uniform(1), field.Uniform(2), U, false, rc))
	assert.Equal(t, 0, rc.calls)
	assert.InDelta(t, 200, AU[1].At(0, 0), 1.e-12)

	require.NoError(t, z.AddResistanceTensor(AU, field.Uniform(1), field.Uniform(2), U, true, rc))
	assert.Equal(t, 1, rc.calls)
	assert.Equal(t, []int{2, 4}, rc.boundary)

	err = z.AddResistanceTensor(AU, field.Uniform(1), field.Uniform(2), U, true, nil)
	assert.True(t, errors.Is(err, ErrNoCorrector))

	// Collective call is made even without local zone cells
	s := baseSpec()
	s.CellZone = "empty"
	empty, err := New(boundaryMesh{m}, s, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, empty.AddResistanceTensor(AU, field.Uniform(1), field.Uniform(2), U, true, rc))
	assert.Equal(t, 2, rc.calls)
}

func TestPorosity(t *testing.T) {
	z, err := New(newTestMesh(), baseSpec(), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, z.SetPorosity(0.3))
	assert.Equal(t, 0.3, z.Porosity())
	assert.True(t, errors.Is(z.SetPorosity(0), ErrPorosityRange))
	assert.Equal(t, 0.3, z.Porosity())

	// Coefficients do not follow porosity
	assert.Equal(t, field.Vector{100, 0, 0}, z.Darcy())

	n := field.ScalarField{1, 1, 1, 1, 1}
	require.NoError(t, z.ApplyPorosity(n))
	assert.Equal(t, field.ScalarField{1, 0.3, 0.3, 1, 0.3}, n)
	assert.Error(t, z.ApplyPorosity(field.ScalarField{1}))

	assert.Equal(t, 0.3, z.Descriptor().Porosity)
}

func TestDescriptorRebuildsZone(t *testing.T) {
	s := baseSpec()
	s.Model = "vanGent1995"
	s.Coefficients = Coefficients{Alpha: 1000, Beta: 1.1, D50: 0.02, KC: 10}
	axis3 := field.Vector{0, 0, 1}
	s.CoordinateSystem.Axis3 = &axis3
	z, err := New(newTestMesh(), s, WithLogger(quietLogger()))
	require.NoError(t, err)

	d := z.Descriptor()
	assert.Equal(t, s, d)
	z2, err := New(newTestMesh(), d, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, z.Darcy(), z2.Darcy())
	assert.Equal(t, z.Forchheimer(), z2.Forchheimer())

	// Defaults are made explicit
	s = baseSpec()
	s.CoordinateSystem.Type = ""
	z, err = New(newTestMesh(), s, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, CartesianFrame, z.Descriptor().CoordinateSystem.Type)
	assert.Equal(t, "DarcyForchheimer", z.Descriptor().Model)
}

func TestClosedZone(t *testing.T) {
	z, err := New(newTestMesh(), baseSpec(), WithLogger(quietLogger()))
	require.NoError(t, err)
	z.Close()
	U := make(field.VectorField, 5)
	sys := fvm.NewMatrix[field.Vector](5)
	assert.ErrorIs(t, z.AddResistance(sys, field.Uniform(1), field.Uniform(1), U), ErrClosed)
	assert.ErrorIs(t, z.AddResistanceTensor(field.NewTensorField(5), field.Uniform(1), field.Uniform(1), U, false, nil), ErrClosed)
	assert.ErrorIs(t, z.ModifyDdt(sys), ErrClosed)
	assert.ErrorIs(t, z.SetPorosity(0.5), ErrClosed)
	assert.ErrorIs(t, z.ApplyPorosity(make(field.ScalarField, 5)), ErrClosed)
	_, err = z.Drag(field.Uniform(1), field.Uniform(1), U)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Contains(t, z.String(), "closed")
}
