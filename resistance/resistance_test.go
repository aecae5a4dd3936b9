package resistance

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/frame"
	"github.com/notargets/porosity/fvm"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want field.Vector
	}{
		{field.Vector{-1, 2, 3}, field.Vector{3, 2, 3}},
		{field.Vector{-0.5, 2, 4}, field.Vector{2, 2, 4}},
		{field.Vector{1, 2, 3}, field.Vector{1, 2, 3}},
		{field.Vector{-1, -2, 5}, field.Vector{5, 10, 5}},
		{field.Vector{-1, -2, -3}, field.Vector{}},
		{field.Vector{0, -4, 0}, field.Vector{}},
	}
	for _, tc := range tests {
		got := Normalize(tc.in)
		assert.InDeltaSlicef(t, tc.want[:], got[:], 1.e-14, "Normalize(%v)", tc.in)
		for _, c := range got {
			assert.GreaterOrEqual(t, c, 0.)
		}
	}
	for _, v := range []field.Vector{{-1, -2, -3}, {-1, 0, -3}, {0, -4, 0}} {
		assert.Truef(t, Collapses(v), "%v", v)
		assert.Equalf(t, field.Vector{}, Normalize(v), "%v", v)
	}
	for _, v := range []field.Vector{{-1, 2, 3}, {0, 0, 0}, {1, 0, 0}} {
		assert.Falsef(t, Collapses(v), "%v", v)
	}
}

func TestModelCoefficients(t *testing.T) {
	const n = 0.4
	t.Run("DarcyForchheimer", func(t *testing.T) {
		d, f, err := Model{D: field.Vector{-1, 2, 3}, F: field.Vector{1, 0, 0}}.Coefficients(n)
		require.NoError(t, err)
		assert.Equal(t, field.Vector{3, 2, 3}, d)
		assert.Equal(t, field.Vector{1, 0, 0}, f)
	})
	t.Run("Engelund1953", func(t *testing.T) {
		m := Model{Type: Engelund1953, Alpha: 1000, Beta: 1.1, D50: 0.01}
		d, f, err := m.Coefficients(n)
		require.NoError(t, err)
		a := 1000 * math.Pow(0.6, 3) / (0.16 * 1.e-4)
		b := 1.1 * 0.6 / (0.064 * 0.01)
		assert.InDeltaSlice(t, []float64{a, a, a}, d[:], 1.e-9*a)
		assert.InDeltaSlice(t, []float64{b, b, b}, f[:], 1.e-9*b)
	})
	t.Run("VanGent1995", func(t *testing.T) {
		m := Model{Type: VanGent1995, Alpha: 1000, Beta: 1.1, D50: 0.01, KC: 15}
		d, f, err := m.Coefficients(n)
		require.NoError(t, err)
		a := 1000 * 0.36 / (0.064 * 1.e-4)
		b := 1.1 * 1.5 * 0.6 / (0.064 * 0.01)
		assert.InDelta(t, a, d[1], 1.e-9*a)
		assert.InDelta(t, b, f[2], 1.e-9*b)
	})
	t.Run("invalid", func(t *testing.T) {
		_, _, err := Model{Type: Engelund1953, Alpha: 1, Beta: 1}.Coefficients(n)
		assert.True(t, errors.Is(err, ErrModelParameter))
		_, _, err = Model{Type: VanGent1995, Alpha: 1, Beta: 1, D50: 1}.Coefficients(n)
		assert.True(t, errors.Is(err, ErrModelParameter))
		_, _, err = Model{Type: ModelType(42)}.Coefficients(n)
		assert.True(t, errors.Is(err, ErrUnknownModel))
	})
}

func TestParseModelType(t *testing.T) {
	for _, m := range []ModelType{DarcyForchheimer, Engelund1953, VanGent1995} {
		got, err := ParseModelType(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseModelType("")
	require.NoError(t, err)
	assert.Equal(t, DarcyForchheimer, got)
	_, err = ParseModelType("Ergun")
	assert.True(t, errors.Is(err, ErrUnknownModel))
}

func TestComputeIntoSystemEndToEnd(t *testing.T) {
	k := NewKernel(frame.Identity(), field.Vector{100, 0, 0}, field.Vector{})
	sys := fvm.NewMatrix[field.Vector](1)
	U := field.VectorField{{1, 0, 0}}
	err := k.Compute([]int{0}, []float64{1}, field.Uniform(1000), field.ScalarField{0.001}, U, IntoSystem{sys})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0, 0}, sys.Diagonal()[0][:], 1.e-14)
	assert.Equal(t, field.Vector{}, sys.Source()[0])
}

func TestComputeMonotone(t *testing.T) {
	k := NewKernel(frame.Identity(), field.Vector{10, 20, 30}, field.Vector{1, 2, 3})
	diag := func(mu float64, u field.Vector) field.Vector {
		sys := fvm.NewMatrix[field.Vector](1)
		require.NoError(t, k.Compute([]int{0}, []float64{2}, field.Uniform(1), field.Uniform(mu),
			field.VectorField{u}, IntoSystem{sys}))
		return sys.Diagonal()[0]
	}
	base := diag(1.e-3, field.Vector{1, 0, 0})
	moreMu := diag(2.e-3, field.Vector{1, 0, 0})
	moreU := diag(1.e-3, field.Vector{0, 3, 0})
	for i := 0; i < 3; i++ {
		assert.Greater(t, moreMu[i], base[i])
		assert.Greater(t, moreU[i], base[i])
	}
}

func TestComputeEmptyCellSet(t *testing.T) {
	k := NewKernel(frame.Identity(), field.Vector{1, 1, 1}, field.Vector{1, 1, 1})
	sys := fvm.NewMatrix[field.Vector](2)
	sys.AddToDiagonal(0, field.Vector{1, 2, 3})
	AU := field.TensorField{field.Identity(), field.Identity()}
	before := AU.Clone()
	U := field.VectorField{{1, 1, 1}, {2, 2, 2}}

	// Sizes are not even looked at for an empty set
	require.NoError(t, k.Compute(nil, []float64{1, 1}, field.Uniform(1), field.Uniform(1), U, IntoSystem{sys}))
	require.NoError(t, k.Compute([]int{}, nil, field.Uniform(1), field.Uniform(1), nil, IntoTensorField{AU}))
	assert.Equal(t, field.Vector{1, 2, 3}, sys.Diagonal()[0])
	assert.Equal(t, field.Vector{}, sys.Source()[0])
	assert.Equal(t, before, AU)
}

func TestComputeRotatedFrameSource(t *testing.T) {
	c, s := math.Cos(math.Pi/4), math.Sin(math.Pi/4)
	f, err := frame.New(field.Vector{}, field.Vector{c, s, 0}, field.Vector{-s, c, 0})
	require.NoError(t, err)
	k := NewKernel(f, field.Vector{100, 1, 1}, field.Vector{})

	U := field.VectorField{{1, 0, 0}}
	vols := []float64{2}
	mu := field.Uniform(0.01)
	sys := fvm.NewMatrix[field.Vector](1)
	require.NoError(t, k.Compute([]int{0}, vols, field.Uniform(1), mu, U, IntoSystem{sys}))

	// Implicit and explicit parts together reproduce V·T·U
	T := k.DragTensor(1, 0.01, U[0])
	want := T.Dot(U[0]).Scale(vols[0])
	d, src := sys.Diagonal()[0], sys.Source()[0]
	var got field.Vector
	for i := 0; i < 3; i++ {
		got[i] = d[i]*U[0][i] - src[i]
	}
	assert.InDeltaSlice(t, want[:], got[:], 1.e-12)
	assert.NotEqual(t, field.Vector{}, src)

	// Mode B sees the full tensor
	AU := field.NewTensorField(1)
	require.NoError(t, k.Compute([]int{0}, vols, field.Uniform(1), mu, U, IntoTensorField{AU}))
	assert.InDeltaSlice(t, T[:], AU[0][:], 1.e-14)
	assert.InDelta(t, T.At(0, 1), T.At(1, 0), 1.e-14)

	drag, err := k.Drag([]int{0}, vols, field.Uniform(1), mu, U)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want[:], drag[:], 1.e-12)
}

func TestComputeForchheimerUsesSpeed(t *testing.T) {
	k := NewKernel(frame.Identity(), field.Vector{}, field.Vector{2, 2, 2})
	AU := field.NewTensorField(1)
	U := field.VectorField{{3, 4, 0}}
	require.NoError(t, k.Compute([]int{0}, []float64{7}, field.Uniform(10), field.Uniform(1), U, IntoTensorField{AU}))
	want := field.DiagTensor(field.Vector{100, 100, 100})
	assert.InDeltaSlice(t, want[:], AU[0][:], 1.e-12)
}

func TestComputeDimensionMismatch(t *testing.T) {
	k := NewKernel(frame.Identity(), field.Vector{1, 1, 1}, field.Vector{})
	vols := []float64{1, 1, 1}
	U := make(field.VectorField, 3)
	tests := []struct {
		name  string
		cells []int
		rho   field.Source
		mu    field.Source
		U     field.VectorField
		sys   int
	}{
		{"short U", []int{0, 1}, field.Uniform(1), field.Uniform(1), U[:2], 3},
		{"short mu", []int{0, 1}, field.Uniform(1), field.ScalarField{1, 1}, U, 3},
		{"long rho", []int{0, 1}, field.ScalarField{1, 1, 1, 1}, field.Uniform(1), U, 3},
		{"cell out of range", []int{0, 3}, field.Uniform(1), field.Uniform(1), U, 3},
		{"negative cell", []int{-1}, field.Uniform(1), field.Uniform(1), U, 3},
		{"system size", []int{0}, field.Uniform(1), field.Uniform(1), U, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sys := fvm.NewMatrix[field.Vector](tc.sys)
			err := k.Compute(tc.cells, vols, tc.rho, tc.mu, tc.U, IntoSystem{sys})
			assert.True(t, errors.Is(err, ErrDimensionMismatch), "got %v", err)
			for i := range sys.Diagonal() {
				assert.Equal(t, field.Vector{}, sys.Diagonal()[i])
			}
		})
	}
}

func TestComputeReportsRhoBeforeMu(t *testing.T) {
	k := NewKernel(frame.Identity(), field.Vector{1, 1, 1}, field.Vector{})
	sys := fvm.NewMatrix[field.Vector](3)
	for i := 0; i < 20; i++ {
		err := k.Compute([]int{0}, []float64{1, 1, 1}, field.ScalarField{1}, field.ScalarField{1, 1},
			make(field.VectorField, 3), IntoSystem{sys})
		require.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Contains(t, err.Error(), "rho has 1 cells")
	}
}
