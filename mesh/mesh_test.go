package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/porosity/field"
)

func TestNewBlock(t *testing.T) {
	m, err := NewBlock([3]int{4, 2, 1}, field.Vector{0, 0, 0}, field.Vector{2, 1, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 8, m.NumCells())
	assert.Equal(t, 8, m.NumOwned())
	assert.InDelta(t, 1.0, m.TotalVolume(), 1.e-14)
	assert.InDelta(t, 0.125, m.CellVolume(5), 1.e-14)
	c0, c5 := m.Centroid(0), m.Centroid(5)
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.25}, c0[:], 1.e-14)
	assert.InDeltaSlice(t, []float64{0.75, 0.75, 0.25}, c5[:], 1.e-14)

	// Corner cell touches two cells, an edge cell three
	assert.ElementsMatch(t, []int{1, 4}, m.Neighbours(0))
	assert.ElementsMatch(t, []int{0, 2, 5}, m.Neighbours(1))
	assert.Empty(t, m.ProcessorBoundaryCells())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, m.GlobalIDs())

	_, err = NewBlock([3]int{0, 1, 1}, field.Vector{}, field.Vector{1, 1, 1})
	assert.Error(t, err)
	_, err = NewBlock([3]int{1, 1, 1}, field.Vector{}, field.Vector{1, 0, 1})
	assert.Error(t, err)
}

func TestCellZones(t *testing.T) {
	m, err := NewBlock([3]int{4, 1, 1}, field.Vector{}, field.Vector{4, 1, 1})
	require.NoError(t, err)

	n, err := m.AddBoxZone("middle", field.Vector{1, 0, 0}, field.Vector{3, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	cells, err := m.ResolveCellZone("middle")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, cells)

	require.NoError(t, m.AddCellZone("ends", []int{3, 0}))
	cells, err = m.ResolveCellZone("ends")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, cells)
	assert.Equal(t, []string{"ends", "middle"}, m.CellZones())

	_, err = m.ResolveCellZone("missing")
	assert.Error(t, err)
	assert.Error(t, m.AddCellZone("ends", nil))
	assert.Error(t, m.AddCellZone("bad", []int{4}))
	assert.Error(t, m.AddCellZone("twice", []int{1, 1}))
	_, err = m.AddBoxZone("inverted", field.Vector{1, 1, 1}, field.Vector{0, 0, 0})
	assert.Error(t, err)
}

func TestFromTets(t *testing.T) {
	verts := [][]float64{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 1},
	}
	m, err := FromTets(verts, [][]int{{0, 1, 2, 3}, {1, 2, 3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumCells())
	assert.InDelta(t, 1./6, m.CellVolume(0), 1.e-14)
	assert.InDelta(t, 1./3, m.CellVolume(1), 1.e-14)
	c0 := m.Centroid(0)
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.25}, c0[:], 1.e-14)
	assert.Equal(t, []int{1}, m.Neighbours(0))
	assert.Equal(t, []int{0}, m.Neighbours(1))

	_, err = FromTets(verts, [][]int{{0, 1, 2}})
	assert.Error(t, err)
	_, err = FromTets(verts, [][]int{{0, 1, 2, 9}})
	assert.Error(t, err)
	_, err = FromTets(verts, [][]int{{0, 1, 2, 2}})
	assert.Error(t, err)
	_, err = FromTets(verts, nil)
	assert.Error(t, err)
}

func TestDecompose(t *testing.T) {
	m, err := NewBlock([3]int{4, 1, 1}, field.Vector{}, field.Vector{4, 1, 1})
	require.NoError(t, err)
	_, err = m.AddBoxZone("porous", field.Vector{1, 0, 0}, field.Vector{4, 1, 1})
	require.NoError(t, err)

	locals, err := m.Decompose([]int{0, 0, 1, 1})
	require.NoError(t, err)
	require.Len(t, locals, 2)

	r0, r1 := locals[0], locals[1]
	assert.Equal(t, []int{0, 1, 2}, r0.GlobalIDs())
	assert.Equal(t, 2, r0.NumOwned())
	assert.Equal(t, []int{2, 3, 1}, r1.GlobalIDs())
	assert.Equal(t, 2, r1.NumOwned())

	// Owned boundary cell then ghost
	assert.Equal(t, []int{1, 2}, r0.ProcessorBoundaryCells())
	assert.Equal(t, []int{0, 2}, r1.ProcessorBoundaryCells())

	assert.ElementsMatch(t, []int{0, 2}, r0.Neighbours(1))
	assert.Equal(t, []int{1}, r0.Neighbours(2))
	global, ghost := m.Centroid(1), r1.Centroid(2)
	assert.Equal(t, global, ghost)

	cells, err := r0.ResolveCellZone("porous")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, cells)
	cells, err = r1.ResolveCellZone("porous")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, cells)

	assert.InDelta(t, 2, r0.TotalVolume(), 1.e-14)

	_, err = m.Decompose([]int{0, 1})
	assert.Error(t, err)
	_, err = r0.Decompose([]int{0, 0, 0})
	assert.Error(t, err)
}
