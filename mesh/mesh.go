// Package mesh provides the cell geometry and topology the porous zones are
// applied to: volumes, centroids, face adjacency and named cell zones, either
// for a whole mesh or for the rank-local part of a decomposed one.
package mesh

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/porosity/field"
)

// Mesh is a cell-centred mesh. On a rank-local mesh the first NumOwned cells
// are owned by the rank and the rest are ghost copies of neighbour cells.
type Mesh struct {
	centroids []field.Vector
	volumes   []float64
	adjacency [][]int // face neighbours, local indices
	globalIDs []int
	numOwned  int
	zones     map[string][]int
	boundary  []int
	// EToP is the partition assignment carried by a mesh file, if any
	EToP []int
}

func newMesh(centroids []field.Vector, volumes []float64, adjacency [][]int) *Mesh {
	n := len(volumes)
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return &Mesh{
		centroids: centroids,
		volumes:   volumes,
		adjacency: adjacency,
		globalIDs: ids,
		numOwned:  n,
		zones:     make(map[string][]int),
	}
}

func (m *Mesh) NumCells() int { return len(m.volumes) }

// NumOwned is the number of cells owned by this rank
func (m *Mesh) NumOwned() int { return m.numOwned }

func (m *Mesh) CellVolume(cell int) float64 { return m.volumes[cell] }

func (m *Mesh) Volumes() []float64 { return m.volumes }

func (m *Mesh) Centroid(cell int) field.Vector { return m.centroids[cell] }

// Neighbours returns the face neighbours of cell
func (m *Mesh) Neighbours(cell int) []int { return m.adjacency[cell] }

// Adjacency returns the face adjacency of every cell
func (m *Mesh) Adjacency() [][]int { return m.adjacency }

// GlobalIDs maps local cell indices to the cell numbering of the undecomposed mesh
func (m *Mesh) GlobalIDs() []int { return m.globalIDs }

// ProcessorBoundaryCells returns the owned cells with a neighbour on another
// rank followed by the ghost cells. It is empty for an undecomposed mesh.
func (m *Mesh) ProcessorBoundaryCells() []int { return m.boundary }

// TotalVolume returns the volume of the owned cells
func (m *Mesh) TotalVolume() (v float64) {
	for _, vol := range m.volumes[:m.numOwned] {
		v += vol
	}
	return
}

// AddCellZone registers a named set of cells. Indices are stored sorted.
func (m *Mesh) AddCellZone(name string, cells []int) error {
	if name == "" {
		return errors.New("cell zone with empty name")
	}
	if _, ok := m.zones[name]; ok {
		return fmt.Errorf("cell zone %q already exists", name)
	}
	c := append([]int(nil), cells...)
	sort.Ints(c)
	for i, cell := range c {
		if cell < 0 || cell >= m.NumCells() {
			return fmt.Errorf("cell zone %q: cell %d outside mesh of %d cells", name, cell, m.NumCells())
		}
		if i > 0 && c[i-1] == cell {
			return fmt.Errorf("cell zone %q: cell %d listed twice", name, cell)
		}
	}
	m.zones[name] = c
	return nil
}

// AddBoxZone registers the cells whose centroid lies inside the box [min,max]
// and returns how many were selected
func (m *Mesh) AddBoxZone(name string, min, max field.Vector) (int, error) {
	for i := 0; i < 3; i++ {
		if max[i] < min[i] {
			return 0, fmt.Errorf("cell zone %q: box min %v above max %v", name, min, max)
		}
	}
	var cells []int
	for i, c := range m.centroids {
		if c[0] >= min[0] && c[0] <= max[0] &&
			c[1] >= min[1] && c[1] <= max[1] &&
			c[2] >= min[2] && c[2] <= max[2] {
			cells = append(cells, i)
		}
	}
	return len(cells), m.AddCellZone(name, cells)
}

// ResolveCellZone returns the ordered cells of a named zone
func (m *Mesh) ResolveCellZone(name string) ([]int, error) {
	c, ok := m.zones[name]
	if !ok {
		return nil, fmt.Errorf("mesh has no cell zone %q", name)
	}
	return c, nil
}

// CellZones returns the registered zone names in sorted order
func (m *Mesh) CellZones() []string {
	names := make([]string, 0, len(m.zones))
	for n := range m.zones {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Mesh) String() string {
	return fmt.Sprintf("mesh: %d cells (%d owned), %d cell zones, volume %g",
		m.NumCells(), m.numOwned, len(m.zones), m.TotalVolume())
}
