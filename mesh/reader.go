package mesh

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/porosity/field"
)

// tetFaces lists the vertices of each tetrahedron face
var tetFaces = [4][3]int{
	{0, 1, 2},
	{0, 1, 3},
	{1, 2, 3},
	{0, 2, 3},
}

// ReadFile reads a tetrahedral Gambit neutral or gmsh file. Partition
// assignments present in the file are kept in EToP.
func ReadFile(path string) (*Mesh, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", path, err)
	}
	m, err := FromTets(msh.Vertices, msh.EtoV)
	if err != nil {
		return nil, fmt.Errorf("mesh %s: %w", path, err)
	}
	if len(msh.EToP) == m.NumCells() {
		m.EToP = msh.EToP
	}
	return m, nil
}

// FromTets builds the cell geometry and face adjacency of a tetrahedral mesh
func FromTets(vertices [][]float64, EToV [][]int) (*Mesh, error) {
	K := len(EToV)
	if K == 0 {
		return nil, fmt.Errorf("mesh has no cells")
	}
	centroids := make([]field.Vector, K)
	volumes := make([]float64, K)

	for k, ev := range EToV {
		if len(ev) != 4 {
			return nil, fmt.Errorf("cell %d has %d vertices, only tetrahedra are supported", k, len(ev))
		}
		var x [4]field.Vector
		for i, v := range ev {
			if v < 0 || v >= len(vertices) || len(vertices[v]) < 3 {
				return nil, fmt.Errorf("cell %d references invalid vertex %d", k, v)
			}
			x[i] = field.Vector{vertices[v][0], vertices[v][1], vertices[v][2]}
			centroids[k] = centroids[k].Add(x[i].Scale(0.25))
		}
		// V = |det[x1-x0, x2-x0, x3-x0]| / 6
		J := mat.NewDense(3, 3, nil)
		for r := 0; r < 3; r++ {
			d := x[r+1].Sub(x[0])
			J.SetRow(r, d[:])
		}
		volumes[k] = math.Abs(mat.Det(J)) / 6
		if volumes[k] == 0 {
			return nil, fmt.Errorf("cell %d is degenerate", k)
		}
	}

	// Cells sharing a face are neighbours
	type faceKey [3]int
	owner := make(map[faceKey]int, 2*K)
	adjacency := make([][]int, K)
	for k, ev := range EToV {
		for _, f := range tetFaces {
			key := faceKey{ev[f[0]], ev[f[1]], ev[f[2]]}
			sort.Ints(key[:])
			if other, found := owner[key]; found {
				adjacency[k] = append(adjacency[k], other)
				adjacency[other] = append(adjacency[other], k)
				delete(owner, key)
			} else {
				owner[key] = k
			}
		}
	}
	for _, nb := range adjacency {
		sort.Ints(nb)
	}
	return newMesh(centroids, volumes, adjacency), nil
}
