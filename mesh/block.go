package mesh

import (
	"fmt"

	"github.com/notargets/porosity/field"
)

// NewBlock builds a uniform hexahedral mesh of n[0]×n[1]×n[2] cells spanning
// the box [min,max]. Cell (i,j,k) has index i + n0·(j + n1·k).
func NewBlock(n [3]int, min, max field.Vector) (*Mesh, error) {
	var h field.Vector
	for d := 0; d < 3; d++ {
		if n[d] < 1 {
			return nil, fmt.Errorf("block mesh: %d cells in direction %d", n[d], d)
		}
		if max[d] <= min[d] {
			return nil, fmt.Errorf("block mesh: empty extent %g..%g in direction %d", min[d], max[d], d)
		}
		h[d] = (max[d] - min[d]) / float64(n[d])
	}
	nCells := n[0] * n[1] * n[2]
	vol := h[0] * h[1] * h[2]

	centroids := make([]field.Vector, nCells)
	volumes := make([]float64, nCells)
	adjacency := make([][]int, nCells)
	index := func(i, j, k int) int { return i + n[0]*(j+n[1]*k) }

	for k := 0; k < n[2]; k++ {
		for j := 0; j < n[1]; j++ {
			for i := 0; i < n[0]; i++ {
				c := index(i, j, k)
				centroids[c] = field.Vector{
					min[0] + (float64(i)+0.5)*h[0],
					min[1] + (float64(j)+0.5)*h[1],
					min[2] + (float64(k)+0.5)*h[2],
				}
				volumes[c] = vol
				nb := make([]int, 0, 6)
				if i > 0 {
					nb = append(nb, index(i-1, j, k))
				}
				if i < n[0]-1 {
					nb = append(nb, index(i+1, j, k))
				}
				if j > 0 {
					nb = append(nb, index(i, j-1, k))
				}
				if j < n[1]-1 {
					nb = append(nb, index(i, j+1, k))
				}
				if k > 0 {
					nb = append(nb, index(i, j, k-1))
				}
				if k < n[2]-1 {
					nb = append(nb, index(i, j, k+1))
				}
				adjacency[c] = nb
			}
		}
	}
	return newMesh(centroids, volumes, adjacency), nil
}
