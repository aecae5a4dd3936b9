package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/porosity/field"
)

// Decompose splits the mesh into one rank-local mesh per partition of cToP.
// Each local mesh holds its owned cells in global order followed by one
// layer of ghost cells, also in global order. Cell zones are restricted to
// the local cells.
func (m *Mesh) Decompose(cToP []int) ([]*Mesh, error) {
	if len(cToP) != m.NumCells() {
		return nil, fmt.Errorf("decompose: %d partition entries for %d cells", len(cToP), m.NumCells())
	}
	if m.numOwned != m.NumCells() {
		return nil, fmt.Errorf("decompose: mesh is already rank-local")
	}
	nParts := 0
	for c, p := range cToP {
		if p < 0 {
			return nil, fmt.Errorf("decompose: cell %d has partition %d", c, p)
		}
		if p+1 > nParts {
			nParts = p + 1
		}
	}

	locals := make([]*Mesh, nParts)
	for p := range locals {
		locals[p] = m.submesh(cToP, p)
	}
	return locals, nil
}

func (m *Mesh) submesh(cToP []int, rank int) *Mesh {
	var owned []int
	ghostSet := make(map[int]struct{})
	var boundary []int
	for c, p := range cToP {
		if p != rank {
			continue
		}
		owned = append(owned, c)
		onBoundary := false
		for _, nb := range m.adjacency[c] {
			if cToP[nb] != rank {
				ghostSet[nb] = struct{}{}
				onBoundary = true
			}
		}
		if onBoundary {
			boundary = append(boundary, len(owned)-1)
		}
	}
	ghosts := make([]int, 0, len(ghostSet))
	for g := range ghostSet {
		ghosts = append(ghosts, g)
	}
	sort.Ints(ghosts)

	ids := append(owned, ghosts...)
	toLocal := make(map[int]int, len(ids))
	for l, g := range ids {
		toLocal[g] = l
	}
	for l := len(owned); l < len(ids); l++ {
		boundary = append(boundary, l)
	}

	sub := &Mesh{
		centroids: make([]field.Vector, len(ids)),
		volumes:   make([]float64, len(ids)),
		adjacency: make([][]int, len(ids)),
		globalIDs: ids,
		numOwned:  len(owned),
		zones:     make(map[string][]int, len(m.zones)),
		boundary:  boundary,
	}
	for l, g := range ids {
		sub.centroids[l] = m.centroids[g]
		sub.volumes[l] = m.volumes[g]
		for _, nb := range m.adjacency[g] {
			if ln, ok := toLocal[nb]; ok {
				sub.adjacency[l] = append(sub.adjacency[l], ln)
			}
		}
	}
	for name, cells := range m.zones {
		var local []int
		for _, g := range cells {
			if l, ok := toLocal[g]; ok {
				local = append(local, l)
			}
		}
		sort.Ints(local)
		sub.zones[name] = local
	}
	return sub
}
