// Package halo exchanges cell values between the ranks of a decomposed mesh.
// Each rank-local mesh stores its owned cells first and one layer of ghost
// copies of neighbour cells after them; the exchange overwrites the ghost
// copies with the owners' values.
package halo

import (
	"fmt"
)

// Partitioned is a rank-local mesh as produced by mesh.Decompose
type Partitioned interface {
	GlobalIDs() []int
	NumOwned() int
}

// CellConnector manages pick and place indices for decomposed meshes
type CellConnector struct {
	NumPartitions int

	// Partition mappings
	NumOwned      []int         // Owned cells per partition
	LocalToGlobal [][]int       // [partition][localCell] → globalCell
	GlobalToLocal []map[int]int // [partition][globalCell] → localCell

	// Pick/Place indices per partition
	PickIndices  [][]PickBuffer  // [sourcePartition][targetPartition]
	PlaceIndices [][]PlaceBuffer // [targetPartition][sourcePartition]
}

// PickBuffer contains the owned cells whose values are sent to a target
type PickBuffer struct {
	Indices         []int // Local cell indices in the source partition
	TargetPartition int
}

// PlaceBuffer contains the ghost cells that receive values from a source
type PlaceBuffer struct {
	Indices         []int // Local cell indices in the target partition
	SourcePartition int
}

// NewCellConnector creates a connector from the rank-local meshes of a
// decomposition, indexed by rank
func NewCellConnector[M Partitioned](locals []M) (*CellConnector, error) {
	if len(locals) == 0 {
		return nil, fmt.Errorf("no partitions")
	}
	cc := &CellConnector{NumPartitions: len(locals)}
	parts := make([]Partitioned, len(locals))
	for i, l := range locals {
		parts[i] = l
	}

	// Build partition mappings
	if err := cc.buildPartitionMappings(parts); err != nil {
		return nil, err
	}

	cc.initializeBuffers()

	if err := cc.BuildIndices(); err != nil {
		return nil, err
	}

	return cc, nil
}

// buildPartitionMappings records the local numbering of every partition
func (cc *CellConnector) buildPartitionMappings(locals []Partitioned) error {
	cc.NumOwned = make([]int, cc.NumPartitions)
	cc.LocalToGlobal = make([][]int, cc.NumPartitions)
	cc.GlobalToLocal = make([]map[int]int, cc.NumPartitions)

	for p, l := range locals {
		ids := l.GlobalIDs()
		if l.NumOwned() > len(ids) {
			return fmt.Errorf("partition %d owns %d of %d cells", p, l.NumOwned(), len(ids))
		}
		cc.NumOwned[p] = l.NumOwned()
		cc.LocalToGlobal[p] = ids
		cc.GlobalToLocal[p] = make(map[int]int, len(ids))
		for local, global := range ids {
			if _, dup := cc.GlobalToLocal[p][global]; dup {
				return fmt.Errorf("partition %d holds global cell %d twice", p, global)
			}
			cc.GlobalToLocal[p][global] = local
		}
	}
	return nil
}

// initializeBuffers creates empty pick and place buffer structures
func (cc *CellConnector) initializeBuffers() {
	cc.PickIndices = make([][]PickBuffer, cc.NumPartitions)
	cc.PlaceIndices = make([][]PlaceBuffer, cc.NumPartitions)

	for p := 0; p < cc.NumPartitions; p++ {
		cc.PickIndices[p] = make([]PickBuffer, cc.NumPartitions)
		cc.PlaceIndices[p] = make([]PlaceBuffer, cc.NumPartitions)

		for q := 0; q < cc.NumPartitions; q++ {
			cc.PickIndices[p][q] = PickBuffer{
				Indices:         make([]int, 0),
				TargetPartition: q,
			}
			cc.PlaceIndices[p][q] = PlaceBuffer{
				Indices:         make([]int, 0),
				SourcePartition: q,
			}
		}
	}
}

// BuildIndices constructs pick and place indices for all partitions
func (cc *CellConnector) BuildIndices() error {
	// Owner of every owned global cell
	type owner struct{ partition, local int }
	owners := make(map[int]owner)
	for p := 0; p < cc.NumPartitions; p++ {
		for local := 0; local < cc.NumOwned[p]; local++ {
			global := cc.LocalToGlobal[p][local]
			if o, dup := owners[global]; dup {
				return fmt.Errorf("global cell %d owned by partitions %d and %d", global, o.partition, p)
			}
			owners[global] = owner{p, local}
		}
	}

	// Each ghost is fetched from its owner
	for p := 0; p < cc.NumPartitions; p++ {
		for local := cc.NumOwned[p]; local < len(cc.LocalToGlobal[p]); local++ {
			global := cc.LocalToGlobal[p][local]
			o, ok := owners[global]
			if !ok {
				return fmt.Errorf("ghost cell %d of partition %d has no owner", global, p)
			}
			if o.partition == p {
				return fmt.Errorf("partition %d holds its own cell %d as a ghost", p, global)
			}
			cc.PickIndices[o.partition][p].Indices = append(cc.PickIndices[o.partition][p].Indices, o.local)
			cc.PlaceIndices[p][o.partition].Indices = append(cc.PlaceIndices[p][o.partition].Indices, local)
		}
	}

	return nil
}

// GetPickIndices returns pick indices for sending from source to target partition
func (cc *CellConnector) GetPickIndices(sourcePartition, targetPartition int) []int {
	if sourcePartition < 0 || sourcePartition >= cc.NumPartitions ||
		targetPartition < 0 || targetPartition >= cc.NumPartitions {
		return nil
	}
	return cc.PickIndices[sourcePartition][targetPartition].Indices
}

// GetPlaceIndices returns place indices for target partition receiving from source
func (cc *CellConnector) GetPlaceIndices(targetPartition, sourcePartition int) []int {
	if targetPartition < 0 || targetPartition >= cc.NumPartitions ||
		sourcePartition < 0 || sourcePartition >= cc.NumPartitions {
		return nil
	}
	return cc.PlaceIndices[targetPartition][sourcePartition].Indices
}

// Neighbours returns the partitions that exchange cells with p, ascending
func (cc *CellConnector) Neighbours(p int) []int {
	var nbs []int
	for q := 0; q < cc.NumPartitions; q++ {
		if q != p && (len(cc.PickIndices[p][q].Indices) > 0 || len(cc.PlaceIndices[p][q].Indices) > 0) {
			nbs = append(nbs, q)
		}
	}
	return nbs
}

// Verify checks index validity and conservation properties
func (cc *CellConnector) Verify() error {
	// Picks address owned cells, places address ghosts
	for p := 0; p < cc.NumPartitions; p++ {
		for q := 0; q < cc.NumPartitions; q++ {
			for _, idx := range cc.PickIndices[p][q].Indices {
				if idx < 0 || idx >= cc.NumOwned[p] {
					return fmt.Errorf("invalid pick index %d for partition %d (owned %d)",
						idx, p, cc.NumOwned[p])
				}
			}
			for _, idx := range cc.PlaceIndices[p][q].Indices {
				if idx < cc.NumOwned[p] || idx >= len(cc.LocalToGlobal[p]) {
					return fmt.Errorf("invalid place index %d for partition %d", idx, p)
				}
			}
		}
	}

	// Pick and place arrays correspond cell by cell
	for p := 0; p < cc.NumPartitions; p++ {
		for q := 0; q < cc.NumPartitions; q++ {
			pick := cc.PickIndices[p][q].Indices
			place := cc.PlaceIndices[q][p].Indices
			if len(pick) != len(place) {
				return fmt.Errorf("length mismatch: pick[%d][%d]=%d, place[%d][%d]=%d",
					p, q, len(pick), q, p, len(place))
			}
			for i := range pick {
				if cc.LocalToGlobal[p][pick[i]] != cc.LocalToGlobal[q][place[i]] {
					return fmt.Errorf("pick[%d][%d] and place[%d][%d] disagree at %d", p, q, q, p, i)
				}
			}
		}
	}

	// Every ghost is placed exactly once
	totalPlaces, totalGhosts := 0, 0
	for p := 0; p < cc.NumPartitions; p++ {
		for q := 0; q < cc.NumPartitions; q++ {
			totalPlaces += len(cc.PlaceIndices[p][q].Indices)
		}
		totalGhosts += len(cc.LocalToGlobal[p]) - cc.NumOwned[p]
	}
	if totalPlaces != totalGhosts {
		return fmt.Errorf("conservation error: total places %d != total ghosts %d",
			totalPlaces, totalGhosts)
	}

	return nil
}
