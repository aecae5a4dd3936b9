package partitions

import (
	"fmt"
	"math"
	"sort"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	Mesh *MeshConnectivity

	// Either NumPartitions or TargetPartitionSize fixes the partition count;
	// NumPartitions wins when both are set
	NumPartitions       int
	TargetPartitionSize int
	Strategy            PartitionStrategy
}

// MeshConnectivity provides the mesh topology needed for partitioning
type MeshConnectivity struct {
	NumCells int
	// Face neighbours of every cell
	Adjacency [][]int
}

// PartitionStrategy defines how cells are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive cells
	RoundRobin                              // Distribute cyclically
	GraphPartition                          // Breadth-first growth over the face graph
)

var strategyNames = map[string]PartitionStrategy{
	"block":      BlockPartition,
	"roundRobin": RoundRobin,
	"graph":      GraphPartition,
}

// ParseStrategy returns the strategy registered under name
func ParseStrategy(name string) (PartitionStrategy, error) {
	if name == "" {
		return BlockPartition, nil
	}
	s, ok := strategyNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown partition strategy %q", name)
	}
	return s, nil
}

func (s PartitionStrategy) String() string {
	for name, v := range strategyNames {
		if v == s {
			return name
		}
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Mesh == nil || pb.Mesh.NumCells < 1 {
		return nil, fmt.Errorf("cannot partition an empty mesh")
	}
	if pb.Strategy == GraphPartition && len(pb.Mesh.Adjacency) != pb.Mesh.NumCells {
		return nil, fmt.Errorf("graph partitioning needs adjacency for %d cells, have %d",
			pb.Mesh.NumCells, len(pb.Mesh.Adjacency))
	}

	numPartitions := pb.calculateNumPartitions()

	cToP := pb.partitionCells(numPartitions)

	partitions := pb.createPartitions(cToP, numPartitions)

	// Calculate KpartMax for OCCA
	kpartMax := calculateKpartMax(partitions)
	for i := range partitions {
		partitions[i].MaxCells = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalCells:    pb.Mesh.NumCells,
		NumPartitions: numPartitions,
		CToP:          cToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// FromAssignment builds a layout from an existing cell to partition map,
// such as the one carried by a partitioned mesh file
func FromAssignment(cToP []int) (*PartitionLayout, error) {
	if len(cToP) == 0 {
		return nil, fmt.Errorf("empty partition assignment")
	}
	numPartitions := 0
	for c, p := range cToP {
		if p < 0 {
			return nil, fmt.Errorf("cell %d has partition %d", c, p)
		}
		if p+1 > numPartitions {
			numPartitions = p + 1
		}
	}
	pb := &PartitionBuilder{Mesh: &MeshConnectivity{NumCells: len(cToP)}}
	partitions := pb.createPartitions(cToP, numPartitions)
	kpartMax := calculateKpartMax(partitions)
	for i := range partitions {
		partitions[i].MaxCells = kpartMax
	}
	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalCells:    len(cToP),
		NumPartitions: numPartitions,
		CToP:          append([]int(nil), cToP...),
	}
	return layout, layout.ValidateLayout()
}

// calculateNumPartitions determines the partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := pb.NumPartitions
	if numPartitions < 1 && pb.TargetPartitionSize > 0 {
		numPartitions = int(math.Ceil(float64(pb.Mesh.NumCells) / float64(pb.TargetPartitionSize)))
	}

	// Ensure at least one partition and no empty ones
	if numPartitions < 1 {
		numPartitions = 1
	}
	if numPartitions > pb.Mesh.NumCells {
		numPartitions = pb.Mesh.NumCells
	}

	return numPartitions
}

// partitionCells assigns cells to partitions
func (pb *PartitionBuilder) partitionCells(numPartitions int) []int {
	cToP := make([]int, pb.Mesh.NumCells)

	switch pb.Strategy {
	case RoundRobin:
		for i := range cToP {
			cToP[i] = i % numPartitions
		}

	case GraphPartition:
		return pb.growPartitions(numPartitions)

	default:
		// Balanced blocks: the first NumCells%numPartitions blocks get one extra cell
		base, extra := pb.Mesh.NumCells/numPartitions, pb.Mesh.NumCells%numPartitions
		c := 0
		for p := 0; p < numPartitions; p++ {
			size := base
			if p < extra {
				size++
			}
			for i := 0; i < size; i++ {
				cToP[c] = p
				c++
			}
		}
	}

	return cToP
}

// growPartitions grows each partition breadth-first from the lowest
// unassigned cell until it reaches its share, which keeps partitions
// face-connected where the mesh allows it
func (pb *PartitionBuilder) growPartitions(numPartitions int) []int {
	n := pb.Mesh.NumCells
	cToP := make([]int, n)
	for i := range cToP {
		cToP[i] = -1
	}
	base, extra := n/numPartitions, n%numPartitions
	next := 0

	for p := 0; p < numPartitions; p++ {
		target := base
		if p < extra {
			target++
		}
		var queue []int
		count := 0
		for count < target {
			if len(queue) == 0 {
				// Disconnected remainder: restart from the next free cell
				for next < n && cToP[next] >= 0 {
					next++
				}
				if next == n {
					break
				}
				queue = append(queue, next)
				cToP[next] = p
				count++
				continue
			}
			c := queue[0]
			queue = queue[1:]
			nbs := append([]int(nil), pb.Mesh.Adjacency[c]...)
			sort.Ints(nbs)
			for _, nb := range nbs {
				if count == target {
					break
				}
				if cToP[nb] < 0 {
					cToP[nb] = p
					count++
					queue = append(queue, nb)
				}
			}
		}
	}
	return cToP
}

// createPartitions builds partition structures from cell assignments
func (pb *PartitionBuilder) createPartitions(cToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{
			ID:    i,
			Cells: make([]int, 0),
		}
	}

	for cell, part := range cToP {
		partitions[part].Cells = append(partitions[part].Cells, cell)
		partitions[part].NumCells++
	}

	return partitions
}

// calculateKpartMax finds maximum cells across all partitions
func calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumCells > kpartMax {
			kpartMax = p.NumCells
		}
	}
	return kpartMax
}

// PartitionStatistics computes load balance metrics. EdgeCut counts the
// faces between cells of different partitions and needs adjacency.
func (layout *PartitionLayout) PartitionStatistics(adjacency [][]int) PartitionStats {
	stats := PartitionStats{
		NumPartitions: layout.NumPartitions,
		MinCells:      math.MaxInt32,
		MaxCells:      0,
		AvgCells:      float64(layout.TotalCells) / float64(layout.NumPartitions),
	}

	for _, p := range layout.Partitions {
		if p.NumCells < stats.MinCells {
			stats.MinCells = p.NumCells
		}
		if p.NumCells > stats.MaxCells {
			stats.MaxCells = p.NumCells
		}
	}

	stats.Imbalance = float64(stats.MaxCells) / stats.AvgCells

	for c, nbs := range adjacency {
		for _, nb := range nbs {
			if nb > c && layout.CToP[nb] != layout.CToP[c] {
				stats.EdgeCut++
			}
		}
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinCells      int
	MaxCells      int
	AvgCells      float64
	Imbalance     float64 // MaxCells / AvgCells
	EdgeCut       int
}
