package partitions

import (
	"fmt"
)

// Partition is a set of cells that are processed together, either by one
// rank of the halo world or by one @outer iteration of a device kernel
type Partition struct {
	ID int

	// Cell membership
	Cells    []int // Global cell indices, ascending
	NumCells int   // Actual number of cells
	MaxCells int   // Padded size for OCCA @inner loop uniformity
}

// PartitionLayout is the complete decomposition of a mesh
type PartitionLayout struct {
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumCells) across all partitions for OCCA
	TotalCells    int
	NumPartitions int

	// Cell to partition mapping
	CToP []int // cell c belongs to partition CToP[c]
}

// PartitionedArray is per-cell data laid out partition by partition, each
// partition padded to KpartMax cells
type PartitionedArray struct {
	// Layout: [Partition 0 Data][Partition 1 Data]...[Partition N-1 Data]
	GlobalData []float64

	// Partition p's data starts at GlobalData[Offsets[p]]
	Offsets []int

	// Values per cell (9 for a tensor field)
	Stride int

	AllocatedSize int
}

// GetPartition returns the partition containing cell, or -1
func (pl *PartitionLayout) GetPartition(cell int) int {
	if cell < 0 || cell >= len(pl.CToP) {
		return -1
	}
	return pl.CToP[cell]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	// Verify KpartMax
	actualMax := 0
	total := 0
	for _, p := range pl.Partitions {
		if p.NumCells > actualMax {
			actualMax = p.NumCells
		}
		if p.MaxCells != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxCells %d != KpartMax %d",
				p.ID, p.MaxCells, pl.KpartMax)
		}
		for _, c := range p.Cells {
			if pl.GetPartition(c) != p.ID {
				return fmt.Errorf("partition %d holds cell %d assigned to %d", p.ID, c, pl.GetPartition(c))
			}
		}
		total += p.NumCells
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalCells {
		return fmt.Errorf("partitions hold %d cells, mesh has %d", total, pl.TotalCells)
	}
	return nil
}

// K returns the number of cells in each partition
func (pl *PartitionLayout) K() []int {
	k := make([]int, pl.NumPartitions)
	for i, p := range pl.Partitions {
		k[i] = p.NumCells
	}
	return k
}

// AllocatePartitionedArray creates padded storage for stride values per cell
func AllocatePartitionedArray(layout *PartitionLayout, stride int) *PartitionedArray {
	offsets := make([]int, layout.NumPartitions+1)
	for i, p := range layout.Partitions {
		offsets[i+1] = offsets[i] + p.MaxCells*stride
	}
	totalSize := offsets[layout.NumPartitions]

	return &PartitionedArray{
		GlobalData:    make([]float64, totalSize),
		Offsets:       offsets,
		Stride:        stride,
		AllocatedSize: totalSize,
	}
}

// GetPartitionData returns a slice for partition p's data
func (pa *PartitionedArray) GetPartitionData(partitionID int) []float64 {
	if partitionID < 0 || partitionID >= len(pa.Offsets)-1 {
		return nil
	}
	start := pa.Offsets[partitionID]
	end := pa.Offsets[partitionID+1]
	return pa.GlobalData[start:end]
}

// Scatter copies cell-ordered data, Stride values per cell, into the
// partition layout
func (pa *PartitionedArray) Scatter(layout *PartitionLayout, cellData []float64) error {
	if len(cellData) != layout.TotalCells*pa.Stride {
		return fmt.Errorf("scatter: %d values for %d cells of stride %d",
			len(cellData), layout.TotalCells, pa.Stride)
	}
	for i, p := range layout.Partitions {
		dst := pa.GetPartitionData(i)
		for local, cell := range p.Cells {
			copy(dst[local*pa.Stride:(local+1)*pa.Stride], cellData[cell*pa.Stride:(cell+1)*pa.Stride])
		}
	}
	return nil
}

// Gather is the inverse of Scatter; padding is dropped
func (pa *PartitionedArray) Gather(layout *PartitionLayout, cellData []float64) error {
	if len(cellData) != layout.TotalCells*pa.Stride {
		return fmt.Errorf("gather: %d values for %d cells of stride %d",
			len(cellData), layout.TotalCells, pa.Stride)
	}
	for i, p := range layout.Partitions {
		src := pa.GetPartitionData(i)
		for local, cell := range p.Cells {
			copy(cellData[cell*pa.Stride:(cell+1)*pa.Stride], src[local*pa.Stride:(local+1)*pa.Stride])
		}
	}
	return nil
}
