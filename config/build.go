package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/mesh"
	"github.com/notargets/porosity/partitions"
)

// BuildMesh creates the case mesh and its box cell zones. An empty box is
// logged, not an error: the zone construction reports it if a porous zone
// uses it.
func (c *Case) BuildMesh(log logrus.FieldLogger) (*mesh.Mesh, error) {
	var (
		m   *mesh.Mesh
		err error
	)
	if b := c.Mesh.Block; b != nil {
		m, err = mesh.NewBlock(b.N, field.Vector(b.Min), field.Vector(b.Max))
	} else {
		m, err = mesh.ReadFile(c.Mesh.File)
	}
	if err != nil {
		return nil, fmt.Errorf("build mesh: %w", err)
	}
	for _, cz := range c.CellZones {
		n, err := m.AddBoxZone(cz.Name, field.Vector(cz.Min), field.Vector(cz.Max))
		if err != nil {
			return nil, fmt.Errorf("cellZone %q: %w", cz.Name, err)
		}
		if n == 0 {
			log.WithField("cellZone", cz.Name).Warn("box selects no cells")
		}
	}
	return m, nil
}

// Decomposition assigns the cells of m to the case partitions. A partition
// map carried by the mesh file takes precedence.
func (c *Case) Decomposition(m *mesh.Mesh) (*partitions.PartitionLayout, error) {
	if len(m.EToP) == m.NumCells() && c.Parallel.Partitions > 1 {
		return partitions.FromAssignment(m.EToP)
	}
	strategy, err := partitions.ParseStrategy(c.Parallel.Strategy)
	if err != nil {
		return nil, err
	}
	pb := &partitions.PartitionBuilder{
		Mesh: &partitions.MeshConnectivity{
			NumCells:  m.NumCells(),
			Adjacency: m.Adjacency(),
		},
		NumPartitions: c.Parallel.Partitions,
		Strategy:      strategy,
	}
	return pb.BuildPartitions()
}
