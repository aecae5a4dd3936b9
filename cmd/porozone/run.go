package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/notargets/porosity/config"
	"github.com/notargets/porosity/device"
	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/fvm"
	"github.com/notargets/porosity/halo"
	"github.com/notargets/porosity/mesh"
	"github.com/notargets/porosity/partitions"
	"github.com/notargets/porosity/store"
	"github.com/notargets/porosity/zone"
)

// reportEvery is the iteration interval of drag diagnostics
const reportEvery = 10

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Relax the momentum equation to its porous equilibrium",
	Long: `run drives a uniform pressure gradient through the porous zones of the
case with implicit Euler pseudo-time steps,

  ρ·V·f/dt·(U - U⁰) = V·G - V·(μ·D + ρ·|U⁰|·F)·U

where f is the zone time-derivative factor, until the largest velocity change
drops below run.tolerance. The mesh is split into parallel.partitions ranks
that run concurrently and exchange their ghost cells each step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCase()
		if err != nil {
			return err
		}
		opts := runOptions{device: Cfg.GetString("device"), log: log}
		if path := Cfg.GetString("db"); path != "" {
			if opts.db, err = store.Open(path); err != nil {
				return err
			}
			defer opts.db.Close()
		}
		res, err := run(c, opts)
		if err != nil {
			return err
		}
		return res.write(cmd.OutOrStdout())
	},
}

type runOptions struct {
	db     *store.DB
	device string
	log    logrus.FieldLogger
}

// result is the state of the whole mesh after a run
type result struct {
	Iterations int
	Residual   float64
	Converged  bool
	U          field.VectorField // every cell of the mesh
	Volumes    []float64
	Drag       map[string]field.Vector
	zoneNames  []string
}

func (r *result) write(w io.Writer) error {
	status := "converged"
	if !r.Converged {
		status = "not converged"
	}
	fmt.Fprintf(w, "%s after %d iterations, residual %.3e\n", status, r.Iterations, r.Residual)
	var (
		mean   field.Vector
		volume float64
	)
	for cell, u := range r.U {
		mean = mean.Add(u.Scale(r.Volumes[cell]))
		volume += r.Volumes[cell]
	}
	fmt.Fprintf(w, "mean velocity %v\n", mean.Scale(1/volume))
	for _, name := range r.zoneNames {
		if _, err := fmt.Fprintf(w, "zone %s drag %v\n", name, r.Drag[name]); err != nil {
			return err
		}
	}
	return nil
}

// communicator is what a rank needs from the other ranks
type communicator interface {
	zone.BoundaryCorrector
	ExchangeVectors(U field.VectorField) error
	AllReduceSum(values ...float64) ([]float64, error)
	AllReduceMax(value float64) (float64, error)
}

// single is the communicator of an undecomposed run
type single struct{}

func (single) CorrectBoundary(field.TensorField, []int) error { return nil }

func (single) ExchangeVectors(field.VectorField) error { return nil }

func (single) AllReduceSum(values ...float64) ([]float64, error) { return values, nil }

func (single) AllReduceMax(value float64) (float64, error) { return value, nil }

// tensorFunc adds the resistance tensor of z to AU
type tensorFunc func(z *zone.Zone, AU field.TensorField, rho, mu field.Source, U field.VectorField) error

type rankRun struct {
	id        int
	mesh      *mesh.Mesh
	comm      communicator
	zones     zone.List
	addTensor tensorFunc
}

type rankResult struct {
	iterations int
	residual   float64
	converged  bool
	drag       map[string]field.Vector
	U          field.VectorField
	globalIDs  []int
}

func run(c *config.Case, opts runOptions) (*result, error) {
	m, err := c.BuildMesh(opts.log)
	if err != nil {
		return nil, err
	}
	opts.log.Info(m)
	layout, err := c.Decomposition(m)
	if err != nil {
		return nil, err
	}
	stats := layout.PartitionStatistics(m.Adjacency())
	opts.log.WithFields(logrus.Fields{
		"partitions": stats.NumPartitions,
		"imbalance":  stats.Imbalance,
		"edgeCut":    stats.EdgeCut,
	}).Info("decomposed mesh")

	var results []rankResult
	switch {
	case opts.device != "":
		results, err = runDevice(c, opts, m, layout)
	case layout.NumPartitions == 1:
		results, err = runSingle(c, opts, m)
	default:
		results, err = runRanks(c, opts, m, layout)
	}
	if err != nil {
		return nil, err
	}

	res := &result{
		Iterations: results[0].iterations,
		Residual:   results[0].residual,
		Converged:  results[0].converged,
		Drag:       results[0].drag,
		U:          make(field.VectorField, m.NumCells()),
		Volumes:    m.Volumes(),
	}
	for _, s := range c.ZoneSpecs() {
		res.zoneNames = append(res.zoneNames, s.Name)
	}
	for _, r := range results {
		for i, g := range r.globalIDs {
			res.U[g] = r.U[i]
		}
	}
	opts.log.WithFields(logrus.Fields{
		"iterations": res.Iterations,
		"residual":   res.Residual,
		"converged":  res.Converged,
	}).Info("run finished")
	return res, nil
}

func runSingle(c *config.Case, opts runOptions, m *mesh.Mesh) ([]rankResult, error) {
	zones, err := zone.NewList(m, c.ZoneSpecs(), zone.WithLogger(opts.log))
	if err != nil {
		return nil, err
	}
	defer zones.Close()
	r := &rankRun{
		mesh:  m,
		comm:  single{},
		zones: zones,
		addTensor: func(z *zone.Zone, AU field.TensorField, rho, mu field.Source, U field.VectorField) error {
			return z.AddResistanceTensor(AU, rho, mu, U, false, nil)
		},
	}
	res, err := relax(c, opts, r)
	return []rankResult{res}, err
}

// runDevice evaluates the zone tensors on an OCCA device whose partitions
// are the case partitions; the host loop is undecomposed
func runDevice(c *config.Case, opts runOptions, m *mesh.Mesh, layout *partitions.PartitionLayout) ([]rankResult, error) {
	dev, err := device.Open(opts.device)
	if err != nil {
		return nil, err
	}
	defer dev.Free()
	opts.log.WithField("mode", dev.Mode()).Info("using OCCA device")

	zones, err := zone.NewList(m, c.ZoneSpecs(), zone.WithLogger(opts.log))
	if err != nil {
		return nil, err
	}
	defer zones.Close()

	kernels := make(map[string]*device.Resistance, len(zones))
	for _, z := range zones {
		k, err := device.NewResistance(dev, layout, z.Kernel(), z.Cells())
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", z.Name(), err)
		}
		defer k.Free()
		kernels[z.Name()] = k
	}

	r := &rankRun{
		mesh:  m,
		comm:  single{},
		zones: zones,
		addTensor: func(z *zone.Zone, AU field.TensorField, rho, mu field.Source, U field.VectorField) error {
			return kernels[z.Name()].AddTensor(AU, rho, mu, U)
		},
	}
	res, err := relax(c, opts, r)
	return []rankResult{res}, err
}

// runRanks runs one goroutine per partition connected by an in-process
// halo world
func runRanks(c *config.Case, opts runOptions, m *mesh.Mesh, layout *partitions.PartitionLayout) ([]rankResult, error) {
	locals, err := m.Decompose(layout.CToP)
	if err != nil {
		return nil, err
	}
	conn, err := halo.NewCellConnector(locals)
	if err != nil {
		return nil, err
	}
	if err = conn.Verify(); err != nil {
		return nil, err
	}
	world := halo.NewWorld(conn,
		halo.WithTimeout(c.Parallel.Timeout.Duration),
		halo.WithLogger(opts.log))

	results := make([]rankResult, len(locals))
	errs := make([]error, len(locals))
	var wg sync.WaitGroup
	for id, local := range locals {
		wg.Add(1)
		go func(id int, local *mesh.Mesh) {
			defer wg.Done()
			log := opts.log.WithField("rank", id)
			zones, err := zone.NewList(local, c.ZoneSpecs(), zone.WithLogger(log))
			if err != nil {
				errs[id] = err
				return
			}
			defer zones.Close()
			rank := world.Rank(id)
			r := &rankRun{
				id:    id,
				mesh:  local,
				comm:  rank,
				zones: zones,
				addTensor: func(z *zone.Zone, AU field.TensorField, rho, mu field.Source, U field.VectorField) error {
					return z.AddResistanceTensor(AU, rho, mu, U, true, rank)
				},
			}
			rankOpts := opts
			rankOpts.log = log
			results[id], errs[id] = relax(c, rankOpts, r)
		}(id, local)
	}
	wg.Wait()

	// A failing rank makes its neighbours time out; report the cause
	var timeout error
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, halo.ErrCollectiveTimeout):
			if timeout == nil {
				timeout = err
			}
		default:
			return nil, err
		}
	}
	if timeout != nil {
		return nil, timeout
	}
	return results, nil
}

// relax runs the pseudo-transient iterations of one rank
func relax(c *config.Case, opts runOptions, r *rankRun) (res rankResult, err error) {
	n, owned := r.mesh.NumCells(), r.mesh.NumOwned()
	vols := r.mesh.Volumes()
	rho, mu := field.Uniform(c.Fluid.Rho), field.Uniform(c.Fluid.Mu)
	G := field.Vector(c.Run.PressureGradient)
	U := make(field.VectorField, n)
	A := fvm.NewMatrix[field.Vector](n)

	if r.id == 0 && opts.db != nil {
		if err = opts.db.SaveDescriptors(0, r.zones.Descriptors()); err != nil {
			return
		}
	}

	for iter := 1; iter <= c.Run.Iterations; iter++ {
		A.Reset()
		if err = A.SetEulerDdt(rho, vols, c.Run.Dt); err != nil {
			return
		}
		if err = r.zones.ModifyDdt(A); err != nil {
			return
		}
		if err = A.AssembleDdt(U); err != nil {
			return
		}
		if err = r.zones.AddResistance(A, rho, mu, U); err != nil {
			return
		}
		for cell := 0; cell < owned; cell++ {
			A.AddToSource(cell, G.Scale(vols[cell]))
		}

		var next field.VectorField
		if next, err = fvm.SolveVector(A); err != nil {
			return
		}
		if err = r.comm.ExchangeVectors(next); err != nil {
			return
		}
		change := 0.0
		for cell := 0; cell < owned; cell++ {
			change = math.Max(change, next[cell].Sub(U[cell]).Mag())
		}
		U = next
		if res.residual, err = r.comm.AllReduceMax(change); err != nil {
			return
		}
		res.iterations = iter
		res.converged = res.residual < c.Run.Tolerance

		if iter%reportEvery == 0 || res.converged || iter == c.Run.Iterations {
			if res.drag, err = zoneDrag(r, rho, mu, U); err != nil {
				return
			}
			opts.log.WithFields(logrus.Fields{"iteration": iter, "residual": res.residual}).Debug("relaxation")
			if r.id == 0 && opts.db != nil {
				if err = opts.db.RecordDiagnostics(iter, res.drag); err != nil {
					return
				}
			}
		}
		if res.converged {
			break
		}
	}

	res.U = U[:owned]
	res.globalIDs = r.mesh.GlobalIDs()[:owned]
	return
}

// zoneDrag returns the total drag Σ V·T·U of every zone over all ranks,
// from the resistance tensor field
func zoneDrag(r *rankRun, rho, mu field.Source, U field.VectorField) (map[string]field.Vector, error) {
	owned := r.mesh.NumOwned()
	vols := r.mesh.Volumes()
	local := make([]float64, 3*len(r.zones))
	for i, z := range r.zones {
		AU := field.NewTensorField(r.mesh.NumCells())
		if err := r.addTensor(z, AU, rho, mu, U); err != nil {
			return nil, err
		}
		var f field.Vector
		for _, cell := range z.Cells() {
			if cell < owned {
				f = f.Add(AU[cell].Dot(U[cell]).Scale(vols[cell]))
			}
		}
		copy(local[3*i:3*i+3], f[:])
	}
	total, err := r.comm.AllReduceSum(local...)
	if err != nil {
		return nil, err
	}
	drag := make(map[string]field.Vector, len(r.zones))
	for i, z := range r.zones {
		drag[z.Name()] = field.Vector{total[3*i], total[3*i+1], total[3*i+2]}
	}
	return drag, nil
}
