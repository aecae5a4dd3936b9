package device

import (
	"fmt"

	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/partitions"
	"github.com/notargets/porosity/resistance"
)

const resistanceKernel = "porousResistance"

// AU += mu*Dg + rho*|U|*Fg on zone cells, one tensor per cell
const resistanceSource = `
@kernel void porousResistance(const int_t *K,
                              const real_t *U_global, const int_t *U_offsets,
                              const real_t *rho_global, const int_t *rho_offsets,
                              const real_t *mu_global, const int_t *mu_offsets,
                              const real_t *mask_global, const int_t *mask_offsets,
                              real_t *AU_global, const int_t *AU_offsets) {
  for (int part = 0; part < NPART; ++part; @outer) {
    for (int elem = 0; elem < KpartMax; ++elem; @inner) {
      if (elem < K[part]) {
        const real_t *mask = mask_PART(part);
        if (mask[elem] != REAL_ZERO) {
          const real_t *U = U_PART(part) + 3*elem;
          const real_t *rho = rho_PART(part);
          const real_t *mu = mu_PART(part);
          real_t *AU = AU_PART(part) + 9*elem;
          const real_t magU = sqrt(U[0]*U[0] + U[1]*U[1] + U[2]*U[2]);
          const real_t m = mu[elem];
          const real_t f = rho[elem]*magU;
          for (int i = 0; i < 3; ++i) {
            for (int j = 0; j < 3; ++j) {
              AU[3*i + j] += m*Dg[i][j] + f*Fg[i][j];
            }
          }
        }
      }
    }
  }
}
`

// Resistance adds the drag tensor of one zone to a tensor field on a
// device. It covers a whole, undecomposed mesh: every cell is owned by one
// device partition so no boundary correction is needed.
type Resistance struct {
	b      *Builder
	layout *partitions.PartitionLayout
	cells  int

	// host staging, cell ordered
	u, rho, mu, au []float64
}

// NewResistance compiles the resistance kernel of k for the zone cells on
// the partitions of layout
func NewResistance(dev *gocca.OCCADevice, layout *partitions.PartitionLayout,
	k *resistance.Kernel, cells []int) (*Resistance, error) {

	n := layout.TotalCells
	mask := make([]float64, n)
	for _, c := range cells {
		if c < 0 || c >= n {
			return nil, fmt.Errorf("%w: cell %d outside [0,%d)", resistance.ErrDimensionMismatch, c, n)
		}
		mask[c] = 1
	}

	b := NewBuilder(dev, layout)
	b.AddStaticMatrix("Dg", tensorMatrix(k.Dg))
	b.AddStaticMatrix("Fg", tensorMatrix(k.Fg))
	for _, a := range []struct {
		name   string
		stride int
	}{{"U", 3}, {"rho", 1}, {"mu", 1}, {"mask", 1}, {"AU", 9}} {
		if err := b.AllocateArray(a.name, a.stride); err != nil {
			b.Free()
			return nil, err
		}
	}
	if err := b.Write("mask", mask); err != nil {
		b.Free()
		return nil, err
	}
	if _, err := b.BuildKernel(resistanceSource, resistanceKernel); err != nil {
		b.Free()
		return nil, err
	}

	return &Resistance{
		b:      b,
		layout: layout,
		cells:  len(cells),
		u:      make([]float64, 3*n),
		rho:    make([]float64, n),
		mu:     make([]float64, n),
		au:     make([]float64, 9*n),
	}, nil
}

// AddTensor adds the drag tensor to AU for every zone cell. Sizes are
// checked before anything is written.
func (r *Resistance) AddTensor(AU field.TensorField, rho, mu field.Source, U field.VectorField) error {
	if r.cells == 0 {
		return nil
	}
	n := r.layout.TotalCells
	if len(U) != n {
		return fmt.Errorf("%w: U has %d cells, mesh has %d", resistance.ErrDimensionMismatch, len(U), n)
	}
	if len(AU) != n {
		return fmt.Errorf("%w: target has %d cells, mesh has %d", resistance.ErrDimensionMismatch, len(AU), n)
	}
	for _, s := range []struct {
		name string
		src  field.Source
	}{{"rho", rho}, {"mu", mu}} {
		if sz, ok := s.src.(field.Sized); ok && sz.Len() != n {
			return fmt.Errorf("%w: %s has %d cells, mesh has %d", resistance.ErrDimensionMismatch, s.name, sz.Len(), n)
		}
	}

	for c := 0; c < n; c++ {
		copy(r.u[3*c:3*c+3], U[c][:])
		copy(r.au[9*c:9*c+9], AU[c][:])
		r.rho[c] = rho.At(c)
		r.mu[c] = mu.At(c)
	}
	for name, data := range map[string][]float64{"U": r.u, "rho": r.rho, "mu": r.mu, "AU": r.au} {
		if err := r.b.Write(name, data); err != nil {
			return err
		}
	}
	if err := r.b.RunKernel(resistanceKernel, "U", "rho", "mu", "mask", "AU"); err != nil {
		return err
	}
	if err := r.b.Read("AU", r.au); err != nil {
		return err
	}
	for c := 0; c < n; c++ {
		copy(AU[c][:], r.au[9*c:9*c+9])
	}
	return nil
}

// Free releases the device memory and kernel
func (r *Resistance) Free() { r.b.Free() }

func tensorMatrix(t field.Tensor) *mat.Dense {
	return mat.NewDense(3, 3, append([]float64(nil), t[:]...))
}
