package device

import (
	"fmt"
	"sort"
	"strings"
	"unsafe"

	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/porosity/partitions"
)

// Per-kernel work group limits of the GPU backends
const (
	cudaInnerLimit   = 1024
	openCLInnerLimit = 1024
)

// Builder generates and runs partition-parallel kernels over the cells of a
// partition layout. Each partition is one @outer iteration; its cells are the
// @inner iterations, padded to KpartMax.
type Builder struct {
	K        []int // cells per partition
	KpartMax int

	layout  *partitions.PartitionLayout
	statics map[string]mat.Matrix
	arrays  []*array // allocation order
	byName  map[string]*array

	preamble string
	dev      *gocca.OCCADevice
	kmem     *gocca.OCCAMemory
	kernels  map[string]*gocca.OCCAKernel
}

// array is a cell field staged on the host and mirrored on the device as a
// packed global buffer plus per-partition offsets
type array struct {
	name    string
	host    *partitions.PartitionedArray
	global  *gocca.OCCAMemory
	offsets *gocca.OCCAMemory
}

// NewBuilder creates a builder for the partitions of layout. It panics on a
// nil device, an empty layout or partitions too large for the device.
func NewBuilder(dev *gocca.OCCADevice, layout *partitions.PartitionLayout) *Builder {
	if dev == nil {
		panic("device: nil OCCA device")
	}
	if layout == nil || layout.NumPartitions == 0 {
		panic("device: empty partition layout")
	}
	switch mode := dev.Mode(); {
	case mode == "CUDA" && layout.KpartMax > cudaInnerLimit,
		mode == "OpenCL" && layout.KpartMax > openCLInnerLimit:
		panic(fmt.Sprintf("device: %d cells in the largest partition exceed the %s @inner limit, use more partitions",
			layout.KpartMax, mode))
	}

	b := &Builder{
		K:        layout.K(),
		KpartMax: layout.KpartMax,
		layout:   layout,
		statics:  make(map[string]mat.Matrix),
		byName:   make(map[string]*array),
		dev:      dev,
		kernels:  make(map[string]*gocca.OCCAKernel),
	}
	b.kmem = malloc(dev, toInt64(b.K))
	return b
}

// Free releases the kernels and device memory of the builder
func (b *Builder) Free() {
	for _, k := range b.kernels {
		k.Free()
	}
	for _, a := range b.arrays {
		a.global.Free()
		a.offsets.Free()
	}
	if b.kmem != nil {
		b.kmem.Free()
	}
	b.kernels = map[string]*gocca.OCCAKernel{}
	b.arrays, b.byName, b.kmem = nil, map[string]*array{}, nil
}

// AddStaticMatrix embeds m in the kernel preamble as a const array
func (b *Builder) AddStaticMatrix(name string, m mat.Matrix) {
	b.statics[name] = m
	b.preamble = ""
}

// AllocateArray allocates a partitioned device array of stride values per
// cell. Kernels receive it as name_global and name_offsets.
func (b *Builder) AllocateArray(name string, stride int) error {
	if _, dup := b.byName[name]; dup {
		return fmt.Errorf("array %s already allocated", name)
	}
	if stride < 1 {
		return fmt.Errorf("array %s: stride %d", name, stride)
	}
	host := partitions.AllocatePartitionedArray(b.layout, stride)
	a := &array{
		name:    name,
		host:    host,
		global:  malloc(b.dev, host.GlobalData),
		offsets: malloc(b.dev, toInt64(host.Offsets)),
	}
	b.arrays = append(b.arrays, a)
	b.byName[name] = a
	b.preamble = ""
	return nil
}

// Write copies cell-ordered host data into a device array
func (b *Builder) Write(name string, cellData []float64) error {
	a, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("array %s not found", name)
	}
	if err := a.host.Scatter(b.layout, cellData); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	a.global.CopyFrom(unsafe.Pointer(&a.host.GlobalData[0]), int64(8*len(a.host.GlobalData)))
	return nil
}

// Read copies a device array back into cell-ordered host data
func (b *Builder) Read(name string, cellData []float64) error {
	a, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("array %s not found", name)
	}
	a.global.CopyTo(unsafe.Pointer(&a.host.GlobalData[0]), int64(8*len(a.host.GlobalData)))
	if err := a.host.Gather(b.layout, cellData); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

// GeneratePreamble returns the source prepended to every kernel: scalar
// types, the partition sizes, the static matrices in name order and one
// name_PART(part) macro per array.
func (b *Builder) GeneratePreamble() string {
	var sb strings.Builder
	sb.WriteString("typedef double real_t;\ntypedef long int_t;\n\n")
	fmt.Fprintf(&sb, "#define NPART %d\n#define KpartMax %d\n\n", len(b.K), b.KpartMax)

	names := make([]string, 0, len(b.statics))
	for name := range b.statics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(formatStaticMatrix(name, b.statics[name]))
	}

	for _, a := range b.arrays {
		fmt.Fprintf(&sb, "#define %[1]s_PART(part) (%[1]s_global + %[1]s_offsets[part])\n", a.name)
	}
	b.preamble = sb.String()
	return b.preamble
}

// formatStaticMatrix writes m as a C array initializer at full precision
func formatStaticMatrix(name string, m mat.Matrix) string {
	rows, cols := m.Dims()
	var sb strings.Builder
	fmt.Fprintf(&sb, "const double %s[%d][%d] = {\n", name, rows, cols)
	for i := 0; i < rows; i++ {
		vals := make([]string, cols)
		for j := range vals {
			vals[j] = fmt.Sprintf("%.17e", m.At(i, j))
		}
		sep := ","
		if i == rows-1 {
			sep = ""
		}
		fmt.Fprintf(&sb, "    {%s}%s\n", strings.Join(vals, ", "), sep)
	}
	sb.WriteString("};\n\n")
	return sb.String()
}

// BuildKernel compiles source behind the preamble and registers it as name
func (b *Builder) BuildKernel(source, name string) (*gocca.OCCAKernel, error) {
	if b.preamble == "" {
		b.GeneratePreamble()
	}
	full := b.preamble + "\n" + source
	var (
		kernel *gocca.OCCAKernel
		err    error
	)
	if b.dev.Mode() == "OpenMP" {
		// OpenMP builds do not get -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = b.dev.BuildKernelFromString(full, name, props)
	} else {
		kernel, err = b.dev.BuildKernelFromString(full, name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("build kernel %s: %w", name, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("build kernel %s: no kernel returned", name)
	}
	b.kernels[name] = kernel
	return kernel, nil
}

// RunKernel runs a registered kernel and waits for the device. K is passed
// first; a string argument naming an array expands to its global and offsets
// buffers, every other argument is passed through.
func (b *Builder) RunKernel(name string, args ...interface{}) error {
	kernel, ok := b.kernels[name]
	if !ok {
		return fmt.Errorf("kernel %s not found", name)
	}
	expanded := make([]interface{}, 0, 2*len(args)+1)
	expanded = append(expanded, b.kmem)
	for _, arg := range args {
		if s, isName := arg.(string); isName {
			if a, found := b.byName[s]; found {
				expanded = append(expanded, a.global, a.offsets)
				continue
			}
		}
		expanded = append(expanded, arg)
	}
	if err := kernel.RunWithArgs(expanded...); err != nil {
		return fmt.Errorf("kernel %s: %w", name, err)
	}
	b.dev.Finish()
	return nil
}

// malloc copies data into new device memory
func malloc[T float64 | int64](dev *gocca.OCCADevice, data []T) *gocca.OCCAMemory {
	return dev.Malloc(int64(8*len(data)), unsafe.Pointer(&data[0]), nil)
}

func toInt64(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
