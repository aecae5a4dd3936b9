// Package config reads and writes porozone case files. A case file is TOML:
//
//	[mesh.block]
//	n = [20, 4, 1]
//	min = [0, 0, 0]
//	max = [1, 0.2, 0.05]
//
//	[fluid]
//	rho = 1000.0
//	mu = 1.0e-3
//
//	[[cellZone]]
//	name = "filter"
//	min = [0.4, 0, 0]
//	max = [0.6, 0.2, 0.05]
//
//	[[zone]]
//	name = "filter"
//	cellZone = "filter"
//	porosity = 0.4
//	[zone.coordinateSystem]
//	axis1 = [1, 0, 0]
//	axis2 = [0, 1, 0]
//	[zone.Darcy]
//	d = [5.0e7, -1000, -1000]
//	[zone.Forchheimer]
//	f = [0, 0, 0]
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/partitions"
	"github.com/notargets/porosity/zone"
)

// Defaults applied by Decode for missing settings
const (
	DefaultIterations = 1000
	DefaultTolerance  = 1.e-10
	DefaultTimeout    = 10 * time.Second
)

// Case is a complete porozone case file
type Case struct {
	Mesh      Mesh       `toml:"mesh"`
	Fluid     Fluid      `toml:"fluid"`
	Run       Run        `toml:"run"`
	Parallel  Parallel   `toml:"parallel"`
	CellZones []CellZone `toml:"cellZone"`
	Zones     []Zone     `toml:"zone"`
}

// Mesh selects either a generated block mesh or a Gambit/gmsh mesh file
type Mesh struct {
	File  string `toml:"file,omitempty"`
	Block *Block `toml:"block,omitempty"`
}

type Block struct {
	N   [3]int     `toml:"n"`
	Min [3]float64 `toml:"min"`
	Max [3]float64 `toml:"max"`
}

type Fluid struct {
	Rho float64 `toml:"rho"`
	Mu  float64 `toml:"mu"`
}

// Run controls the pseudo-transient momentum relaxation
type Run struct {
	Dt               float64    `toml:"dt"`
	Iterations       int        `toml:"iterations"`
	PressureGradient [3]float64 `toml:"pressureGradient"`
	Tolerance        float64    `toml:"tolerance"`
}

type Parallel struct {
	Partitions int      `toml:"partitions"`
	Strategy   string   `toml:"strategy"`
	Timeout    Duration `toml:"timeout"`
}

// CellZone selects the cells whose centroids lie in a box
type CellZone struct {
	Name string     `toml:"name"`
	Min  [3]float64 `toml:"min"`
	Max  [3]float64 `toml:"max"`
}

// Zone is the case-file form of a porous zone
type Zone struct {
	Name             string            `toml:"name"`
	CellZone         string            `toml:"cellZone"`
	Porosity         float64           `toml:"porosity"`
	AddedMassCoeff   float64           `toml:"addedMassCoeff"`
	Model            string            `toml:"model,omitempty"`
	CoordinateSystem CoordinateSystem  `toml:"coordinateSystem"`
	Darcy            Darcy             `toml:"Darcy"`
	Forchheimer      Forchheimer       `toml:"Forchheimer"`
	Coefficients     *ModelCoefficient `toml:"coefficients,omitempty"`
}

type CoordinateSystem struct {
	Type   string      `toml:"type,omitempty"`
	Origin [3]float64  `toml:"origin"`
	Axis1  [3]float64  `toml:"axis1"`
	Axis2  [3]float64  `toml:"axis2"`
	Axis3  *[3]float64 `toml:"axis3,omitempty"`
}

type Darcy struct {
	D [3]float64 `toml:"d"`
}

type Forchheimer struct {
	F [3]float64 `toml:"f"`
}

// ModelCoefficient holds the inputs of the empirical resistance models
type ModelCoefficient struct {
	Alpha float64 `toml:"alpha"`
	Beta  float64 `toml:"beta"`
	D50   float64 `toml:"d50"`
	KC    float64 `toml:"KC,omitempty"`
}

// Duration is a time.Duration written as a string such as "10s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load reads, defaults and validates the case file at path
func Load(path string) (*Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open case file: %w", err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("case file %s: %w", path, err)
	}
	return c, nil
}

// Decode parses a case, applies defaults and validates it. Unknown keys are
// an error.
func Decode(r io.Reader) (*Case, error) {
	c := new(Case)
	md, err := toml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys %v", undecoded)
	}
	c.applyDefaults()
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Case) applyDefaults() {
	if c.Run.Iterations == 0 {
		c.Run.Iterations = DefaultIterations
	}
	if c.Run.Tolerance == 0 {
		c.Run.Tolerance = DefaultTolerance
	}
	if c.Parallel.Partitions == 0 {
		c.Parallel.Partitions = 1
	}
	if c.Parallel.Strategy == "" {
		c.Parallel.Strategy = partitions.BlockPartition.String()
	}
	if c.Parallel.Timeout.Duration == 0 {
		c.Parallel.Timeout.Duration = DefaultTimeout
	}
}

// Validate checks the case-level settings. Zone parameters are checked when
// the zones are built.
func (c *Case) Validate() error {
	var errs []error
	if (c.Mesh.File == "") == (c.Mesh.Block == nil) {
		errs = append(errs, errors.New("mesh: exactly one of file and block must be set"))
	}
	if b := c.Mesh.Block; b != nil {
		for d := 0; d < 3; d++ {
			if b.N[d] < 1 || !(b.Max[d] > b.Min[d]) {
				errs = append(errs, fmt.Errorf("mesh.block: direction %d has %d cells over [%g,%g]",
					d, b.N[d], b.Min[d], b.Max[d]))
			}
		}
	}
	if !(c.Fluid.Rho > 0) {
		errs = append(errs, fmt.Errorf("fluid.rho must be positive, have %g", c.Fluid.Rho))
	}
	if !(c.Fluid.Mu >= 0) {
		errs = append(errs, fmt.Errorf("fluid.mu must be non-negative, have %g", c.Fluid.Mu))
	}
	if !(c.Run.Dt > 0) {
		errs = append(errs, fmt.Errorf("run.dt must be positive, have %g", c.Run.Dt))
	}
	if c.Run.Iterations < 1 {
		errs = append(errs, fmt.Errorf("run.iterations must be positive, have %d", c.Run.Iterations))
	}
	if c.Parallel.Partitions < 1 {
		errs = append(errs, fmt.Errorf("parallel.partitions must be positive, have %d", c.Parallel.Partitions))
	}
	if _, err := partitions.ParseStrategy(c.Parallel.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("parallel.strategy: %w", err))
	}

	cellZones := make(map[string]bool, len(c.CellZones))
	for i, cz := range c.CellZones {
		switch {
		case cz.Name == "":
			errs = append(errs, fmt.Errorf("cellZone %d has no name", i))
		case cellZones[cz.Name]:
			errs = append(errs, fmt.Errorf("cellZone %q defined twice", cz.Name))
		}
		cellZones[cz.Name] = true
	}
	zones := make(map[string]bool, len(c.Zones))
	for i, z := range c.Zones {
		switch {
		case z.Name == "":
			errs = append(errs, fmt.Errorf("zone %d has no name", i))
		case zones[z.Name]:
			errs = append(errs, fmt.Errorf("zone %q: %w", z.Name, zone.ErrDuplicateZone))
		}
		zones[z.Name] = true
		if !cellZones[z.CellZone] {
			errs = append(errs, fmt.Errorf("zone %q: cellZone %q is not defined", z.Name, z.CellZone))
		}
	}
	return errors.Join(errs...)
}

// Spec converts the case-file zone to the record zones are built from
func (z Zone) Spec() zone.Spec {
	s := zone.Spec{
		Name:     z.Name,
		CellZone: z.CellZone,
		CoordinateSystem: zone.FrameSpec{
			Type:   z.CoordinateSystem.Type,
			Origin: field.Vector(z.CoordinateSystem.Origin),
			Axis1:  field.Vector(z.CoordinateSystem.Axis1),
			Axis2:  field.Vector(z.CoordinateSystem.Axis2),
		},
		Porosity:       z.Porosity,
		AddedMassCoeff: z.AddedMassCoeff,
		Model:          z.Model,
		Darcy:          field.Vector(z.Darcy.D),
		Forchheimer:    field.Vector(z.Forchheimer.F),
	}
	if a3 := z.CoordinateSystem.Axis3; a3 != nil {
		v := field.Vector(*a3)
		s.CoordinateSystem.Axis3 = &v
	}
	if mc := z.Coefficients; mc != nil {
		s.Coefficients = zone.Coefficients{Alpha: mc.Alpha, Beta: mc.Beta, D50: mc.D50, KC: mc.KC}
	}
	return s
}

// ZoneFromSpec is the inverse of Zone.Spec
func ZoneFromSpec(s zone.Spec) Zone {
	z := Zone{
		Name:           s.Name,
		CellZone:       s.CellZone,
		Porosity:       s.Porosity,
		AddedMassCoeff: s.AddedMassCoeff,
		Model:          s.Model,
		CoordinateSystem: CoordinateSystem{
			Type:   s.CoordinateSystem.Type,
			Origin: s.CoordinateSystem.Origin,
			Axis1:  s.CoordinateSystem.Axis1,
			Axis2:  s.CoordinateSystem.Axis2,
		},
		Darcy:       Darcy{D: s.Darcy},
		Forchheimer: Forchheimer{F: s.Forchheimer},
	}
	if a3 := s.CoordinateSystem.Axis3; a3 != nil {
		v := [3]float64(*a3)
		z.CoordinateSystem.Axis3 = &v
	}
	if s.Coefficients != (zone.Coefficients{}) {
		c := s.Coefficients
		z.Coefficients = &ModelCoefficient{Alpha: c.Alpha, Beta: c.Beta, D50: c.D50, KC: c.KC}
	}
	return z
}

// ZoneSpecs returns the zone records of the case in file order
func (c *Case) ZoneSpecs() []zone.Spec {
	specs := make([]zone.Spec, len(c.Zones))
	for i, z := range c.Zones {
		specs[i] = z.Spec()
	}
	return specs
}

// Encode writes the case as TOML
func (c *Case) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// EncodeZones writes zone descriptors as [[zone]] tables, in the form a
// case file reads them back
func EncodeZones(w io.Writer, specs []zone.Spec) error {
	doc := struct {
		Zones []Zone `toml:"zone"`
	}{Zones: make([]Zone, len(specs))}
	for i, s := range specs {
		doc.Zones[i] = ZoneFromSpec(s)
	}
	return toml.NewEncoder(w).Encode(doc)
}
