package zone

import (
	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/frame"
	"github.com/notargets/porosity/resistance"
)

// CartesianFrame is the only coordinate system type
const CartesianFrame = "cartesian"

// FrameSpec describes the zone coordinate system
type FrameSpec struct {
	Type   string        `json:"type"`
	Origin field.Vector  `json:"origin"`
	Axis1  field.Vector  `json:"axis1"`
	Axis2  field.Vector  `json:"axis2"`
	Axis3  *field.Vector `json:"axis3,omitempty"`
}

// Build returns the frame described by s
func (s FrameSpec) Build() (*frame.Frame, error) {
	if s.Type != "" && s.Type != CartesianFrame {
		return nil, ErrUnknownFrame
	}
	if s.Axis3 != nil {
		return frame.New(s.Origin, s.Axis1, s.Axis2, *s.Axis3)
	}
	return frame.New(s.Origin, s.Axis1, s.Axis2)
}

// Coefficients are the inputs of the empirical coefficient models
type Coefficients struct {
	Alpha float64 `json:"alpha,omitempty"`
	Beta  float64 `json:"beta,omitempty"`
	D50   float64 `json:"d50,omitempty"`
	KC    float64 `json:"KC,omitempty"`
}

// Spec is the structured record a zone is built from. Descriptor returns the
// same record, so a zone can be rebuilt from its own description.
type Spec struct {
	Name             string       `json:"name"`
	CellZone         string       `json:"cellZone"`
	CoordinateSystem FrameSpec    `json:"coordinateSystem"`
	Porosity         float64      `json:"porosity"`
	AddedMassCoeff   float64      `json:"addedMassCoeff"`
	Model            string       `json:"model,omitempty"`
	Darcy            field.Vector `json:"d"`
	Forchheimer      field.Vector `json:"f"`
	Coefficients     Coefficients `json:"coefficients"`
}

// resistanceModel translates the record into a coefficient model
func (s Spec) resistanceModel() (resistance.Model, error) {
	mt, err := resistance.ParseModelType(s.Model)
	if err != nil {
		return resistance.Model{}, err
	}
	return resistance.Model{
		Type:  mt,
		D:     s.Darcy,
		F:     s.Forchheimer,
		Alpha: s.Coefficients.Alpha,
		Beta:  s.Coefficients.Beta,
		D50:   s.Coefficients.D50,
		KC:    s.Coefficients.KC,
	}, nil
}
