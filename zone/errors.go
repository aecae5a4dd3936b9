package zone

import (
	"errors"
	"fmt"

	"github.com/notargets/porosity/resistance"
)

var (
	ErrPorosityRange      = errors.New("porosity must lie in (0,1]")
	ErrAddedMass          = errors.New("added mass coefficient must be non-negative")
	ErrUnresolvedCellZone = errors.New("unresolved cell zone")
	ErrCellIndex          = errors.New("invalid cell index")
	ErrUnknownFrame       = errors.New("unsupported coordinate system type")
	ErrClosed             = errors.New("zone is closed")
	ErrDuplicateZone      = errors.New("duplicate zone name")
	ErrNoCorrector        = errors.New("boundary correction requested without a corrector")
)

// ConfigurationError is returned when a zone cannot be constructed. Err is
// the cause and may itself be a *frame.InvalidFrameError.
type ConfigurationError struct {
	Zone string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("porosity zone %q: %v", e.Zone, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configError(name string, err error) error {
	return &ConfigurationError{Zone: name, Err: err}
}

func dimensionError(zone string, got, want int) error {
	return fmt.Errorf("zone %q: %w: matrix has %d cells, mesh has %d",
		zone, resistance.ErrDimensionMismatch, got, want)
}
