// Package device runs cell loops on an OCCA device. Cells are grouped into
// partitions; each partition is one @outer iteration and its cells are
// the @inner iterations, padded to the largest partition.
package device

import (
	"errors"
	"fmt"

	"github.com/notargets/gocca"
)

// Backends are tried in order by Open("auto")
var Backends = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// Open creates a device for an OCCA mode name such as "Serial", "OpenMP",
// "CUDA" or "OpenCL". "auto" or "" picks the first backend that works.
func Open(mode string) (*gocca.OCCADevice, error) {
	switch mode {
	case "", "auto":
		for _, props := range Backends {
			if dev, err := gocca.NewDevice(props); err == nil {
				return dev, nil
			}
		}
		return nil, errors.New("no OCCA backend available")
	case "CUDA":
		return newDevice(`{"mode": "CUDA", "device_id": 0}`)
	case "OpenCL":
		return newDevice(`{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`)
	default:
		return newDevice(fmt.Sprintf(`{"mode": %q}`, mode))
	}
}

func newDevice(props string) (*gocca.OCCADevice, error) {
	dev, err := gocca.NewDevice(props)
	if err != nil {
		return nil, fmt.Errorf("create device %s: %w", props, err)
	}
	return dev, nil
}
