// Command porozone applies Darcy–Forchheimer porous zones to a
// pseudo-transient momentum relaxation and reports the zone descriptors and
// resistance tensors of a case file.
package main

import (
	"os"
)

func main() {
	if err := Root.Execute(); err != nil {
		os.Exit(1)
	}
}
