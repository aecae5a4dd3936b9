package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/notargets/porosity/config"
	"github.com/notargets/porosity/field"
	"github.com/notargets/porosity/zone"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the porous zones of a case",
	Long: `describe builds the mesh and the porous zones of the case and writes
a summary of each zone followed by its descriptor in case-file form.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCase()
		if err != nil {
			return err
		}
		zones, err := buildZones(c)
		if err != nil {
			return err
		}
		defer zones.Close()
		return describe(cmd.OutOrStdout(), zones)
	},
}

var tensorCmd = &cobra.Command{
	Use:   "tensor",
	Short: "Print the resistance tensors of the porous zones of a case",
	Long: `tensor writes, for each zone, the normalised local coefficients, the
global Darcy and Forchheimer tensors and the time-derivative factor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCase()
		if err != nil {
			return err
		}
		zones, err := buildZones(c)
		if err != nil {
			return err
		}
		defer zones.Close()
		return tensors(cmd.OutOrStdout(), zones)
	},
}

func buildZones(c *config.Case) (zone.List, error) {
	m, err := c.BuildMesh(log)
	if err != nil {
		return nil, err
	}
	log.Debug(m)
	return zone.NewList(m, c.ZoneSpecs(), zone.WithLogger(log))
}

func describe(w io.Writer, zones zone.List) error {
	for _, z := range zones {
		if _, err := fmt.Fprintf(w, "# %v\n", z); err != nil {
			return err
		}
	}
	return config.EncodeZones(w, zones.Descriptors())
}

func tensors(w io.Writer, zones zone.List) error {
	for _, z := range zones {
		k := z.Kernel()
		fmt.Fprintf(w, "zone %s\n", z.Name())
		fmt.Fprintf(w, "  d (local)  %v\n", k.Dl)
		fmt.Fprintf(w, "  f (local)  %v\n", k.Fl)
		writeTensor(w, "D (global)", k.Dg)
		writeTensor(w, "F (global)", k.Fg)
		if _, err := fmt.Fprintf(w, "  ddt factor %g\n", zone.DdtFactor(z.Porosity(), z.AddedMassCoeff())); err != nil {
			return err
		}
	}
	return nil
}

func writeTensor(w io.Writer, name string, t field.Tensor) {
	fmt.Fprintf(w, "  %s\n", name)
	for i := 0; i < 3; i++ {
		fmt.Fprintf(w, "    % .6e % .6e % .6e\n", t.At(i, 0), t.At(i, 1), t.At(i, 2))
	}
}
