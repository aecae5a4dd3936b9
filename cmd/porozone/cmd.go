package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/notargets/porosity/config"
)

// Cfg holds the command line configuration
var Cfg *viper.Viper

var log = logrus.New()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the case file location.`,
			shorthand:  "c",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose turns on debug logging.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "db",
			usage: `
              db is a SQLite file receiving the zone descriptors and the
              drag history of the run. Empty disables it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "device",
			usage: `
              device evaluates the zone resistance tensors on an OCCA
              device (Serial, OpenMP, CUDA, OpenCL or auto). The momentum
              loop then runs on one host rank and the case partitions
              become device partitions.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "partitions",
			usage: `
              partitions overrides parallel.partitions of the case file.`,
			shorthand:  "p",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
	}

	Cfg = viper.New()
	Cfg.SetEnvPrefix("POROZONE")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 {
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			default:
				panic(fmt.Sprintf("porozone: unsupported option type %T", v))
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	Root.AddCommand(runCmd, describeCmd, tensorCmd)
}

// Root is the main command
var Root = &cobra.Command{
	Use:   "porozone",
	Short: "Porous resistance zones for finite-volume momentum solvers.",
	Long: `porozone builds the Darcy–Forchheimer porous zones of a case file and
either relaxes the momentum equation to its porous equilibrium (run) or
reports the zones (describe, tensor).`,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setLogger() },
}

func setLogger() error {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if Cfg.GetBool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}
	return nil
}

// loadCase reads the case file named by the config option
func loadCase() (*config.Case, error) {
	path := Cfg.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("porozone: no case file given, use --config")
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p := Cfg.GetInt("partitions"); p > 0 {
		c.Parallel.Partitions = p
	}
	return c, nil
}
