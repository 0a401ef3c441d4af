package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stagesim/stagesim/sim"
	"github.com/stagesim/stagesim/sim/trace"
	"github.com/stagesim/stagesim/sim/vessel"
)

const envPrefix = "STAGESIM"

var (
	configFile string // optional viper config file (yaml, json or toml)

	// Flag-backed settings live in viper so they can also come from the
	// config file or STAGESIM_* environment variables.
	settings = viper.New()
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "stagesim",
	Short: "Stage-by-stage delta-v and thrust simulator for staged vehicles",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadSettings(cmd); err != nil {
			return err
		}
		level, err := logrus.ParseLevel(settings.GetString("log"))
		if err != nil {
			return fmt.Errorf("invalid log level: %s", settings.GetString("log"))
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// runCmd simulates a vessel file once, in vacuum and at the surface of a body
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a vessel and print the stage table",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadInputs()
		if err != nil {
			return err
		}
		v, err := loadVessel(settings.GetString("vessel"))
		if err != nil {
			return err
		}

		logrus.Infof("[run] simulating %s (%d parts) at %s", v.Name, len(v.Parts), settings.GetString("body"))
		start := time.Now()

		vacSim := sim.NewStageSimulator(in.lib, in.run)
		vac, err := vacSim.Run(v, in.env.Vacuum())
		if err != nil {
			return fmt.Errorf("vacuum run: %w", err)
		}
		atmSim := sim.NewStageSimulator(in.lib, in.run)
		atm, err := atmSim.Run(v, in.env)
		if err != nil {
			return fmt.Errorf("atmosphere run: %w", err)
		}

		rep := newReport(v.Name, settings.GetString("body"), vac, atm)
		out := cmd.OutOrStdout()
		if settings.GetBool("json") {
			if err := rep.WriteJSON(out); err != nil {
				return err
			}
		} else {
			rep.WriteTable(out)
		}
		if in.run.Trace.Enabled() {
			writeTraceSummary(out, "vacuum", vacSim.Trace())
			writeTraceSummary(out, "atmosphere", atmSim.Trace())
		}

		logrus.Infof("[run] simulation complete in %s", time.Since(start))
		return nil
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings binds the invoked command's flags and reads the optional
// config file. Flags win over environment variables, which win over the file.
func loadSettings(cmd *cobra.Command) error {
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	if configFile == "" {
		return nil
	}
	settings.SetConfigFile(configFile)
	if err := settings.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	logrus.Debugf("[config] loaded %s", settings.ConfigFileUsed())
	return nil
}

// inputs are the settings-derived values shared by run and watch.
type inputs struct {
	lib *sim.ResourceLibrary
	env sim.Environment
	run sim.RunConfig
}

func loadInputs() (inputs, error) {
	cfg, err := loadDefaultsConfig(settings.GetString("defaults"))
	if err != nil {
		return inputs{}, err
	}
	lib, err := cfg.Library()
	if err != nil {
		return inputs{}, fmt.Errorf("resource library: %w", err)
	}
	env, err := cfg.Environment(settings.GetString("body"), settings.GetFloat64("mach"))
	if err != nil {
		return inputs{}, err
	}
	run, err := runConfigFromSettings()
	if err != nil {
		return inputs{}, err
	}
	return inputs{lib: lib, env: env, run: run}, nil
}

func runConfigFromSettings() (sim.RunConfig, error) {
	level := settings.GetString("trace")
	if !trace.IsValidTraceLevel(level) {
		return sim.RunConfig{}, fmt.Errorf("unknown trace level %q; valid: none, stages, steps", level)
	}
	cfg := sim.DefaultRunConfig()
	cfg.MaxIterations = settings.GetInt("max-iterations")
	cfg.Trace = trace.TraceConfig{Level: trace.TraceLevel(level)}
	if err := cfg.Validate(); err != nil {
		return sim.RunConfig{}, err
	}
	return cfg, nil
}

func loadVessel(path string) (*sim.Vessel, error) {
	if path == "" {
		return nil, fmt.Errorf("no vessel file given (--vessel)")
	}
	f, err := vessel.Load(path)
	if err != nil {
		return nil, err
	}
	v, err := f.ToVessel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file supplying flag values (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().String("defaults", "defaults.yaml", "Path to the bodies and resources file")

	// Simulation inputs shared by run and watch
	for _, c := range []*cobra.Command{runCmd, watchCmd} {
		c.Flags().String("vessel", "", "Vessel description file (YAML)")
		c.Flags().String("body", "kerbin", "Body whose surface conditions feed the atmosphere column")
		c.Flags().Float64("mach", 0, "Mach number fed to velocity curves")
		c.Flags().Int("max-iterations", sim.DefaultMaxIterations, "Drain loop cap per stage")
		c.Flags().Bool("json", false, "Print results as JSON")
	}
	runCmd.Flags().String("trace", string(trace.TraceLevelNone), "Drain trace level (none, stages, steps)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(resourcesCmd)
}
