package cmd

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/stagesim/stagesim/sim"
)

// Body describes the surface conditions of a celestial body in defaults.yaml.
type Body struct {
	Gravity  float64 `yaml:"gravity"`  // m/s²
	Pressure float64 `yaml:"pressure"` // atm
	Density  float64 `yaml:"density"`  // kg/m³
}

// Config represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Version   string                   `yaml:"version"`
	Bodies    map[string]Body          `yaml:"bodies"`
	Resources []sim.ResourceDefinition `yaml:"resources"`
}

// loadDefaultsConfig parses defaults.yaml with strict field checking.
func loadDefaultsConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading defaults file: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing defaults YAML %s: %w", path, err)
	}
	for _, r := range cfg.Resources {
		if !sim.ValidFlowModes[r.Flow] {
			logrus.Warnf("[defaults] resource %s has unknown flow mode %q; it will never have sources", r.Name, r.Flow)
		}
	}
	return cfg, nil
}

// Library builds the resource library. An empty resources section falls back
// to the stock set.
func (c Config) Library() (*sim.ResourceLibrary, error) {
	if len(c.Resources) == 0 {
		return sim.DefaultResourceLibrary(), nil
	}
	return sim.NewResourceLibrary(c.Resources)
}

// Environment returns the surface environment of a body at the given mach.
func (c Config) Environment(body string, mach float64) (sim.Environment, error) {
	b, ok := c.Bodies[body]
	if !ok {
		return sim.Environment{}, fmt.Errorf("unknown body %q; known: %v", body, c.BodyNames())
	}
	env := sim.Environment{
		Gravity:     b.Gravity,
		PressureAtm: b.Pressure,
		DensityKgM3: b.Density,
		Mach:        mach,
	}
	if err := env.Validate(); err != nil {
		return sim.Environment{}, fmt.Errorf("body %s: %w", body, err)
	}
	return env, nil
}

// BodyNames returns the configured bodies in sorted order.
func (c Config) BodyNames() []string {
	names := make([]string, 0, len(c.Bodies))
	for n := range c.Bodies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
