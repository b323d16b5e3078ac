package main

import (
	"fmt"
	"os"

	"github.com/packetflow/router/element"
	"github.com/packetflow/router/internal/testelements"
	"github.com/packetflow/router/router"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML router description routerd loads: a structured,
// non-Click-syntax stand-in for the Click configuration language, which
// remains out of scope (spec.md §1 Non-goals).
type fileConfig struct {
	Threads  int                    `yaml:"threads"`
	Control  controlConfig          `yaml:"control"`
	Metrics  metricsConfig          `yaml:"metrics"`
	Elements []elementConfig        `yaml:"elements"`
	Links    []linkConfig           `yaml:"connections"`
}

type controlConfig struct {
	Network string `yaml:"network"` // "tcp" or "unix"
	Address string `yaml:"address"`
}

type metricsConfig struct {
	Address string `yaml:"address"`
}

type elementConfig struct {
	Name  string   `yaml:"name"`
	Class string   `yaml:"class"`
	Args  []string `yaml:"args"`
}

// linkConfig names a connection by element name and port rather than
// index, since a hand-edited YAML file is easier to review that way; it
// is resolved to a router.Connection (index-addressed) at load time.
type linkConfig struct {
	From     string `yaml:"from"`
	FromPort int    `yaml:"from_port"`
	To       string `yaml:"to"`
	ToPort   int    `yaml:"to_port"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routerd: reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("routerd: parsing %s: %w", path, err)
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	if cfg.Control.Network == "" {
		cfg.Control.Network = "tcp"
	}
	return &cfg, nil
}

// builtinRegistry returns the Registry of element classes routerd knows
// how to construct. Every class here is one of internal/testelements'
// element types; a deployment wanting additional classes registers them
// the same way before calling router.Build.
func builtinRegistry() *router.Registry {
	reg := router.NewRegistry()
	reg.Register("Source", func() element.Element { return &testelements.Source{} })
	reg.Register("Discard", func() element.Element { return &testelements.Discard{} })
	reg.Register("Counter", func() element.Element { return &testelements.Counter{} })
	reg.Register("Queue", func() element.Element { return &testelements.Queue{} })
	reg.Register("Shaper", func() element.Element { return &testelements.Shaper{} })
	reg.Register("Sink", func() element.Element { return &testelements.Sink{} })
	return reg
}

// buildRouter resolves cfg's named elements/connections into a
// router.Router via router.Build.
func buildRouter(cfg *fileConfig, reg *router.Registry) (*router.Router, error) {
	specs := make([]router.ElementSpec, len(cfg.Elements))
	index := make(map[string]int, len(cfg.Elements))
	for i, e := range cfg.Elements {
		if _, dup := index[e.Name]; dup {
			return nil, fmt.Errorf("routerd: duplicate element name %q", e.Name)
		}
		index[e.Name] = i
		specs[i] = router.ElementSpec{Class: e.Class, Name: e.Name, Args: e.Args}
	}

	conns := make([]router.Connection, len(cfg.Links))
	for i, l := range cfg.Links {
		from, ok := index[l.From]
		if !ok {
			return nil, fmt.Errorf("routerd: connection %d: no element named %q", i, l.From)
		}
		to, ok := index[l.To]
		if !ok {
			return nil, fmt.Errorf("routerd: connection %d: no element named %q", i, l.To)
		}
		conns[i] = router.Connection{FromElement: from, FromPort: l.FromPort, ToElement: to, ToPort: l.ToPort}
	}

	return router.Build(reg, specs, conns, nil)
}
