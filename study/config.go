// Package study runs parameter studies: it evaluates an objective over a
// sampling design, drives a Bayesian optimisation loop with gp.Optimiser
// and persists every evaluation to a Store so that studies can be resumed.
package study

import (
	"fmt"
	"time"

	"github.com/neutronics-workshop/gptools/core/model"
	"github.com/neutronics-workshop/gptools/gp"
	"github.com/neutronics-workshop/gptools/kernel"
	"github.com/neutronics-workshop/gptools/optimize"
	"github.com/neutronics-workshop/gptools/pkg/errors"
	"github.com/neutronics-workshop/gptools/sampling"
)

// Dimension is one named, bounded input of the objective.
type Dimension struct {
	Name  string  `json:"name"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ObjectiveConfig selects either a builtin analytic objective or an
// external command. Exactly one of Builtin and Command must be set.
type ObjectiveConfig struct {
	Builtin string   `json:"builtin,omitempty"`
	Command []string `json:"command,omitempty"`
	Dir     string   `json:"dir,omitempty"`
	Timeout string   `json:"timeout,omitempty"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Kind string `json:"kind,omitempty"`
	Path string `json:"path,omitempty"`
}

// Config describes a parameter study.
type Config struct {
	Name          string          `json:"name"`
	Dimensions    []Dimension     `json:"dimensions"`
	Objective     ObjectiveConfig `json:"objective"`
	Design        string          `json:"design,omitempty"`
	InitialPoints int             `json:"initial_points,omitempty"`
	Iterations    int             `json:"iterations,omitempty"`
	Acquisition   string          `json:"acquisition,omitempty"`
	Kernel        string          `json:"kernel,omitempty"`
	Store         StoreConfig     `json:"store"`
	Seed          *uint64         `json:"seed,omitempty"`
}

// Defaults applied by LoadConfig for unset fields.
const (
	DefaultDesign        = sampling.KindHalton
	DefaultInitialPoints = 8
	DefaultIterations    = 10
)

// LoadConfig reads a JSON study configuration, fills in defaults and
// validates it.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := model.LoadJSON(&cfg, path); err != nil {
		return Config{}, errors.Wrapf(err, "load study config %s", path)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "study"
	}
	if c.Design == "" {
		c.Design = DefaultDesign
	}
	if c.InitialPoints == 0 {
		c.InitialPoints = DefaultInitialPoints
	}
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.Store.Kind == "" {
		c.Store.Kind = StoreMemory
	}
}

// Validate checks the configuration and returns the first problem found.
func (c Config) Validate() error {
	if err := c.validateSearch(); err != nil {
		return err
	}

	hasBuiltin, hasCommand := c.Objective.Builtin != "", len(c.Objective.Command) > 0
	if hasBuiltin == hasCommand {
		return errors.NewValidationError("objective", "exactly one of builtin and command must be set", c.Objective)
	}
	if hasBuiltin && !IsBuiltin(c.Objective.Builtin) {
		return errors.NewValidationError("objective.builtin", "unknown builtin objective", c.Objective.Builtin)
	}
	if c.Objective.Timeout != "" {
		if d, err := time.ParseDuration(c.Objective.Timeout); err != nil || d <= 0 {
			return errors.NewValidationError("objective.timeout", "must be a positive duration", c.Objective.Timeout)
		}
	}

	switch c.Store.Kind {
	case "", StoreMemory:
	case StoreDir, StoreSQLite:
		if c.Store.Path == "" {
			return errors.NewValidationError("store.path", "path is required for this store", c.Store.Kind)
		}
	default:
		return errors.NewValidationError("store.kind", "unsupported store backend", c.Store.Kind)
	}
	return nil
}

// validateSearch checks everything the runner needs independently of how
// the objective and the store are supplied.
func (c Config) validateSearch() error {
	if len(c.Dimensions) == 0 {
		return errors.NewValidationError("dimensions", "at least one dimension is required", 0)
	}
	seen := make(map[string]bool, len(c.Dimensions))
	for i, d := range c.Dimensions {
		if d.Name == "" {
			return errors.NewValidationError(fmt.Sprintf("dimensions[%d].name", i), "name is required", d.Name)
		}
		if seen[d.Name] {
			return errors.NewValidationError(fmt.Sprintf("dimensions[%d].name", i), "duplicate dimension name", d.Name)
		}
		seen[d.Name] = true
	}
	if err := optimize.ValidateBounds("Config.Validate", c.Bounds()); err != nil {
		return err
	}

	switch c.Design {
	case "", sampling.KindCorners, sampling.KindUniform, sampling.KindGrid, sampling.KindHalton:
	default:
		return errors.NewValidationError("design", "unknown design kind", c.Design)
	}
	if c.InitialPoints < 0 {
		return errors.NewValidationError("initial_points", "must be non-negative", c.InitialPoints)
	}
	if c.Iterations < 0 {
		return errors.NewValidationError("iterations", "must be non-negative", c.Iterations)
	}
	if _, err := gp.ParseAcquisition(c.Acquisition); err != nil {
		return err
	}
	if _, err := kernel.ByName(c.Kernel); err != nil {
		return err
	}
	return nil
}

// Bounds returns the search box in dimension order.
func (c Config) Bounds() []optimize.Bound {
	out := make([]optimize.Bound, len(c.Dimensions))
	for i, d := range c.Dimensions {
		out[i] = optimize.Bound{Lower: d.Lower, Upper: d.Upper}
	}
	return out
}

// Names returns the dimension names in order.
func (c Config) Names() []string {
	out := make([]string, len(c.Dimensions))
	for i, d := range c.Dimensions {
		out[i] = d.Name
	}
	return out
}

// ObjectiveTimeout returns the per-evaluation timeout, zero when unset.
func (c Config) ObjectiveTimeout() time.Duration {
	d, err := time.ParseDuration(c.Objective.Timeout)
	if err != nil {
		return 0
	}
	return d
}
