// Package scenario reads simulation inputs from YAML files.
//
//	target_damage: 7000000
//	trials: 100000
//	seed: 42          # optional
//	patterns:
//	  - {normal_min: 1000, normal_max: 2000, crit_min: 2000, crit_max: 4000, crit_rate: 50, hits: 1}
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pefman/critsim/internal/models"
)

// DefaultTrials applies when a file leaves trials out.
const DefaultTrials = 100_000

type Scenario struct {
	TargetDamage float64                `yaml:"target_damage"`
	Trials       int                    `yaml:"trials"`
	Seed         *int64                 `yaml:"seed,omitempty"`
	BatchSize    int                    `yaml:"batch_size,omitempty"`
	Patterns     []models.AttackPattern `yaml:"patterns"`
}

// Load reads and parses the file at path.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario, rejecting unknown keys, and checks every pattern.
// An empty pattern list is not a parse error; Request().Validate reports it.
func Parse(data []byte) (Scenario, error) {
	sc := Scenario{Trials: DefaultTrials}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return Scenario{}, err
	}
	for i, p := range sc.Patterns {
		if err := p.Validate(); err != nil {
			return Scenario{}, fmt.Errorf("pattern %d: %w", i+1, err)
		}
	}
	return sc, nil
}

// Request is the scenario as an estimator input.
func (s Scenario) Request() models.SimulationRequest {
	return models.SimulationRequest{
		Patterns:     s.Patterns,
		TargetDamage: s.TargetDamage,
		Trials:       s.Trials,
	}
}
