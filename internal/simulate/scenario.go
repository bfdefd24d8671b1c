// Package simulate drives a running roadwatch service with scripted actors
// over websockets and checks the alerts they receive.
package simulate

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/roadwatch/internal/domain/model"
)

// Scenario describes the actors to move and the alerts to expect.
type Scenario struct {
	Name string `yaml:"name"`
	// Tick is the wall-clock time between two steps.
	Tick time.Duration `yaml:"tick"`
	// Step is the simulated time each tick advances the actors by.
	Step time.Duration `yaml:"step"`
	// Steps is how many position reports every actor sends.
	Steps int `yaml:"steps"`
	// Settle is how long to keep listening after the last step.
	Settle time.Duration `yaml:"settle"`

	Actors []Actor       `yaml:"actors"`
	Expect []Expectation `yaml:"expect"`
}

// Actor moves in a straight line at constant speed.
type Actor struct {
	ID        string  `yaml:"id"`
	Role      string  `yaml:"role"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	// Bearing is degrees clockwise from north.
	Bearing float64 `yaml:"bearing"`
	// Speed is meters per second of simulated time.
	Speed float64 `yaml:"speed"`
}

// Expectation asks for at least one alert to Recipient about From.
type Expectation struct {
	Recipient string `yaml:"recipient"`
	From      string `yaml:"from"`
}

func (e Expectation) String() string { return e.From + " -> " + e.Recipient }

const (
	defaultTick   = 100 * time.Millisecond
	defaultStep   = time.Second
	defaultSettle = 500 * time.Millisecond
)

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseScenario(f)
}

// ParseScenario decodes and validates a YAML scenario. Unset timings get
// defaults.
func ParseScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Tick <= 0 {
		s.Tick = defaultTick
	}
	if s.Step <= 0 {
		s.Step = defaultStep
	}
	if s.Settle <= 0 {
		s.Settle = defaultSettle
	}
}

// Validate reports the first problem with the scenario.
func (s *Scenario) Validate() error {
	if s.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive", ErrInvalidScenario)
	}
	if len(s.Actors) == 0 {
		return fmt.Errorf("%w: no actors", ErrInvalidScenario)
	}
	ids := make(map[string]bool, len(s.Actors))
	for _, a := range s.Actors {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("%w: actor without id", ErrInvalidScenario)
		}
		if ids[a.ID] {
			return fmt.Errorf("%w: duplicate actor %q", ErrInvalidScenario, a.ID)
		}
		ids[a.ID] = true
		if _, err := model.ParseRole(a.Role); err != nil {
			return fmt.Errorf("%w: actor %q: %w", ErrInvalidScenario, a.ID, err)
		}
		if !(model.Position{Latitude: a.Latitude, Longitude: a.Longitude}).Valid() {
			return fmt.Errorf("%w: actor %q has invalid coordinates", ErrInvalidScenario, a.ID)
		}
		if a.Speed < 0 {
			return fmt.Errorf("%w: actor %q has negative speed", ErrInvalidScenario, a.ID)
		}
	}
	for _, e := range s.Expect {
		if !ids[e.Recipient] || !ids[e.From] {
			return fmt.Errorf("%w: expectation %s names an unknown actor", ErrInvalidScenario, e)
		}
	}
	return nil
}

// BuiltIn is a driver heading east and a cyclist heading west on Bloor St W,
// about 560m apart. They pass each other roughly 38 simulated seconds in.
func BuiltIn() *Scenario {
	s := &Scenario{
		Name:  "driver1 meets biker1",
		Steps: 60,
		Actors: []Actor{
			{ID: "driver1", Role: "A", Latitude: 43.6629, Longitude: -79.3990, Bearing: 90, Speed: 10},
			{ID: "biker1", Role: "B", Latitude: 43.6630, Longitude: -79.3920, Bearing: 270, Speed: 5},
		},
		Expect: []Expectation{
			{Recipient: "driver1", From: "biker1"},
			{Recipient: "biker1", From: "driver1"},
		},
	}
	s.applyDefaults()
	return s
}
