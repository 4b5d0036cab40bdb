// Package elo maintains player ratings: a pure per-match rating engine, an
// incremental updater that consumes terminal matches in temporal order with
// backfill recovery, and a full-rebuild path. Hot-path arithmetic is float64;
// ratings round to two decimals at the persistence boundary.
package elo

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/matchpoint-io/matchpoint/internal/tennis"
)

var (
	// ErrNoActiveParameterSet is returned when no parameter set is active.
	// This is a fatal configuration error: the process exits immediately.
	ErrNoActiveParameterSet = errors.New("no active elo parameter set")

	// ErrInvalidParams is returned when a parameter set fails validation.
	ErrInvalidParams = errors.New("invalid elo parameters")
)

// Params is one immutable Elo parameter tuple. K and S are indexed by the
// ten tour-level codes; the scalar knobs shape margin, decay, and the
// new/returning player boosts.
type Params struct {
	ID     int64  `yaml:"-" json:"-"`
	Name   string `yaml:"name" json:"-"`
	Active bool   `yaml:"active" json:"-"`

	K map[tennis.LevelCode]float64 `yaml:"k" json:"k"`
	S map[tennis.LevelCode]float64 `yaml:"s" json:"s"`

	MarginBase  float64 `yaml:"margin_base" json:"margin_base"`
	MarginScale float64 `yaml:"margin_scale" json:"margin_scale"`

	DecayRate      float64 `yaml:"decay_rate" json:"decay_rate"`
	DecayStartDays int     `yaml:"decay_start_days" json:"decay_start_days"`

	NewThreshold int     `yaml:"new_threshold" json:"new_threshold"`
	NewBoost     float64 `yaml:"new_boost" json:"new_boost"`

	ReturningDays  int     `yaml:"returning_days" json:"returning_days"`
	ReturningBoost float64 `yaml:"returning_boost" json:"returning_boost"`

	StartEloMen   float64 `yaml:"start_elo_men" json:"start_elo_men"`
	StartEloWomen float64 `yaml:"start_elo_women" json:"start_elo_women"`
}

// DefaultParams is the built-in parameter set used for first boot and tests.
// K scales with tournament tier; S is the conventional logistic scale.
func DefaultParams() *Params {
	return &Params{
		Name: "default",
		K: map[tennis.LevelCode]float64{
			tennis.CodeFutures:         72,
			tennis.CodeChallenger:      88,
			tennis.CodeTour:            108,
			tennis.CodeMasters:         116,
			tennis.CodeGrandSlam:       124,
			tennis.CodeWomenFutures:    72,
			tennis.CodeWomenChallenger: 88,
			tennis.CodeWomenTour:       108,
			tennis.CodeWomenMasters:    116,
			tennis.CodeWomenGrandSlam:  124,
		},
		S: map[tennis.LevelCode]float64{
			tennis.CodeFutures:         400,
			tennis.CodeChallenger:      400,
			tennis.CodeTour:            400,
			tennis.CodeMasters:         400,
			tennis.CodeGrandSlam:       400,
			tennis.CodeWomenFutures:    400,
			tennis.CodeWomenChallenger: 400,
			tennis.CodeWomenTour:       400,
			tennis.CodeWomenMasters:    400,
			tennis.CodeWomenGrandSlam:  400,
		},
		MarginBase:     0.8,
		MarginScale:    0.7,
		DecayRate:      0.4,
		DecayStartDays: 180,
		NewThreshold:   20,
		NewBoost:       1.5,
		ReturningDays:  365,
		ReturningBoost: 1.2,
		StartEloMen:    1500,
		StartEloWomen:  1500,
	}
}

// LoadParamsFile reads a parameter set from a YAML file.
func LoadParamsFile(path string) (*Params, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}

	params := &Params{}
	if err := yaml.Unmarshal(payload, params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	return params, nil
}

// Validate checks the parameter set is complete and sane.
func (p *Params) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidParams)
	}

	for _, code := range tennis.AllLevelCodes {
		if k, ok := p.K[code]; !ok || k <= 0 {
			return fmt.Errorf("%w: K[%s] must be positive", ErrInvalidParams, code)
		}

		if s, ok := p.S[code]; !ok || s <= 0 {
			return fmt.Errorf("%w: S[%s] must be positive", ErrInvalidParams, code)
		}
	}

	if p.StartEloMen <= 0 || p.StartEloWomen <= 0 {
		return fmt.Errorf("%w: start ratings must be positive", ErrInvalidParams)
	}

	if p.NewBoost <= 0 || p.ReturningBoost <= 0 {
		return fmt.Errorf("%w: boosts must be positive", ErrInvalidParams)
	}

	if p.DecayRate < 0 || p.DecayStartDays < 0 {
		return fmt.Errorf("%w: decay settings must be non-negative", ErrInvalidParams)
	}

	return nil
}

// Baseline returns the start rating for a level code's gender. It doubles as
// the target the decay pulls inactive players toward.
func (p *Params) Baseline(code tennis.LevelCode) float64 {
	if code.IsWomen() {
		return p.StartEloWomen
	}

	return p.StartEloMen
}
