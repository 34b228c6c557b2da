// Package config loads process settings from the environment and training
// targets from an optional YAML profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds process settings read from FACECASCADE_* variables.
type Config struct {
	DatabasePath string `envconfig:"FACECASCADE_DB" default:"facecascade.db"`
	Width        int    `envconfig:"FACECASCADE_WIDTH" default:"19"`
	Height       int    `envconfig:"FACECASCADE_HEIGHT" default:"19"`
	Workers      int    `envconfig:"FACECASCADE_WORKERS" default:"0"`
	Loader       string `envconfig:"FACECASCADE_LOADER" default:"imaging"`
	ServerAddr   string `envconfig:"FACECASCADE_ADDR" default:":8080"`
	ProfilePath  string `envconfig:"FACECASCADE_PROFILE"`
	StaticDir    string `envconfig:"FACECASCADE_STATIC_DIR"`
}

// Load reads Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid frame %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Loader != "imaging" && cfg.Loader != "gocv" {
		return nil, fmt.Errorf("unknown loader %q", cfg.Loader)
	}
	return &cfg, nil
}

// Training holds the targets and search constants of a training run.
type Training struct {
	InitialPositiveWeight    float64 `yaml:"initial_positive_weight" json:"initial_positive_weight"`
	OverallDetectionRate     float64 `yaml:"overall_detection_rate" json:"overall_detection_rate"`
	OverallFalsePositiveRate float64 `yaml:"overall_false_positive_rate" json:"overall_false_positive_rate"`
	RoundFalsePositiveRate   float64 `yaml:"round_false_positive_rate" json:"round_false_positive_rate"`
	Goal                     float64 `yaml:"goal" json:"goal"`
	RoundMargin              int     `yaml:"round_margin" json:"round_margin"`
	CommitteeBase            int     `yaml:"committee_base" json:"committee_base"`
	CommitteeStep            int     `yaml:"committee_step" json:"committee_step"`
	CommitteeMax             int     `yaml:"committee_max" json:"committee_max"`
	TweakStep                float64 `yaml:"tweak_step" json:"tweak_step"`
	TweakFloor               float64 `yaml:"tweak_floor" json:"tweak_floor"`
	TweakBound               float64 `yaml:"tweak_bound" json:"tweak_bound"`
	FinalDetectionRate       float64 `yaml:"final_detection_rate" json:"final_detection_rate"`
	FlatThreshold            float64 `yaml:"flat_threshold" json:"flat_threshold"`
}

// DefaultTraining returns the reference training targets.
func DefaultTraining() Training {
	return Training{
		InitialPositiveWeight:    0.5,
		OverallDetectionRate:     0.80,
		OverallFalsePositiveRate: 1e-6,
		RoundFalsePositiveRate:   0.5,
		Goal:                     1e-7,
		RoundMargin:              20,
		CommitteeBase:            20,
		CommitteeStep:            10,
		CommitteeMax:             200,
		TweakStep:                1e-2,
		TweakFloor:               1e-5,
		TweakBound:               1.1,
		FinalDetectionRate:       0.99,
		FlatThreshold:            1,
	}
}

// Validate checks the ranges the trainer relies on.
func (t Training) Validate() error {
	switch {
	case t.InitialPositiveWeight <= 0 || t.InitialPositiveWeight >= 1:
		return errors.New("initial_positive_weight must be in (0, 1)")
	case t.OverallDetectionRate <= 0 || t.OverallDetectionRate > 1:
		return errors.New("overall_detection_rate must be in (0, 1]")
	case t.OverallFalsePositiveRate <= 0 || t.OverallFalsePositiveRate >= 1:
		return errors.New("overall_false_positive_rate must be in (0, 1)")
	case t.RoundFalsePositiveRate <= 0 || t.RoundFalsePositiveRate >= 1:
		return errors.New("round_false_positive_rate must be in (0, 1)")
	case t.CommitteeBase <= 0 || t.CommitteeMax < t.CommitteeBase || t.CommitteeStep < 0:
		return errors.New("committee size guide must satisfy 0 < base <= max and step >= 0")
	case t.TweakStep <= 0 || t.TweakFloor <= 0 || t.TweakFloor > t.TweakStep:
		return errors.New("tweak step and floor must satisfy 0 < floor <= step")
	case t.TweakBound <= 1:
		return errors.New("tweak_bound must exceed 1")
	case t.RoundMargin < 0:
		return errors.New("round_margin must not be negative")
	}
	return nil
}

// LoadTraining returns the defaults overridden by the YAML profile at path.
// An empty path yields the defaults.
func LoadTraining(path string) (Training, error) {
	t := DefaultTraining()
	if path == "" {
		return t, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return Training{}, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(buf, &t); err != nil {
		return Training{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Training{}, fmt.Errorf("profile %s: %w", path, err)
	}

	return t, nil
}
