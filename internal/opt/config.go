package opt

import (
	"fmt"
	"runtime"
	"time"

	"loadplan/internal/model"
)

// Config holds engine tuning. Start from DefaultConfig; the zero value fails
// Validate.
type Config struct {
	PopulationSize   int
	Generations      int
	MutationRate     float64
	CrossoverRate    float64
	TournamentSize   int
	StagnationWindow int // consecutive non-improving generations before stopping; 0 disables
	SupportThreshold float64
	GridStep         float64
	Workers          int
	TimeBudget       time.Duration
	ScoreWeights     model.ScoreWeights
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		PopulationSize:   50,
		Generations:      100,
		MutationRate:     0.15,
		CrossoverRate:    0.8,
		TournamentSize:   3,
		StagnationWindow: 20,
		SupportThreshold: 1.0,
		GridStep:         10,
		Workers:          runtime.NumCPU(),
		TimeBudget:       5 * time.Minute,
		ScoreWeights:     model.ScoreWeights{Volume: 0.5, Weight: 0.2, Unplaced: 1.0},
	}
}

// Validate checks tuning ranges. Violations wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("%w: populationSize must be at least 2, got %d", ErrInvalidConfig, c.PopulationSize)
	}
	if c.Generations < 1 {
		return fmt.Errorf("%w: generations must be at least 1, got %d", ErrInvalidConfig, c.Generations)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("%w: mutationRate must be within [0,1], got %g", ErrInvalidConfig, c.MutationRate)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("%w: crossoverRate must be within [0,1], got %g", ErrInvalidConfig, c.CrossoverRate)
	}
	if c.TournamentSize < 1 || c.TournamentSize > c.PopulationSize {
		return fmt.Errorf("%w: tournamentSize must be within [1,populationSize], got %d", ErrInvalidConfig, c.TournamentSize)
	}
	if c.StagnationWindow < 0 {
		return fmt.Errorf("%w: stagnationWindow must not be negative, got %d", ErrInvalidConfig, c.StagnationWindow)
	}
	if c.SupportThreshold <= 0 || c.SupportThreshold > 1 {
		return fmt.Errorf("%w: supportThreshold must be within (0,1], got %g", ErrInvalidConfig, c.SupportThreshold)
	}
	if c.GridStep <= 0 {
		return fmt.Errorf("%w: gridStep must be positive, got %g", ErrInvalidConfig, c.GridStep)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.ScoreWeights.Volume < 0 || c.ScoreWeights.Weight < 0 || c.ScoreWeights.Unplaced < 0 {
		return fmt.Errorf("%w: score weights must not be negative", ErrInvalidConfig)
	}
	return nil
}

// resolveConfig overlays request tuning onto the defaults and validates the
// result.
func resolveConfig(t *model.Tuning) (Config, error) {
	cfg := DefaultConfig()
	if t != nil {
		if t.PopulationSize != nil {
			cfg.PopulationSize = *t.PopulationSize
		}
		if t.Generations != nil {
			cfg.Generations = *t.Generations
		}
		if t.MutationRate != nil {
			cfg.MutationRate = *t.MutationRate
		}
		if t.CrossoverRate != nil {
			cfg.CrossoverRate = *t.CrossoverRate
		}
		if t.TournamentSize != nil {
			cfg.TournamentSize = *t.TournamentSize
		}
		if t.StagnationWindow != nil {
			cfg.StagnationWindow = *t.StagnationWindow
		}
		if t.SupportThreshold != nil {
			cfg.SupportThreshold = *t.SupportThreshold
		}
		if t.GridStep != nil {
			cfg.GridStep = *t.GridStep
		}
		if t.Workers != nil {
			cfg.Workers = *t.Workers
		}
		if t.ScoreWeights != nil {
			cfg.ScoreWeights = *t.ScoreWeights
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
