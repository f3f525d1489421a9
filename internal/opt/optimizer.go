package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"loadplan/internal/model"
)

// Strategies accepted by Optimize. An empty strategy means simple.
const (
	StrategySimple  = "simple"
	StrategyGenetic = "genetic"
)

var (
	// ErrInvalidInput marks structurally invalid items, trucks or strategies.
	// Units the truck cannot take are not input errors; they come back in
	// Arrangement.Unplaced.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfig marks out-of-range tuning overrides.
	ErrInvalidConfig = errors.New("invalid config")
)

// WarnBudgetExhausted is appended to Result.Warnings when the wall-clock
// budget stopped the search before the generation cap.
const WarnBudgetExhausted = "search terminated early"

const defaultSeed = 42

// Request carries one optimization run.
type Request struct {
	Items      []model.Item
	Truck      model.TruckSpec
	Strategy   string
	Seed       int64 // 0 means defaultSeed
	TimeBudget time.Duration
	Tuning     *model.Tuning
	OnProgress func(Progress)
}

// Result is the outcome of a run. Metrics is set for the genetic strategy
// only.
type Result struct {
	Truck       model.TruckSpec   `json:"truck"`
	Strategy    string            `json:"strategy"`
	Arrangement model.Arrangement `json:"arrangement"`
	Warnings    []string          `json:"warnings,omitempty"`
	Metrics     *Metrics          `json:"metrics,omitempty"`
	Elapsed     time.Duration     `json:"-"`
}

// Optimize validates the request and runs the selected strategy. The simple
// strategy is the deterministic greedy pass; genetic seeds a genome search
// with the greedy result and never returns a worse arrangement than it.
// Cancellation of ctx aborts a genetic run between generations and returns
// the context error.
func Optimize(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}
	cfg, err := resolveConfig(req.Tuning)
	if err != nil {
		return Result{}, err
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategySimple
	}

	units := expandUnits(req.Items)
	res := Result{Truck: req.Truck, Strategy: strategy}
	switch strategy {
	case StrategySimple:
		arr, _ := greedyArrange(units, req.Truck, cfg)
		res.Arrangement = arr
	case StrategyGenetic:
		greedyArr, seed := greedyArrange(units, req.Truck, cfg)
		rngSeed := req.Seed
		if rngSeed == 0 {
			rngSeed = defaultSeed
		}
		budget := req.TimeBudget
		if budget <= 0 {
			budget = cfg.TimeBudget
		}
		gs := &geneticSearch{
			units:       units,
			truck:       req.Truck,
			cfg:         cfg,
			totalVolume: totalUnitVolume(units),
			rng:         rand.New(rand.NewSource(rngSeed)),
		}
		arr, m := gs.run(ctx, seed, start.Add(budget), req.OnProgress)
		m.SeedScore = greedyArr.Score
		if m.Stopped == StopCanceled {
			return Result{}, ctx.Err()
		}
		res.Arrangement = arr
		res.Metrics = &m
		if m.Stopped == StopBudget {
			res.Warnings = append(res.Warnings, WarnBudgetExhausted)
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func validateRequest(req Request) error {
	if err := validateItems(req.Items); err != nil {
		return err
	}
	t := req.Truck
	if t.Length <= 0 || t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: truck dimensions must be positive", ErrInvalidInput)
	}
	if t.MaxPayload <= 0 {
		return fmt.Errorf("%w: truck maxPayload must be positive", ErrInvalidInput)
	}
	if t.AxleLimits != nil && (t.AxleLimits.FrontMaxKg <= 0 || t.AxleLimits.RearMaxKg <= 0) {
		return fmt.Errorf("%w: axle limits must be positive", ErrInvalidInput)
	}
	switch req.Strategy {
	case "", StrategySimple, StrategyGenetic:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, req.Strategy)
	}
	return nil
}

func validateItems(items []model.Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: items[%d]: missing id", ErrInvalidInput, i)
		}
		if seen[it.ID] {
			return fmt.Errorf("%w: items[%d]: duplicate id %q", ErrInvalidInput, i, it.ID)
		}
		seen[it.ID] = true
		if it.Length <= 0 || it.Width <= 0 || it.Height <= 0 {
			return fmt.Errorf("%w: items[%d]: dimensions must be positive", ErrInvalidInput, i)
		}
		if it.Weight < 0 {
			return fmt.Errorf("%w: items[%d]: weight must not be negative", ErrInvalidInput, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: items[%d]: quantity must be at least 1", ErrInvalidInput, i)
		}
	}
	return nil
}
