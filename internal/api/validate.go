package api

import (
	"fmt"

	"loadplan/internal/model"
	"loadplan/internal/opt"
)

// validateOptimizeRequest rejects requests that are structurally unusable
// before a plan record exists. Range checks on tuning overrides live in the
// engine so sync and async runs report them identically.
func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.Strategy != "" && req.Strategy != opt.StrategySimple && req.Strategy != opt.StrategyGenetic {
		return fmt.Errorf("invalid strategy: %s (allowed: simple, genetic)", req.Strategy)
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("items must not be empty")
	}
	if req.Truck != nil && req.TruckID != "" {
		return fmt.Errorf("truck and truckId are mutually exclusive")
	}
	return nil
}

// normalizeItems fills defaults the wire format allows to be omitted.
func normalizeItems(items []model.Item) {
	for i := range items {
		if items[i].Quantity == 0 {
			items[i].Quantity = 1
		}
	}
}
