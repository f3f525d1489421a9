package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadplan/internal/model"
)

func validRequest() Request {
	return Request{
		Items: []model.Item{{ID: "A", Length: 50, Width: 40, Height: 30, Weight: 10, Quantity: 1}},
		Truck: model.TruckSpec{Length: 600, Width: 240, Height: 260, MaxPayload: 19000},
	}
}

func TestOptimize_DefaultsToSimpleStrategy(t *testing.T) {
	res, err := Optimize(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, StrategySimple, res.Strategy)
	assert.Nil(t, res.Metrics)
}

func TestOptimize_RejectsStructurallyInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no items", func(r *Request) { r.Items = nil }},
		{"missing id", func(r *Request) { r.Items[0].ID = "" }},
		{"zero length", func(r *Request) { r.Items[0].Length = 0 }},
		{"negative width", func(r *Request) { r.Items[0].Width = -5 }},
		{"negative weight", func(r *Request) { r.Items[0].Weight = -1 }},
		{"zero quantity", func(r *Request) { r.Items[0].Quantity = 0 }},
		{"duplicate ids", func(r *Request) { r.Items = append(r.Items, r.Items[0]) }},
		{"zero truck height", func(r *Request) { r.Truck.Height = 0 }},
		{"zero payload", func(r *Request) { r.Truck.MaxPayload = 0 }},
		{"bad axle limits", func(r *Request) { r.Truck.AxleLimits = &model.AxleLimits{FrontMaxKg: 0, RearMaxKg: 100} }},
		{"unknown strategy", func(r *Request) { r.Strategy = "anneal" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := Optimize(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestOptimize_RejectsOutOfRangeTuning(t *testing.T) {
	one := 1
	big := 200
	negGens := 0
	rate := 1.5
	negRate := -0.1
	threshold := 0.0
	step := 0.0
	workers := 0

	cases := []struct {
		name   string
		tuning model.Tuning
	}{
		{"population below two", model.Tuning{PopulationSize: &one}},
		{"tournament above population", model.Tuning{TournamentSize: &big}},
		{"zero generations", model.Tuning{Generations: &negGens}},
		{"mutation above one", model.Tuning{MutationRate: &rate}},
		{"negative crossover", model.Tuning{CrossoverRate: &negRate}},
		{"zero support threshold", model.Tuning{SupportThreshold: &threshold}},
		{"zero grid step", model.Tuning{GridStep: &step}},
		{"zero workers", model.Tuning{Workers: &workers}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tuning := tc.tuning
			req.Tuning = &tuning
			_, err := Optimize(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestOptimize_TuningOverridesApply(t *testing.T) {
	threshold := 0.6
	step := 5.0
	tuning := &model.Tuning{SupportThreshold: &threshold, GridStep: &step}
	cfg, err := resolveConfig(tuning)
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.SupportThreshold)
	assert.Equal(t, 5.0, cfg.GridStep)
	assert.Equal(t, DefaultConfig().PopulationSize, cfg.PopulationSize)
}

func TestOptimize_PartialResultIsNotAnError(t *testing.T) {
	req := validRequest()
	req.Items = append(req.Items, model.Item{ID: "HUGE", Length: 900, Width: 900, Height: 900, Weight: 1, Quantity: 1})
	res, err := Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Arrangement.Placements, 1)
	assert.Len(t, res.Arrangement.Unplaced, 1)
	assert.Empty(t, res.Warnings)
}

func TestOptimize_GeneticReturnsMetrics(t *testing.T) {
	req := validRequest()
	req.Strategy = StrategyGenetic
	req.Seed = 21
	pop := 6
	gens := 4
	req.Tuning = &model.Tuning{PopulationSize: &pop, Generations: &gens}

	res, err := Optimize(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Metrics)
	assert.Equal(t, StrategyGenetic, res.Strategy)
	assert.GreaterOrEqual(t, res.Metrics.BestScore, res.Metrics.SeedScore)
	assert.Positive(t, res.Elapsed)
}
