package opt

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"loadplan/internal/model"
)

func makeTestItems() []model.Item {
	return []model.Item{
		{ID: "PAL", Length: 120, Width: 80, Height: 140, Weight: 350, Quantity: 4},
		{ID: "CRT", Length: 60, Width: 40, Height: 50, Weight: 18, Quantity: 8},
		{ID: "DRM", Length: 60, Width: 60, Height: 90, Weight: 120, Quantity: 3},
		{ID: "BAG", Length: 90, Width: 50, Height: 30, Weight: 25, Quantity: 5},
	}
}

func makeTestTruck() model.TruckSpec {
	return model.TruckSpec{ID: "truck_19t", Length: 600, Width: 240, Height: 260, MaxPayload: 19000}
}

func fastTuning() *model.Tuning {
	pop := 12
	gens := 15
	return &model.Tuning{PopulationSize: &pop, Generations: &gens}
}

func TestGeneticPlacesAllWhenCapacityAllows(t *testing.T) {
	req := Request{
		Items:    []model.Item{{ID: "CRT", Length: 60, Width: 40, Height: 50, Weight: 20, Quantity: 10}},
		Truck:    makeTestTruck(),
		Strategy: StrategyGenetic,
		Seed:     7,
		Tuning:   fastTuning(),
	}
	res, err := Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Arrangement.Placements) != 10 {
		t.Errorf("expected 10 placements, got %d", len(res.Arrangement.Placements))
	}
	if len(res.Arrangement.Unplaced) != 0 {
		t.Errorf("expected no unplaced units, got %d", len(res.Arrangement.Unplaced))
	}
}

func TestGeneticNeverWorseThanGreedy(t *testing.T) {
	items := makeTestItems()
	truck := makeTestTruck()

	greedy, err := Optimize(context.Background(), Request{Items: items, Truck: truck, Strategy: StrategySimple})
	if err != nil {
		t.Fatalf("greedy: %v", err)
	}
	genetic, err := Optimize(context.Background(), Request{Items: items, Truck: truck, Strategy: StrategyGenetic, Seed: 99, Tuning: fastTuning()})
	if err != nil {
		t.Fatalf("genetic: %v", err)
	}

	if genetic.Arrangement.Score < greedy.Arrangement.Score {
		t.Errorf("genetic score %.4f is worse than greedy %.4f", genetic.Arrangement.Score, greedy.Arrangement.Score)
	}
	if len(genetic.Arrangement.Placements) < len(greedy.Arrangement.Placements) {
		t.Errorf("genetic placed %d units, greedy placed %d", len(genetic.Arrangement.Placements), len(greedy.Arrangement.Placements))
	}
	if genetic.Metrics == nil {
		t.Fatal("genetic result should carry metrics")
	}
	if genetic.Metrics.BestScore < genetic.Metrics.SeedScore {
		t.Errorf("best score %.4f fell below the seed score %.4f", genetic.Metrics.BestScore, genetic.Metrics.SeedScore)
	}
	pop := *fastTuning().PopulationSize
	if want := (genetic.Metrics.Generations + 1) * pop; genetic.Metrics.Evaluations != want {
		t.Errorf("evaluations %d, want %d after %d generations", genetic.Metrics.Evaluations, want, genetic.Metrics.Generations)
	}
}

func TestGeneticDeterministicForSeed(t *testing.T) {
	req := Request{Items: makeTestItems(), Truck: makeTestTruck(), Strategy: StrategyGenetic, Seed: 1234, Tuning: fastTuning()}

	first, err := Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first.Arrangement, second.Arrangement) {
		t.Error("same seed should reproduce the same arrangement")
	}
}

func TestGeneticSeedGenomeReproducesGreedy(t *testing.T) {
	units := expandUnits(makeTestItems())
	truck := makeTestTruck()
	cfg := DefaultConfig()

	greedyArr, seed := greedyArrange(units, truck, cfg)
	gs := &geneticSearch{units: units, truck: truck, cfg: cfg, totalVolume: totalUnitVolume(units), rng: rand.New(rand.NewSource(1))}
	decoded := gs.decode(seed)

	if !reflect.DeepEqual(greedyArr.Placements, decoded.Placements) {
		t.Error("decoding the seed genome should reproduce the greedy placements")
	}
	if decoded.Score != greedyArr.Score {
		t.Errorf("seed decode score %.6f differs from greedy %.6f", decoded.Score, greedyArr.Score)
	}
}

func TestOrderCrossoverPreservesAllUnits(t *testing.T) {
	units := expandUnits([]model.Item{{ID: "U", Length: 10, Width: 10, Height: 10, Weight: 1, Quantity: 6}})
	gs := &geneticSearch{units: units, truck: makeTestTruck(), cfg: DefaultConfig(), rng: rand.New(rand.NewSource(123))}

	p1 := make(genome, len(units))
	p2 := make(genome, len(units))
	for i := range units {
		p1[i] = gene{unit: i}
		p2[i] = gene{unit: len(units) - 1 - i}
	}

	child := gs.orderCrossover(p1, p2)
	if len(child) != len(units) {
		t.Fatalf("expected %d genes, got %d", len(units), len(child))
	}
	seen := make(map[int]bool)
	for _, g := range child {
		if seen[g.unit] {
			t.Errorf("duplicate unit %d in child", g.unit)
		}
		seen[g.unit] = true
	}
	for i := range units {
		if !seen[i] {
			t.Errorf("missing unit %d in child", i)
		}
	}
}

func TestMutatePreservesPermutation(t *testing.T) {
	units := expandUnits(makeTestItems())
	gs := &geneticSearch{units: units, truck: makeTestTruck(), cfg: DefaultConfig(), rng: rand.New(rand.NewSource(5))}

	g := make(genome, len(units))
	for i := range units {
		g[i] = gene{unit: i}
	}
	for round := 0; round < 50; round++ {
		gs.mutate(g)
	}

	seen := make(map[int]bool)
	for _, ge := range g {
		if seen[ge.unit] {
			t.Fatalf("duplicate unit %d after mutation", ge.unit)
		}
		seen[ge.unit] = true
		if ge.orient < 0 || ge.orient >= len(units[ge.unit].orients) {
			t.Fatalf("orientation gene %d out of range for unit %d", ge.orient, ge.unit)
		}
	}
	if len(seen) != len(units) {
		t.Fatalf("expected %d distinct units, got %d", len(units), len(seen))
	}
}

func TestGeneticStopsOnBudget(t *testing.T) {
	req := Request{
		Items:      []model.Item{{ID: "CRT", Length: 60, Width: 40, Height: 50, Weight: 20, Quantity: 2}},
		Truck:      makeTestTruck(),
		Strategy:   StrategyGenetic,
		Seed:       3,
		TimeBudget: time.Nanosecond,
		Tuning:     fastTuning(),
	}
	res, err := Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Metrics == nil || res.Metrics.Stopped != StopBudget {
		t.Fatalf("expected budget stop, got %+v", res.Metrics)
	}
	found := false
	for _, w := range res.Warnings {
		if w == WarnBudgetExhausted {
			found = true
		}
	}
	if !found {
		t.Errorf("expected warning %q, got %v", WarnBudgetExhausted, res.Warnings)
	}
	total := len(res.Arrangement.Placements) + len(res.Arrangement.Unplaced)
	if total != 2 {
		t.Errorf("every unit should be accounted for, got %d of 2", total)
	}
}

func TestGeneticCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Optimize(ctx, Request{Items: makeTestItems(), Truck: makeTestTruck(), Strategy: StrategyGenetic, Tuning: fastTuning()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGeneticProgressCallback(t *testing.T) {
	var reports []Progress
	req := Request{
		Items:    []model.Item{{ID: "CRT", Length: 60, Width: 40, Height: 50, Weight: 20, Quantity: 3}},
		Truck:    makeTestTruck(),
		Strategy: StrategyGenetic,
		Seed:     11,
		Tuning:   fastTuning(),
		OnProgress: func(p Progress) {
			reports = append(reports, p)
		},
	}
	res, err := Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) == 0 {
		t.Fatal("expected at least one progress report")
	}
	last := reports[len(reports)-1]
	if last.Generation != res.Metrics.Generations {
		t.Errorf("last report generation %d does not match metrics %d", last.Generation, res.Metrics.Generations)
	}
	if last.BestScore != res.Metrics.BestScore {
		t.Errorf("last report best %.4f does not match metrics %.4f", last.BestScore, res.Metrics.BestScore)
	}
}
