package opt

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"loadplan/internal/model"
)

// gene selects one unit and one of its admissible orientations.
type gene struct {
	unit   int // index into the expanded units
	orient int // index into that unit's orientation set
}

// genome is a candidate loading order: a permutation of all units, each with
// an orientation choice.
type genome []gene

type individual struct {
	genes   genome
	fitness float64
	arr     model.Arrangement
	scored  bool
}

// Stop reasons recorded in Metrics.Stopped.
const (
	StopExhausted = "generations-exhausted"
	StopStagnated = "stagnated"
	StopBudget    = "budget-exhausted"
	StopCanceled  = "canceled"
)

// Metrics records how a genetic run progressed.
type Metrics struct {
	Generations  int             `json:"generations"`
	Evaluations  int             `json:"evaluations"`
	Improvements int             `json:"improvements"`
	SeedScore    float64         `json:"seedScore"`
	BestScore    float64         `json:"bestScore"`
	Stopped      string          `json:"stopped"`
	Snapshots    []ScoreSnapshot `json:"snapshots,omitempty"`
}

// ScoreSnapshot samples population quality at one generation.
type ScoreSnapshot struct {
	Generation int     `json:"generation"`
	Best       float64 `json:"best"`
	Mean       float64 `json:"mean"`
}

// Progress is a per-generation report delivered to the OnProgress callback.
type Progress struct {
	Generation  int     `json:"generation"`
	Generations int     `json:"generations"`
	BestScore   float64 `json:"bestScore"`
	MeanScore   float64 `json:"meanScore"`
	Placed      int     `json:"placed"`
	Unplaced    int     `json:"unplaced"`
	ElapsedMs   int64   `json:"elapsedMs"`
}

// geneticSearch evolves loading genomes with tournament selection, order
// crossover and swap/orientation mutation. Genomes are decoded by the same
// raster placer the greedy pass uses, so every genome maps to a feasible
// arrangement and the greedy result is a valid seed.
type geneticSearch struct {
	units       []unit
	truck       model.TruckSpec
	cfg         Config
	totalVolume float64
	rng         *rand.Rand
}

// run evolves the population until the generation cap, the stagnation
// window, the deadline, or ctx cancellation stops it, and returns the best
// arrangement seen across all generations. The deadline and ctx are only
// checked between generations. A zero deadline means no budget.
func (g *geneticSearch) run(ctx context.Context, seed genome, deadline time.Time, onProgress func(Progress)) (model.Arrangement, Metrics) {
	start := time.Now()
	pop := g.initPopulation(seed)
	g.scorePopulation(pop)

	best := clone(bestOf(pop))
	m := Metrics{BestScore: best.fitness, Stopped: StopExhausted, Evaluations: len(pop)}
	snapshotEvery := 10
	stall := 0
	for gen := 0; gen < g.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			m.Stopped = StopCanceled
			break
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			m.Stopped = StopBudget
			break
		}

		pop = g.nextGeneration(pop)
		g.scorePopulation(pop)
		m.Generations++
		m.Evaluations += len(pop)

		genBest := bestOf(pop)
		if genBest.fitness > best.fitness {
			best = clone(genBest)
			m.Improvements++
			m.BestScore = best.fitness
			stall = 0
		} else {
			stall++
		}

		mean := meanFitness(pop)
		if m.Generations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, ScoreSnapshot{Generation: m.Generations, Best: best.fitness, Mean: mean})
		}
		if onProgress != nil {
			onProgress(Progress{
				Generation:  m.Generations,
				Generations: g.cfg.Generations,
				BestScore:   best.fitness,
				MeanScore:   mean,
				Placed:      len(best.arr.Placements),
				Unplaced:    len(best.arr.Unplaced),
				ElapsedMs:   time.Since(start).Milliseconds(),
			})
		}
		if g.cfg.StagnationWindow > 0 && stall >= g.cfg.StagnationWindow {
			m.Stopped = StopStagnated
			break
		}
	}
	return best.arr, m
}

// initPopulation builds random permutations with random orientation genes.
// The first slot is replaced by the greedy seed so the search starts from
// the deterministic baseline.
func (g *geneticSearch) initPopulation(seed genome) []individual {
	n := len(g.units)
	pop := make([]individual, g.cfg.PopulationSize)
	for i := range pop {
		genes := make(genome, n)
		for j, ui := range g.rng.Perm(n) {
			genes[j] = gene{unit: ui, orient: g.rng.Intn(len(g.units[ui].orients))}
		}
		pop[i] = individual{genes: genes}
	}
	if len(pop) > 0 && len(seed) == n {
		pop[0] = individual{genes: append(genome(nil), seed...)}
	}
	return pop
}

// decode replays the raster placer over the genome order, holding each unit
// to its gene's orientation. Decoding is pure: it touches no shared state
// and no randomness.
func (g *geneticSearch) decode(gen genome) model.Arrangement {
	p := newPacking(g.truck, g.cfg)
	arr := model.Arrangement{Placements: []model.Placement{}, Unplaced: []model.UnplacedUnit{}}
	one := make([]orient, 1)
	for _, ge := range gen {
		u := g.units[ge.unit]
		one[0] = u.orients[ge.orient]
		pl, _, reason := placeUnit(p, u, one)
		if reason != "" {
			arr.Unplaced = append(arr.Unplaced, model.UnplacedUnit{UnitID: u.id, ItemID: u.itemID, Reason: reason})
			continue
		}
		arr.Placements = append(arr.Placements, pl)
	}
	finalizeArrangement(&arr, g.truck, g.totalVolume, g.cfg.ScoreWeights)
	return arr
}

// scorePopulation decodes and scores every unscored individual. Decoding is
// pure, so individuals are scored in parallel; the wait joins all workers
// before selection runs.
func (g *geneticSearch) scorePopulation(pop []individual) {
	workers := g.cfg.Workers
	if workers > len(pop) {
		workers = len(pop)
	}
	if workers <= 1 {
		for i := range pop {
			g.scoreOne(&pop[i])
		}
		return
	}
	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				g.scoreOne(&pop[i])
			}
		}()
	}
	for i := range pop {
		if !pop[i].scored {
			idx <- i
		}
	}
	close(idx)
	wg.Wait()
}

func (g *geneticSearch) scoreOne(ind *individual) {
	if ind.scored {
		return
	}
	ind.arr = g.decode(ind.genes)
	ind.fitness = ind.arr.Score
	ind.scored = true
}

// nextGeneration carries the single best individual over unchanged and fills
// the rest with tournament-selected, crossed, mutated offspring.
func (g *geneticSearch) nextGeneration(pop []individual) []individual {
	sort.Slice(pop, func(i, j int) bool { return pop[i].fitness > pop[j].fitness })
	next := make([]individual, 0, len(pop))
	next = append(next, clone(pop[0]))
	for len(next) < len(pop) {
		p1 := g.tournament(pop)
		p2 := g.tournament(pop)
		var child genome
		if g.rng.Float64() < g.cfg.CrossoverRate {
			child = g.orderCrossover(p1.genes, p2.genes)
		} else {
			child = append(genome(nil), p1.genes...)
		}
		g.mutate(child)
		next = append(next, individual{genes: child})
	}
	return next
}

// tournament picks the fittest of TournamentSize randomly drawn individuals.
func (g *geneticSearch) tournament(pop []individual) individual {
	best := pop[g.rng.Intn(len(pop))]
	for i := 1; i < g.cfg.TournamentSize; i++ {
		c := pop[g.rng.Intn(len(pop))]
		if c.fitness > best.fitness {
			best = c
		}
	}
	return best
}

// orderCrossover implements OX1 for permutation genomes: a random segment is
// copied from the first parent, the remaining units fill in following the
// second parent's order. Each gene keeps the orientation it carried in the
// parent it came from, and the child is always a valid permutation.
func (g *geneticSearch) orderCrossover(p1, p2 genome) genome {
	n := len(p1)
	if n <= 2 {
		return append(genome(nil), p1...)
	}
	a := g.rng.Intn(n)
	b := g.rng.Intn(n)
	if a > b {
		a, b = b, a
	}
	child := make(genome, n)
	inSegment := make(map[int]bool, b-a+1)
	for i := a; i <= b; i++ {
		child[i] = p1[i]
		inSegment[p1[i].unit] = true
	}
	k := (b + 1) % n
	for _, ge := range p2 {
		if !inSegment[ge.unit] {
			child[k] = ge
			k = (k + 1) % n
		}
	}
	return child
}

// mutate applies swap and orientation mutations in place. Every gene position
// mutates independently at the configured rate, so larger genomes see more
// mutation events.
func (g *geneticSearch) mutate(gen genome) {
	n := len(gen)
	if n < 2 {
		return
	}
	for i := 0; i < n; i++ {
		if g.rng.Float64() < g.cfg.MutationRate {
			j := g.rng.Intn(n)
			gen[i], gen[j] = gen[j], gen[i]
		}
	}
	for i := 0; i < n; i++ {
		if g.rng.Float64() >= g.cfg.MutationRate {
			continue
		}
		u := g.units[gen[i].unit]
		if len(u.orients) > 1 {
			gen[i].orient = g.rng.Intn(len(u.orients))
		}
	}
}

func clone(ind individual) individual {
	out := ind
	out.genes = append(genome(nil), ind.genes...)
	return out
}

func bestOf(pop []individual) individual {
	best := pop[0]
	for _, ind := range pop[1:] {
		if ind.fitness > best.fitness {
			best = ind
		}
	}
	return best
}

func meanFitness(pop []individual) float64 {
	if len(pop) == 0 {
		return 0
	}
	var sum float64
	for _, ind := range pop {
		sum += ind.fitness
	}
	return sum / float64(len(pop))
}
