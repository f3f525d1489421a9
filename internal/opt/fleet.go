package opt

import (
	"fmt"
	"sort"

	"loadplan/internal/model"
)

// maxFleetTrucks caps how many trucks a scenario may open.
const maxFleetTrucks = 100

// Scenario names returned by SuggestFleet.
const (
	ScenarioMinCount = "min-count"
	ScenarioBalanced = "balanced"
)

// fleetTruck is one open truck being filled during allocation.
type fleetTruck struct {
	spec    model.TruckSpec
	volume  float64
	weight  float64
	unitIDs []string
	units   []unit
}

func (f *fleetTruck) canTake(u unit) bool {
	return anyOrientFits(u.orients, f.spec) &&
		f.volume+u.volume <= f.spec.Volume()+geomEps &&
		f.weight+u.weight <= f.spec.MaxPayload+geomEps
}

func (f *fleetTruck) take(u unit) {
	f.volume += u.volume
	f.weight += u.weight
	f.unitIDs = append(f.unitIDs, u.id)
	f.units = append(f.units, u)
}

// util is the binding utilization of the truck: whichever of volume or
// payload is closer to full.
func (f *fleetTruck) util() float64 {
	vu := f.volume / f.spec.Volume()
	wu := f.weight / f.spec.MaxPayload
	if wu > vu {
		return wu
	}
	return vu
}

// SuggestFleet sizes a fleet for a load that may exceed a single truck. It
// builds two scenarios over the candidate truck types: min-count fills the
// biggest compatible trucks first, balanced keeps the same fleet and spreads
// the load evenly across it. Allocation is by aggregate volume and weight,
// not full 3D placement, so utilizations are estimates.
func SuggestFleet(items []model.Item, candidates []model.TruckSpec) (model.FleetSuggestion, error) {
	if err := validateItems(items); err != nil {
		return model.FleetSuggestion{}, err
	}
	if len(candidates) == 0 {
		return model.FleetSuggestion{}, fmt.Errorf("%w: no candidate trucks", ErrInvalidInput)
	}
	for i, t := range candidates {
		if t.Length <= 0 || t.Width <= 0 || t.Height <= 0 || t.MaxPayload <= 0 {
			return model.FleetSuggestion{}, fmt.Errorf("%w: candidates[%d]: dimensions and payload must be positive", ErrInvalidInput, i)
		}
	}

	units := expandUnits(items)
	out := model.FleetSuggestion{Analysis: analyzeLoad(items, units)}

	// Units no candidate type can take at all, by dimensions or unit weight.
	var allocatable []unit
	var impossible []string
	for _, u := range units {
		ok := false
		for _, t := range candidates {
			if anyOrientFits(u.orients, t) && u.weight <= t.MaxPayload+geomEps {
				ok = true
				break
			}
		}
		if ok {
			allocatable = append(allocatable, u)
		} else {
			impossible = append(impossible, u.id)
		}
	}

	minCount := allocateMinCount(allocatable, candidates)
	balanced := allocateBalanced(allocatable, minCount)
	for _, sc := range []*model.FleetScenario{&minCount, &balanced} {
		sc.Unallocated = append(sc.Unallocated, impossible...)
		sc.TruckCount = len(sc.Trucks)
	}
	out.Scenarios = []model.FleetScenario{minCount, balanced}
	return out, nil
}

// allocateMinCount packs units first-fit-decreasing into as few trucks as
// possible, opening the biggest candidate type that can take a unit when no
// open truck has room.
func allocateMinCount(units []unit, candidates []model.TruckSpec) model.FleetScenario {
	types := make([]model.TruckSpec, len(candidates))
	copy(types, candidates)
	sort.SliceStable(types, func(i, j int) bool {
		if types[i].Volume() != types[j].Volume() {
			return types[i].Volume() > types[j].Volume()
		}
		return types[i].MaxPayload > types[j].MaxPayload
	})

	ordered := make([]unit, len(units))
	copy(ordered, units)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].volume > ordered[j].volume })

	sc := model.FleetScenario{Name: ScenarioMinCount}
	var open []*fleetTruck
	for _, u := range ordered {
		placed := false
		for _, f := range open {
			if f.canTake(u) {
				f.take(u)
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		if len(open) >= maxFleetTrucks {
			sc.Unallocated = append(sc.Unallocated, u.id)
			continue
		}
		opened := false
		for _, t := range types {
			f := &fleetTruck{spec: t}
			if f.canTake(u) {
				f.take(u)
				open = append(open, f)
				opened = true
				break
			}
		}
		if !opened {
			sc.Unallocated = append(sc.Unallocated, u.id)
		}
	}
	sc.Trucks = allocations(open)
	return sc
}

// allocateBalanced reuses the min-count fleet composition but redistributes
// units onto the least-loaded truck first, then evens the fleet out with
// pairwise unit swaps until the utilization spread stops shrinking.
func allocateBalanced(units []unit, minCount model.FleetScenario) model.FleetScenario {
	sc := model.FleetScenario{Name: ScenarioBalanced}
	if len(minCount.Trucks) == 0 {
		for _, u := range units {
			sc.Unallocated = append(sc.Unallocated, u.id)
		}
		return sc
	}
	open := make([]*fleetTruck, len(minCount.Trucks))
	for i, a := range minCount.Trucks {
		open[i] = &fleetTruck{spec: a.Truck}
	}

	ordered := make([]unit, len(units))
	copy(ordered, units)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].weight > ordered[j].weight })
	for _, u := range ordered {
		var best *fleetTruck
		for _, f := range open {
			if !f.canTake(u) {
				continue
			}
			if best == nil || f.util() < best.util() {
				best = f
			}
		}
		if best == nil {
			sc.Unallocated = append(sc.Unallocated, u.id)
			continue
		}
		best.take(u)
	}
	balanceSwaps(open)
	sc.Trucks = allocations(open)
	return sc
}

// balanceSwaps runs pairwise unit exchanges between trucks, keeping any swap
// that narrows that pair's utilization gap. Passes repeat until one completes
// with no improvement or the pass cap runs out (a swap improving one pair may
// widen another, so pass count is the termination bound, not the gap).
func balanceSwaps(open []*fleetTruck) {
	if len(open) < 2 {
		return
	}
	improved := true
	for pass := 0; improved && pass < 25; pass++ {
		improved = false
		for i := 0; i < len(open); i++ {
			for j := i + 1; j < len(open); j++ {
				if trySwap(open[i], open[j]) {
					improved = true
				}
			}
		}
	}
}

func trySwap(a, b *fleetTruck) bool {
	spread := func() float64 {
		hi, lo := a.util(), a.util()
		if u := b.util(); u > hi {
			hi = u
		} else if u < lo {
			lo = u
		}
		return hi - lo
	}
	before := spread()
	for ai := range a.units {
		for bi := range b.units {
			ua, ub := a.units[ai], b.units[bi]
			if !swapFits(a, ua, ub) || !swapFits(b, ub, ua) {
				continue
			}
			a.swapUnit(ai, ub)
			b.swapUnit(bi, ua)
			if spread() < before-1e-9 {
				return true
			}
			a.swapUnit(ai, ua)
			b.swapUnit(bi, ub)
		}
	}
	return false
}

// swapFits reports whether f stays within capacity after replacing out with in.
func swapFits(f *fleetTruck, out, in unit) bool {
	return anyOrientFits(in.orients, f.spec) &&
		f.volume-out.volume+in.volume <= f.spec.Volume()+geomEps &&
		f.weight-out.weight+in.weight <= f.spec.MaxPayload+geomEps
}

func (f *fleetTruck) swapUnit(i int, in unit) {
	out := f.units[i]
	f.volume += in.volume - out.volume
	f.weight += in.weight - out.weight
	f.units[i] = in
	f.unitIDs[i] = in.id
}

func allocations(open []*fleetTruck) []model.TruckAllocation {
	out := make([]model.TruckAllocation, 0, len(open))
	for _, f := range open {
		out = append(out, model.TruckAllocation{
			Truck:             f.spec,
			UnitIDs:           f.unitIDs,
			VolumeUtilization: f.volume / f.spec.Volume(),
			WeightUtilization: f.weight / f.spec.MaxPayload,
		})
	}
	return out
}

func analyzeLoad(items []model.Item, units []unit) model.FleetAnalysis {
	a := model.FleetAnalysis{ItemCount: len(items), TotalUnits: len(units)}
	for _, it := range items {
		if it.Length > a.MaxLength {
			a.MaxLength = it.Length
		}
		if it.Width > a.MaxWidth {
			a.MaxWidth = it.Width
		}
		if it.Height > a.MaxHeight {
			a.MaxHeight = it.Height
		}
	}
	for _, u := range units {
		a.TotalVolume += u.volume
		a.TotalWeight += u.weight
		if u.weight > a.MaxUnitWeight {
			a.MaxUnitWeight = u.weight
		}
	}
	return a
}
