package opt

import (
	"fmt"
	"sort"

	"loadplan/internal/model"
)

// unit is one physical piece after quantity expansion. Units keep a stable
// index into the expanded slice so genomes can reference them.
type unit struct {
	index     int
	id        string
	itemID    string
	weight    float64
	volume    float64
	bearsLoad bool
	orients   []orient
}

// expandUnits flattens items by quantity. Unit ids are "<itemID>#<n>" with n
// starting at 1 per item.
func expandUnits(items []model.Item) []unit {
	var units []unit
	for _, it := range items {
		ors := orientationsFor(it)
		for n := 0; n < it.Quantity; n++ {
			units = append(units, unit{
				index:     len(units),
				id:        fmt.Sprintf("%s#%d", it.ID, n+1),
				itemID:    it.ID,
				weight:    it.Weight,
				volume:    it.UnitVolume(),
				bearsLoad: it.BearsLoad(),
				orients:   ors,
			})
		}
	}
	return units
}

func totalUnitVolume(units []unit) float64 {
	var v float64
	for _, u := range units {
		v += u.volume
	}
	return v
}

// sortForGreedy orders units for the first-fit pass: volume descending, then
// weight descending, ties keep input order.
func sortForGreedy(units []unit) []unit {
	out := make([]unit, len(units))
	copy(out, units)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].volume != out[j].volume {
			return out[i].volume > out[j].volume
		}
		return out[i].weight > out[j].weight
	})
	return out
}

// placeUnit scans for the first feasible placement of u, trying the given
// orientations in order. For each orientation the grid walks layers bottom
// up, then rows front to back, then columns left to right, stepping by the
// configured grid pitch. On success it commits the placement to p and
// returns it with the index of the chosen orientation in tryOrients. On
// failure the returned reason is the one to report for the unit.
func placeUnit(p *packing, u unit, tryOrients []orient) (model.Placement, int, string) {
	if !anyOrientFits(u.orients, p.truck) {
		return model.Placement{}, -1, ReasonOversized
	}
	if p.total+u.weight > p.truck.MaxPayload+geomEps {
		return model.Placement{}, -1, ReasonWeight
	}
	step := p.cfg.GridStep
	axleBlocked := false
	for oi, o := range tryOrients {
		if o.d.L > p.truck.Length+geomEps || o.d.W > p.truck.Width+geomEps || o.d.H > p.truck.Height+geomEps {
			continue
		}
		for z := 0.0; z+o.d.H <= p.truck.Height+geomEps; z += step {
			for y := 0.0; y+o.d.W <= p.truck.Width+geomEps; y += step {
				for x := 0.0; x+o.d.L <= p.truck.Length+geomEps; x += step {
					b := box{X: x, Y: y, Z: z, D: o.d}
					switch p.check(b, u.weight) {
					case violationNone:
						p.place(b, u.weight, u.bearsLoad)
						return model.Placement{
							UnitID:      u.id,
							ItemID:      u.itemID,
							X:           x,
							Y:           y,
							Z:           z,
							Length:      o.d.L,
							Width:       o.d.W,
							Height:      o.d.H,
							Orientation: o.idx,
							Weight:      u.weight,
						}, oi, ""
					case violationAxle:
						axleBlocked = true
					}
				}
			}
		}
	}
	if axleBlocked {
		return model.Placement{}, -1, ReasonAxle
	}
	return model.Placement{}, -1, ReasonNoFit
}

// greedyArrange runs the deterministic first-fit pass: units sorted big
// first, each placed at the first feasible orientation and position, no
// backtracking. It also returns the genome reproducing its decisions, used
// to seed the genetic search: replaying it through the decoder yields this
// exact arrangement.
func greedyArrange(units []unit, truck model.TruckSpec, cfg Config) (model.Arrangement, genome) {
	ordered := sortForGreedy(units)
	p := newPacking(truck, cfg)
	arr := model.Arrangement{Placements: []model.Placement{}, Unplaced: []model.UnplacedUnit{}}
	seed := make(genome, 0, len(ordered))
	for _, u := range ordered {
		pl, oi, reason := placeUnit(p, u, u.orients)
		if reason != "" {
			arr.Unplaced = append(arr.Unplaced, model.UnplacedUnit{UnitID: u.id, ItemID: u.itemID, Reason: reason})
			seed = append(seed, gene{unit: u.index, orient: 0})
			continue
		}
		arr.Placements = append(arr.Placements, pl)
		seed = append(seed, gene{unit: u.index, orient: oi})
	}
	finalizeArrangement(&arr, truck, totalUnitVolume(units), cfg.ScoreWeights)
	return arr, seed
}
