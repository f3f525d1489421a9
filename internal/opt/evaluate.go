package opt

import "loadplan/internal/model"

// Reasons reported for units the truck could not take.
const (
	ReasonOversized = "oversized"
	ReasonWeight    = "weight-limit"
	ReasonAxle      = "axle-limit"
	ReasonNoFit     = "no-fit"
)

// violation identifies the first failed placement check for one candidate
// position. Checks run in a fixed order so the cheap ones gate the
// expensive ones.
type violation int

const (
	violationNone violation = iota
	violationBounds
	violationCollision
	violationSupport
	violationWeight
	violationAxle
)

// packing is the mutable state of one arrangement under construction.
type packing struct {
	truck model.TruckSpec
	cfg   Config

	boxes   []box
	bears   []bool
	weights []float64

	total float64
	front float64
	rear  float64
}

func newPacking(truck model.TruckSpec, cfg Config) *packing {
	return &packing{truck: truck, cfg: cfg}
}

// check runs the placement checks for b in order: truck bounds, collision
// with placed boxes, support under the configured threshold, payload weight,
// axle load. It reports the first violation, or violationNone when b can be
// committed.
func (p *packing) check(b box, weight float64) violation {
	if !fitsInside(b, p.truck) {
		return violationBounds
	}
	for _, q := range p.boxes {
		if overlaps(b, q) {
			return violationCollision
		}
	}
	if supportRatio(b, p.boxes, p.bears) < p.cfg.SupportThreshold-geomEps {
		return violationSupport
	}
	if p.total+weight > p.truck.MaxPayload+geomEps {
		return violationWeight
	}
	if p.truck.AxleLimits != nil {
		f, r := axleSplit(p.truck, b, weight)
		if p.front+f > p.truck.AxleLimits.FrontMaxKg+geomEps || p.rear+r > p.truck.AxleLimits.RearMaxKg+geomEps {
			return violationAxle
		}
	}
	return violationNone
}

// place commits b. Callers must have passed check for the same box first.
func (p *packing) place(b box, weight float64, bearsLoad bool) {
	p.boxes = append(p.boxes, b)
	p.bears = append(p.bears, bearsLoad)
	p.weights = append(p.weights, weight)
	p.total += weight
	if p.truck.AxleLimits != nil {
		f, r := axleSplit(p.truck, b, weight)
		p.front += f
		p.rear += r
	}
}

// finalizeArrangement fills in the aggregate fields and the composite score.
// totalVolume is the volume of every requested unit, placed or not; the
// unplaced penalty is the unplaced share of it.
func finalizeArrangement(a *model.Arrangement, truck model.TruckSpec, totalVolume float64, w model.ScoreWeights) {
	a.PlacedVolume = 0
	a.PlacedWeight = 0
	for _, pl := range a.Placements {
		a.PlacedVolume += pl.Length * pl.Width * pl.Height
		a.PlacedWeight += pl.Weight
	}
	if v := truck.Volume(); v > 0 {
		a.VolumeUtilization = a.PlacedVolume / v
	}
	if truck.MaxPayload > 0 {
		a.WeightUtilization = a.PlacedWeight / truck.MaxPayload
	}
	var penalty float64
	if totalVolume > 0 {
		penalty = (totalVolume - a.PlacedVolume) / totalVolume
	}
	a.Score = w.Volume*a.VolumeUtilization + w.Weight*a.WeightUtilization - w.Unplaced*penalty
}
