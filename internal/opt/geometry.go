package opt

import (
	"math"

	"loadplan/internal/model"
)

// geomEps absorbs float drift in strict comparisons. All dimensions are
// centimeters, so 1e-6 is far below any meaningful length.
const geomEps = 1e-6

// restTol is how far (cm) a box bottom may sit above a supporting top face
// and still count as resting on it.
const restTol = 1.0

// dims is an oriented box extent: length along x, width along y, height along z.
type dims struct {
	L, W, H float64
}

func (d dims) volume() float64 { return d.L * d.W * d.H }

// box is an axis-aligned box anchored at its minimum corner.
type box struct {
	X, Y, Z float64
	D       dims
}

// orient pairs an extent with its canonical orientation index. Index 0 is
// always the item as given; the remaining indices follow the fixed preference
// order below.
type orient struct {
	idx int
	d   dims
}

// orientationsFor returns the distinct axis-aligned orientations of an item,
// identity first, duplicates removed (a cube yields one entry). Items with a
// locked orientation yield only the identity.
func orientationsFor(it model.Item) []orient {
	base := dims{L: it.Length, W: it.Width, H: it.Height}
	if it.LockOrientation {
		return []orient{{idx: 0, d: base}}
	}
	all := []dims{
		{base.L, base.W, base.H},
		{base.W, base.L, base.H},
		{base.L, base.H, base.W},
		{base.H, base.W, base.L},
		{base.W, base.H, base.L},
		{base.H, base.L, base.W},
	}
	out := make([]orient, 0, len(all))
	for i, d := range all {
		dup := false
		for _, e := range out {
			if sameDims(d, e.d) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, orient{idx: i, d: d})
		}
	}
	return out
}

func sameDims(a, b dims) bool {
	return math.Abs(a.L-b.L) < geomEps && math.Abs(a.W-b.W) < geomEps && math.Abs(a.H-b.H) < geomEps
}

// anyOrientFits reports whether at least one orientation fits an empty truck.
func anyOrientFits(ors []orient, t model.TruckSpec) bool {
	for _, o := range ors {
		if o.d.L <= t.Length+geomEps && o.d.W <= t.Width+geomEps && o.d.H <= t.Height+geomEps {
			return true
		}
	}
	return false
}

// fitsInside reports whether b lies fully within the truck volume.
func fitsInside(b box, t model.TruckSpec) bool {
	return b.X >= -geomEps && b.Y >= -geomEps && b.Z >= -geomEps &&
		b.X+b.D.L <= t.Length+geomEps &&
		b.Y+b.D.W <= t.Width+geomEps &&
		b.Z+b.D.H <= t.Height+geomEps
}

// overlaps reports whether two boxes share interior volume. Touching faces or
// edges do not count as overlap.
func overlaps(a, b box) bool {
	return a.X < b.X+b.D.L-geomEps && b.X < a.X+a.D.L-geomEps &&
		a.Y < b.Y+b.D.W-geomEps && b.Y < a.Y+a.D.W-geomEps &&
		a.Z < b.Z+b.D.H-geomEps && b.Z < a.Z+a.D.H-geomEps
}

// supportRatio returns the fraction of b's footprint resting on the truck
// floor or on the top faces of load-bearing boxes. Floor contact is full
// support. A top face supports b when it sits within restTol of b's bottom.
func supportRatio(b box, boxes []box, bears []bool) float64 {
	if b.Z <= restTol {
		return 1
	}
	foot := b.D.L * b.D.W
	if foot <= 0 {
		return 0
	}
	var area float64
	for i, p := range boxes {
		if !bears[i] {
			continue
		}
		if math.Abs(p.Z+p.D.H-b.Z) > restTol {
			continue
		}
		ox := math.Min(b.X+b.D.L, p.X+p.D.L) - math.Max(b.X, p.X)
		oy := math.Min(b.Y+b.D.W, p.Y+p.D.W) - math.Max(b.Y, p.Y)
		if ox > 0 && oy > 0 {
			area += ox * oy
		}
	}
	return area / foot
}

// axleSplit apportions a box weight between front and rear axles by the box
// center along the truck length, front axle at x=0.
func axleSplit(t model.TruckSpec, b box, weight float64) (front, rear float64) {
	if t.Length <= 0 {
		return weight / 2, weight / 2
	}
	c := (b.X + b.D.L/2) / t.Length
	if c < 0 {
		c = 0
	} else if c > 1 {
		c = 1
	}
	return weight * (1 - c), weight * c
}
