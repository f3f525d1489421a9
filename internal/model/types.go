package model

// Core domain types. Dimensions are centimeters, weights kilograms.

// Item is one cargo line as supplied by the ingestion side. Quantity is
// expanded into individual unit instances before placement begins.
type Item struct {
	ID              string  `json:"id"`
	Name            string  `json:"name,omitempty"`
	Length          float64 `json:"length"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	Weight          float64 `json:"weight"`
	Quantity        int     `json:"quantity"`
	Stackable       *bool   `json:"stackable,omitempty"` // nil means stackable
	Fragile         bool    `json:"fragile,omitempty"`
	LockOrientation bool    `json:"lockOrientation,omitempty"`
}

// UnitVolume is the volume of a single unit in cm³.
func (i Item) UnitVolume() float64 { return i.Length * i.Width * i.Height }

// TotalVolume covers the full quantity.
func (i Item) TotalVolume() float64 { return i.UnitVolume() * float64(i.Quantity) }

// BearsLoad reports whether other units may rest on top of this one.
func (i Item) BearsLoad() bool {
	if i.Fragile {
		return false
	}
	return i.Stackable == nil || *i.Stackable
}

// AxleLimits caps the load carried by each axle group. The engine splits a
// unit's weight linearly between front and rear by its x-center.
type AxleLimits struct {
	FrontMaxKg float64 `json:"frontMaxKg"`
	RearMaxKg  float64 `json:"rearMaxKg"`
}

// TruckSpec is the usable interior of one truck.
type TruckSpec struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name,omitempty"`
	Length     float64     `json:"length"`
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
	MaxPayload float64     `json:"maxPayload"`
	AxleLimits *AxleLimits `json:"axleLimits,omitempty"`
}

// Volume is the usable interior volume in cm³.
func (t TruckSpec) Volume() float64 { return t.Length * t.Width * t.Height }

// Placement is one unit's resolved position. Position is the min-corner of
// the effective box in truck coordinates: x along length, y across width,
// z up. Length/Width/Height are the box after rotation.
type Placement struct {
	UnitID      string  `json:"unitId"`
	ItemID      string  `json:"itemId"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Length      float64 `json:"length"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Orientation int     `json:"orientation"`
	Weight      float64 `json:"weight"`
}

// UnplacedUnit records a unit the search could not admit, with the binding
// rejection reason: oversized, weight-limit, axle-limit or no-fit.
type UnplacedUnit struct {
	UnitID string `json:"unitId"`
	ItemID string `json:"itemId"`
	Reason string `json:"reason"`
}

// Arrangement is one solution: placements plus whatever stayed out.
type Arrangement struct {
	Placements        []Placement    `json:"placements"`
	Unplaced          []UnplacedUnit `json:"unplaced"`
	PlacedVolume      float64        `json:"placedVolume"`
	PlacedWeight      float64        `json:"placedWeight"`
	VolumeUtilization float64        `json:"volumeUtilization"`
	WeightUtilization float64        `json:"weightUtilization"`
	Score             float64        `json:"score"`
}

// ScoreWeights weight the arrangement score terms.
type ScoreWeights struct {
	Volume   float64 `json:"volume"`
	Weight   float64 `json:"weight"`
	Unplaced float64 `json:"unplaced"`
}

// Tuning carries optional per-request search overrides. Nil fields keep the
// engine defaults.
type Tuning struct {
	PopulationSize   *int          `json:"populationSize,omitempty"`
	Generations      *int          `json:"generations,omitempty"`
	MutationRate     *float64      `json:"mutationRate,omitempty"`
	CrossoverRate    *float64      `json:"crossoverRate,omitempty"`
	TournamentSize   *int          `json:"tournamentSize,omitempty"`
	StagnationWindow *int          `json:"stagnationWindow,omitempty"`
	SupportThreshold *float64      `json:"supportThreshold,omitempty"`
	GridStep         *float64      `json:"gridStep,omitempty"`
	Workers          *int          `json:"workers,omitempty"`
	ScoreWeights     *ScoreWeights `json:"scoreWeights,omitempty"`
}

// OptimizeRequest is the transport-facing request body.
type OptimizeRequest struct {
	TenantID     string     `json:"tenantId,omitempty"`
	Items        []Item     `json:"items"`
	Truck        *TruckSpec `json:"truck,omitempty"`
	TruckID      string     `json:"truckId,omitempty"` // catalog preset, resolved by the API layer
	Strategy     string     `json:"strategy,omitempty"` // simple | genetic
	Seed         *int64     `json:"seed,omitempty"`
	TimeBudgetMs int        `json:"timeBudgetMs,omitempty"`
	Tuning       *Tuning    `json:"tuning,omitempty"`
}

// Plan statuses.
const (
	PlanQueued    = "queued"
	PlanRunning   = "running"
	PlanCompleted = "completed"
	PlanFailed    = "failed"
	PlanCanceled  = "canceled"
)

// Plan is a stored optimization run.
type Plan struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Status     string          `json:"status"`
	Strategy   string          `json:"strategy"`
	CreatedAt  string          `json:"createdAt"`
	StartedAt  string          `json:"startedAt,omitempty"`
	FinishedAt string          `json:"finishedAt,omitempty"`
	Request    OptimizeRequest `json:"request"`
	Result     *PlanResult     `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// PlanResult is the stored outcome of a finished plan.
type PlanResult struct {
	Truck       TruckSpec   `json:"truck"`
	Strategy    string      `json:"strategy"`
	Arrangement Arrangement `json:"arrangement"`
	Warnings    []string    `json:"warnings,omitempty"`
	ElapsedMs   int64       `json:"elapsedMs"`
}

// PlanSummary is the list read model.
type PlanSummary struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Strategy  string `json:"strategy"`
	CreatedAt string `json:"createdAt"`
}

// FleetSuggestRequest asks for multi-truck splits by aggregate volume and
// weight. Candidates default to the service catalog when empty.
type FleetSuggestRequest struct {
	TenantID   string      `json:"tenantId,omitempty"`
	Items      []Item      `json:"items"`
	Candidates []TruckSpec `json:"candidates,omitempty"`
}

// TruckAllocation is one truck in a fleet scenario with the unit ids routed
// onto it and its aggregate fill levels.
type TruckAllocation struct {
	Truck             TruckSpec `json:"truck"`
	UnitIDs           []string  `json:"unitIds"`
	VolumeUtilization float64   `json:"volumeUtilization"`
	WeightUtilization float64   `json:"weightUtilization"`
}

// FleetScenario is one suggested fleet composition.
type FleetScenario struct {
	Name        string            `json:"name"` // min-count | balanced
	Trucks      []TruckAllocation `json:"trucks"`
	TruckCount  int               `json:"truckCount"`
	Unallocated []string          `json:"unallocated,omitempty"`
}

// FleetAnalysis summarizes the packing list behind a fleet suggestion.
type FleetAnalysis struct {
	TotalVolume   float64 `json:"totalVolume"`
	TotalWeight   float64 `json:"totalWeight"`
	ItemCount     int     `json:"itemCount"`
	TotalUnits    int     `json:"totalUnits"`
	MaxLength     float64 `json:"maxLength"`
	MaxWidth      float64 `json:"maxWidth"`
	MaxHeight     float64 `json:"maxHeight"`
	MaxUnitWeight float64 `json:"maxUnitWeight"`
}

// FleetSuggestion is the full fleet sizing answer.
type FleetSuggestion struct {
	Analysis  FleetAnalysis   `json:"analysis"`
	Scenarios []FleetScenario `json:"scenarios"`
}

// Webhook subscription models.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
