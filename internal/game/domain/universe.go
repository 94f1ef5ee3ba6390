package domain

import "encoding/json"

// Difficulty values recognised in universe rules. Unknown values behave as
// DifficultyNormal.
const (
	DifficultyNormal = "normal"
	DifficultyHard   = "hard"
)

// MaxTotalPoints and MaxTotalMoney bound a universe's running totals.
const (
	MaxTotalPoints = 5000
	MaxTotalMoney  = 5000
)

// defaultMinResidents is the occupancy floor applied when rules do not set one.
const defaultMinResidents = 2

// UniverseRules is the per-universe configuration consulted during action
// validation and effect application.
type UniverseRules struct {
	// AllowUniverseChange, when explicitly false, forbids transfers into the
	// universe. Nil means unset, which allows transfers.
	AllowUniverseChange *bool  `json:"allow_universe_change,omitempty"`
	Difficulty          string `json:"difficulty,omitempty"`
	// MinResidents is the occupancy floor for same-universe actions. Zero
	// means unset; MinResidentsOrDefault applies the default of 2.
	MinResidents int `json:"min_residents,omitempty"`
}

// MinResidentsOrDefault returns the configured occupancy floor, or the
// default floor when unset.
func (r UniverseRules) MinResidentsOrDefault() int {
	if r.MinResidents > 0 {
		return r.MinResidents
	}
	return defaultMinResidents
}

// TransfersForbidden reports whether the rules explicitly forbid universe
// transfers. Only an explicit false forbids; unset allows.
func (r UniverseRules) TransfersForbidden() bool {
	return r.AllowUniverseChange != nil && !*r.AllowUniverseChange
}

// Universe is a shared narrative world. Its timeline is append-only; forked
// copies carry lineage fields and start with an empty timeline.
type Universe struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Rules         UniverseRules  `json:"rules,omitempty"`
	TotalPoints   float64        `json:"totalPoints"`
	TotalMoney    float64        `json:"totalMoney"`
	Timeline      []HistoryEntry `json:"timeline"`
	PreviousState map[string]any `json:"previousState,omitempty"`
	ForkReason    string         `json:"fork_reason,omitempty"`
	EnableImages  bool           `json:"enable_images,omitempty"`
}

// Snapshot returns the universe as a generic map, used to record the source
// state on a forked copy.
func (u Universe) Snapshot() map[string]any {
	raw, err := json.Marshal(u)
	if err != nil {
		return nil
	}
	var snapshot map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil
	}
	return snapshot
}

// ClampTotal bounds a universe running total to ±limit.
func ClampTotal(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
