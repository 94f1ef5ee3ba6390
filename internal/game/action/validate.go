// Package action decides whether a proposed character action is admissible
// under universe rules before any event is created.
package action

import "github.com/aulaverse/aulaverse/internal/game/domain"

// Rejection reasons surfaced to callers.
const (
	ReasonTransferForbidden      = "transfer forbidden"
	ReasonInsufficientPopulation = "insufficient population"
)

// DefaultChangeType is assumed when a cross-universe action names no type.
const DefaultChangeType = "C"

// transferCosts maps change types to the effects charged for moving between
// universes. D and E carry reset flags whose interpretation is left to the
// caller.
var transferCosts = map[string]map[string]any{
	"A": {"lifePercent": -50, "points": -50},
	"B": {"lifePercent": -30, "points": -20},
	"C": {"lifePercent": -5, "points": 0},
	"D": {"reset_general": true},
	"E": {"reset_individual": true},
}

// TransferCost returns the effect map charged for the given change type,
// falling back to the default type for unknown values.
func TransferCost(changeType string) map[string]any {
	cost, ok := transferCosts[changeType]
	if !ok {
		cost = transferCosts[DefaultChangeType]
	}
	out := make(map[string]any, len(cost))
	for k, v := range cost {
		out[k] = v
	}
	return out
}

// Input carries the snapshots a validation decision is made from. Character
// and Universe are nil when the referenced record does not exist.
type Input struct {
	Character        *domain.Character
	Universe         *domain.Universe
	TargetUniverseID string
	ChangeType       string
	// ResidentCount is the number of characters currently assigned to the
	// target universe.
	ResidentCount int
}

// Decision is the structured outcome of validation. Rejections are decisions,
// not errors.
type Decision struct {
	Valid          bool           `json:"valid"`
	Reason         string         `json:"reason,omitempty"`
	ChangeUniverse bool           `json:"changeUniverse,omitempty"`
	ChangeType     string         `json:"changeType,omitempty"`
	Effects        map[string]any `json:"effects,omitempty"`
}

// Validate applies the admission rules:
//
//   - An unknown character is always valid; it has no prior state to violate.
//   - A character whose current universe differs from the target implies a
//     transfer, charged per the change-type cost table, and rejected outright
//     when the target universe forbids transfers.
//   - Same-universe actions require the target universe to meet its occupancy
//     floor. Transfers bypass the occupancy rule.
func Validate(in Input) Decision {
	if in.Character == nil {
		return Decision{Valid: true}
	}

	current := in.Character.CurrentUniverse
	if current != "" && current != in.TargetUniverseID {
		if in.Universe != nil && in.Universe.Rules.TransfersForbidden() {
			return Decision{Valid: false, Reason: ReasonTransferForbidden}
		}

		changeType := in.ChangeType
		if _, known := transferCosts[changeType]; !known {
			changeType = DefaultChangeType
		}
		return Decision{
			Valid:          true,
			ChangeUniverse: true,
			ChangeType:     changeType,
			Effects:        TransferCost(changeType),
		}
	}

	minResidents := domain.UniverseRules{}.MinResidentsOrDefault()
	if in.Universe != nil {
		minResidents = in.Universe.Rules.MinResidentsOrDefault()
	}
	if in.ResidentCount < minResidents {
		return Decision{Valid: false, Reason: ReasonInsufficientPopulation}
	}

	return Decision{Valid: true}
}
