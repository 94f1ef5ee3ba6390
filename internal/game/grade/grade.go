// Package grade turns accumulated play state and submitted evaluations into
// a weighted final grade.
package grade

import (
	"math"

	"github.com/aulaverse/aulaverse/internal/game/domain"
)

// Metric keys recognised by the weighted grade.
const (
	MetricMultiverse = "multiverse"
	MetricUniverse   = "universe"
	MetricCharacter  = "character"
	MetricLife       = "life"
	MetricPoints     = "points"
	MetricMoney      = "money"
	MetricHetero     = "hetero"
	MetricAuto       = "auto"
	MetricProfessor  = "professor"
)

// Normalization divisors and caps for the metric heuristics.
const (
	totalsDivisor        = 10000.0
	pointsDivisor        = 5000.0
	moneyDivisor         = 5000.0
	participationDivisor = 20.0
	participationCap     = 0.2
)

// DefaultWeights returns the percentage weight of each metric in the final
// grade.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		MetricMultiverse: 10,
		MetricUniverse:   10,
		MetricCharacter:  20,
		MetricLife:       10,
		MetricPoints:     10,
		MetricMoney:      10,
		MetricHetero:     10,
		MetricAuto:       10,
		MetricProfessor:  15,
	}
}

// Result is the outcome of a weighted grade calculation.
type Result struct {
	RawScore        float64 `json:"raw_score"`
	NormalizedScore float64 `json:"normalized_score"`
	WeightsTotal    float64 `json:"weights_total"`
}

// FinalGrade combines normalized metrics under the given weights. Nil weights
// fall back to DefaultWeights. Metrics missing a weighted key count as zero.
func FinalGrade(metrics, weights map[string]float64) Result {
	if weights == nil {
		weights = DefaultWeights()
	}

	var raw, total float64
	for key, weight := range weights {
		total += weight
		raw += metrics[key] * weight
	}

	normalized := 0.0
	if total != 0 {
		normalized = raw / total
	}
	return Result{RawScore: raw, NormalizedScore: normalized, WeightsTotal: total}
}

// Value converts a normalized score into the 0..100 grade reported to
// students, rounded to two decimals.
func (r Result) Value() float64 {
	return math.Round(r.NormalizedScore*100*100) / 100
}

// CharacterMetrics normalizes a character's play state into the 0..1 metric
// map consumed by FinalGrade. The universe may be nil when the character's
// current universe no longer exists.
func CharacterMetrics(ch domain.Character, universe *domain.Universe, multiverse domain.Multiverse, evaluations []domain.Evaluation) map[string]float64 {
	metrics := map[string]float64{
		MetricMultiverse: capAtOne(multiverse.TotalPoints / totalsDivisor),
		MetricUniverse:   0,
		MetricCharacter:  capAtOne(ch.Points / pointsDivisor),
		MetricLife:       domain.NormalizeLife(ch.LifePercent),
		MetricPoints:     capAtOne(ch.Points / pointsDivisor),
		MetricMoney:      capAtOne(ch.Money / moneyDivisor),
		MetricHetero:     0,
		MetricAuto:       0,
		MetricProfessor:  0,
	}

	if universe != nil {
		metrics[MetricUniverse] = capAtOne(universe.TotalPoints / totalsDivisor)
	}

	// Participation bumps the character metric by up to participationCap.
	participation := math.Min(float64(len(ch.History))/participationDivisor, participationCap)
	metrics[MetricCharacter] = math.Min(1.0, metrics[MetricCharacter]+participation)

	metrics[MetricHetero] = averageScore(evaluations, ch.ID, domain.EvaluationHetero)
	metrics[MetricAuto] = averageScore(evaluations, ch.ID, domain.EvaluationAuto)
	metrics[MetricProfessor] = averageScore(evaluations, ch.ID, domain.EvaluationProfessor)

	return metrics
}

// averageScore averages the 0..100 scores of one evaluation kind for a
// character, scaled into 0..1. No submissions score zero.
func averageScore(evaluations []domain.Evaluation, characterID, kind string) float64 {
	var sum float64
	var n int
	for _, e := range evaluations {
		if e.CharacterID == characterID && e.Kind == kind {
			sum += e.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) / 100.0
}

func capAtOne(v float64) float64 {
	return math.Min(v, 1.0)
}
