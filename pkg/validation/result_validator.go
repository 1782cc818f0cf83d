package validation

import (
	"strings"

	"github.com/anime-shed/fleet-schedule-extractor/internal/fieldparse"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/arbovm/levenshtein"
)

const (
	formatPenalty       = 40.0
	nearMissPenalty     = 25.0
	unknownFleetPenalty = 50.0
)

// ResultValidator scores extraction results against format rules and an
// optional registry of known fleet numbers.
type ResultValidator struct {
	knownFleets map[string]struct{}
	registry    []string
}

// NewResultValidator creates a validator. An empty registry disables the
// fleet lookup.
func NewResultValidator(knownFleets []string) *ResultValidator {
	v := &ResultValidator{knownFleets: make(map[string]struct{}, len(knownFleets))}
	for _, f := range knownFleets {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := v.knownFleets[f]; !dup {
			v.knownFleets[f] = struct{}{}
			v.registry = append(v.registry, f)
		}
	}
	return v
}

// Score returns the validation score (0-100) of a single result.
func (v *ResultValidator) Score(r models.ExtractionResult) float64 {
	score := 100.0
	if !fieldparse.ValidFleetID(r.FleetID) {
		score -= formatPenalty
	}
	if !fieldparse.ValidTimeOfDay(r.TimeOfDay) {
		score -= formatPenalty
	}
	if len(v.registry) > 0 {
		if _, ok := v.knownFleets[r.FleetID]; !ok {
			if v.nearestDistance(r.FleetID) == 1 {
				score -= nearMissPenalty
			} else {
				score -= unknownFleetPenalty
			}
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// NearestKnown returns the closest registered fleet and its edit distance.
// ok is false when the registry is empty.
func (v *ResultValidator) NearestKnown(fleetID string) (string, int, bool) {
	best, bestDist := "", -1
	for _, known := range v.registry {
		d := levenshtein.Distance(fleetID, known)
		if bestDist < 0 || d < bestDist {
			best, bestDist = known, d
		}
	}
	return best, bestDist, bestDist >= 0
}

func (v *ResultValidator) nearestDistance(fleetID string) int {
	_, d, _ := v.NearestKnown(fleetID)
	return d
}

// Apply sets ValidationScore on every result and drops those scoring below
// minScore. The input slice is not modified.
func (v *ResultValidator) Apply(results []models.ExtractionResult, minScore float64) []models.ExtractionResult {
	out := make([]models.ExtractionResult, 0, len(results))
	for _, r := range results {
		r.ValidationScore = v.Score(r)
		if r.ValidationScore >= minScore {
			out = append(out, r)
		}
	}
	return out
}
