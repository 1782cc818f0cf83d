package fusion

import (
	"math"
	"sort"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"gonum.org/v1/gonum/stat"
)

const (
	// MaxConfidence caps fused confidence below certainty.
	MaxConfidence = 99.0
	// AgreementBonus is added per agreeing engine.
	AgreementBonus = 2.0
)

// EngineWeights scales each engine's vote in the confidence average.
type EngineWeights map[models.EngineID]float64

// DefaultEngineWeights favors the single-line mode, which reads cells best.
func DefaultEngineWeights() EngineWeights {
	return EngineWeights{
		models.EngineTesseractBlock:  1.0,
		models.EngineTesseractLine:   1.1,
		models.EngineTesseractSparse: 0.9,
	}
}

// Weight returns the weight for id, defaulting to 1.0.
func (w EngineWeights) Weight(id models.EngineID) float64 {
	if v, ok := w[id]; ok && v > 0 {
		return v
	}
	return 1.0
}

// Fuse merges results that agree on (time, fleet), drops those below
// threshold and sorts by time then fleet. Fusing its own output is a no-op.
func Fuse(results []models.ExtractionResult, weights EngineWeights, threshold float64) []models.ExtractionResult {
	groups := make(map[string][]models.ExtractionResult)
	order := make([]string, 0)
	for _, r := range results {
		k := r.Key()
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	fused := make([]models.ExtractionResult, 0, len(order))
	for _, k := range order {
		r := mergeGroup(groups[k], weights)
		if r.Confidence >= threshold {
			fused = append(fused, r)
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].TimeOfDay != fused[j].TimeOfDay {
			return fused[i].TimeOfDay < fused[j].TimeOfDay
		}
		return fused[i].FleetID < fused[j].FleetID
	})
	return fused
}

func mergeGroup(group []models.ExtractionResult, weights EngineWeights) models.ExtractionResult {
	if len(group) == 1 {
		return group[0]
	}

	confidences := make([]float64, len(group))
	w := make([]float64, len(group))
	basis := 0
	count := 0
	engines := map[models.EngineID]bool{}
	for i, r := range group {
		if len(r.Engines) > 0 {
			for _, id := range r.Engines {
				engines[id] = true
			}
		} else if r.Engine != models.EngineEnsemble {
			engines[r.Engine] = true
		}
		confidences[i] = r.Confidence
		w[i] = weights.Weight(r.Engine)
		count += max(1, r.FusedCount)
		if better(r, group[basis]) {
			basis = i
		}
	}

	out := group[basis]
	out.Confidence = math.Min(MaxConfidence, stat.Mean(confidences, w)+AgreementBonus*float64(len(group)))
	out.Engine = models.EngineEnsemble
	out.FusedCount = count
	out.Engines = make([]models.EngineID, 0, len(engines))
	for id := range engines {
		out.Engines = append(out.Engines, id)
	}
	sort.Slice(out.Engines, func(i, j int) bool { return out.Engines[i] < out.Engines[j] })
	return out
}

// better orders candidates for the fused basis: higher confidence wins,
// ties go to the lexically smaller engine so the pick is order independent.
func better(a, b models.ExtractionResult) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Engine < b.Engine
}
