package pipeline

import (
	"runtime"

	"github.com/anime-shed/fleet-schedule-extractor/internal/fusion"
	"github.com/anime-shed/fleet-schedule-extractor/internal/preprocess"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

// DefaultConfidenceThreshold is the minimum fused confidence kept by default.
const DefaultConfidenceThreshold = 60.0

// Options configures one extraction. It is passed by value into every stage.
type Options struct {
	Engines             []models.EngineID
	Methods             []models.ProcessingMethod
	Filters             preprocess.FilterSettings
	Weights             fusion.EngineWeights
	ConfidenceThreshold float64
	MinValidationScore  float64
	// ExpectedText enables WER/CER reporting on full image passes.
	ExpectedText string
	// Workers bounds concurrent OCR calls inside a pass.
	Workers int
}

// DefaultOptions runs every engine with both methods.
func DefaultOptions() Options {
	return Options{
		Engines:             models.RecognitionEngines(),
		Methods:             []models.ProcessingMethod{models.MethodCellOCR, models.MethodFullImageOCR},
		Filters:             preprocess.DefaultFilterSettings(),
		Weights:             fusion.DefaultEngineWeights(),
		ConfidenceThreshold: DefaultConfidenceThreshold,
		Workers:             runtime.NumCPU(),
	}
}

// WithEngines returns a copy restricted to the given engines.
func (o Options) WithEngines(engines ...models.EngineID) Options {
	o.Engines = append([]models.EngineID(nil), engines...)
	return o
}

// WithMethods returns a copy restricted to the given methods.
func (o Options) WithMethods(methods ...models.ProcessingMethod) Options {
	o.Methods = append([]models.ProcessingMethod(nil), methods...)
	return o
}

// WithConfidenceThreshold returns a copy with a new threshold.
func (o Options) WithConfidenceThreshold(threshold float64) Options {
	o.ConfidenceThreshold = threshold
	return o
}

// WithFilters returns a copy with new filter settings.
func (o Options) WithFilters(filters preprocess.FilterSettings) Options {
	o.Filters = filters
	return o
}

// normalized fills empty fields with defaults and clamps ranges.
func (o Options) normalized() Options {
	def := DefaultOptions()
	if len(o.Engines) == 0 {
		o.Engines = def.Engines
	}
	if len(o.Methods) == 0 {
		o.Methods = def.Methods
	}
	if o.Weights == nil {
		o.Weights = def.Weights
	}
	if o.Filters == (preprocess.FilterSettings{}) {
		o.Filters = def.Filters
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	o.ConfidenceThreshold = clampPercent(o.ConfidenceThreshold)
	o.MinValidationScore = clampPercent(o.MinValidationScore)
	o.Filters = o.Filters.Normalize()
	return o
}

func clampPercent(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
