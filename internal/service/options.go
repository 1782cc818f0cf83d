package service

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/anime-shed/fleet-schedule-extractor/internal/errors"
	"github.com/anime-shed/fleet-schedule-extractor/internal/persistence"
	"github.com/anime-shed/fleet-schedule-extractor/internal/pipeline"
	"github.com/anime-shed/fleet-schedule-extractor/internal/repository"
	"github.com/anime-shed/fleet-schedule-extractor/internal/strategy"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

// BuildOptions applies the overrides of a request on top of the service
// defaults. Unknown engines or methods are rejected; numeric settings are
// passed through and clamped by the pipeline.
func BuildOptions(defaults pipeline.Options, req *models.ExtractionOptionsRequest) (pipeline.Options, error) {
	opts := defaults
	if req == nil {
		return opts, nil
	}

	if len(req.Engines) > 0 {
		engines := make([]models.EngineID, 0, len(req.Engines))
		for _, name := range req.Engines {
			id, err := models.ParseEngineID(name)
			if err != nil {
				return opts, apperrors.NewValidationError("invalid engine", err)
			}
			engines = append(engines, id)
		}
		opts = opts.WithEngines(engines...)
	}

	if len(req.Methods) > 0 {
		methods := make([]models.ProcessingMethod, 0, len(req.Methods))
		for _, name := range req.Methods {
			m, err := strategy.ParseMethod(name)
			if err != nil {
				return opts, apperrors.NewValidationError("invalid processing method", err)
			}
			methods = append(methods, m)
		}
		opts = opts.WithMethods(methods...)
	}

	if req.ConfidenceThreshold != nil {
		opts = opts.WithConfidenceThreshold(*req.ConfidenceThreshold)
	}
	if req.MinValidationScore != nil {
		opts.MinValidationScore = *req.MinValidationScore
	}
	if req.ExpectedText != "" {
		opts.ExpectedText = req.ExpectedText
	}
	if f := req.Filters; f != nil {
		s := opts.Filters
		if f.NoiseReduction != nil {
			s.NoiseReduction = *f.NoiseReduction
		}
		if f.ContrastEnhancement != nil {
			s.ContrastEnhancement = *f.ContrastEnhancement
		}
		if f.BrightnessAdjustment != nil {
			s.BrightnessAdjustment = *f.BrightnessAdjustment
		}
		if f.HistogramEqualization != nil {
			s.HistogramEqualization = *f.HistogramEqualization
		}
		if f.AdaptiveThreshold != nil {
			s.UseAdaptiveThreshold = *f.AdaptiveThreshold
		}
		if f.AdaptiveBlockSize != nil {
			s.AdaptiveBlockSize = *f.AdaptiveBlockSize
		}
		if f.AdaptiveC != nil {
			s.AdaptiveC = *f.AdaptiveC
		}
		if f.MorphologyKernel != nil {
			s.MorphologyKernel = *f.MorphologyKernel
		}
		if f.ErosionOnly != nil {
			s.ErosionOnly = *f.ErosionOnly
		}
		opts = opts.WithFilters(s)
	}
	return opts, nil
}

// validateOptionsRequest checks a request before it is queued, so bad input
// is rejected synchronously.
func validateOptionsRequest(defaults pipeline.Options, req *models.ExtractionOptionsRequest) error {
	if _, err := BuildOptions(defaults, req); err != nil {
		return err
	}
	if req != nil && req.Persist != nil {
		if _, err := persistence.BuildRows(nil, *req.Persist, time.Now()); err != nil {
			return apperrors.NewValidationError("invalid persistence parameters", err)
		}
	}
	return nil
}

func parseSource(source string) (repository.SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", "http", "https":
		return repository.SourceHTTP, nil
	case "azure":
		return repository.SourceAzure, nil
	default:
		return "", apperrors.NewValidationError("invalid image source", fmt.Errorf("unknown source %q", source))
	}
}
