package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/internal/detect"
	"github.com/anime-shed/fleet-schedule-extractor/internal/fusion"
	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/observer"
	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/internal/preprocess"
	"github.com/anime-shed/fleet-schedule-extractor/internal/quality"
	"github.com/anime-shed/fleet-schedule-extractor/internal/raster"
	"github.com/anime-shed/fleet-schedule-extractor/internal/strategy"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/validation"
	"github.com/sirupsen/logrus"
)

// Job is one extraction run.
type Job struct {
	ID      string
	Image   *raster.Image
	Options Options
	// OnProgress, if set, receives every progress increase.
	OnProgress func(percent int)
}

// Outcome is what the pipeline produced for a job.
type Outcome struct {
	Results       []models.ExtractionResult
	Table         models.TableStructure
	Passes        []models.PassSummary
	QualityIssues []models.QualityIssue
	Stages        []preprocess.Stage
	Duration      time.Duration
}

// Extractor runs Preprocess, Detect, the OCR passes, Fusion and Validation.
type Extractor interface {
	Extract(ctx context.Context, job Job) (Outcome, error)
}

type extractor struct {
	engines      map[models.EngineID]ocr.Engine
	preprocessor preprocess.Preprocessor
	detector     detect.Detector
	inspector    quality.Inspector
	validator    *validation.ResultValidator
	events       observer.Subject
}

// Dependencies are the collaborators of an Extractor. Nil fields get defaults,
// except Engines.
type Dependencies struct {
	Engines      map[models.EngineID]ocr.Engine
	Preprocessor preprocess.Preprocessor
	Detector     detect.Detector
	Inspector    quality.Inspector
	Validator    *validation.ResultValidator
	Events       observer.Subject
}

// NewExtractor wires an extractor.
func NewExtractor(deps Dependencies) Extractor {
	e := &extractor{
		engines:      deps.Engines,
		preprocessor: deps.Preprocessor,
		detector:     deps.Detector,
		inspector:    deps.Inspector,
		validator:    deps.Validator,
		events:       deps.Events,
	}
	if e.engines == nil {
		e.engines = map[models.EngineID]ocr.Engine{}
	}
	if e.preprocessor == nil {
		e.preprocessor = preprocess.NewPreprocessor(0)
	}
	if e.detector == nil {
		e.detector = detect.NewDetector(detect.DefaultOptions())
	}
	if e.inspector == nil {
		e.inspector = quality.NewInspector(nil)
	}
	if e.validator == nil {
		e.validator = validation.NewResultValidator(nil)
	}
	return e
}

type pass struct {
	engine   ocr.Engine
	id       models.EngineID
	strategy strategy.PassStrategy
}

func (e *extractor) Extract(ctx context.Context, job Job) (Outcome, error) {
	start := time.Now()
	if job.Image == nil || job.Image.Width == 0 || job.Image.Height == 0 {
		return Outcome{}, raster.ErrInvalidImage
	}
	opts := job.Options.normalized()

	passes, unavailable, err := e.plan(opts)
	if err != nil {
		return Outcome{}, err
	}

	log := logger.WithFields(logrus.Fields{"extraction_id": job.ID})
	progress := newProgressTracker(func(p int) {
		if job.OnProgress != nil {
			job.OnProgress(p)
		}
		e.publish(ctx, observer.ExtractionEvent{
			EventType:    observer.ExtractionProgress,
			ExtractionID: job.ID,
			Progress:     p,
			Success:      true,
		})
	})

	out := Outcome{Passes: unavailable}

	out.QualityIssues = e.inspector.Inspect(job.Image)
	progress.advance(progressInspected)

	// The color image is kept for header detection; filters run on a copy.
	working := job.Image.Clone()
	out.Stages = e.preprocessor.Apply(working, opts.Filters)
	progress.advance(progressPreprocessed)

	out.Table = e.detector.Detect(working, job.Image)
	progress.advance(progressDetected)
	log.WithFields(logrus.Fields{
		"rows":       out.Table.Rows,
		"cols":       out.Table.Cols,
		"header":     out.Table.HeaderDetected,
		"degenerate": out.Table.Degenerate,
		"stages":     out.Stages,
	}).Debug("Table detected")

	input := strategy.PassInput{Image: working, Table: out.Table, ExpectedText: opts.ExpectedText}
	var collected []models.ExtractionResult
	for i, p := range passes {
		if err := ctx.Err(); err != nil {
			out.Passes = append(out.Passes, models.PassSummary{
				Engine: p.id,
				Method: p.strategy.Method(),
				Error:  err.Error(),
			})
			continue
		}
		summary, results := e.runPass(ctx, job.ID, p, input)
		out.Passes = append(out.Passes, summary)
		collected = append(collected, results...)
		progress.advance(passProgress(i+1, len(passes)))
	}
	progress.advance(progressPassesDone)

	fused := fusion.Fuse(collected, opts.Weights, opts.ConfidenceThreshold)
	progress.advance(progressFused)

	out.Results = e.validator.Apply(fused, opts.MinValidationScore)
	progress.advance(progressValidated)

	out.Duration = time.Since(start)
	progress.advance(progressDone)

	log.WithFields(logrus.Fields{
		"candidates":  len(collected),
		"results":     len(out.Results),
		"duration_ms": out.Duration.Milliseconds(),
	}).Info("Extraction pipeline finished")

	return out, nil
}

// plan expands engines x methods into passes. Requested engines that are not
// registered become failed pass summaries; with none available at all the
// extraction cannot run.
func (e *extractor) plan(opts Options) ([]pass, []models.PassSummary, error) {
	var passes []pass
	var unavailable []models.PassSummary
	for _, id := range opts.Engines {
		engine, ok := e.engines[id]
		for _, method := range opts.Methods {
			if !ok {
				unavailable = append(unavailable, models.PassSummary{
					Engine: id,
					Method: method,
					Error:  ocr.ErrEngineUnavailable.Error(),
				})
				continue
			}
			s, err := strategy.ForMethod(method, opts.Workers)
			if err != nil {
				return nil, nil, err
			}
			passes = append(passes, pass{engine: engine, id: id, strategy: s})
		}
	}
	if len(passes) == 0 {
		return nil, nil, fmt.Errorf("%w: none of %v is registered", ocr.ErrEngineUnavailable, opts.Engines)
	}
	return passes, unavailable, nil
}

func (e *extractor) runPass(ctx context.Context, jobID string, p pass, in strategy.PassInput) (models.PassSummary, []models.ExtractionResult) {
	start := time.Now()
	outcome, err := p.strategy.Run(ctx, p.engine, in)
	summary := models.PassSummary{
		Engine:     p.id,
		Method:     p.strategy.Method(),
		Results:    len(outcome.Results),
		Cells:      outcome.Cells,
		FailedOCR:  outcome.FailedOCR,
		DurationMs: time.Since(start).Milliseconds(),
		Accuracy:   outcome.Accuracy,
	}

	event := observer.ExtractionEvent{
		EventType:      observer.PassCompleted,
		ExtractionID:   jobID,
		Engine:         string(p.id),
		Method:         string(summary.Method),
		Results:        summary.Results,
		ProcessingTime: time.Since(start),
		Success:        true,
	}
	if err != nil {
		summary.Error = err.Error()
		event.EventType = observer.PassFailed
		event.Success = false
		event.ErrorMessage = err.Error()
		logger.WithError(err).WithFields(logrus.Fields{
			"extraction_id": jobID,
			"engine":        p.id,
			"mode":          summary.Method,
		}).Warn("OCR pass failed")
		e.publish(ctx, event)
		return summary, nil
	}

	e.publish(ctx, event)
	return summary, outcome.Results
}

func (e *extractor) publish(ctx context.Context, event observer.ExtractionEvent) {
	if e.events != nil {
		e.events.NotifyObservers(ctx, event)
	}
}
