package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/anime-shed/fleet-schedule-extractor/internal/errors"
	"github.com/anime-shed/fleet-schedule-extractor/internal/export"
	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/observer"
	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/internal/persistence"
	"github.com/anime-shed/fleet-schedule-extractor/internal/pipeline"
	"github.com/anime-shed/fleet-schedule-extractor/internal/queue"
	"github.com/anime-shed/fleet-schedule-extractor/internal/raster"
	"github.com/anime-shed/fleet-schedule-extractor/internal/repository"
	"github.com/anime-shed/fleet-schedule-extractor/internal/storage"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ExtractionService defines the operations exposed over HTTP and the queue
type ExtractionService interface {
	// ExtractUpload runs the pipeline on an uploaded image
	ExtractUpload(ctx context.Context, data []byte, filename string, opts *models.ExtractionOptionsRequest) (*models.ExtractionReport, error)

	// ExtractURL downloads an image and runs the pipeline on it
	ExtractURL(ctx context.Context, req models.URLExtractionRequest) (*models.ExtractionReport, error)

	// EnqueueURL stores a queued report and hands the work to the queue
	EnqueueURL(ctx context.Context, req models.URLExtractionRequest) (*models.ExtractionReport, error)

	// RunQueued executes a queued extraction
	RunQueued(ctx context.Context, p queue.ExtractionPayload) error

	Get(ctx context.Context, id string) (*models.ExtractionReport, error)

	// ExportCSV renders the results of a finished extraction
	ExportCSV(ctx context.Context, id string) ([]byte, string, error)

	// Persist writes the results of a finished extraction to the schedule store
	Persist(ctx context.Context, id string, req models.PersistRequest) (*models.ExtractionReport, error)
}

// Settings are the service level limits and defaults.
type Settings struct {
	Defaults          pipeline.Options
	ExtractionTimeout time.Duration
	ImageFetchTimeout time.Duration
	// MaxImagePixels bounds decoded images; zero uses raster.DefaultMaxPixels.
	MaxImagePixels    int
}

// Dependencies are the collaborators of the service. Sink and Enqueuer are
// optional; without them persistence and async extraction are unavailable.
type Dependencies struct {
	Images      repository.ImageRepository
	Extractions repository.ExtractionRepository
	Extractor   pipeline.Extractor
	Sink        persistence.Sink
	Enqueuer    queue.Enqueuer
	Events      observer.Subject
	Now         func() time.Time
}

// extractionService implements ExtractionService
type extractionService struct {
	images      repository.ImageRepository
	extractions repository.ExtractionRepository
	extractor   pipeline.Extractor
	sink        persistence.Sink
	enqueuer    queue.Enqueuer
	events      observer.Subject
	settings    Settings
	now         func() time.Time
}

// NewExtractionService creates a new extraction service
func NewExtractionService(deps Dependencies, settings Settings) ExtractionService {
	if settings.ExtractionTimeout <= 0 {
		settings.ExtractionTimeout = 60 * time.Second
	}
	if settings.ImageFetchTimeout <= 0 {
		settings.ImageFetchTimeout = 15 * time.Second
	}
	if settings.MaxImagePixels <= 0 {
		settings.MaxImagePixels = raster.DefaultMaxPixels
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &extractionService{
		images:      deps.Images,
		extractions: deps.Extractions,
		extractor:   deps.Extractor,
		sink:        deps.Sink,
		enqueuer:    deps.Enqueuer,
		events:      deps.Events,
		settings:    settings,
		now:         now,
	}
}

func (s *extractionService) ExtractUpload(ctx context.Context, data []byte, filename string, req *models.ExtractionOptionsRequest) (*models.ExtractionReport, error) {
	if err := validateOptionsRequest(s.settings.Defaults, req); err != nil {
		return nil, err
	}
	opts, _ := BuildOptions(s.settings.Defaults, req)
	img, err := raster.DecodeLimited(data, s.settings.MaxImagePixels)
	if err != nil {
		return nil, apperrors.NewInvalidImageError("uploaded file is not a readable image", err)
	}

	report := s.newReport("upload:" + filename)
	return s.run(ctx, report, img, opts, persistRequest(req))
}

func (s *extractionService) ExtractURL(ctx context.Context, req models.URLExtractionRequest) (*models.ExtractionReport, error) {
	kind, err := s.checkURLRequest(req)
	if err != nil {
		return nil, err
	}
	opts, _ := BuildOptions(s.settings.Defaults, req.Options)

	report := s.newReport(string(kind) + ":" + req.URL)
	img, err := s.fetch(ctx, report.ID, kind, req.URL)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, report, img, opts, persistRequest(req.Options))
}

func (s *extractionService) EnqueueURL(ctx context.Context, req models.URLExtractionRequest) (*models.ExtractionReport, error) {
	if s.enqueuer == nil {
		return nil, apperrors.NewQueueError("asynchronous extraction is not configured", nil)
	}
	kind, err := s.checkURLRequest(req)
	if err != nil {
		return nil, err
	}

	report := s.newReport(string(kind) + ":" + req.URL)
	report.Status = models.StatusQueued
	if err := s.save(ctx, report); err != nil {
		return nil, err
	}

	payload := queue.ExtractionPayload{
		ExtractionID: report.ID,
		Source:       string(kind),
		URL:          req.URL,
		Options:      req.Options,
	}
	if err := s.enqueuer.Enqueue(ctx, payload); err != nil {
		report.Status = models.StatusFailed
		report.Message = "could not queue extraction"
		_ = s.save(ctx, report)
		return nil, apperrors.NewQueueError("failed to queue extraction", err)
	}

	logger.WithFields(logrus.Fields{
		"extraction_id": report.ID,
		"source":        kind,
	}).Info("Extraction queued")
	return report, nil
}

func (s *extractionService) RunQueued(ctx context.Context, p queue.ExtractionPayload) error {
	report, err := s.Get(ctx, p.ExtractionID)
	if err != nil {
		return err
	}
	if report.Status != models.StatusQueued && report.Status != models.StatusProcessing {
		logger.WithFields(logrus.Fields{
			"extraction_id": report.ID,
			"status":        report.Status,
		}).Warn("Skipping extraction that already finished")
		return nil
	}

	req := models.URLExtractionRequest{URL: p.URL, Source: p.Source, Options: p.Options}
	kind, err := s.checkURLRequest(req)
	if err != nil {
		return s.fail(ctx, report, err)
	}
	opts, _ := BuildOptions(s.settings.Defaults, p.Options)

	img, err := s.fetch(ctx, report.ID, kind, p.URL)
	if err != nil {
		// Network errors are retried by the queue; the report stays queued
		// until the last delivery.
		retryable := apperrors.IsType(err, apperrors.ErrorTypeNetwork) || apperrors.IsType(err, apperrors.ErrorTypeTimeout)
		if retryable && !queue.FinalAttempt(ctx) {
			return err
		}
		return s.fail(ctx, report, err)
	}

	_, err = s.run(ctx, report, img, opts, persistRequest(p.Options))
	return err
}

func (s *extractionService) Get(ctx context.Context, id string) (*models.ExtractionReport, error) {
	report, err := s.extractions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrExtractionNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("extraction %s not found", id), err)
		}
		return nil, apperrors.NewInternalError("failed to load extraction", err)
	}
	return report, nil
}

func (s *extractionService) ExportCSV(ctx context.Context, id string) ([]byte, string, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !finished(report) {
		return nil, "", apperrors.NewValidationError(fmt.Sprintf("extraction is %s", report.Status), nil)
	}
	data, err := export.CSV(report.Results)
	if err != nil {
		return nil, "", apperrors.NewInternalError("failed to render CSV", err)
	}
	return data, export.FileName(report.ID), nil
}

func (s *extractionService) Persist(ctx context.Context, id string, req models.PersistRequest) (*models.ExtractionReport, error) {
	if s.sink == nil {
		return nil, apperrors.NewPersistenceError("schedule store is not configured", nil)
	}
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !finished(report) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("extraction is %s", report.Status), nil)
	}
	if len(report.Results) == 0 {
		return nil, apperrors.NewNoResultsError("extraction has no results to persist")
	}
	if _, err := persistence.BuildRows(nil, req, s.now()); err != nil {
		return nil, apperrors.NewValidationError("invalid persistence parameters", err)
	}

	if err := s.persist(ctx, report, req); err != nil {
		return report, err
	}
	return report, nil
}

// run executes the pipeline for a report and stores every state change.
func (s *extractionService) run(ctx context.Context, report *models.ExtractionReport, img *raster.Image, opts pipeline.Options, persistReq *models.PersistRequest) (*models.ExtractionReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ExtractionTimeout)
	defer cancel()

	report.Status = models.StatusProcessing
	if err := s.save(ctx, report); err != nil {
		return nil, err
	}
	s.publish(ctx, observer.ExtractionEvent{
		EventType:    observer.ExtractionStarted,
		ExtractionID: report.ID,
		Source:       report.Source,
		Success:      true,
	})

	outcome, err := s.extractor.Extract(ctx, pipeline.Job{
		ID:      report.ID,
		Image:   img,
		Options: opts,
		OnProgress: func(p int) {
			report.Progress = p
			if err := s.extractions.Save(ctx, report); err != nil {
				logger.WithError(err).WithField("extraction_id", report.ID).Debug("Progress not stored")
			}
		},
	})
	if err != nil {
		return nil, s.fail(ctx, report, classifyPipelineError(err))
	}

	completed := s.now()
	report.Results = outcome.Results
	table := outcome.Table
	report.Table = &table
	report.Passes = outcome.Passes
	report.QualityIssues = outcome.QualityIssues
	report.Progress = 100
	report.CompletedAt = &completed
	report.ProcessingTimeMs = outcome.Duration.Milliseconds()
	if report.Results == nil {
		report.Results = []models.ExtractionResult{}
	}

	if len(report.Results) == 0 {
		report.Status = models.StatusNoResults
		report.Message = apperrors.NewNoResultsError(
			fmt.Sprintf("no results reached %.0f%% confidence", opts.ConfidenceThreshold)).Message
	} else {
		report.Status = models.StatusCompleted
		report.Message = ""
	}
	if err := s.save(ctx, report); err != nil {
		return nil, err
	}

	s.publish(ctx, observer.ExtractionEvent{
		EventType:      observer.ExtractionCompleted,
		ExtractionID:   report.ID,
		Source:         report.Source,
		Results:        len(report.Results),
		Progress:       report.Progress,
		ProcessingTime: outcome.Duration,
		Success:        true,
	})

	if persistReq != nil && s.sink != nil && len(report.Results) > 0 {
		// A persistence failure is recorded on the report, the results stay.
		_ = s.persist(ctx, report, *persistReq)
	}
	return report, nil
}

func (s *extractionService) persist(ctx context.Context, report *models.ExtractionReport, req models.PersistRequest) error {
	now := s.now()
	outcome := &models.PersistenceOutcome{Table: s.sink.Table(), At: &now}
	log := logger.WithFields(logrus.Fields{
		"extraction_id": report.ID,
		"table":         outcome.Table,
	})

	rows, err := persistence.BuildRows(report.Results, req, now)
	if err == nil {
		outcome.Inserted, err = s.sink.Insert(ctx, rows)
	}

	event := observer.ExtractionEvent{
		EventType:    observer.ResultsPersisted,
		ExtractionID: report.ID,
		Results:      outcome.Inserted,
		Success:      true,
	}
	var appErr error
	if err != nil {
		outcome.Error = err.Error()
		event.EventType = observer.PersistenceFailed
		event.Success = false
		event.ErrorMessage = err.Error()
		appErr = apperrors.NewPersistenceError("failed to persist results", err)
		log.WithError(err).Error("Persisting results failed")
	} else {
		log.WithField("rows", outcome.Inserted).Info("Results persisted")
	}

	report.Persistence = outcome
	if saveErr := s.save(ctx, report); saveErr != nil && appErr == nil {
		appErr = saveErr
	}
	s.publish(ctx, event)
	return appErr
}

func (s *extractionService) fetch(ctx context.Context, id string, kind repository.SourceKind, imageURL string) (*raster.Image, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.settings.ImageFetchTimeout)
	defer cancel()

	start := time.Now()
	data, err := s.images.FetchImage(fetchCtx, kind, imageURL)
	if err != nil {
		appErr := classifyFetchError(err)
		s.publish(ctx, observer.ExtractionEvent{
			EventType:    observer.ImageFetchFailed,
			ExtractionID: id,
			Source:       string(kind),
			ErrorMessage: err.Error(),
		})
		logger.WithError(err).WithFields(logrus.Fields{
			"extraction_id": id,
			"url":           imageURL,
		}).Error("Failed to fetch image")
		return nil, appErr
	}

	img, err := raster.DecodeLimited(data, s.settings.MaxImagePixels)
	if err != nil {
		return nil, apperrors.NewInvalidImageError("downloaded file is not a readable image", err)
	}
	s.publish(ctx, observer.ExtractionEvent{
		EventType:      observer.ImageFetched,
		ExtractionID:   id,
		Source:         string(kind),
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata:       map[string]interface{}{"bytes": len(data)},
	})
	return img, nil
}

func (s *extractionService) checkURLRequest(req models.URLExtractionRequest) (repository.SourceKind, error) {
	kind, err := parseSource(req.Source)
	if err != nil {
		return "", err
	}
	if err := s.images.ValidateImageURL(kind, req.URL); err != nil {
		if errors.Is(err, repository.ErrUnknownSource) {
			return "", apperrors.NewValidationError("image source is not configured", err)
		}
		return "", apperrors.NewValidationError("invalid image URL", err)
	}
	if err := validateOptionsRequest(s.settings.Defaults, req.Options); err != nil {
		return "", err
	}
	return kind, nil
}

// fail marks the report as failed and returns err as an AppError.
func (s *extractionService) fail(ctx context.Context, report *models.ExtractionReport, err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewProcessingError("extraction failed", err)
	}
	completed := s.now()
	report.Status = models.StatusFailed
	report.Message = appErr.Error()
	report.CompletedAt = &completed
	if saveErr := s.save(context.WithoutCancel(ctx), report); saveErr != nil {
		logger.WithError(saveErr).WithField("extraction_id", report.ID).Error("Failed to store failed extraction")
	}
	s.publish(ctx, observer.ExtractionEvent{
		EventType:    observer.ExtractionFailed,
		ExtractionID: report.ID,
		Source:       report.Source,
		ErrorMessage: appErr.Error(),
	})
	return appErr
}

func (s *extractionService) save(ctx context.Context, report *models.ExtractionReport) error {
	if err := s.extractions.Save(ctx, report); err != nil {
		return apperrors.NewInternalError("failed to store extraction", err)
	}
	return nil
}

func (s *extractionService) newReport(source string) *models.ExtractionReport {
	return &models.ExtractionReport{
		ID:        uuid.NewString(),
		Status:    models.StatusProcessing,
		Source:    source,
		Results:   []models.ExtractionResult{},
		CreatedAt: s.now(),
	}
}

func (s *extractionService) publish(ctx context.Context, event observer.ExtractionEvent) {
	if s.events != nil {
		s.events.NotifyObservers(ctx, event)
	}
}

func finished(report *models.ExtractionReport) bool {
	return report.Status == models.StatusCompleted || report.Status == models.StatusNoResults
}

func persistRequest(req *models.ExtractionOptionsRequest) *models.PersistRequest {
	if req == nil {
		return nil
	}
	return req.Persist
}

func classifyPipelineError(err error) error {
	switch {
	case errors.Is(err, raster.ErrInvalidImage):
		return apperrors.NewInvalidImageError("image cannot be processed", err)
	case errors.Is(err, ocr.ErrEngineUnavailable):
		return apperrors.NewOCREngineError("no OCR engine is available", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("extraction timed out", err)
	default:
		return apperrors.NewProcessingError("extraction failed", err)
	}
}

func classifyFetchError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("image fetch timeout", err)
	case errors.Is(err, storage.ErrImageTooLarge):
		return apperrors.NewInvalidImageError("image is too large", err)
	case errors.Is(err, repository.ErrUnknownSource):
		return apperrors.NewValidationError("image source is not configured", err)
	default:
		return apperrors.NewNetworkError("failed to fetch image", err)
	}
}
