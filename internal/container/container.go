package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anime-shed/fleet-schedule-extractor/internal/config"
	"github.com/anime-shed/fleet-schedule-extractor/internal/factory"
	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/observer"
	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/internal/persistence"
	"github.com/anime-shed/fleet-schedule-extractor/internal/pipeline"
	"github.com/anime-shed/fleet-schedule-extractor/internal/preprocess"
	"github.com/anime-shed/fleet-schedule-extractor/internal/quality"
	"github.com/anime-shed/fleet-schedule-extractor/internal/queue"
	"github.com/anime-shed/fleet-schedule-extractor/internal/repository"
	"github.com/anime-shed/fleet-schedule-extractor/internal/service"
	"github.com/anime-shed/fleet-schedule-extractor/internal/transport"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/validation"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	engines     map[models.EngineID]ocr.Engine
	redisClient *redis.Client
	sink        persistence.Sink
	enqueuer    queue.Enqueuer
	metrics     *observer.MetricsObserver
	service     service.ExtractionService
	handler     http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	return NewContainerWith(ctx, cfg, factory.NewEngineFactory(cfg.OCRLanguage, cfg.OCRCallTimeout))
}

// NewContainerWith builds the container with a custom engine factory
func NewContainerWith(ctx context.Context, cfg *config.Config, engineFactory factory.EngineFactory) (*Container, error) {
	c := &Container{config: cfg}

	// Events
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	c.metrics = observer.NewMetricsObserver()
	events.Subscribe(c.metrics)

	// Image sources
	sources, err := factory.NewStorageFactory(factory.SourceConfig{
		FetchTimeout: cfg.ImageFetchTimeout,
		MaxBytes:     cfg.MaxRequestBodySize,
		AzureAccount: cfg.AzureStorageAccount,
		AzureKey:     cfg.AzureStorageKey,
	}).CreateAll()
	if err != nil {
		return nil, fmt.Errorf("failed to create image sources: %w", err)
	}
	imageRepository := repository.NewSourceImageRepository(sources, validation.NewURLValidator())

	// Result store
	var extractions repository.ExtractionRepository
	if cfg.RedisURL != "" {
		c.redisClient, err = repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect result store: %w", err)
		}
		extractions = repository.NewRedisRepository(c.redisClient, cfg.ResultTTL)
	} else {
		extractions = repository.NewMemoryRepository()
	}

	// Schedule store
	if cfg.DatabaseURL != "" {
		sink, err := persistence.NewPostgresSink(ctx, cfg.DatabaseURL, cfg.PersistenceTable)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect schedule store: %w", err)
		}
		c.sink = sink
	}

	// Queue producer
	if cfg.QueueEnabled() {
		c.enqueuer, err = queue.NewEnqueuer(queue.ClientConfig{
			RedisURL:  cfg.RedisURL,
			QueueName: cfg.QueueName,
			MaxRetry:  3,
			Timeout:   cfg.ImageFetchTimeout + cfg.ExtractionTimeout,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create queue client: %w", err)
		}
	}

	// Pipeline
	c.engines = engineFactory.CreateEngines(cfg.EnabledEngines)
	extractor := pipeline.NewExtractor(pipeline.Dependencies{
		Engines:      c.engines,
		Preprocessor: preprocess.NewPreprocessor(cfg.OCRMaxWorkers),
		Inspector:    quality.NewInspector(validation.NewQualityValidator()),
		Validator:    validation.NewResultValidator(cfg.KnownFleetIDs),
		Events:       events,
	})

	defaults := pipeline.DefaultOptions().
		WithEngines(cfg.EnabledEngines...).
		WithConfidenceThreshold(cfg.ConfidenceThreshold)
	defaults.Weights = cfg.EngineWeights
	defaults.MinValidationScore = cfg.MinValidationScore
	defaults.Workers = cfg.OCRMaxWorkers

	c.service = service.NewExtractionService(service.Dependencies{
		Images:      imageRepository,
		Extractions: extractions,
		Extractor:   extractor,
		Sink:        c.sink,
		Enqueuer:    c.enqueuer,
		Events:      events,
	}, service.Settings{
		Defaults:          defaults,
		ExtractionTimeout: cfg.ExtractionTimeout,
		ImageFetchTimeout: cfg.ImageFetchTimeout,
		MaxImagePixels:    cfg.MaxImagePixels,
	})

	c.handler = transport.NewHandler(c.service, c.metrics, transport.HandlerConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	logger.WithFields(logrus.Fields{
		"engines":     len(c.engines),
		"redis":       c.redisClient != nil,
		"persistence": c.sink != nil,
		"queue":       c.enqueuer != nil,
		"azure":       cfg.AzureStorageAccount != "",
	}).Info("Container initialized")

	return c, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Service returns the extraction service
func (c *Container) Service() service.ExtractionService {
	return c.service
}

// Metrics returns the event counters
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases engines and connections
func (c *Container) Close() {
	for id, engine := range c.engines {
		if err := engine.Close(); err != nil {
			logger.WithError(err).WithField("engine", id).Warn("Failed to close OCR engine")
		}
	}
	if c.enqueuer != nil {
		if err := c.enqueuer.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close queue client")
		}
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close schedule store")
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close result store")
		}
	}
}
