package factory

import (
	"fmt"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr/tesseract"
	"github.com/anime-shed/fleet-schedule-extractor/internal/repository"
	"github.com/anime-shed/fleet-schedule-extractor/internal/storage"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/sirupsen/logrus"
)

// EngineConstructor builds the recognizer for one engine variant.
type EngineConstructor func(id models.EngineID, language string) (ocr.Engine, error)

// EngineFactory creates OCR engines
type EngineFactory interface {
	CreateEngine(id models.EngineID) (ocr.Engine, error)
	// CreateEngines builds every engine it can. Failures are logged and the
	// engine is left out; the pipeline reports it as unavailable.
	CreateEngines(ids []models.EngineID) map[models.EngineID]ocr.Engine
}

// engineFactory implements EngineFactory
type engineFactory struct {
	language    string
	callTimeout time.Duration
	construct   EngineConstructor
}

// NewEngineFactory creates Tesseract engines whose calls are bounded by callTimeout
func NewEngineFactory(language string, callTimeout time.Duration) EngineFactory {
	return NewEngineFactoryWith(tesseract.NewEngine, language, callTimeout)
}

// NewEngineFactoryWith uses a custom constructor
func NewEngineFactoryWith(construct EngineConstructor, language string, callTimeout time.Duration) EngineFactory {
	return &engineFactory{language: language, callTimeout: callTimeout, construct: construct}
}

// CreateEngine creates an engine based on the specified id
func (f *engineFactory) CreateEngine(id models.EngineID) (ocr.Engine, error) {
	if !id.IsRecognizer() {
		return nil, fmt.Errorf("%w: unsupported engine %q", ocr.ErrEngineUnavailable, id)
	}
	engine, err := f.construct(id, f.language)
	if err != nil {
		return nil, err
	}
	return ocr.WithTimeout(engine, f.callTimeout), nil
}

func (f *engineFactory) CreateEngines(ids []models.EngineID) map[models.EngineID]ocr.Engine {
	engines := make(map[models.EngineID]ocr.Engine, len(ids))
	for _, id := range ids {
		if _, done := engines[id]; done {
			continue
		}
		engine, err := f.CreateEngine(id)
		if err != nil {
			logger.WithError(err).WithField("engine", id).Warn("OCR engine unavailable")
			continue
		}
		engines[id] = engine
	}
	logger.WithFields(logrus.Fields{
		"engines":  len(engines),
		"language": f.language,
		"timeout":  f.callTimeout,
	}).Info("OCR engines ready")
	return engines
}

// SourceConfig holds the settings of the image sources
type SourceConfig struct {
	FetchTimeout time.Duration
	MaxBytes     int64
	AzureAccount string
	AzureKey     string
}

// StorageFactory creates image sources
type StorageFactory interface {
	CreateStorage(kind repository.SourceKind) (storage.ImageSource, error)
	// CreateAll returns every configured source.
	CreateAll() (map[repository.SourceKind]storage.ImageSource, error)
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg SourceConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg SourceConfig) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a source based on the specified kind
func (f *storageFactory) CreateStorage(kind repository.SourceKind) (storage.ImageSource, error) {
	switch kind {
	case repository.SourceHTTP:
		opts := storage.DefaultHTTPFetcherOptions()
		if f.cfg.FetchTimeout > 0 {
			opts.Timeout = f.cfg.FetchTimeout
		}
		if f.cfg.MaxBytes > 0 {
			opts.MaxBytes = f.cfg.MaxBytes
		}
		return storage.NewHTTPImageFetcher(opts), nil
	case repository.SourceAzure:
		if f.cfg.AzureAccount == "" {
			return nil, fmt.Errorf("azure storage is not configured")
		}
		return storage.NewAzureStorage(f.cfg.AzureAccount, f.cfg.AzureKey, f.cfg.MaxBytes)
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownSource, kind)
	}
}

func (f *storageFactory) CreateAll() (map[repository.SourceKind]storage.ImageSource, error) {
	sources := make(map[repository.SourceKind]storage.ImageSource)
	httpSource, err := f.CreateStorage(repository.SourceHTTP)
	if err != nil {
		return nil, err
	}
	sources[repository.SourceHTTP] = httpSource

	if f.cfg.AzureAccount != "" {
		azureSource, err := f.CreateStorage(repository.SourceAzure)
		if err != nil {
			return nil, err
		}
		sources[repository.SourceAzure] = azureSource
	}
	return sources, nil
}
