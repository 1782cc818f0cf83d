package repository

import (
	"context"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

// SourceKind names where an image is downloaded from.
type SourceKind string

const (
	SourceHTTP  SourceKind = "http"
	SourceAzure SourceKind = "azure"
)

// ImageRepository defines the interface for image data access operations
type ImageRepository interface {
	// FetchImage downloads the raw bytes of an image
	FetchImage(ctx context.Context, kind SourceKind, imageURL string) ([]byte, error)

	// ValidateImageURL validates if the provided URL is acceptable for kind
	ValidateImageURL(kind SourceKind, imageURL string) error
}

// ExtractionRepository stores extraction reports between the request that
// creates them and the requests that read, export or persist them.
type ExtractionRepository interface {
	// Save stores the report, replacing any previous version
	Save(ctx context.Context, report *models.ExtractionReport) error

	// Get retrieves a stored report or ErrExtractionNotFound
	Get(ctx context.Context, id string) (*models.ExtractionReport, error)
}
