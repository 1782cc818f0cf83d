package repository

import (
	"context"
	"fmt"

	"github.com/anime-shed/fleet-schedule-extractor/internal/storage"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/validation"
)

// SourceImageRepository routes image downloads to the fetcher for each source kind
type SourceImageRepository struct {
	sources   map[SourceKind]storage.ImageSource
	validator *validation.URLValidator
}

// NewSourceImageRepository creates an image repository. Kinds with a nil
// source are left unregistered.
func NewSourceImageRepository(sources map[SourceKind]storage.ImageSource, validator *validation.URLValidator) ImageRepository {
	registered := make(map[SourceKind]storage.ImageSource, len(sources))
	for kind, src := range sources {
		if src != nil {
			registered[kind] = src
		}
	}
	if validator == nil {
		validator = validation.NewURLValidator()
	}
	return &SourceImageRepository{sources: registered, validator: validator}
}

// FetchImage downloads an image after validating its URL
func (r *SourceImageRepository) FetchImage(ctx context.Context, kind SourceKind, imageURL string) ([]byte, error) {
	if err := r.ValidateImageURL(kind, imageURL); err != nil {
		return nil, err
	}
	return r.sources[kind].Fetch(ctx, imageURL)
}

// ValidateImageURL validates the URL for the given source kind
func (r *SourceImageRepository) ValidateImageURL(kind SourceKind, imageURL string) error {
	if _, ok := r.sources[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}
	if kind == SourceAzure {
		return r.validator.ValidateBlobURL(imageURL)
	}
	return r.validator.ValidateImageURL(imageURL)
}
