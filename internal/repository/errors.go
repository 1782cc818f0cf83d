package repository

import "errors"

var (
	// ErrInvalidImageURL indicates an invalid image URL
	ErrInvalidImageURL = errors.New("invalid image URL")

	// ErrUnknownSource indicates a source kind without a registered fetcher
	ErrUnknownSource = errors.New("unknown image source")

	// ErrExtractionNotFound indicates the extraction report was not found
	ErrExtractionNotFound = errors.New("extraction not found")

	// ErrRepositoryUnavailable indicates the repository is unavailable
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
