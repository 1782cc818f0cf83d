package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/anime-shed/fleet-schedule-extractor/internal/errors"
	"github.com/anime-shed/fleet-schedule-extractor/internal/storage"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/validation"
)

func TestMemoryRepository_SaveAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	report := &models.ExtractionReport{
		ID:        "abc",
		Status:    models.StatusCompleted,
		CreatedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		Results: []models.ExtractionResult{
			{FleetID: "4611", TimeOfDay: "07:30", Confidence: 90},
		},
	}
	if err := repo.Save(ctx, report); err != nil {
		t.Fatalf("Unexpected save error: %v", err)
	}

	// Later changes to the caller's copy must not leak into the store.
	report.Results[0].FleetID = "9999"

	got, err := repo.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Unexpected get error: %v", err)
	}
	if got.Results[0].FleetID != "4611" {
		t.Errorf("Expected stored fleet 4611, got %s", got.Results[0].FleetID)
	}
	if !got.CreatedAt.Equal(report.CreatedAt) {
		t.Errorf("Expected created_at to round-trip, got %v", got.CreatedAt)
	}
}

func TestMemoryRepository_NotFound(t *testing.T) {
	_, err := NewMemoryRepository().Get(context.Background(), "missing")
	if !errors.Is(err, ErrExtractionNotFound) {
		t.Errorf("Expected ErrExtractionNotFound, got %v", err)
	}
}

func TestMemoryRepository_RejectsMissingID(t *testing.T) {
	repo := NewMemoryRepository()
	if err := repo.Save(context.Background(), &models.ExtractionReport{}); err == nil {
		t.Error("Expected error for report without id")
	}
	if err := repo.Save(context.Background(), nil); err == nil {
		t.Error("Expected error for nil report")
	}
}

type stubSource struct {
	data  []byte
	calls int
}

func (s *stubSource) Fetch(ctx context.Context, location string) ([]byte, error) {
	s.calls++
	return s.data, nil
}

func TestSourceImageRepository(t *testing.T) {
	httpSrc := &stubSource{data: []byte("http")}
	azureSrc := &stubSource{data: []byte("azure")}
	repo := NewSourceImageRepository(map[SourceKind]storage.ImageSource{
		SourceHTTP:  httpSrc,
		SourceAzure: azureSrc,
	}, validation.NewURLValidator())
	ctx := context.Background()

	data, err := repo.FetchImage(ctx, SourceHTTP, "https://example.com/board.jpg")
	if err != nil || string(data) != "http" {
		t.Errorf("Expected http payload, got %q (%v)", data, err)
	}

	data, err = repo.FetchImage(ctx, SourceAzure, "https://acct.blob.core.windows.net/boards/a.jpg")
	if err != nil || string(data) != "azure" {
		t.Errorf("Expected azure payload, got %q (%v)", data, err)
	}

	_, err = repo.FetchImage(ctx, SourceAzure, "https://example.com/board.jpg")
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for non-blob URL, got %v", err)
	}
	if azureSrc.calls != 1 {
		t.Errorf("Expected invalid URL not to be fetched, got %d calls", azureSrc.calls)
	}
}

func TestSourceImageRepository_UnknownSource(t *testing.T) {
	repo := NewSourceImageRepository(map[SourceKind]storage.ImageSource{
		SourceHTTP:  &stubSource{},
		SourceAzure: nil,
	}, nil)

	err := repo.ValidateImageURL(SourceAzure, "https://acct.blob.core.windows.net/boards/a.jpg")
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Expected ErrUnknownSource, got %v", err)
	}
}
