package factory

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/internal/ocr"
	"github.com/anime-shed/fleet-schedule-extractor/internal/repository"
	"github.com/anime-shed/fleet-schedule-extractor/internal/storage"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

type stubEngine struct{ id models.EngineID }

func (s *stubEngine) ID() models.EngineID { return s.id }
func (s *stubEngine) Close() error        { return nil }
func (s *stubEngine) Recognize(ctx context.Context, img image.Image) (ocr.Recognition, error) {
	return ocr.Recognition{Text: "07:30 4611"}, nil
}

func TestEngineFactory_CreateEngines(t *testing.T) {
	var languages []string
	f := NewEngineFactoryWith(func(id models.EngineID, language string) (ocr.Engine, error) {
		languages = append(languages, language)
		if id == models.EngineTesseractSparse {
			return nil, ocr.ErrEngineUnavailable
		}
		return &stubEngine{id: id}, nil
	}, "por", time.Second)

	engines := f.CreateEngines([]models.EngineID{
		models.EngineTesseractBlock,
		models.EngineTesseractSparse,
		models.EngineTesseractBlock,
		models.EngineTesseractLine,
	})

	if len(engines) != 2 {
		t.Fatalf("Expected 2 engines, got %d", len(engines))
	}
	if _, ok := engines[models.EngineTesseractSparse]; ok {
		t.Error("Expected failing engine to be left out")
	}
	for _, l := range languages {
		if l != "por" {
			t.Errorf("Expected language por, got %s", l)
		}
	}

	rec, err := engines[models.EngineTesseractLine].Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)))
	if err != nil || rec.Text != "07:30 4611" {
		t.Errorf("Expected wrapped engine to delegate, got %q (%v)", rec.Text, err)
	}
}

func TestEngineFactory_RejectsEnsemble(t *testing.T) {
	f := NewEngineFactoryWith(func(id models.EngineID, language string) (ocr.Engine, error) {
		return &stubEngine{id: id}, nil
	}, "por", 0)

	_, err := f.CreateEngine(models.EngineEnsemble)
	if !errors.Is(err, ocr.ErrEngineUnavailable) {
		t.Errorf("Expected ErrEngineUnavailable, got %v", err)
	}
}

func TestStorageFactory(t *testing.T) {
	f := NewStorageFactory(SourceConfig{FetchTimeout: time.Second, MaxBytes: 1024})

	src, err := f.CreateStorage(repository.SourceHTTP)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := src.(*storage.HTTPImageFetcher); !ok {
		t.Errorf("Expected HTTPImageFetcher, got %T", src)
	}

	if _, err := f.CreateStorage(repository.SourceAzure); err == nil {
		t.Error("Expected error for unconfigured azure storage")
	}
	if _, err := f.CreateStorage("ftp"); !errors.Is(err, repository.ErrUnknownSource) {
		t.Errorf("Expected ErrUnknownSource, got %v", err)
	}

	all, err := f.CreateAll()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected only the http source, got %d", len(all))
	}
}
