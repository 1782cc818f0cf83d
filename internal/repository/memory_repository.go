package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
)

// memoryRepository keeps serialized reports in process memory. Storing the
// JSON form gives callers the same copy semantics as the Redis repository.
type memoryRepository struct {
	mu      sync.RWMutex
	reports map[string][]byte
}

// NewMemoryRepository creates an in-process extraction repository
func NewMemoryRepository() ExtractionRepository {
	return &memoryRepository{reports: make(map[string][]byte)}
}

func (r *memoryRepository) Save(ctx context.Context, report *models.ExtractionReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("save extraction: report without id")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode extraction %s: %w", report.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[report.ID] = data
	return nil
}

func (r *memoryRepository) Get(ctx context.Context, id string) (*models.ExtractionReport, error) {
	r.mu.RLock()
	data, ok := r.reports[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExtractionNotFound, id)
	}

	var report models.ExtractionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode extraction %s: %w", id, err)
	}
	return &report, nil
}
