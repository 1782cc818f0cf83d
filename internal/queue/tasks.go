package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/hibiken/asynq"
)

// TypeExtractionRun is the asynq task type for a queued extraction.
const TypeExtractionRun = "extraction:run"

// ExtractionPayload is the body of an extraction:run task.
type ExtractionPayload struct {
	ExtractionID string                           `json:"extraction_id"`
	Source       string                           `json:"source"`
	URL          string                           `json:"url"`
	Options      *models.ExtractionOptionsRequest `json:"options,omitempty"`
}

// NewExtractionTask encodes a payload into an asynq task.
func NewExtractionTask(p ExtractionPayload) (*asynq.Task, error) {
	if p.ExtractionID == "" || p.URL == "" {
		return nil, fmt.Errorf("extraction task needs an id and a url")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode extraction task: %w", err)
	}
	return asynq.NewTask(TypeExtractionRun, data), nil
}

// ParseExtractionTask decodes the payload of an extraction:run task.
func ParseExtractionTask(t *asynq.Task) (ExtractionPayload, error) {
	var p ExtractionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode extraction task: %w", err)
	}
	if p.ExtractionID == "" || p.URL == "" {
		return p, fmt.Errorf("extraction task without id or url")
	}
	return p, nil
}

// Enqueuer submits extraction tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, p ExtractionPayload) error
	Close() error
}

// ClientConfig configures the producer side.
type ClientConfig struct {
	RedisURL  string
	QueueName string
	MaxRetry  int
	Timeout   time.Duration
}

type asynqEnqueuer struct {
	client *asynq.Client
	cfg    ClientConfig
}

// NewEnqueuer connects an asynq client.
func NewEnqueuer(cfg ClientConfig) (Enqueuer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &asynqEnqueuer{client: asynq.NewClient(redisOpt), cfg: cfg}, nil
}

func (e *asynqEnqueuer) Enqueue(ctx context.Context, p ExtractionPayload) error {
	task, err := NewExtractionTask(p)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.Queue(e.cfg.QueueName),
		asynq.TaskID(p.ExtractionID),
		asynq.MaxRetry(e.cfg.MaxRetry),
	}
	if e.cfg.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.cfg.Timeout))
	}
	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", p.ExtractionID, err)
	}
	return nil
}

func (e *asynqEnqueuer) Close() error {
	return e.client.Close()
}
