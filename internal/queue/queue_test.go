package queue

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/anime-shed/fleet-schedule-extractor/internal/errors"
	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, p ExtractionPayload) error

func (f runnerFunc) RunQueued(ctx context.Context, p ExtractionPayload) error { return f(ctx, p) }

func TestExtractionTaskRoundTrip(t *testing.T) {
	threshold := 75.0
	in := ExtractionPayload{
		ExtractionID: "7d7f",
		Source:       "azure",
		URL:          "https://acct.blob.core.windows.net/boards/a.jpg",
		Options:      &models.ExtractionOptionsRequest{Engines: []string{"tesseract_line"}, ConfidenceThreshold: &threshold},
	}

	task, err := NewExtractionTask(in)
	require.NoError(t, err)
	assert.Equal(t, TypeExtractionRun, task.Type())

	out, err := ParseExtractionTask(task)
	require.NoError(t, err)
	assert.Equal(t, in.ExtractionID, out.ExtractionID)
	assert.Equal(t, in.URL, out.URL)
	require.NotNil(t, out.Options)
	assert.Equal(t, 75.0, *out.Options.ConfidenceThreshold)
}

func TestNewExtractionTask_RequiresIDAndURL(t *testing.T) {
	_, err := NewExtractionTask(ExtractionPayload{URL: "https://example.com/a.jpg"})
	assert.Error(t, err)
	_, err = NewExtractionTask(ExtractionPayload{ExtractionID: "x"})
	assert.Error(t, err)
}

func TestHandleExtraction(t *testing.T) {
	task, err := NewExtractionTask(ExtractionPayload{ExtractionID: "x", URL: "https://example.com/a.jpg"})
	require.NoError(t, err)

	var got ExtractionPayload
	err = HandleExtraction(runnerFunc(func(ctx context.Context, p ExtractionPayload) error {
		got = p
		return nil
	}))(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "x", got.ExtractionID)
}

func TestHandleExtraction_RetryPolicy(t *testing.T) {
	task, err := NewExtractionTask(ExtractionPayload{ExtractionID: "x", URL: "https://example.com/a.jpg"})
	require.NoError(t, err)

	transient := errors.New("redis down")
	err = HandleExtraction(runnerFunc(func(ctx context.Context, p ExtractionPayload) error {
		return transient
	}))(context.Background(), task)
	assert.ErrorIs(t, err, transient)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	err = HandleExtraction(runnerFunc(func(ctx context.Context, p ExtractionPayload) error {
		return apperrors.NewInvalidImageError("not an image", nil)
	}))(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = HandleExtraction(nil)(context.Background(), asynq.NewTask(TypeExtractionRun, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestFinalAttempt(t *testing.T) {
	assert.False(t, FinalAttempt(context.Background()))
	assert.True(t, FinalAttempt(WithFinalAttempt(context.Background())))

	// Outside an asynq worker there is no retry metadata.
	task, err := NewExtractionTask(ExtractionPayload{ExtractionID: "x", URL: "https://example.com/a.jpg"})
	require.NoError(t, err)
	var final bool
	err = HandleExtraction(runnerFunc(func(ctx context.Context, p ExtractionPayload) error {
		final = FinalAttempt(ctx)
		return nil
	}))(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, final)
}

func TestConfigValidation(t *testing.T) {
	_, err := NewEnqueuer(ClientConfig{QueueName: "extractions"})
	assert.Error(t, err)
	_, err = NewEnqueuer(ClientConfig{RedisURL: "redis://localhost:6379"})
	assert.Error(t, err)
	_, err = NewServer(ServerConfig{RedisURL: "redis://localhost:6379", QueueName: "q"}, nil)
	assert.Error(t, err)
}
