package queue

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/anime-shed/fleet-schedule-extractor/internal/errors"
	"github.com/anime-shed/fleet-schedule-extractor/internal/logger"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Runner executes a queued extraction.
type Runner interface {
	RunQueued(ctx context.Context, p ExtractionPayload) error
}

// ServerConfig configures the consumer side.
type ServerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
}

// Server consumes extraction tasks.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	cfg    ServerConfig
}

// NewServer creates an asynq server routing extraction:run to runner.
func NewServer(cfg ServerConfig, runner Runner) (*Server, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.QueueName: 10,
			"default":     1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(5*(1<<uint(n))) * time.Second
			if delay > time.Minute {
				delay = time.Minute
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.WithError(err).WithFields(logrus.Fields{
				"task_type": task.Type(),
			}).Error("Extraction task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExtractionRun, HandleExtraction(runner))

	return &Server{server: server, mux: mux, cfg: cfg}, nil
}

// HandleExtraction adapts runner to an asynq handler. Input errors are not
// retried since they cannot succeed on a second attempt.
func HandleExtraction(runner Runner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := ParseExtractionTask(task)
		if err != nil {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		ctx = markFinalAttempt(ctx)
		log := logger.WithFields(logrus.Fields{
			"extraction_id": p.ExtractionID,
			"final_attempt": FinalAttempt(ctx),
		})
		log.Info("Running queued extraction")

		if err := runner.RunQueued(ctx, p); err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeValidation) ||
				apperrors.IsType(err, apperrors.ErrorTypeInvalidImage) ||
				apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
				return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

type finalAttemptKey struct{}

// WithFinalAttempt marks ctx as carrying the last delivery of a task.
func WithFinalAttempt(ctx context.Context) context.Context {
	return context.WithValue(ctx, finalAttemptKey{}, true)
}

// FinalAttempt reports whether a failure of the running task ends its
// retries.
func FinalAttempt(ctx context.Context) bool {
	final, _ := ctx.Value(finalAttemptKey{}).(bool)
	return final
}

func markFinalAttempt(ctx context.Context) context.Context {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return ctx
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok || retried < maxRetry {
		return ctx
	}
	return WithFinalAttempt(ctx)
}

// Run blocks processing tasks until the process receives a shutdown signal.
func (s *Server) Run() error {
	logger.WithFields(logrus.Fields{
		"queue":       s.cfg.QueueName,
		"concurrency": s.cfg.Concurrency,
	}).Info("Starting extraction worker")
	return s.server.Run(s.mux)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() {
	s.server.Shutdown()
}
