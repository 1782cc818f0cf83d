package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anime-shed/fleet-schedule-extractor/pkg/models"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fleet-extractor:extraction:"

type redisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRepository stores reports as JSON strings that expire after ttl.
// ttl <= 0 keeps them forever.
func NewRedisRepository(client *redis.Client, ttl time.Duration) ExtractionRepository {
	return &redisRepository{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return client, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (r *redisRepository) Save(ctx context.Context, report *models.ExtractionReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("save extraction: report without id")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode extraction %s: %w", report.ID, err)
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, redisKey(report.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return nil
}

func (r *redisRepository) Get(ctx context.Context, id string) (*models.ExtractionReport, error) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrExtractionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}

	var report models.ExtractionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode extraction %s: %w", id, err)
	}
	return &report, nil
}
