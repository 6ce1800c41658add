// Package rediscache keeps the latest outcome per target in Redis in front of
// a durable history store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

const keyPrefix = "uptimemonitor:last:"

// DefaultTTL bounds how long a stale latest outcome survives a stopped engine.
const DefaultTTL = 24 * time.Hour

var _ repo.HistoryStore = (*History)(nil)

// History decorates a HistoryStore. The inner store stays authoritative:
// cache errors are logged and never fail a Record.
type History struct {
	inner  repo.HistoryStore
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// New connects to redisURL and wraps inner.
func New(ctx context.Context, redisURL string, inner repo.HistoryStore, log *zap.Logger) (*History, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return Wrap(client, inner, log), nil
}

// Wrap builds a History over an existing client.
func Wrap(client *redis.Client, inner repo.HistoryStore, log *zap.Logger) *History {
	if log == nil {
		log = zap.NewNop()
	}
	return &History{inner: inner, client: client, ttl: DefaultTTL, log: log}
}

func (h *History) Close() error { return h.client.Close() }

func (h *History) Record(ctx context.Context, o domain.CheckOutcome) error {
	if err := h.inner.Record(ctx, o); err != nil {
		return err
	}
	data, err := json.Marshal(o)
	if err != nil {
		h.log.Warn("cache_encode_error", zap.String("target_id", string(o.TargetID)), zap.Error(err))
		return nil
	}
	if err := h.client.Set(ctx, keyPrefix+string(o.TargetID), data, h.ttl).Err(); err != nil {
		h.log.Warn("cache_set_error", zap.String("target_id", string(o.TargetID)), zap.Error(err))
	}
	return nil
}

func (h *History) LastOutcome(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	data, err := h.client.Get(ctx, keyPrefix+string(id)).Bytes()
	switch {
	case err == nil:
		var o domain.CheckOutcome
		if err := json.Unmarshal(data, &o); err == nil {
			return &o, nil
		}
		h.log.Warn("cache_decode_error", zap.String("target_id", string(id)))
	case errors.Is(err, redis.Nil):
		// miss
	default:
		h.log.Warn("cache_get_error", zap.String("target_id", string(id)), zap.Error(err))
	}
	return h.inner.LastOutcome(ctx, id)
}

func (h *History) History(ctx context.Context, id domain.TargetID, from, to time.Time) ([]domain.CheckOutcome, error) {
	return h.inner.History(ctx, id, from, to)
}
