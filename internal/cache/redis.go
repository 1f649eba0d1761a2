package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/speedwagon-io/soilwatch/internal/config"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

var ErrMiss = errors.New("no cached report")

// Redis keeps the latest report per device so a restarted dashboard can
// serve something before its first refresh completes.
type Redis struct {
	log    *slog.Logger
	client redis.Cmdable
	closer func() error
	prefix string
	ttl    time.Duration
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

func NewRedis(log *slog.Logger, client redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	r := &Redis{
		log:    log.With(slog.String("component", "cache")),
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
	if c, ok := client.(interface{ Close() error }); ok {
		r.closer = c.Close
	}
	return r
}

func (r *Redis) Name() string {
	return "redis"
}

func (r *Redis) Key(deviceID string) string {
	return r.prefix + ":latest:" + deviceID
}

func (r *Redis) Present(ctx context.Context, report *model.Report) error {
	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := r.client.Set(ctx, r.Key(report.DeviceID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}

	return nil
}

// Latest returns the cached report of deviceID. The report carries the
// metrics but not the full reading list, which is never serialized.
func (r *Redis) Latest(ctx context.Context, deviceID string) (*model.Report, error) {
	data, err := r.client.Get(ctx, r.Key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}

	report, err := model.ReportFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}

	return report, nil
}

func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
