package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
)

// StreamAdder is the part of the redis client the audit stream needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// AuditStream mirrors audit records into a Redis stream, trimmed to roughly MaxLen entries.
type AuditStream struct {
	client StreamAdder
	stream string
	maxLen int64
}

func NewAuditStream(client StreamAdder, stream string, maxLen int64) *AuditStream {
	return &AuditStream{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (s *AuditStream) Append(ctx context.Context, rec core.AuditRecord) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"ip":      rec.IP,
			"port":    rec.Port,
			"service": rec.Service,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to add audit record to stream %s: %w", s.stream, err)
	}
	return nil
}

// Appends run on the multiplexer goroutine, so an unreachable server may hold
// every client for at most one dial or one round trip per record.
const (
	DefaultDialTimeout = 500 * time.Millisecond
	DefaultIOTimeout   = 250 * time.Millisecond
)

// NewClient creates a redis client from a redis:// URL. Timeouts not set in
// the URL fall back to the short defaults above, and commands are never retried.
func NewClient(redisURL string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cant parse redis url: %w", err)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultIOTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultIOTimeout
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{opts.Addr},
		DB:           opts.DB,
		Username:     opts.Username,
		Password:     opts.Password,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		MaxRetries:   -1,
		TLSConfig:    opts.TLSConfig,
	}), nil
}
