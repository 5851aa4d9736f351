package factory

import (
	"context"
	"fmt"
	"io"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/config"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/storage"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/storage/filesystem"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/storage/redis"
)

// Sink names used in logs and the audit_errors_total metric.
const (
	SinkFile  = "file"
	SinkRedis = "redis"
)

// AuditFactory builds the audit sink chain
type AuditFactory struct {
	cfg *config.Config
}

// NewAuditFactory creates a new audit factory
func NewAuditFactory(cfg *config.Config) *AuditFactory {
	return &AuditFactory{cfg: cfg}
}

// Create prepares the CSV log and, when AUDIT_REDIS_URL is set, a Redis stream
// mirror. The returned closer releases the Redis client and is never nil.
func (f *AuditFactory) Create(ctx context.Context) (core.AuditSink, io.Closer, error) {
	logger.Info("Creating CSV audit log", "path", f.cfg.AuditLogFile)
	auditLog := filesystem.NewAuditLog(f.cfg.AuditLogFile)
	if err := auditLog.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}

	tee := &storage.Tee{Sinks: []storage.NamedSink{{Name: SinkFile, Sink: auditLog}}}
	if f.cfg.AuditRedisURL == "" {
		return tee, nopCloser{}, nil
	}

	client, err := redis.NewClient(f.cfg.AuditRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		// The mirror is best-effort: each record is attempted once and a failure is only counted
		logger.Warn("Redis audit mirror unreachable at startup", "error", err)
	}

	logger.Info("Mirroring audit records to Redis stream",
		"stream", f.cfg.AuditRedisStream,
		"maxlen", f.cfg.AuditRedisMaxLen)
	tee.Sinks = append(tee.Sinks, storage.NamedSink{
		Name: SinkRedis,
		Sink: redis.NewAuditStream(client, f.cfg.AuditRedisStream, int64(f.cfg.AuditRedisMaxLen)),
	})
	return tee, client, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
