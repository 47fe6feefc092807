package webhook

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/circle-registration/internal/config"
)

// EventLog remembers gateway event ids that were fully processed so
// redeliveries return early.  It is only a shortcut: every transition
// is a compare-and-swap, so a lost or disabled log changes nothing but
// the amount of work done.
type EventLog struct {
	log *zap.Logger
	rdb *redis.Client
	cfg config.EventLogConfig
}

// NewEventLog returns an EventLog.  rdb may be nil.
func NewEventLog(log *zap.Logger, rdb *redis.Client, cfg config.EventLogConfig) *EventLog {
	return &EventLog{log: log, rdb: rdb, cfg: cfg}
}

func (l *EventLog) enabled() bool { return l != nil && l.cfg.Enabled && l.rdb != nil }

func (l *EventLog) key(id string) string { return l.cfg.Prefix + ":" + id }

// Seen reports whether id was marked.  Redis failures count as unseen.
func (l *EventLog) Seen(ctx context.Context, id string) bool {
	if !l.enabled() || id == "" {
		return false
	}
	n, err := l.rdb.Exists(ctx, l.key(id)).Result()
	if err != nil {
		l.log.Warn("event log read failed", zap.String("event_id", id), zap.Error(err))
		return false
	}
	return n > 0
}

// Mark records id as processed.
func (l *EventLog) Mark(ctx context.Context, id string) {
	if !l.enabled() || id == "" {
		return
	}
	if err := l.rdb.SetNX(ctx, l.key(id), 1, l.cfg.TTL).Err(); err != nil {
		l.log.Warn("event log write failed", zap.String("event_id", id), zap.Error(err))
	}
}
