package services

import (
	"context"
	"fmt"
	"time"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const reminderDedupTTL = 26 * time.Hour

// ReminderDeduper guards against two instances sending the same reminder on
// the same day. It fails open: when Redis is unreachable the database record
// check is the only guard.
type ReminderDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReminderDeduper(rdb *redis.Client, ttl time.Duration) *ReminderDeduper {
	if ttl <= 0 {
		ttl = reminderDedupTTL
	}
	return &ReminderDeduper{rdb: rdb, ttl: ttl}
}

// NewReminderDeduperFromConfig returns nil when Redis is disabled.
func NewReminderDeduperFromConfig(cfg *config.RedisConfig) *ReminderDeduper {
	if !cfg.Enabled {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewReminderDeduper(rdb, reminderDedupTTL)
}

func reminderDedupKey(invoiceID, reminderType string, day time.Time) string {
	return fmt.Sprintf("reminder:%s:%s:%s", invoiceID, reminderType, day.Format("20060102"))
}

// AcquireOnce returns true the first time it is called for the key of the day.
func (d *ReminderDeduper) AcquireOnce(ctx context.Context, invoiceID, reminderType string, day time.Time) bool {
	if d == nil {
		return true
	}
	key := reminderDedupKey(invoiceID, reminderType, day)
	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("[Reminder] redis dedup check failed, allowing send")
		return true
	}
	if !ok {
		logger.Info().Str("key", key).Msg("[Reminder] skipped duplicate reminder")
	}
	return ok
}

// Release frees the key so a failed send can be retried.
func (d *ReminderDeduper) Release(ctx context.Context, invoiceID, reminderType string, day time.Time) {
	if d == nil {
		return
	}
	if err := d.rdb.Del(ctx, reminderDedupKey(invoiceID, reminderType, day)).Err(); err != nil {
		logger.Warn().Err(err).Msg("[Reminder] failed to release dedup key")
	}
}

func (d *ReminderDeduper) Close() error {
	if d == nil {
		return nil
	}
	return d.rdb.Close()
}
