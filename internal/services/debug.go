package services

import (
	"context"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefundDebugChannel carries refund diagnostics to realtime subscribers.
const RefundDebugChannel = "sumup:refund:debug"

// DebugSink records diagnostic payloads keyed by an operation step and
// pushes them to the realtime debug channel. It is a no-op while debug
// logging is disabled in settings, and publish failures never surface.
type DebugSink struct {
	db    *gorm.DB
	cache *RedisCache
}

func NewDebugSink(db *gorm.DB, cache *RedisCache) *DebugSink {
	return &DebugSink{db: db, cache: cache}
}

// Enabled reports whether debug logging is switched on in settings.
func (s *DebugSink) Enabled() bool {
	if s == nil || s.db == nil {
		return false
	}
	settings, err := GetSettings(s.db)
	if err != nil {
		return false
	}
	return settings.EnableDebugLogging
}

// PublishRefundDebug emits one refund diagnostic event.
func (s *DebugSink) PublishRefundDebug(ctx context.Context, invoiceID uint, step string, details map[string]interface{}) {
	if !s.Enabled() {
		return
	}

	payload := map[string]interface{}{
		"event_id":   uuid.NewString(),
		"invoice_id": invoiceID,
		"step":       step,
		"details":    details,
	}
	log.Printf("[sumup debug] refund %s (invoice=%d): %v", step, invoiceID, details)

	if s.cache == nil {
		return
	}
	if err := s.cache.Publish(ctx, RefundDebugChannel, payload); err != nil {
		log.Printf("[sumup debug] publish failed: %v", err)
	}
}
