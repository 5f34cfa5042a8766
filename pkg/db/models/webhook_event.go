package models

import "time"

// WebhookEvent is the append-only processed-event record keyed by the
// provider-issued event id. The row is inserted in the same transaction as the
// state mutation it guards, so a replayed delivery hits the primary key and is
// skipped.
type WebhookEvent struct {
	EventID      string    `gorm:"column:event_id;primaryKey"`
	ResourceType string    `gorm:"column:resource_type;not null"`
	Action       string    `gorm:"column:action;not null"`
	ProcessedAt  time.Time `gorm:"column:processed_at;not null;autoCreateTime"`
}
