package gcwebhook

import (
	"context"

	"gorm.io/gorm"

	"github.com/glintbooks/glint-backend/pkg/db/models"
)

// EventsRepository persists the append-only processed-event records.
type EventsRepository interface {
	WithTx(tx *gorm.DB) EventsRepository
	InsertProcessed(ctx context.Context, event *models.WebhookEvent) error
	FindProcessed(ctx context.Context, eventID string) (*models.WebhookEvent, error)
}

type eventsRepository struct {
	db *gorm.DB
}

// NewEventsRepository builds a webhook events repository bound to the
// provided DB.
func NewEventsRepository(db *gorm.DB) EventsRepository {
	return &eventsRepository{db: db}
}

func (r *eventsRepository) WithTx(tx *gorm.DB) EventsRepository {
	if tx == nil {
		return r
	}
	return &eventsRepository{db: tx}
}

// InsertProcessed records the event id. Inside the mutation transaction a
// primary-key violation here is the dedup signal.
func (r *eventsRepository) InsertProcessed(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventsRepository) FindProcessed(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
