package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/glintbooks/glint-backend/pkg/enums"
)

// Customer carries the direct-debit mandate state. GCMandateRef holds a
// billing-request id (BRQ…) until the payer authorizes, then the real mandate
// id (MD…); it is cleared when the mandate reaches a terminal state.
type Customer struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID uuid.UUID `gorm:"column:merchant_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	Email      string    `gorm:"column:email;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`

	GCMandateRef  *string              `gorm:"column:gc_mandate_ref;index"`
	MandateStatus *enums.MandateStatus `gorm:"column:mandate_status"`
}
