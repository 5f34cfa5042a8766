package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glintbooks/glint-backend/pkg/enums"
)

// Job is a cleaning appointment plus its payment ledger fields. PaymentDate is
// only set once the provider confirms the funds were paid out.
type Job struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MerchantID  uuid.UUID  `gorm:"column:merchant_id;type:uuid;not null;index"`
	CustomerID  uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	Description string     `gorm:"column:description;not null"`
	ScheduledAt time.Time  `gorm:"column:scheduled_at;not null"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	AmountCollected decimal.NullDecimal          `gorm:"column:amount_collected;type:numeric(12,2)"`
	PaymentMethod   *enums.PaymentMethod         `gorm:"column:payment_method"`
	PaymentStatus   enums.PaymentStatus          `gorm:"column:payment_status;not null;default:'unpaid'"`
	GCPaymentRef    *string                      `gorm:"column:gc_payment_ref;uniqueIndex"`
	GCPaymentStatus *enums.ProviderPaymentStatus `gorm:"column:gc_payment_status"`
	PaymentDate     *time.Time                   `gorm:"column:payment_date"`
	PlatformFee     decimal.NullDecimal          `gorm:"column:platform_fee;type:numeric(12,2)"`
	ProviderFee     decimal.NullDecimal          `gorm:"column:provider_fee;type:numeric(12,2)"`
	NetAmount       decimal.NullDecimal          `gorm:"column:net_amount;type:numeric(12,2)"`
}
