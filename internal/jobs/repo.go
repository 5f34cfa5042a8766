package jobs

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glintbooks/glint-backend/pkg/db/models"
	"github.com/glintbooks/glint-backend/pkg/enums"
)

// Repository defines persistence operations for jobs and their payment
// ledger columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.Job) (*models.Job, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Job, error)
	FindByPaymentRef(ctx context.Context, ref string) (*models.Job, error)
	MarkPaymentSubmitted(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	UpdatePaymentIfProcessing(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	LinkPayment(ctx context.Context, id uuid.UUID, ref string) (bool, error)
	RevertPayment(ctx context.Context, id uuid.UUID) error
	RevertProcessingDirectDebitByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a jobs repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) FindByPaymentRef(ctx context.Context, ref string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("gc_payment_ref = ?", ref).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkPaymentSubmitted writes the payment ledger columns only while the job
// is unpaid with no provider payment attached. A false return means the job
// is already claimed or already settled.
func (r *repository) MarkPaymentSubmitted(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND gc_payment_ref IS NULL AND payment_status = ?", id, enums.PaymentStatusUnpaid).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdatePaymentIfProcessing applies webhook-driven transitions only while the
// job is still in the processing state, so a stale delivery cannot overwrite
// a settled outcome.
func (r *repository) UpdatePaymentIfProcessing(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// LinkPayment attaches a provider payment ref to an in-flight job whose link
// write was lost. Only a processing job with no ref is eligible.
func (r *repository) LinkPayment(ctx context.Context, id uuid.UUID, ref string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND gc_payment_ref IS NULL AND payment_status = ?", id, enums.PaymentStatusProcessing).
		Update("gc_payment_ref", ref)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RevertPayment clears every ledger column written by a failed collection.
func (r *repository) RevertPayment(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", id).
		Updates(PaymentResetColumns()).Error
}

// RevertProcessingDirectDebitByCustomer unwinds in-flight direct debit
// collections when the customer's mandate reaches a terminal state.
func (r *repository) RevertProcessingDirectDebitByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("customer_id = ? AND payment_status = ? AND payment_method = ?",
			customerID, enums.PaymentStatusProcessing, enums.PaymentMethodDirectDebit).
		Updates(PaymentResetColumns())
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// PaymentResetColumns is the full reversion set: every ledger column a
// collection writes goes back to its pre-collection value, so the job can be
// retried or settled another way.
func PaymentResetColumns() map[string]any {
	return map[string]any{
		"payment_status":    enums.PaymentStatusUnpaid,
		"payment_method":    nil,
		"amount_collected":  nil,
		"gc_payment_ref":    nil,
		"gc_payment_status": nil,
		"payment_date":      nil,
		"platform_fee":      nil,
		"provider_fee":      nil,
		"net_amount":        nil,
	}
}
