package customers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glintbooks/glint-backend/pkg/db/models"
	"github.com/glintbooks/glint-backend/pkg/enums"
)

// Repository defines persistence operations for customers and their
// mandate columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, customer *models.Customer) (*models.Customer, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Customer, error)
	FindByMandateRef(ctx context.Context, ref string) (*models.Customer, error)
	SetMandateRequest(ctx context.Context, id uuid.UUID, billingRequestRef string) error
	UpdateMandateState(ctx context.Context, id uuid.UUID, ref *string, status *enums.MandateStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a customers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, customer *models.Customer) (*models.Customer, error) {
	if err := r.db.WithContext(ctx).Create(customer).Error; err != nil {
		return nil, err
	}
	return customer, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindByIDForMerchant(ctx context.Context, merchantID, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindByMandateRef matches gc_mandate_ref whether it currently holds a
// billing-request id or a mandate id.
func (r *repository) FindByMandateRef(ctx context.Context, ref string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Where("gc_mandate_ref = ?", ref).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// SetMandateRequest stores the billing-request reference and resets the
// mandate status so a fresh authorization flow starts clean.
func (r *repository) SetMandateRequest(ctx context.Context, id uuid.UUID, billingRequestRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"gc_mandate_ref": billingRequestRef,
			"mandate_status": nil,
		}).Error
}

func (r *repository) UpdateMandateState(ctx context.Context, id uuid.UUID, ref *string, status *enums.MandateStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"gc_mandate_ref": ref,
			"mandate_status": status,
		}).Error
}
