package merchants

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glintbooks/glint-backend/pkg/db/models"
)

// Repository defines persistence operations for merchants and their
// provider connection columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, merchant *models.Merchant) (*models.Merchant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
	FindByEmail(ctx context.Context, email string) (*models.Merchant, error)
	SaveConnection(ctx context.Context, id uuid.UUID, encryptedToken, organisationID string, connectedAt time.Time) error
	ClearConnection(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a merchants repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, merchant *models.Merchant) (*models.Merchant, error) {
	if err := r.db.WithContext(ctx).Create(merchant).Error; err != nil {
		return nil, err
	}
	return merchant, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&merchant).Error
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&merchant).Error
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}

// SaveConnection writes all three connection columns in one statement so a
// merchant can never be left with a partial triple.
func (r *repository) SaveConnection(ctx context.Context, id uuid.UUID, encryptedToken, organisationID string, connectedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"gc_access_token_encrypted": encryptedToken,
			"gc_organisation_id":        organisationID,
			"gc_connected_at":           connectedAt,
		}).Error
}

func (r *repository) ClearConnection(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"gc_access_token_encrypted": nil,
			"gc_organisation_id":        nil,
			"gc_connected_at":           nil,
		}).Error
}
