package customers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/glintbooks/glint-backend/pkg/db/models"
	"github.com/glintbooks/glint-backend/pkg/enums"
)

func setupCustomersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	customers := `
CREATE TABLE IF NOT EXISTS customers (
  id TEXT PRIMARY KEY,
  merchant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  gc_mandate_ref TEXT,
  mandate_status TEXT
);`
	require.NoError(t, db.Exec(customers).Error)
	return db
}

func seedCustomer(t *testing.T, repo Repository, merchantID uuid.UUID) *models.Customer {
	t.Helper()
	customer, err := repo.Create(context.Background(), &models.Customer{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Name:       "Priya Shah",
		Email:      "priya@example.com",
	})
	require.NoError(t, err)
	return customer
}

func TestSetMandateRequestResetsStatus(t *testing.T) {
	db := setupCustomersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	customer := seedCustomer(t, repo, uuid.New())

	active := enums.MandateStatusActive
	oldRef := "MD000"
	require.NoError(t, repo.UpdateMandateState(ctx, customer.ID, &oldRef, &active))

	require.NoError(t, repo.SetMandateRequest(ctx, customer.ID, "BRQ123"))

	got, err := repo.FindByID(ctx, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, got.GCMandateRef)
	assert.Equal(t, "BRQ123", *got.GCMandateRef)
	assert.Nil(t, got.MandateStatus)
}

func TestFindByMandateRefMatchesBothRefKinds(t *testing.T) {
	db := setupCustomersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	customer := seedCustomer(t, repo, uuid.New())

	require.NoError(t, repo.SetMandateRequest(ctx, customer.ID, "BRQ123"))
	got, err := repo.FindByMandateRef(ctx, "BRQ123")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, got.ID)

	active := enums.MandateStatusActive
	mandateRef := "MD456"
	require.NoError(t, repo.UpdateMandateState(ctx, customer.ID, &mandateRef, &active))

	got, err = repo.FindByMandateRef(ctx, "MD456")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, got.ID)

	_, err = repo.FindByMandateRef(ctx, "BRQ123")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateMandateStateClearsRefOnTerminal(t *testing.T) {
	db := setupCustomersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	customer := seedCustomer(t, repo, uuid.New())

	active := enums.MandateStatusActive
	ref := "MD456"
	require.NoError(t, repo.UpdateMandateState(ctx, customer.ID, &ref, &active))

	cancelled := enums.MandateStatusCancelled
	require.NoError(t, repo.UpdateMandateState(ctx, customer.ID, nil, &cancelled))

	got, err := repo.FindByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GCMandateRef)
	require.NotNil(t, got.MandateStatus)
	assert.Equal(t, enums.MandateStatusCancelled, *got.MandateStatus)
}

func TestFindByIDForMerchantScopesOwnership(t *testing.T) {
	db := setupCustomersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	merchantID := uuid.New()
	customer := seedCustomer(t, repo, merchantID)

	got, err := repo.FindByIDForMerchant(ctx, merchantID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, got.ID)

	_, err = repo.FindByIDForMerchant(ctx, uuid.New(), customer.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
