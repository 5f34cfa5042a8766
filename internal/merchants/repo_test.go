package merchants

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/glintbooks/glint-backend/pkg/db/models"
)

func setupMerchantsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	merchants := `
CREATE TABLE IF NOT EXISTS merchants (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  gc_access_token_encrypted TEXT,
  gc_organisation_id TEXT,
  gc_connected_at DATETIME
);`
	require.NoError(t, db.Exec(merchants).Error)
	return db
}

func seedMerchant(t *testing.T, repo Repository) *models.Merchant {
	t.Helper()
	merchant, err := repo.Create(context.Background(), &models.Merchant{
		ID:    uuid.New(),
		Email: "owner@sparkleclean.co.uk",
		Name:  "Sparkle Clean",
	})
	require.NoError(t, err)
	return merchant
}

func TestSaveConnectionWritesAllColumns(t *testing.T) {
	db := setupMerchantsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	merchant := seedMerchant(t, repo)

	connectedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.SaveConnection(ctx, merchant.ID, "enc-token", "OR123", connectedAt))

	got, err := repo.FindByID(ctx, merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, got.GCAccessTokenEncrypted)
	assert.Equal(t, "enc-token", *got.GCAccessTokenEncrypted)
	require.NotNil(t, got.GCOrganisationID)
	assert.Equal(t, "OR123", *got.GCOrganisationID)
	require.NotNil(t, got.GCConnectedAt)
	assert.WithinDuration(t, connectedAt, *got.GCConnectedAt, time.Second)
}

func TestClearConnectionRemovesAllColumns(t *testing.T) {
	db := setupMerchantsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	merchant := seedMerchant(t, repo)

	require.NoError(t, repo.SaveConnection(ctx, merchant.ID, "enc-token", "OR123", time.Now().UTC()))
	require.NoError(t, repo.ClearConnection(ctx, merchant.ID))

	got, err := repo.FindByID(ctx, merchant.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GCAccessTokenEncrypted)
	assert.Nil(t, got.GCOrganisationID)
	assert.Nil(t, got.GCConnectedAt)
}

func TestFindByEmail(t *testing.T) {
	db := setupMerchantsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	merchant := seedMerchant(t, repo)

	got, err := repo.FindByEmail(ctx, merchant.Email)
	require.NoError(t, err)
	assert.Equal(t, merchant.ID, got.ID)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
