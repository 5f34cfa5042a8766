package models

import (
	"time"

	"github.com/google/uuid"
)

// Merchant is the business operator owning customers and jobs. The three
// gc_* columns are only ever written together: token + organisation id + the
// handshake timestamp define "connected", and a partial triple means the
// connection must be re-established.
type Merchant struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string    `gorm:"column:email;not null;unique"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	GCAccessTokenEncrypted *string    `gorm:"column:gc_access_token_encrypted"`
	GCOrganisationID       *string    `gorm:"column:gc_organisation_id"`
	GCConnectedAt          *time.Time `gorm:"column:gc_connected_at"`
}
