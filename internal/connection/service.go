package connection

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/glintbooks/glint-backend/pkg/crypto"
	"github.com/glintbooks/glint-backend/pkg/db/models"
	"github.com/glintbooks/glint-backend/pkg/enums"
	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
	"github.com/glintbooks/glint-backend/pkg/gocardless"
	"github.com/glintbooks/glint-backend/pkg/logger"
)

type providerClient interface {
	AuthorizeURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*gocardless.AccessToken, error)
	ValidateToken(ctx context.Context, token string) (bool, error)
}

type merchantStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
	SaveConnection(ctx context.Context, id uuid.UUID, encryptedToken, organisationID string, connectedAt time.Time) error
	ClearConnection(ctx context.Context, id uuid.UUID) error
}

// ServiceParams groups dependencies for the connection service.
type ServiceParams struct {
	Merchants      merchantStore
	Provider       providerClient
	TokenKey       []byte
	StateSecret    []byte
	AllowedDomains []string
	Logger         *logger.Logger
	Now            func() time.Time
}

// Service owns the provider handshake and the merchant connection columns.
type Service struct {
	merchants      merchantStore
	provider       providerClient
	tokenKey       []byte
	stateSecret    []byte
	allowedDomains []string
	logg           *logger.Logger
	now            func() time.Time
}

// AuthorizationIntent is the prepared handshake handed back to the UI.
type AuthorizationIntent struct {
	URL   string
	State string
}

// Status reports the connection state derived from the merchant record alone,
// optionally refined by a live token probe.
type Status struct {
	State          enums.ConnectionState
	OrganisationID *string
	ConnectedAt    *time.Time
}

// NewService builds a connection service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Merchants == nil {
		return nil, errors.New("merchants store is required")
	}
	if params.Provider == nil {
		return nil, errors.New("provider client is required")
	}
	if len(params.TokenKey) == 0 {
		return nil, errors.New("token key is required")
	}
	if len(params.StateSecret) == 0 {
		return nil, errors.New("state secret is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		merchants:      params.Merchants,
		provider:       params.Provider,
		tokenKey:       params.TokenKey,
		stateSecret:    params.StateSecret,
		allowedDomains: params.AllowedDomains,
		logg:           params.Logger,
		now:            now,
	}, nil
}

// BuildAuthorizationURL validates the redirect target and issues a signed
// state bound to the merchant.
func (s *Service) BuildAuthorizationURL(ctx context.Context, merchantID uuid.UUID, redirectURL string) (*AuthorizationIntent, error) {
	if err := validateRedirect(redirectURL, s.allowedDomains); err != nil {
		return nil, err
	}

	state, err := signState(s.stateSecret, statePayload{
		MerchantID:  merchantID,
		RedirectURI: redirectURL,
		IssuedAt:    s.now().UTC().Unix(),
		Nonce:       uuid.NewString(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "signing handshake state")
	}

	return &AuthorizationIntent{
		URL:   s.provider.AuthorizeURL(redirectURL, state),
		State: state,
	}, nil
}

// CompleteHandshake exchanges the authorization code and persists the token,
// organisation id, and timestamp in one write. Any failure before that write
// leaves the merchant record untouched.
func (s *Service) CompleteHandshake(ctx context.Context, merchantID uuid.UUID, code, state string) (*Status, error) {
	payload, err := verifyState(s.stateSecret, state, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if payload.MerchantID != merchantID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "state token was issued for a different merchant")
	}

	token, err := s.provider.ExchangeCode(ctx, code, payload.RedirectURI)
	if err != nil {
		return nil, gocardless.MapError(err, "oauth exchange")
	}
	if token.OrganisationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "provider returned no organisation id")
	}

	encrypted, err := crypto.Encrypt(token.AccessToken, s.tokenKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypting access token")
	}

	connectedAt := s.now().UTC()
	if err := s.merchants.SaveConnection(ctx, merchantID, encrypted, token.OrganisationID, connectedAt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting connection")
	}

	ctx = s.logg.WithMerchantID(ctx, merchantID.String())
	s.logg.Info(s.logg.WithField(ctx, "organisation_id", token.OrganisationID), "gocardless connection established")

	org := token.OrganisationID
	return &Status{State: enums.ConnectionStateConnected, OrganisationID: &org, ConnectedAt: &connectedAt}, nil
}

// Status computes the connection state from the merchant record alone.
// A partial triple is reported as partial, never as connected.
func (s *Service) Status(ctx context.Context, merchantID uuid.UUID) (*Status, error) {
	merchant, err := s.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "merchant not found")
	}

	hasToken := merchant.GCAccessTokenEncrypted != nil && *merchant.GCAccessTokenEncrypted != ""
	hasOrg := merchant.GCOrganisationID != nil && *merchant.GCOrganisationID != ""

	switch {
	case !hasToken && !hasOrg:
		return &Status{State: enums.ConnectionStateDisconnected}, nil
	case !hasToken || !hasOrg:
		return &Status{State: enums.ConnectionStatePartial, OrganisationID: merchant.GCOrganisationID, ConnectedAt: merchant.GCConnectedAt}, nil
	}

	if _, err := crypto.Decrypt(*merchant.GCAccessTokenEncrypted, s.tokenKey); err != nil {
		return &Status{State: enums.ConnectionStatePartial, OrganisationID: merchant.GCOrganisationID, ConnectedAt: merchant.GCConnectedAt}, nil
	}
	return &Status{State: enums.ConnectionStateConnected, OrganisationID: merchant.GCOrganisationID, ConnectedAt: merchant.GCConnectedAt}, nil
}

// Check refines Status with a live token probe so an expired or revoked token
// is reported as expired rather than connected.
func (s *Service) Check(ctx context.Context, merchantID uuid.UUID) (*Status, error) {
	status, err := s.Status(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if status.State != enums.ConnectionStateConnected {
		return status, nil
	}

	token, err := s.Token(ctx, merchantID)
	if err != nil {
		status.State = enums.ConnectionStatePartial
		return status, nil
	}
	valid, err := s.provider.ValidateToken(ctx, token)
	if err != nil {
		return nil, gocardless.MapError(err, "validate token")
	}
	if !valid {
		status.State = enums.ConnectionStateExpired
	}
	return status, nil
}

// Token returns the decrypted provider access token. Every failure mode maps
// to a reconnect-required error carrying the precise connection state.
func (s *Service) Token(ctx context.Context, merchantID uuid.UUID) (string, error) {
	merchant, err := s.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "merchant not found")
	}

	hasToken := merchant.GCAccessTokenEncrypted != nil && *merchant.GCAccessTokenEncrypted != ""
	hasOrg := merchant.GCOrganisationID != nil && *merchant.GCOrganisationID != ""
	if !hasToken && !hasOrg {
		return "", pkgerrors.Reconnect("gocardless is not connected", string(enums.ConnectionStateDisconnected))
	}
	if !hasToken || !hasOrg {
		return "", pkgerrors.Reconnect("gocardless connection is incomplete", string(enums.ConnectionStatePartial))
	}

	plaintext, err := crypto.Decrypt(*merchant.GCAccessTokenEncrypted, s.tokenKey)
	if err != nil {
		s.logg.Warn(s.logg.WithMerchantID(ctx, merchantID.String()), "stored access token failed to decrypt")
		return "", pkgerrors.Reconnect("stored access token cannot be read", string(enums.ConnectionStatePartial))
	}
	return plaintext, nil
}

// Disconnect clears the connection triple.
func (s *Service) Disconnect(ctx context.Context, merchantID uuid.UUID) error {
	if err := s.merchants.ClearConnection(ctx, merchantID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing connection")
	}
	s.logg.Info(s.logg.WithMerchantID(ctx, merchantID.String()), "gocardless connection removed")
	return nil
}
