package connection

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/glintbooks/glint-backend/pkg/errors"
)

// stateTTL bounds how long an issued authorization state stays redeemable.
const stateTTL = 15 * time.Minute

type statePayload struct {
	MerchantID  uuid.UUID `json:"merchant_id"`
	RedirectURI string    `json:"redirect_uri"`
	IssuedAt    int64     `json:"issued_at"`
	Nonce       string    `json:"nonce"`
}

// signState encodes and MACs the handshake state so the callback cannot be
// replayed against an arbitrary merchant. Format: base64url(json) "." hex(sig).
func signState(secret []byte, payload statePayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	return encoded + "." + hex.EncodeToString(mac.Sum(nil)), nil
}

func verifyState(secret []byte, state string, now time.Time) (*statePayload, error) {
	invalid := pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid state token")

	encoded, sig, ok := strings.Cut(state, ".")
	if !ok || encoded == "" || sig == "" {
		return nil, invalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	want := mac.Sum(nil)
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(want, got) {
		return nil, invalid
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, invalid
	}
	var payload statePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, invalid
	}
	if payload.MerchantID == uuid.Nil {
		return nil, invalid
	}

	issued := time.Unix(payload.IssuedAt, 0)
	if now.Before(issued.Add(-time.Minute)) || now.After(issued.Add(stateTTL)) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "state token expired")
	}
	return &payload, nil
}
