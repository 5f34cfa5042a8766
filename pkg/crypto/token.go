package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Provider access tokens are encrypted at rest with a key derived from the
// server secret. Derivation is deterministic so a restarted process can still
// decrypt what an earlier one stored.
const (
	keySalt       = "glint-token-encryption-v1"
	keyIterations = 100_000
	keyLen        = 32
	nonceLen      = 12

	// Blobs written before encryption was introduced: the literal prefix
	// followed by base64 of the raw token.
	legacyPrefix = "plain:"
)

// ErrDecryptionFailed signals a blob that neither the AEAD path nor the legacy
// format could decode. Callers treat it as "reconnect required", never as an
// empty token.
var ErrDecryptionFailed = fmt.Errorf("token decryption failed")

// DeriveKey derives the AES-256-GCM key from the server secret via
// PBKDF2-SHA256 with a fixed application salt.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("server secret is required")
	}
	return pbkdf2.Key([]byte(secret), []byte(keySalt), keyIterations, keyLen, sha256.New), nil
}

// Encrypt seals the plaintext under a fresh random nonce and returns
// base64(nonce || ciphertext).
func Encrypt(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext is required")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Blobs from before encryption was
// introduced (legacy prefix + base64 plaintext) still decode; anything else
// fails with ErrDecryptionFailed rather than partial output.
func Decrypt(blob string, key []byte) (string, error) {
	if blob == "" {
		return "", ErrDecryptionFailed
	}

	if plaintext, err := decryptAEAD(blob, key); err == nil {
		return plaintext, nil
	}
	if plaintext, ok := decodeLegacy(blob); ok {
		return plaintext, nil
	}
	return "", ErrDecryptionFailed
}

func decryptAEAD(blob string, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("decode blob: %w", err)
	}
	if len(raw) <= nonceLen {
		return "", fmt.Errorf("blob too short")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	return string(plaintext), nil
}

func decodeLegacy(blob string) (string, bool) {
	if !strings.HasPrefix(blob, legacyPrefix) {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, legacyPrefix))
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}
