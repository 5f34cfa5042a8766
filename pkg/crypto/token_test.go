package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := DeriveKey("unit-test-secret")
	require.NoError(t, err)
	return key
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	a, err := DeriveKey("secret-a")
	require.NoError(t, err)
	b, err := DeriveKey("secret-a")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := DeriveKey("secret-b")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestDeriveKeyRejectsEmptySecret(t *testing.T) {
	_, err := DeriveKey("")
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	for _, plaintext := range []string{
		"live_AbCdEf123",
		"sandbox_token_with_longer_payload_0123456789",
		"x",
	} {
		blob, err := Encrypt(plaintext, key)
		require.NoError(t, err)

		got, err := Decrypt(blob, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptUsesFreshNonces(t *testing.T) {
	key := testKey(t)
	first, err := Encrypt("same-token", key)
	require.NoError(t, err)
	second, err := Encrypt("same-token", key)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDecryptLegacyFormat(t *testing.T) {
	key := testKey(t)
	blob := "plain:" + base64.StdEncoding.EncodeToString([]byte("legacy-access-token"))

	got, err := Decrypt(blob, key)
	require.NoError(t, err)
	assert.Equal(t, "legacy-access-token", got)
}

func TestDecryptTamperedBlobFails(t *testing.T) {
	key := testKey(t)
	blob, err := Encrypt("live_token", key)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = Decrypt(tampered, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := testKey(t)
	otherKey, err := DeriveKey("a-different-secret")
	require.NoError(t, err)

	blob, err := Encrypt("live_token", key)
	require.NoError(t, err)

	_, err = Decrypt(blob, otherKey)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptGarbageFails(t *testing.T) {
	key := testKey(t)
	for _, blob := range []string{"", "not-base64!!!", "plain:%%%", strings.Repeat("A", 8)} {
		_, err := Decrypt(blob, key)
		assert.ErrorIs(t, err, ErrDecryptionFailed, blob)
	}
}
