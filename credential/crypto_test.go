package credential_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/levee-labs/credit-gateway/credential"
)

func testKey() string {
	return hex.EncodeToString(make([]byte, 32))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := credential.NewCipher(testKey())
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("sk-live-super-secret")
	require.NoError(t, err)
	require.NotContains(t, ciphertext, "sk-live-super-secret")

	plaintext, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "sk-live-super-secret", plaintext)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c, err := credential.NewCipher(testKey())
	require.NoError(t, err)

	a, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)
	b, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "nonce must be fresh per call")
}

func TestNewCipherRejectsWrongKeyLength(t *testing.T) {
	_, err := credential.NewCipher(hex.EncodeToString(make([]byte, 16)))
	require.Error(t, err)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c, err := credential.NewCipher(testKey())
	require.NoError(t, err)

	ciphertext, err := c.Encrypt("sk-live-super-secret")
	require.NoError(t, err)

	tampered := ciphertext[:len(ciphertext)-4] + "aaaa"
	_, err = c.Decrypt(tampered)
	require.Error(t, err)
}
