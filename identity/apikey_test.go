package identity_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/levee-labs/credit-gateway/identity"
)

func TestGenerateAPIKeyHasExpectedShape(t *testing.T) {
	token, hash, suffix, err := identity.GenerateAPIKey()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(token, "cpk_"))
	require.Len(t, hash, 64) // hex-encoded SHA-256
	require.Equal(t, token[len(token)-8:], suffix)
	require.Equal(t, identity.HashAPIKey(token), hash)
}

func TestGenerateAPIKeyIsUnique(t *testing.T) {
	t1, _, _, err := identity.GenerateAPIKey()
	require.NoError(t, err)
	t2, _, _, err := identity.GenerateAPIKey()
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)
}

func TestExtractBearerTokenAcceptsBearerPrefix(t *testing.T) {
	tok, ok := identity.ExtractBearerToken("Bearer cpk_abc123")
	require.True(t, ok)
	require.Equal(t, "cpk_abc123", tok)
}

func TestExtractBearerTokenAcceptsBareToken(t *testing.T) {
	tok, ok := identity.ExtractBearerToken("cpk_abc123")
	require.True(t, ok)
	require.Equal(t, "cpk_abc123", tok)
}

func TestExtractBearerTokenRejectsEmptyOrMalformed(t *testing.T) {
	_, ok := identity.ExtractBearerToken("")
	require.False(t, ok)

	_, ok = identity.ExtractBearerToken("sk_notours_123")
	require.False(t, ok)
}
