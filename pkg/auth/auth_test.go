package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeorgiStavrev/konfig/pkg/authz"
)

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotContains(t, hash, "correct horse")

	assert.True(t, VerifyPassword(hash, "correct horse battery staple"))
	assert.False(t, VerifyPassword(hash, "wrong"))
	assert.False(t, VerifyPassword("not-a-hash", "correct horse battery staple"))
}

func TestPasswordLongerThanBcryptLimit(t *testing.T) {
	// Without the prehash, bcrypt would treat these as identical.
	long := strings.Repeat("a", 72) + "-suffix-one"
	other := strings.Repeat("a", 72) + "-suffix-two"

	hash, err := HashPassword(long)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, long))
	assert.False(t, VerifyPassword(hash, other))
}

func TestGenerateKeyFormat(t *testing.T) {
	plaintext, prefix, hash, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, "konfig_"))
	assert.Len(t, prefix, 12)
	assert.Equal(t, plaintext[:12], prefix)
	assert.Len(t, hash, 64) // SHA-256 hex
	assert.NotContains(t, hash, plaintext[7:])

	assert.True(t, VerifyKey(hash, plaintext))
	assert.False(t, VerifyKey(hash, plaintext+"x"))
}

func TestGenerateKeyUnique(t *testing.T) {
	a, _, _, err := GenerateKey()
	require.NoError(t, err)
	b, _, _, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKeyPrefix(t *testing.T) {
	prefix, ok := KeyPrefix("konfig_abcdefghij")
	assert.True(t, ok)
	assert.Equal(t, "konfig_abcde", prefix)

	_, ok = KeyPrefix("short")
	assert.False(t, ok)
	_, ok = KeyPrefix("wrongprefix_abcdefghij")
	assert.False(t, ok)
}

func testSigner(t *testing.T, now func() time.Time) *TokenSigner {
	t.Helper()
	signer, err := NewTokenSigner(SignerConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Now:    now,
	})
	require.NoError(t, err)
	return signer
}

func TestTokenRoundTrip(t *testing.T) {
	signer := testSigner(t, nil)

	access, refresh, err := signer.IssuePair("usr_1", "tnt_1", authz.RoleAdmin)
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)

	claims, err := signer.Verify(access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", claims.UserID)
	assert.Equal(t, "tnt_1", claims.TenantID)
	assert.Equal(t, authz.RoleAdmin, claims.Role)
	assert.Equal(t, TokenAccess, claims.Type)

	_, err = signer.Verify(refresh, TokenRefresh)
	assert.NoError(t, err)
}

func TestTokenTypeConfusionRejected(t *testing.T) {
	signer := testSigner(t, nil)
	access, refresh, err := signer.IssuePair("usr_1", "tnt_1", authz.RoleMember)
	require.NoError(t, err)

	_, err = signer.Verify(refresh, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = signer.Verify(access, TokenRefresh)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenExpiry(t *testing.T) {
	clock := time.Now()
	signer := testSigner(t, func() time.Time { return clock })

	access, _, err := signer.IssuePair("usr_1", "tnt_1", authz.RoleMember)
	require.NoError(t, err)

	clock = clock.Add(31 * time.Minute)
	_, err = signer.Verify(access, TokenAccess)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokenTamperRejected(t *testing.T) {
	signer := testSigner(t, nil)
	access, _, err := signer.IssuePair("usr_1", "tnt_1", authz.RoleMember)
	require.NoError(t, err)

	tampered := access[:len(access)-2] + "xx"
	_, err = signer.Verify(tampered, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = signer.Verify("not.a.token", TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	signer := testSigner(t, nil)
	other, err := NewTokenSigner(SignerConfig{
		Secret: []byte("ffffffffffffffffffffffffffffffff"),
	})
	require.NoError(t, err)

	access, _, err := signer.IssuePair("usr_1", "tnt_1", authz.RoleMember)
	require.NoError(t, err)

	_, err = other.Verify(access, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestNewTokenSignerShortSecret(t *testing.T) {
	_, err := NewTokenSigner(SignerConfig{Secret: []byte("short")})
	assert.Error(t, err)
}
