package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentlms/lms/internal/shared"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{AccessSecret: "access-secret", RefreshSecret: "refresh-secret"}
}

func studentPrincipal() shared.Principal {
	return shared.Principal{ID: "0b7f0d2e-5d4c-4f55-9a9c-6d6a3c1f0a11", Email: "ada@example.com", Role: shared.RoleStudent, StudentID: "STU12345"}
}

func TestIssueAndVerifyPair(t *testing.T) {
	svc := NewTokenService(testTokenConfig())

	pair, err := svc.IssuePair(studentPrincipal())
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	access, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, studentPrincipal(), access.Principal())
	assert.Equal(t, DefaultIssuer, access.Issuer)
	assert.Equal(t, []string{DefaultAudience}, []string(access.Audience))

	refresh, err := svc.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, studentPrincipal().ID, refresh.ID)
	assert.Equal(t, shared.RoleStudent, refresh.Type)
}

func TestIssuePairProducesDistinctRefreshTokens(t *testing.T) {
	svc := NewTokenService(testTokenConfig())
	first, err := svc.IssuePair(studentPrincipal())
	require.NoError(t, err)
	second, err := svc.IssuePair(studentPrincipal())
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenService(testTokenConfig())
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := issuer.IssuePair(studentPrincipal())
	require.NoError(t, err)

	verifier := NewTokenService(testTokenConfig())
	_, err = verifier.VerifyAccess(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)

	// refresh lifetime is a week, so the same pair still refreshes
	_, err = verifier.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	svc := NewTokenService(testTokenConfig())
	pair, err := svc.IssuePair(studentPrincipal())
	require.NoError(t, err)

	t.Run("access token used as refresh", func(t *testing.T) {
		_, err := svc.VerifyRefresh(pair.AccessToken)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("different secret", func(t *testing.T) {
		other := NewTokenService(TokenConfig{AccessSecret: "other", RefreshSecret: "other-refresh"})
		_, err := other.VerifyAccess(pair.AccessToken)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("different audience", func(t *testing.T) {
		cfg := testTokenConfig()
		cfg.Audience = "someone-else"
		_, err := NewTokenService(cfg).VerifyAccess(pair.AccessToken)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.VerifyAccess("not-a-jwt")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestIssuePairRequiresSecrets(t *testing.T) {
	svc := NewTokenService(TokenConfig{AccessSecret: "only-access"})
	_, err := svc.IssuePair(studentPrincipal())
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = svc.VerifyRefresh("anything")
	require.ErrorIs(t, err, ErrConfiguration)
}
