package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)

	token, err := iss.Issue("user-42")
	require.NoError(t, err)

	userID, err := iss.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-42", userID)

	_, err = iss.Issue(" ")
	require.Error(t, err)
}

func TestVerifyFailures(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)

	_, err := iss.Verify("")
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = iss.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewIssuer("other", time.Hour).Issue("u")
	require.NoError(t, err)
	_, err = iss.Verify(other)
	require.ErrorIs(t, err, ErrInvalidToken)

	stale := NewIssuer("secret", time.Hour)
	stale.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := stale.Issue("u")
	require.NoError(t, err)
	_, err = iss.Verify(expired)
	require.ErrorIs(t, err, ErrTokenExpired)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/voice-call?token=q", nil)
	require.Equal(t, "q", FromRequest(r))

	r.Header.Set("Authorization", "Bearer h")
	require.Equal(t, "h", FromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	require.Empty(t, FromRequest(r))
}
