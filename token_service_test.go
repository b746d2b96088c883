package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-session-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(clock *testClock, opts ...auth.TokenServiceOption) *auth.TokenServiceImpl {
	base := []auth.TokenServiceOption{auth.WithTokenClock(clock.Now)}
	return auth.NewTokenService([]byte("test-secret"), "sessionauth-test", nopLogger{}, append(base, opts...)...)
}

func tamper(token string) string {
	dot := strings.LastIndex(token, ".")
	sig := []byte(token[dot+1:])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	return token[:dot+1] + string(sig)
}

func TestTokenService_RoundTrip(t *testing.T) {
	clock := newTestClock()
	ts := newTestTokenService(clock)

	claims := auth.NewJWTClaims(testIdentity(), t0, t0.Add(24*time.Hour), t0.Add(7*24*time.Hour))
	token, err := ts.Encode(claims)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	decoded, err := ts.Decode(token, true)
	require.NoError(t, err)

	assert.Equal(t, testIdentity(), decoded.Identity())
	assert.Equal(t, "sessionauth-test", decoded.Issuer)
	assert.NotEmpty(t, decoded.ID)
	assert.Equal(t, t0.Unix(), decoded.IssuedAt().Unix())
	assert.Equal(t, t0.Add(24*time.Hour).Unix(), decoded.Expires().Unix())
	assert.Equal(t, t0.Add(7*24*time.Hour).Unix(), decoded.AbsoluteExpires().Unix())
}

func TestTokenService_ExpiryOnlyCheckedOnRequest(t *testing.T) {
	clock := newTestClock()
	ts := newTestTokenService(clock)

	token, err := ts.Encode(auth.NewJWTClaims(testIdentity(), t0, t0.Add(time.Hour), time.Time{}))
	require.NoError(t, err)

	clock.At(2 * time.Hour)

	_, err = ts.Decode(token, true)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.True(t, auth.IsTokenExpiredError(err))

	claims, err := ts.Decode(token, false)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", claims.Username)
}

func TestTokenService_ExpiryBoundaryIsInclusive(t *testing.T) {
	clock := newTestClock()
	ts := newTestTokenService(clock)

	token, err := ts.Encode(auth.NewJWTClaims(testIdentity(), t0, t0.Add(time.Hour), time.Time{}))
	require.NoError(t, err)

	clock.At(time.Hour)
	_, err = ts.Decode(token, true)
	assert.NoError(t, err)

	clock.At(time.Hour + time.Second)
	_, err = ts.Decode(token, true)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_RejectsTampering(t *testing.T) {
	clock := newTestClock()
	ts := newTestTokenService(clock)

	token, err := ts.Encode(auth.NewJWTClaims(testIdentity(), t0, t0.Add(time.Hour), time.Time{}))
	require.NoError(t, err)

	for _, verify := range []bool{true, false} {
		_, err = ts.Decode(tamper(token), verify)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
		assert.True(t, auth.IsMalformedError(err))
	}

	other := auth.NewTokenService([]byte("other-secret"), "sessionauth-test", nopLogger{}, auth.WithTokenClock(clock.Now))
	_, err = other.Decode(token, false)
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)

	_, err = ts.Decode("not-a-token", false)
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	clock := newTestClock()
	ts := newTestTokenService(clock)

	claims := auth.NewJWTClaims(testIdentity(), t0, t0.Add(time.Hour), time.Time{})
	claims.Issuer = "sessionauth-test"

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ts.Decode(hs512, false)
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ts.Decode(none, false)
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)
}

func TestTokenService_RequiredClaims(t *testing.T) {
	clock := newTestClock()

	tests := []struct {
		name            string
		mutate          func(c *auth.JWTClaims)
		requireAbsolute bool
	}{
		{
			name:   "missing subject",
			mutate: func(c *auth.JWTClaims) { c.Subject = "" },
		},
		{
			name:   "missing username",
			mutate: func(c *auth.JWTClaims) { c.Username = "" },
		},
		{
			name:   "missing expiry",
			mutate: func(c *auth.JWTClaims) { c.ExpiresAt = nil },
		},
		{
			name:   "missing issued at",
			mutate: func(c *auth.JWTClaims) { c.RegisteredClaims.IssuedAt = nil },
		},
		{
			name:            "missing absolute expiry when tracked",
			mutate:          func(c *auth.JWTClaims) { c.MaxExpires = nil },
			requireAbsolute: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestTokenService(clock, auth.WithAbsoluteExpiryRequired(tt.requireAbsolute))

			claims := auth.NewJWTClaims(testIdentity(), t0, t0.Add(time.Hour), t0.Add(2*time.Hour))
			tt.mutate(claims)

			token, err := ts.Encode(claims)
			require.NoError(t, err)

			_, err = ts.Decode(token, false)
			assert.ErrorIs(t, err, auth.ErrTokenMalformed)
		})
	}
}

func TestTokenService_RejectsForeignIssuer(t *testing.T) {
	clock := newTestClock()

	foreign := auth.NewTokenService([]byte("test-secret"), "someone-else", nopLogger{}, auth.WithTokenClock(clock.Now))
	token, err := foreign.Encode(auth.NewJWTClaims(testIdentity(), t0, t0.Add(time.Hour), time.Time{}))
	require.NoError(t, err)

	_, err = newTestTokenService(clock).Decode(token, false)
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)
}

func TestTokenService_EncodeNilClaims(t *testing.T) {
	_, err := newTestTokenService(newTestClock()).Encode(nil)
	assert.Error(t, err)
}
