package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService encodes and decodes signed session claims
type TokenService interface {
	Encode(claims *JWTClaims) (string, error)
	Decode(tokenString string, verifyExpiry bool) (*JWTClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	issuer          string
	requireAbsolute bool
	now             Clock
	logger          Logger
}

// TokenServiceOption configures a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock overrides the clock used for expiry checks
func WithTokenClock(now Clock) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithAbsoluteExpiryRequired rejects tokens without a max_exp claim
func WithAbsoluteExpiryRequired(required bool) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.requireAbsolute = required
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, logger Logger, opts ...TokenServiceOption) *TokenServiceImpl {
	ts := &TokenServiceImpl{
		signingKey: signingKey,
		issuer:     issuer,
		now:        time.Now,
		logger:     normalizeLogger(logger),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// Encode signs the claims with HS256
func (ts *TokenServiceImpl) Encode(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	if claims.Issuer == "" {
		claims.Issuer = ts.issuer
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Decode always verifies the signature and required claims. The access
// expiry is only enforced when verifyExpiry is true so renewal flows can
// inspect a token that expired but was not tampered with.
func (ts *TokenServiceImpl) Decode(tokenString string, verifyExpiry bool) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	if err != nil {
		ts.logger.Warn("token rejected, possible tampering: %v", err)
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Warn("token rejected, could not map claims")
		return nil, ErrTokenMalformed
	}

	if claims.missingRequired(ts.requireAbsolute) {
		ts.logger.Warn("token rejected, missing required claims for subject %q", claims.RegisteredClaims.Subject)
		return nil, ErrTokenMalformed
	}

	if ts.issuer != "" && claims.Issuer != ts.issuer {
		ts.logger.Warn("token rejected, unexpected issuer %q", claims.Issuer)
		return nil, ErrTokenMalformed
	}

	if verifyExpiry && ts.now().After(claims.Expires()) {
		return nil, ErrTokenExpired
	}

	return claims, nil
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims == nil || claims.ID != "" {
		return
	}
	claims.ID = uuid.NewString()
}
