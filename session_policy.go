package auth

import (
	"context"
	"errors"
	"time"
)

// IssuedToken is a signed token together with the claims it carries
type IssuedToken struct {
	Token  string
	Claims *JWTClaims
}

// ExpiresAt returns the access expiry of the token
func (t *IssuedToken) ExpiresAt() time.Time {
	return t.Claims.Expires()
}

// AbsoluteExpiresAt returns the session ceiling, zero if untracked
func (t *IssuedToken) AbsoluteExpiresAt() time.Time {
	return t.Claims.AbsoluteExpires()
}

// MaxAge returns the remaining access lifetime in whole seconds, never negative
func (t *IssuedToken) MaxAge(now time.Time) int {
	return remainingSeconds(t.ExpiresAt(), now)
}

// RefreshOutcome tags the result of a refresh attempt
type RefreshOutcome int

const (
	// RefreshRejected the token can not be renewed, Reason says why
	RefreshRejected RefreshOutcome = iota
	// RefreshNotEligible the refresh interval has not elapsed yet
	RefreshNotEligible
	// RefreshRenewed a new token was issued
	RefreshRenewed
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshRenewed:
		return "renewed"
	case RefreshNotEligible:
		return "not_eligible"
	default:
		return "rejected"
	}
}

// RefreshResult is the tagged result of SessionPolicy.TryRefresh.
// A NotEligible result is a normal negative answer, not an error.
type RefreshResult struct {
	Outcome        RefreshOutcome
	Issued         *IssuedToken
	NextEligibleAt time.Time
	Reason         error
}

func rejected(reason error) RefreshResult {
	return RefreshResult{Outcome: RefreshRejected, Reason: reason}
}

// SessionPolicy owns the token lifecycle: issue, verify, refresh and
// proactive renewal. With lifetime tracking on, every token carries an
// absolute expiry fixed at first issuance that renewals never extend.
type SessionPolicy struct {
	codec            TokenService
	accessTTL        time.Duration
	refreshInterval  time.Duration
	maxLifetime      time.Duration
	renewThreshold   time.Duration
	lifetimeTracking bool
	lookup           IdentityLookup
	now              Clock
	logger           Logger
}

// SessionPolicyOption configures a SessionPolicy
type SessionPolicyOption func(*SessionPolicy)

// WithPolicyClock overrides time.Now, used by tests to walk a session through time
func WithPolicyClock(now Clock) SessionPolicyOption {
	return func(p *SessionPolicy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPolicyLogger sets the logger
func WithPolicyLogger(logger Logger) SessionPolicyOption {
	return func(p *SessionPolicy) {
		p.logger = normalizeLogger(logger)
	}
}

// WithIdentityLookup reloads identities from lookup when a token is refreshed
func WithIdentityLookup(lookup IdentityLookup) SessionPolicyOption {
	return func(p *SessionPolicy) {
		p.lookup = lookup
	}
}

// NewSessionPolicy creates a policy from configuration
func NewSessionPolicy(cfg Config, opts ...SessionPolicyOption) *SessionPolicy {
	p := &SessionPolicy{
		accessTTL:        cfg.GetAccessTTL(),
		refreshInterval:  cfg.GetRefreshInterval(),
		maxLifetime:      cfg.GetMaxLifetime(),
		renewThreshold:   cfg.GetRenewThreshold(),
		lifetimeTracking: cfg.GetLifetimeTracking(),
		now:              time.Now,
		logger:           defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	p.codec = NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetIssuer(),
		p.logger,
		WithTokenClock(p.now),
		WithAbsoluteExpiryRequired(p.lifetimeTracking),
	)

	return p
}

// Now returns the policy clock reading
func (p *SessionPolicy) Now() time.Time {
	return p.now()
}

// LifetimeTracking reports whether tokens carry an absolute expiry
func (p *SessionPolicy) LifetimeTracking() bool {
	return p.lifetimeTracking
}

// TokenService exposes the codec
func (p *SessionPolicy) TokenService() TokenService {
	return p.codec
}

// Issue signs a token for identity. priorAbsolute is the absolute expiry
// of the session being renewed, nil for a fresh login.
func (p *SessionPolicy) Issue(identity Identity, priorAbsolute *time.Time) (*IssuedToken, error) {
	now := p.now()
	access := now.Add(p.accessTTL)

	var absolute time.Time
	if p.lifetimeTracking {
		if priorAbsolute != nil && !priorAbsolute.IsZero() {
			absolute = *priorAbsolute
			// access expiry must never pass the ceiling
			if access.After(absolute) {
				access = absolute
			}
		} else {
			absolute = now.Add(p.maxLifetime)
			if access.After(absolute) {
				absolute = access
			}
		}
	}

	claims := NewJWTClaims(identity, now, access, absolute)

	token, err := p.codec.Encode(claims)
	if err != nil {
		p.logger.Error("issue token for %s: %v", identity.Username, err)
		return nil, err
	}

	return &IssuedToken{Token: token, Claims: claims}, nil
}

// Verify returns the identity of a valid token. Access expiry is checked
// before the absolute ceiling.
func (p *SessionPolicy) Verify(token string) (Identity, error) {
	claims, err := p.VerifyClaims(token)
	if err != nil {
		return Identity{}, err
	}
	return claims.Identity(), nil
}

// VerifyClaims is Verify returning the full claims
func (p *SessionPolicy) VerifyClaims(token string) (*JWTClaims, error) {
	claims, err := p.codec.Decode(token, true)
	if err != nil {
		return nil, err
	}

	if p.lifetimeTracking && p.now().After(claims.AbsoluteExpires()) {
		return nil, ErrLifetimeExceeded
	}

	return claims, nil
}

// Inspect decodes a token checking only signature and structure
func (p *SessionPolicy) Inspect(token string) (*JWTClaims, error) {
	return p.codec.Decode(token, false)
}

// TryRefresh renews a session token when the refresh interval has elapsed
// and the absolute lifetime has not. An expired access window is expected
// here and tolerated; tampering and lifetime overruns are not.
func (p *SessionPolicy) TryRefresh(ctx context.Context, token string) RefreshResult {
	claims, err := p.codec.Decode(token, false)
	if err != nil {
		return rejected(err)
	}

	now := p.now()

	if p.lifetimeTracking && now.After(claims.AbsoluteExpires()) {
		p.logger.Info("refresh denied for %s: max lifetime exceeded", claims.Username)
		return rejected(ErrLifetimeExceeded)
	}

	nextAt := claims.IssuedAt().Add(p.refreshInterval)
	if now.Before(nextAt) {
		return RefreshResult{Outcome: RefreshNotEligible, NextEligibleAt: nextAt}
	}

	if _, err := p.Verify(token); err != nil {
		if !errors.Is(err, ErrTokenExpired) {
			p.logger.Warn("refresh denied for %s: %v", claims.Username, err)
			return rejected(err)
		}
	}

	identity := claims.Identity()
	if p.lookup != nil {
		fresh, err := p.lookup.LookupIdentity(ctx, identity.Username)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				p.logger.Warn("refresh denied for %s: account no longer exists", identity.Username)
				return rejected(ErrUnknownSubject)
			}
			p.logger.Error("refresh for %s could not reload identity: %v", identity.Username, err)
			return rejected(ErrInternal)
		}
		identity = fresh
	}

	issued, err := p.Issue(identity, p.priorAbsolute(claims))
	if err != nil {
		return rejected(ErrInternal)
	}

	return RefreshResult{Outcome: RefreshRenewed, Issued: issued}
}

// Expired reports whether the access window of claims has passed
func (p *SessionPolicy) Expired(claims *JWTClaims) bool {
	return p.now().After(claims.Expires())
}

// NeedsRenewal reports whether claims are within the renewal threshold
func (p *SessionPolicy) NeedsRenewal(claims *JWTClaims) bool {
	return claims.Expires().Sub(p.now()) <= p.renewThreshold
}

// Reissue signs a fresh token for the identity in claims, keeping the
// absolute expiry when tracked.
func (p *SessionPolicy) Reissue(claims *JWTClaims) (*IssuedToken, error) {
	if p.lifetimeTracking && p.now().After(claims.AbsoluteExpires()) {
		return nil, ErrLifetimeExceeded
	}
	return p.Issue(claims.Identity(), p.priorAbsolute(claims))
}

// Renew is the proactive renewal path: returns a new token when token is
// valid and close to expiry, false when no renewal is due.
func (p *SessionPolicy) Renew(token string) (*IssuedToken, bool, error) {
	claims, err := p.Inspect(token)
	if err != nil {
		return nil, false, err
	}

	if p.Expired(claims) {
		return nil, false, ErrTokenExpired
	}

	if !p.NeedsRenewal(claims) {
		return nil, false, nil
	}

	issued, err := p.Reissue(claims)
	if err != nil {
		return nil, false, err
	}

	return issued, true, nil
}

func (p *SessionPolicy) priorAbsolute(claims *JWTClaims) *time.Time {
	if !p.lifetimeTracking {
		return nil
	}
	absolute := claims.AbsoluteExpires()
	return &absolute
}

func remainingSeconds(expiresAt, now time.Time) int {
	seconds := int(expiresAt.Sub(now) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}
