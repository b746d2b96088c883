package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"golang.org/x/sync/singleflight"
)

const (
	StrategyLocal     = "local"
	StrategyDirectory = "directory"
)

const defaultDirectoryTimeout = 5 * time.Second

// IdentityResolver authenticates credentials against the local account
// store for reserved usernames and against the directory for everyone
// else. Directory accounts are provisioned on first login.
type IdentityResolver struct {
	accounts         AccountStore
	roles            RoleLedger
	hasher           PasswordAuthenticator
	directory        DirectoryService
	localUsers       map[string]struct{}
	defaultRole      string
	emailDomain      string
	directoryTimeout time.Duration
	logger           Logger
	activity         ActivitySink
	// provisioning of the same username is coalesced within the process
	provisioning singleflight.Group
}

var (
	_ CredentialResolver = (*IdentityResolver)(nil)
	_ IdentityLookup     = (*IdentityResolver)(nil)
)

// ResolverOption configures an IdentityResolver
type ResolverOption func(*IdentityResolver)

// WithLocalUsernames sets the usernames that never reach the directory
func WithLocalUsernames(usernames ...string) ResolverOption {
	return func(r *IdentityResolver) {
		r.localUsers = make(map[string]struct{}, len(usernames))
		for _, u := range usernames {
			r.localUsers[strings.ToLower(strings.TrimSpace(u))] = struct{}{}
		}
	}
}

// WithDefaultRole sets the role granted to directory accounts
func WithDefaultRole(role string) ResolverOption {
	return func(r *IdentityResolver) {
		if role != "" {
			r.defaultRole = role
		}
	}
}

// WithEmailDomain derives the email claim as username@domain
func WithEmailDomain(domain string) ResolverOption {
	return func(r *IdentityResolver) {
		r.emailDomain = strings.TrimPrefix(strings.TrimSpace(domain), "@")
	}
}

// WithDirectoryTimeout bounds each directory authentication
func WithDirectoryTimeout(timeout time.Duration) ResolverOption {
	return func(r *IdentityResolver) {
		if timeout > 0 {
			r.directoryTimeout = timeout
		}
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *IdentityResolver) {
		r.logger = normalizeLogger(logger)
	}
}

// WithResolverActivitySink records login outcomes
func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *IdentityResolver) {
		r.activity = normalizeActivitySink(sink)
	}
}

// NewIdentityResolver creates a resolver. directory may be nil, in which
// case only local usernames can log in.
func NewIdentityResolver(accounts AccountStore, roles RoleLedger, hasher PasswordAuthenticator, directory DirectoryService, opts ...ResolverOption) *IdentityResolver {
	r := &IdentityResolver{
		accounts:         accounts,
		roles:            roles,
		hasher:           hasher,
		directory:        directory,
		localUsers:       map[string]struct{}{"admin": {}},
		defaultRole:      RoleUser,
		directoryTimeout: defaultDirectoryTimeout,
		logger:           defLogger{},
		activity:         noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Resolve authenticates username and password. Every credential failure
// is reported as ErrInvalidCredentials, ErrInternal means the identity was
// proven but could not be recorded.
func (r *IdentityResolver) Resolve(ctx context.Context, username, password string) (Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		r.fail(ctx, username, "", "missing credentials")
		return Identity{}, ErrInvalidCredentials
	}

	var (
		identity Identity
		err      error
		strategy string
	)

	if r.isLocal(username) {
		strategy = StrategyLocal
		identity, err = r.resolveLocal(ctx, username, password)
	} else {
		strategy = StrategyDirectory
		identity, err = r.resolveDirectory(ctx, username, password)
	}

	if err != nil {
		r.fail(ctx, username, strategy, err.Error())
		return Identity{}, err
	}

	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Username:  identity.Username,
		SubjectID: identity.SubjectID,
		Strategy:  strategy,
	})

	return identity, nil
}

// LookupIdentity rebuilds the identity of a known account
func (r *IdentityResolver) LookupIdentity(ctx context.Context, username string) (Identity, error) {
	account, err := r.accounts.FindByUsername(ctx, username)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, err
	}
	return r.identityFor(ctx, account)
}

func (r *IdentityResolver) resolveLocal(ctx context.Context, username, password string) (Identity, error) {
	account, err := r.accounts.FindByUsername(ctx, username)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return Identity{}, ErrInvalidCredentials
		}
		r.logger.Error("local lookup for %s failed: %v", username, err)
		return Identity{}, ErrInternal
	}

	if account.PasswordHash == "" {
		return Identity{}, ErrInvalidCredentials
	}

	if err := r.hasher.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return r.identityFor(ctx, account)
}

func (r *IdentityResolver) resolveDirectory(ctx context.Context, username, password string) (Identity, error) {
	if r.directory == nil {
		return Identity{}, ErrInvalidCredentials
	}

	dctx, cancel := context.WithTimeout(ctx, r.directoryTimeout)
	profile, err := r.directory.Authenticate(dctx, username, password)
	cancel()

	if err != nil || profile == nil {
		r.logger.Warn("directory rejected %s: %v", username, err)
		return Identity{}, ErrInvalidCredentials
	}

	account, err := r.provision(ctx, *profile)
	if err != nil {
		return Identity{}, err
	}

	return r.identityFor(ctx, account)
}

// provision reconciles the account and grants the default role. Only a
// proven directory profile reaches this point, so concurrent logins for
// the same username can share one result. The shared work is detached
// from cancellation and each caller waits on its own context.
func (r *IdentityResolver) provision(ctx context.Context, profile DirectoryIdentity) (*Account, error) {
	work := context.WithoutCancel(ctx)

	ch := r.provisioning.DoChan(strings.ToLower(profile.Username), func() (any, error) {
		account, err := r.reconcile(work, profile)
		if err != nil {
			if IsAccountConflictError(err) {
				return nil, ErrAccountConflict
			}
			r.logger.Error("provisioning %s failed after directory bind: %v", profile.Username, err)
			return nil, ErrInternal
		}

		// the grant is attributed to the account itself
		granted, err := r.roles.GrantByName(work, account.ID, r.defaultRole, account.ID)
		if err != nil {
			r.logger.Error("granting %s to %s failed: %v", r.defaultRole, profile.Username, err)
			return nil, ErrInternal
		}

		if granted {
			recordActivity(work, r.activity, r.logger, ActivityEvent{
				EventType: ActivityEventRoleGranted,
				Username:  account.Username,
				SubjectID: account.ID.String(),
				Strategy:  StrategyDirectory,
				Metadata:  map[string]any{"role": r.defaultRole},
			})
		}

		return account, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug("provisioning of %s shared with a concurrent login", profile.Username)
		}
		return res.Val.(*Account), nil
	}
}

// reconcile retries once when a concurrent first login created the account
func (r *IdentityResolver) reconcile(ctx context.Context, profile DirectoryIdentity) (*Account, error) {
	account, err := r.accounts.ReconcileDirectoryAccount(ctx, profile)
	if err == nil || !IsAccountConflictError(err) {
		return account, err
	}

	r.logger.Info("account %s created concurrently, retrying", profile.Username)
	return r.accounts.ReconcileDirectoryAccount(ctx, profile)
}

func (r *IdentityResolver) identityFor(ctx context.Context, account *Account) (Identity, error) {
	var (
		roles []string
		err   error
	)

	if account.IsSuperAdmin {
		roles, err = r.roles.ListRoleNames(ctx, nil)
	} else {
		roles, err = r.roles.ListRoleNames(ctx, &account.ID)
	}

	if err != nil {
		r.logger.Error("listing roles for %s failed: %v", account.Username, err)
		return Identity{}, ErrInternal
	}

	return Identity{
		SubjectID:   account.ID.String(),
		Username:    account.Username,
		DisplayName: account.FullName,
		Title:       account.Title,
		Email:       r.email(account.Username),
		Roles:       roles,
	}, nil
}

func (r *IdentityResolver) email(username string) string {
	if r.emailDomain == "" {
		return ""
	}
	return username + "@" + r.emailDomain
}

func (r *IdentityResolver) isLocal(username string) bool {
	_, ok := r.localUsers[strings.ToLower(username)]
	return ok
}

func (r *IdentityResolver) fail(ctx context.Context, username, strategy, reason string) {
	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Username:  username,
		Strategy:  strategy,
		Metadata:  map[string]any{"reason": reason},
	})
}
