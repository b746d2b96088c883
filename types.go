package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated principal.
// It is immutable once embedded in a token.
type Identity struct {
	SubjectID   string   `json:"userId"`
	Username    string   `json:"username"`
	DisplayName string   `json:"fullName"`
	Title       string   `json:"title"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
}

// HasRole reports whether the identity carries the given role name
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DirectoryIdentity is the profile returned by a directory service
type DirectoryIdentity struct {
	Username    string `json:"username"`
	DisplayName string `json:"fullName"`
	Title       string `json:"title"`
}

// CredentialResolver turns a username and password into an Identity
type CredentialResolver interface {
	Resolve(ctx context.Context, username, password string) (Identity, error)
}

// IdentityLookup is a read only view over known identities.
// Renewal uses it to reload claims for a username.
type IdentityLookup interface {
	LookupIdentity(ctx context.Context, username string) (Identity, error)
}

// DirectoryService authenticates against an external directory
type DirectoryService interface {
	Authenticate(ctx context.Context, username, password string) (*DirectoryIdentity, error)
	ListIdentities(ctx context.Context) ([]DirectoryIdentity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// AccountStore is the persistence the resolver needs for accounts
type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	ReconcileDirectoryAccount(ctx context.Context, identity DirectoryIdentity) (*Account, error)
}

// RoleLedger grants roles idempotently and keeps an audit trail
type RoleLedger interface {
	Grant(ctx context.Context, accountID, roleID, adminID uuid.UUID) (bool, error)
	GrantByName(ctx context.Context, accountID uuid.UUID, roleName string, adminID uuid.UUID) (bool, error)
	ListRoleNames(ctx context.Context, accountID *uuid.UUID) ([]string, error)
}

// Clock returns the current time
type Clock func() time.Time

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

// DefaultLogger returns the stdout logger used when none is configured
func DefaultLogger() Logger {
	return defLogger{}
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
