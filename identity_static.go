package auth

import (
	"context"
	"strings"
)

// StaticIdentities is a read only username to Identity table for demos
// and tests. Login only checks that the username is known.
type StaticIdentities struct {
	identities map[string]Identity
}

var (
	_ CredentialResolver = (*StaticIdentities)(nil)
	_ IdentityLookup     = (*StaticIdentities)(nil)
)

// NewStaticIdentities copies identities keyed by username
func NewStaticIdentities(identities ...Identity) *StaticIdentities {
	s := &StaticIdentities{identities: make(map[string]Identity, len(identities))}
	for _, id := range identities {
		id.Roles = append([]string(nil), id.Roles...)
		s.identities[strings.ToLower(id.Username)] = id
	}
	return s
}

func (s *StaticIdentities) Resolve(ctx context.Context, username, _ string) (Identity, error) {
	identity, err := s.LookupIdentity(ctx, username)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return identity, nil
}

func (s *StaticIdentities) LookupIdentity(_ context.Context, username string) (Identity, error) {
	identity, ok := s.identities[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	identity.Roles = append([]string(nil), identity.Roles...)
	return identity, nil
}
