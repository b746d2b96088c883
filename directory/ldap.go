package directory

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	auth "github.com/goliatone/go-session-auth"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout = 5 * time.Second
	missingValue   = "N/A"

	activeUsersFilter = "(&(objectCategory=person)(objectClass=user)(!(userAccountControl:1.2.840.113556.1.4.803:=2)))"
)

// Conn is the subset of *ldap.Conn used by the service
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Dialer opens a connection, the returned func closes it
type Dialer func(ctx context.Context, url string, timeout time.Duration) (Conn, func(), error)

type Config struct {
	URL          string
	BindUser     string
	BindPassword string
	// UserDomain builds the bind principal as username@UserDomain
	UserDomain  string
	AuthBaseDN  string
	SearchBases []string
	Timeout     time.Duration

	UsernameAttribute    string
	DisplayNameAttribute string
	TitleAttribute       string
}

// FromOptions maps the file configuration
func FromOptions(opts auth.DirectoryOptions) Config {
	return Config{
		URL:          opts.URL,
		BindUser:     opts.BindUser,
		BindPassword: opts.BindPassword,
		UserDomain:   opts.UserDomain,
		AuthBaseDN:   opts.AuthBaseDN,
		SearchBases:  append([]string(nil), opts.SearchBases...),
		Timeout:      opts.Timeout,
	}
}

// Service authenticates users with a simple bind and reads their
// profile from the directory
type Service struct {
	cfg         Config
	dial        Dialer
	logger      auth.Logger
	concurrency int
}

var _ auth.DirectoryService = (*Service)(nil)

type Option func(*Service)

// WithDialer replaces the network dialer
func WithDialer(dial Dialer) Option {
	return func(s *Service) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger auth.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConcurrency bounds parallel scope searches
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a directory service
func New(cfg Config, opts ...Option) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UsernameAttribute == "" {
		cfg.UsernameAttribute = "sAMAccountName"
	}
	if cfg.DisplayNameAttribute == "" {
		cfg.DisplayNameAttribute = "displayName"
	}
	if cfg.TitleAttribute == "" {
		cfg.TitleAttribute = "title"
	}

	s := &Service{
		cfg:         cfg,
		dial:        dialURL,
		logger:      auth.DefaultLogger(),
		concurrency: 4,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Authenticate binds as the user and returns the matching profile.
// Wrong credentials yield auth.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*auth.DirectoryIdentity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	conn, closeConn, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	if err := conn.Bind(s.principal(username), password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			s.logger.Warn("directory authentication failed for %s", username)
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("directory bind for %s: %w", username, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter := fmt.Sprintf("(%s=%s)", s.cfg.UsernameAttribute, ldap.EscapeFilter(username))
	res, err := conn.Search(s.searchRequest(s.cfg.AuthBaseDN, filter, 1))
	if err != nil {
		return nil, fmt.Errorf("directory search for %s: %w", username, err)
	}

	if len(res.Entries) == 0 {
		s.logger.Warn("authenticated user %s not found in directory records", username)
		return nil, auth.ErrIdentityNotFound
	}

	identity := s.toIdentity(res.Entries[0])
	s.logger.Info("user %s authenticated against the directory", username)

	return &identity, nil
}

// ListIdentities searches every configured scope in parallel with the
// service account. Scopes that fail are logged and skipped, duplicates
// are dropped keeping the first occurrence.
func (s *Service) ListIdentities(ctx context.Context) ([]auth.DirectoryIdentity, error) {
	results := make([][]auth.DirectoryIdentity, len(s.cfg.SearchBases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, base := range s.cfg.SearchBases {
		g.Go(func() error {
			found, err := s.searchScope(gctx, base)
			if err != nil {
				s.logger.Error("directory search in %s failed: %v", base, err)
				return nil
			}
			results[i] = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	out := []auth.DirectoryIdentity{}
	for _, scope := range results {
		for _, identity := range scope {
			key := strings.ToLower(identity.Username)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, identity)
		}
	}

	s.logger.Info("total directory users retrieved: %d", len(out))

	return out, nil
}

func (s *Service) searchScope(ctx context.Context, base string) ([]auth.DirectoryIdentity, error) {
	conn, closeConn, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	if err := conn.Bind(s.cfg.BindUser, s.cfg.BindPassword); err != nil {
		return nil, fmt.Errorf("service bind: %w", err)
	}

	res, err := conn.Search(s.searchRequest(base, activeUsersFilter, 0))
	if err != nil {
		return nil, err
	}

	out := make([]auth.DirectoryIdentity, 0, len(res.Entries))
	for _, entry := range res.Entries {
		out = append(out, s.toIdentity(entry))
	}

	return out, nil
}

func (s *Service) open(ctx context.Context) (Conn, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	timeout := s.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	conn, closeConn, err := s.dial(ctx, s.cfg.URL, timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("directory connect: %w", err)
	}

	if closeConn == nil {
		closeConn = func() {}
	}

	return conn, closeConn, nil
}

func (s *Service) searchRequest(base, filter string, sizeLimit int) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		sizeLimit,
		int(s.cfg.Timeout/time.Second),
		false,
		filter,
		[]string{s.cfg.UsernameAttribute, s.cfg.DisplayNameAttribute, s.cfg.TitleAttribute},
		nil,
	)
}

func (s *Service) principal(username string) string {
	if s.cfg.UserDomain == "" || strings.Contains(username, "@") {
		return username
	}
	return username + "@" + s.cfg.UserDomain
}

func (s *Service) toIdentity(entry *ldap.Entry) auth.DirectoryIdentity {
	return auth.DirectoryIdentity{
		Username:    valueOr(entry.GetAttributeValue(s.cfg.UsernameAttribute)),
		DisplayName: valueOr(entry.GetAttributeValue(s.cfg.DisplayNameAttribute)),
		Title:       valueOr(entry.GetAttributeValue(s.cfg.TitleAttribute)),
	}
}

func valueOr(v string) string {
	if v == "" {
		return missingValue
	}
	return v
}

func dialURL(ctx context.Context, url string, timeout time.Duration) (Conn, func(), error) {
	dialer := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	conn, err := ldap.DialURL(url, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, nil, err
	}
	conn.SetTimeout(timeout)

	return conn, func() { conn.Close() }, nil
}
