package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"gopkg.in/yaml.v3"
)

// Config exposes the session settings consumed by the policy and the
// HTTP layer
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAccessTTL() time.Duration
	GetRefreshInterval() time.Duration
	GetMaxLifetime() time.Duration
	GetRenewThreshold() time.Duration
	GetLifetimeTracking() bool
	GetCookieName() string
	GetSecureCookie() bool
}

// DirectoryOptions configure the LDAP directory service
type DirectoryOptions struct {
	URL          string        `yaml:"url"`
	BindUser     string        `yaml:"bind_user"`
	BindPassword string        `yaml:"bind_password"`
	UserDomain   string        `yaml:"user_domain"`
	AuthBaseDN   string        `yaml:"auth_base_dn"`
	SearchBases  []string      `yaml:"search_bases"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Enabled reports whether a directory server is configured
func (d DirectoryOptions) Enabled() bool {
	return strings.TrimSpace(d.URL) != ""
}

// Options is the file backed configuration
type Options struct {
	Listen           string           `yaml:"listen"`
	SigningKey       string           `yaml:"signing_key"`
	Issuer           string           `yaml:"issuer"`
	AccessTTL        time.Duration    `yaml:"access_ttl"`
	RefreshInterval  time.Duration    `yaml:"refresh_interval"`
	MaxLifetime      time.Duration    `yaml:"max_lifetime"`
	RenewThreshold   time.Duration    `yaml:"renew_threshold"`
	LifetimeTracking bool             `yaml:"lifetime_tracking"`
	CookieName       string           `yaml:"cookie_name"`
	SecureCookie     bool             `yaml:"secure_cookie"`
	LocalUsers       []string         `yaml:"local_users"`
	DefaultRole      string           `yaml:"default_role"`
	AdminRole        string           `yaml:"admin_role"`
	EmailDomain      string           `yaml:"email_domain"`
	DatabaseDriver   string           `yaml:"database_driver"`
	DatabaseDSN      string           `yaml:"database_dsn"`
	AdminPassword    string           `yaml:"default_admin_password"`
	LoginRate        float64          `yaml:"login_rate"`
	LoginBurst       int              `yaml:"login_burst"`
	Directory        DirectoryOptions `yaml:"directory"`
}

var _ Config = (*Options)(nil)

// DefaultOptions returns the stock configuration
func DefaultOptions() *Options {
	return &Options{
		Listen:           ":8000",
		AccessTTL:        24 * time.Hour,
		RefreshInterval:  time.Hour,
		MaxLifetime:      7 * 24 * time.Hour,
		RenewThreshold:   15 * time.Minute,
		LifetimeTracking: true,
		CookieName:       "access_token",
		SecureCookie:     true,
		LocalUsers:       []string{"admin"},
		DefaultRole:      RoleUser,
		AdminRole:        RoleAdmin,
		DatabaseDriver:   "sqlite",
		DatabaseDSN:      "file:sessionauth.db?cache=shared",
		LoginRate:        1,
		LoginBurst:       5,
		Directory: DirectoryOptions{
			Timeout: 5 * time.Second,
		},
	}
}

// LoadOptions reads path over the defaults and applies environment
// overrides. An empty path only applies the environment.
func LoadOptions(path string) (*Options, error) {
	opts := DefaultOptions()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := opts.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return opts, nil
}

// ApplyEnv overrides options from the environment
func (o *Options) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"SECRET_KEY":             &o.SigningKey,
		"DATABASE_DSN":           &o.DatabaseDSN,
		"DATABASE_DRIVER":        &o.DatabaseDriver,
		"LDAP_URL":               &o.Directory.URL,
		"LDAP_USER":              &o.Directory.BindUser,
		"LDAP_PASSWORD":          &o.Directory.BindPassword,
		"DEFAULT_ADMIN_PASSWORD": &o.AdminPassword,
	}

	for key, target := range str {
		if v, ok := lookup(key); ok {
			*target = v
		}
	}

	if v, ok := lookup("SECURE_COOKIE"); ok {
		secure, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid SECURE_COOKIE value %q: %w", v, err)
		}
		o.SecureCookie = secure
	}

	return nil
}

// Validate checks the options needed to serve requests
func (o *Options) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.SigningKey, validation.Required),
		validation.Field(&o.AccessTTL, validation.Required, validation.By(positiveDuration)),
		validation.Field(&o.RefreshInterval, validation.By(nonNegativeDuration)),
		validation.Field(&o.MaxLifetime, validation.By(o.maxLifetimeRule)),
		validation.Field(&o.RenewThreshold, validation.By(nonNegativeDuration)),
		validation.Field(&o.CookieName, validation.Required),
		validation.Field(&o.DefaultRole, validation.Required),
		validation.Field(&o.AdminRole, validation.Required),
		validation.Field(&o.DatabaseDriver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&o.DatabaseDSN, validation.Required),
	)
}

func (o *Options) maxLifetimeRule(value any) error {
	if !o.LifetimeTracking {
		return nil
	}
	return positiveDuration(value)
}

func positiveDuration(value any) error {
	d, _ := value.(time.Duration)
	if d <= 0 {
		return fmt.Errorf("must be a positive duration")
	}
	return nil
}

func nonNegativeDuration(value any) error {
	d, _ := value.(time.Duration)
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func (o *Options) GetSigningKey() string {
	return o.SigningKey
}

func (o *Options) GetIssuer() string {
	return o.Issuer
}

func (o *Options) GetAccessTTL() time.Duration {
	return o.AccessTTL
}

func (o *Options) GetRefreshInterval() time.Duration {
	return o.RefreshInterval
}

func (o *Options) GetMaxLifetime() time.Duration {
	return o.MaxLifetime
}

func (o *Options) GetRenewThreshold() time.Duration {
	return o.RenewThreshold
}

func (o *Options) GetLifetimeTracking() bool {
	return o.LifetimeTracking
}

func (o *Options) GetCookieName() string {
	return o.CookieName
}

func (o *Options) GetSecureCookie() bool {
	return o.SecureCookie
}
