package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	auth "github.com/goliatone/go-session-auth"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: t0}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) At(d time.Duration) {
	c.now = t0.Add(d)
}

func testOptions() *auth.Options {
	opts := auth.DefaultOptions()
	opts.SigningKey = "test-secret"
	opts.Issuer = "sessionauth-test"
	return opts
}

func newTestPolicy(opts *auth.Options, clock *testClock, extra ...auth.SessionPolicyOption) *auth.SessionPolicy {
	base := []auth.SessionPolicyOption{
		auth.WithPolicyClock(clock.Now),
		auth.WithPolicyLogger(nopLogger{}),
	}
	return auth.NewSessionPolicy(opts, append(base, extra...)...)
}

func testIdentity() auth.Identity {
	return auth.Identity{
		SubjectID:   "7b0e2c36-5d43-4d4e-8a43-1b1f5bb2f0a1",
		Username:    "jdoe",
		DisplayName: "Jane Doe",
		Title:       "Engineer",
		Email:       "jdoe@corp.example",
		Roles:       []string{auth.RoleUser},
	}
}

func testHasher() auth.BcryptHasher {
	return auth.BcryptHasher{Cost: bcrypt.MinCost}
}

// setupTestDB returns an in memory sqlite database with the schema created
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, auth.CreateSchema(context.Background(), db))

	return db
}

func setupTestRepos(t *testing.T) auth.RepositoryManager {
	t.Helper()
	repos, _ := setupTestReposWithDB(t)
	return repos
}

func setupTestReposWithDB(t *testing.T) (auth.RepositoryManager, *bun.DB) {
	t.Helper()

	db := setupTestDB(t)
	repos := auth.NewRepositoryManager(db, nopLogger{})
	for _, role := range auth.DefaultRoles() {
		_, err := repos.Roles().CreateRole(context.Background(), role)
		require.NoError(t, err)
	}

	return repos, db
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
