package renewal_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/middleware/renewal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	app     *fiber.App
	policy  *auth.SessionPolicy
	now     *time.Time
	handled *int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := t0
	clock := func() time.Time { return now }

	opts := auth.DefaultOptions()
	opts.SigningKey = "test-secret"

	policy := auth.NewSessionPolicy(opts, auth.WithPolicyClock(clock), auth.WithPolicyLogger(nopLogger{}))
	cookie := auth.NewSessionCookie(opts, clock)

	handled := 0
	app := fiber.New()
	app.Use(renewal.New(renewal.Config{
		Renewer: policy,
		Cookie:  cookie,
		Logger:  nopLogger{},
	}))
	app.Get("/page", func(c *fiber.Ctx) error {
		handled++
		return c.SendString("ok")
	})
	app.Post("/logout", func(c *fiber.Ctx) error {
		handled++
		cookie.Clear(c)
		return c.SendString("bye")
	})

	return &fixture{app: app, policy: policy, now: &now, handled: &handled}
}

func (f *fixture) issue(t *testing.T) *auth.IssuedToken {
	t.Helper()
	issued, err := f.policy.Issue(auth.Identity{SubjectID: "42", Username: "jdoe", Roles: []string{auth.RoleUser}}, nil)
	require.NoError(t, err)
	return issued
}

func (f *fixture) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	}
	res, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return res
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == "access_token" {
			return c
		}
	}
	return nil
}

func TestRenewal_NoCookiePassesThrough(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodGet, "/page", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, *f.handled)
	assert.Nil(t, sessionCookie(res))
}

func TestRenewal_MalformedCookiePassesThrough(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodGet, "/page", "not-a-token")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, *f.handled)
	assert.Nil(t, sessionCookie(res))
}

func TestRenewal_FreshTokenNotRenewed(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t)

	*f.now = t0.Add(time.Hour)

	res := f.do(t, http.MethodGet, "/page", issued.Token)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Nil(t, sessionCookie(res))
}

func TestRenewal_ExpiredTokenRejectedBeforeHandler(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t)

	*f.now = t0.Add(24*time.Hour + time.Second)

	res := f.do(t, http.MethodGet, "/page", issued.Token)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, 0, *f.handled)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, renewal.ExpiredDetail, payload["detail"])
}

func TestRenewal_NearExpiryRenewsAfterHandler(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t)

	*f.now = t0.Add(23*time.Hour + 50*time.Minute)

	res := f.do(t, http.MethodGet, "/page", issued.Token)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, *f.handled)

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.NotEqual(t, issued.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int((24 * time.Hour).Seconds()), cookie.MaxAge)

	claims, err := f.policy.Inspect(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", claims.Username)
	assert.Equal(t, t0.Add(23*time.Hour+50*time.Minute+24*time.Hour).Unix(), claims.Expires().Unix())
	assert.Equal(t, issued.AbsoluteExpiresAt().Unix(), claims.AbsoluteExpires().Unix())
}

func TestRenewal_HandlerCookieWins(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t)

	*f.now = t0.Add(23*time.Hour + 50*time.Minute)

	res := f.do(t, http.MethodPost, "/logout", issued.Token)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
}

func TestRenewal_CappedAtLifetimeWithNoTimeLeftClearsCookie(t *testing.T) {
	f := newFixture(t)

	absolute := t0.Add(24 * time.Hour)
	issued, err := f.policy.Issue(auth.Identity{SubjectID: "42", Username: "jdoe", Roles: []string{auth.RoleUser}}, &absolute)
	require.NoError(t, err)

	*f.now = absolute.Add(-500 * time.Millisecond)

	res := f.do(t, http.MethodGet, "/page", issued.Token)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, *f.handled)

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now()))
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
