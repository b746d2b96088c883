package auth

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

var (
	errRefreshMissingToken = errors.New("Missing token cookie for refresh", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeTokenMissing)

	errRefreshInvalidToken = errors.New("Invalid token format", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeTokenMalformed)
)

// SessionControllerRoutes are the endpoint paths
type SessionControllerRoutes struct {
	Login   string
	Refresh string
	Logout  string
	Me      string
	AdminMe string
}

// RouteGuards are the middleware applied per route group
type RouteGuards struct {
	Login     []fiber.Handler
	Protected fiber.Handler
	Admin     fiber.Handler
}

// SessionController serves login, refresh, logout and the identity
// endpoints
type SessionController struct {
	Debug    bool
	Logger   Logger
	Policy   *SessionPolicy
	Resolver CredentialResolver
	Cookie   SessionCookie
	Activity ActivitySink
	Routes   *SessionControllerRoutes
}

type SessionControllerOption func(*SessionController) *SessionController

// WithControllerLogger sets the logger
func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(sc *SessionController) *SessionController {
		sc.Logger = normalizeLogger(logger)
		return sc
	}
}

// WithControllerActivitySink records logout and refresh events
func WithControllerActivitySink(sink ActivitySink) SessionControllerOption {
	return func(sc *SessionController) *SessionController {
		sc.Activity = normalizeActivitySink(sink)
		return sc
	}
}

// WithControllerDebug dumps payloads to the logger
func WithControllerDebug(debug bool) SessionControllerOption {
	return func(sc *SessionController) *SessionController {
		sc.Debug = debug
		return sc
	}
}

// NewSessionController creates the controller
func NewSessionController(policy *SessionPolicy, resolver CredentialResolver, cookie SessionCookie, opts ...SessionControllerOption) *SessionController {
	sc := &SessionController{
		Logger:   defLogger{},
		Policy:   policy,
		Resolver: resolver,
		Cookie:   cookie,
		Activity: noopActivitySink{},
		Routes: &SessionControllerRoutes{
			Login:   "/login",
			Refresh: "/refresh",
			Logout:  "/logout",
			Me:      "/me",
			AdminMe: "/admin/me",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			sc = opt(sc)
		}
	}

	if sc.Policy == nil {
		panic("Missing SessionPolicy in session controller...")
	}

	if sc.Resolver == nil {
		panic("Missing CredentialResolver in session controller...")
	}

	return sc
}

// Register mounts every route on r
func (sc *SessionController) Register(r fiber.Router, guards RouteGuards) {
	login := append(append([]fiber.Handler{}, guards.Login...), sc.Login)
	r.Post(sc.Routes.Login, login...)
	r.Post(sc.Routes.Refresh, sc.Refresh)
	r.Post(sc.Routes.Logout, sc.Logout)

	if guards.Protected != nil {
		r.Get(sc.Routes.Me, guards.Protected, sc.Me)
	}

	if guards.Admin != nil {
		r.Get(sc.Routes.AdminMe, guards.Admin, sc.Me)
	}
}

// SessionRoutesFilter reports whether the request targets login, refresh
// or logout. Those routes handle expired cookies themselves so renewal
// middleware should skip them.
func (sc *SessionController) SessionRoutesFilter(c *fiber.Ctx) bool {
	switch c.Path() {
	case sc.Routes.Login, sc.Routes.Refresh, sc.Routes.Logout:
		return true
	}
	return false
}

// LoginRequest payload
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules. The password is checked by the
// resolver, static identities log in with a username only.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.Password, validation.Length(0, 1024)),
	)
}

// RefreshResponse is the body of POST /refresh
type RefreshResponse struct {
	Message              string `json:"message"`
	RefreshSuccess       bool   `json:"refresh_success"`
	NextRefreshAllowedAt int64  `json:"next_refresh_allowed_at,omitempty"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// Login authenticates the payload and sets the session cookie
func (sc *SessionController) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		sc.Logger.Warn("login payload could not be parsed: %v", err)
		return ErrInvalidCredentials
	}

	if sc.Debug {
		sc.Logger.Debug("login attempt %s", print.MaybePrettyJSON(map[string]any{
			"username": payload.Username,
			"ip":       c.IP(),
		}))
	}

	if err := payload.Validate(); err != nil {
		return ErrInvalidCredentials
	}

	identity, err := sc.Resolver.Resolve(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return err
	}

	issued, err := sc.Policy.Issue(identity, nil)
	if err != nil {
		return ErrInternal
	}

	sc.Cookie.Set(c, issued)
	sc.Logger.Info("user %s logged in with roles %v", identity.Username, identity.Roles)

	return c.JSON(identity)
}

// Refresh renews the session cookie when the policy allows it
func (sc *SessionController) Refresh(c *fiber.Ctx) error {
	token := sc.Cookie.Read(c)
	if token == "" {
		return errRefreshMissingToken
	}

	result := sc.Policy.TryRefresh(c.UserContext(), token)

	switch result.Outcome {
	case RefreshRenewed:
		sc.Cookie.Set(c, result.Issued)
		recordActivity(c.UserContext(), sc.Activity, sc.Logger, ActivityEvent{
			EventType: ActivityEventTokenRefreshed,
			Username:  result.Issued.Claims.Username,
			SubjectID: result.Issued.Claims.Subject,
		})
		return c.JSON(RefreshResponse{
			Message:        "Token refreshed successfully",
			RefreshSuccess: true,
		})

	case RefreshNotEligible:
		return c.JSON(RefreshResponse{
			Message:              "Refresh interval not met, try again later.",
			RefreshSuccess:       false,
			NextRefreshAllowedAt: result.NextEligibleAt.Unix(),
		})
	}

	recordActivity(c.UserContext(), sc.Activity, sc.Logger, ActivityEvent{
		EventType: ActivityEventTokenRejected,
		Metadata:  map[string]any{"reason": result.Reason.Error()},
	})

	if IsMalformedError(result.Reason) {
		return errRefreshInvalidToken
	}

	return result.Reason
}

// Logout clears the session cookie, it never fails
func (sc *SessionController) Logout(c *fiber.Ctx) error {
	sc.Cookie.Clear(c)

	if identity, ok := sc.currentIdentity(c); ok {
		recordActivity(c.UserContext(), sc.Activity, sc.Logger, ActivityEvent{
			EventType: ActivityEventLogout,
			Username:  identity.Username,
			SubjectID: identity.SubjectID,
		})
	}

	return c.JSON(MessageResponse{Message: "Logout successful"})
}

// Me returns the identity of the authenticated session
func (sc *SessionController) Me(c *fiber.Ctx) error {
	identity, ok := CurrentIdentity(c)
	if !ok {
		return ErrMissingToken
	}
	return c.JSON(identity)
}

// currentIdentity is best effort, logout must work with any cookie
func (sc *SessionController) currentIdentity(c *fiber.Ctx) (Identity, bool) {
	token := sc.Cookie.Read(c)
	if token == "" {
		return Identity{}, false
	}
	claims, err := sc.Policy.Inspect(token)
	if err != nil {
		return Identity{}, false
	}
	return claims.Identity(), true
}
