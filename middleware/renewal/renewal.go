package renewal

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-session-auth"
)

// ExpiredDetail is returned when a request carries an expired session cookie
const ExpiredDetail = "Token expired. Please log in again."

// Renewer is the slice of the session policy the middleware needs.
// Renew reports ErrTokenExpired for expired tokens and false when no
// renewal is due yet.
type Renewer interface {
	Renew(tokenString string) (*auth.IssuedToken, bool, error)
}

type Config struct {
	Filter  func(*fiber.Ctx) bool
	Renewer Renewer
	Cookie  auth.SessionCookie
	Logger  auth.Logger
}

// New returns a middleware that rejects expired session cookies and
// reissues cookies that are about to expire. Requests without a cookie
// or with an unreadable one pass through untouched, route guards decide
// what to do with them.
func New(config Config) fiber.Handler {
	if config.Renewer == nil {
		panic("AUTH: renewal middleware configuration: Renewer is required.")
	}

	if config.Cookie.Name == "" {
		config.Cookie.Name = "access_token"
		config.Cookie.Path = "/"
	}

	if config.Logger == nil {
		config.Logger = auth.DefaultLogger()
	}

	return func(c *fiber.Ctx) error {
		if config.Filter != nil && config.Filter(c) {
			return c.Next()
		}

		token := config.Cookie.Read(c)
		if token == "" {
			return c.Next()
		}

		issued, renewed, err := config.Renewer.Renew(token)
		if err != nil {
			if auth.IsTokenExpiredError(err) {
				return c.Status(http.StatusUnauthorized).JSON(auth.ErrorResponse{
					Detail: ExpiredDetail,
					Code:   auth.TextCodeTokenExpired,
				})
			}
			if !auth.IsMalformedError(err) {
				config.Logger.Warn("session renewal failed: %v", err)
			}
			return c.Next()
		}

		if !renewed {
			return c.Next()
		}

		err = c.Next()

		// login and logout write their own cookie
		if config.Cookie.Written(c) {
			return err
		}

		config.Cookie.Set(c, issued)
		config.Logger.Debug("session renewed for %s until %s", issued.Claims.Username, issued.ExpiresAt())

		return err
	}
}
