package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// SessionCookie writes and clears the session cookie. Set and Clear use
// the same attributes so browsers drop the cookie on logout.
type SessionCookie struct {
	Name   string
	Secure bool
	Path   string
	now    Clock
}

// NewSessionCookie creates a cookie writer from configuration
func NewSessionCookie(cfg Config, now Clock) SessionCookie {
	if now == nil {
		now = time.Now
	}

	name := cfg.GetCookieName()
	if name == "" {
		name = "access_token"
	}

	return SessionCookie{
		Name:   name,
		Secure: cfg.GetSecureCookie(),
		Path:   "/",
		now:    now,
	}
}

// Set attaches the issued token, Max-Age is the remaining access lifetime.
// A token with less than a second left would become a browser session
// cookie, it is cleared instead.
func (s SessionCookie) Set(c *fiber.Ctx, issued *IssuedToken) {
	maxAge := issued.MaxAge(s.clock())
	if maxAge <= 0 {
		s.Clear(c)
		return
	}

	c.Cookie(&fiber.Cookie{
		Name:     s.Name,
		Value:    issued.Token,
		Path:     s.Path,
		MaxAge:   maxAge,
		HTTPOnly: true,
		Secure:   s.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s SessionCookie) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Clear expires the cookie
func (s SessionCookie) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.Name,
		Value:    "",
		Path:     s.Path,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   s.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Read returns the cookie value, empty when absent
func (s SessionCookie) Read(c *fiber.Ctx) string {
	return c.Cookies(s.Name)
}

// Written reports whether the response already carries the cookie
func (s SessionCookie) Written(c *fiber.Ctx) bool {
	return len(c.Response().Header.PeekCookie(s.Name)) > 0
}

// ErrorResponse is the JSON body of every error
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// ErrorHandler renders errors as {"detail", "code"}. Errors that are not
// rich errors never leak their message.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)

	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Detail: fiberErr.Message,
			})
		}

		var richErr *errors.Error
		if !errors.As(err, &richErr) {
			logger.Error("unhandled error on %s %s: %v", c.Method(), c.OriginalURL(), err)
			return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
				Detail: ErrInternal.Message,
				Code:   ErrInternal.TextCode,
			})
		}

		status := richErr.Code
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}

		if status >= http.StatusInternalServerError {
			logger.Error(
				"request %s %s failed: %s %s",
				c.Method(), c.OriginalURL(), richErr.Message, print.MaybePrettyJSON(richErr.Metadata),
			)
		} else {
			logger.Debug("request %s %s rejected: %s", c.Method(), c.OriginalURL(), richErr.TextCode)
		}

		return c.Status(status).JSON(ErrorResponse{
			Detail: richErr.Message,
			Code:   richErr.TextCode,
		})
	}
}
