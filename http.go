package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

const redirectCookieName = "fis_redirect"

// SessionExtractor pulls a session id out of a request.
type SessionExtractor func(router.Context) string

type RouteAuthenticator struct {
	auth             *Auther
	sessions         *SessionManager
	resolver         *AuthorizationResolver
	cfg              Config
	extractors       []SessionExtractor
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther *Auther, resolver *AuthorizationResolver, cfg Config) (*RouteAuthenticator, error) {
	extractors, err := ParseSessionLookup(cfg.GetSessionLookup())
	if err != nil {
		return nil, err
	}

	a := &RouteAuthenticator{
		auth:       auther,
		sessions:   auther.Sessions(),
		resolver:   resolver,
		cfg:        cfg,
		extractors: extractors,
		Logger:     defaultLogger(),
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// ParseSessionLookup turns "cookie:fis_session,header:X-Session-ID" into
// extractors tried in order.
func ParseSessionLookup(lookup string) ([]SessionExtractor, error) {
	var extractors []SessionExtractor
	for _, part := range strings.Split(lookup, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		source, name, ok := strings.Cut(part, ":")
		if !ok || name == "" {
			return nil, goerrors.New(fmt.Sprintf("invalid session lookup %q", part), goerrors.CategoryBadInput)
		}
		switch source {
		case "cookie":
			extractors = append(extractors, func(c router.Context) string {
				return c.Cookies(name)
			})
		case "header":
			extractors = append(extractors, func(c router.Context) string {
				return c.GetString(name, "")
			})
		default:
			return nil, goerrors.New(fmt.Sprintf("unknown session lookup source %q", source), goerrors.CategoryBadInput)
		}
	}
	if len(extractors) == 0 {
		return nil, goerrors.New("session lookup is empty", goerrors.CategoryBadInput)
	}
	return extractors, nil
}

// SessionID returns the first non empty id found by the extractors.
func (a *RouteAuthenticator) SessionID(ctx router.Context) string {
	for _, extract := range a.extractors {
		if id := strings.TrimSpace(extract(ctx)); id != "" {
			return id
		}
	}
	return ""
}

// Login authenticates the request. Clients without a session get a
// pre-auth id first so their failed attempts are counted.
func (a *RouteAuthenticator) Login(ctx router.Context, req LoginRequest) error {
	clientID := a.SessionID(ctx)
	if clientID == "" {
		id, err := NewSessionID()
		if err != nil {
			return NewStoreUnavailableError(err, "session.generate_id")
		}
		clientID = id
		a.setSessionCookie(ctx, clientID)
	}

	session, err := a.auth.Login(ctx.Context(), clientID, req)
	if err != nil {
		a.Logger.Info("login error", "error", err)
		return err
	}

	a.setSessionCookie(ctx, session.ID)
	ctx.Locals(SessionContextKey, session)
	return nil
}

// LoginPost handles the login form submission.
func (a *RouteAuthenticator) LoginPost(ctx router.Context) error {
	req := LoginRequest{
		Username: ctx.FormValue("username"),
		Password: ctx.FormValue("password"),
	}

	if err := a.Login(ctx, req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.GetRedirectOrDefault(ctx), http.StatusSeeOther)
}

func (a *RouteAuthenticator) Logout(ctx router.Context) error {
	if err := a.auth.Logout(ctx.Context(), a.SessionID(ctx)); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	a.cookieDel(ctx, a.cfg.GetSessionCookieName())
	return ctx.Redirect(a.cfg.GetLoginRoute(), http.StatusFound)
}

// ProtectedRoute validates and touches the session before the handler
// runs, storing it in locals under SessionContextKey. Missing and expired
// sessions go to AuthErrorHandler; any other failure, such as an
// unavailable store, goes to ErrorHandler.
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session, err := a.sessions.Touch(ctx.Context(), a.SessionID(ctx))
			switch {
			case err == nil:
			case IsSessionExpired(err):
				a.cookieDel(ctx, a.cfg.GetSessionCookieName())
				return a.AuthErrorHandler(ctx, err)
			case IsSessionNotFound(err):
				return a.AuthErrorHandler(ctx, err)
			default:
				a.Logger.Error("session validation failed", "path", ctx.OriginalURL(), "error", err)
				return a.ErrorHandler(ctx, err)
			}

			ctx.Locals(SessionContextKey, session)
			return ctx.Next()
		}
	}
}

// RequireAdmin sends non administrators back to the home route.
func (a *RouteAuthenticator) RequireAdmin() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			identity, ok := GetRouterIdentity(ctx)
			if !ok {
				return a.AuthErrorHandler(ctx, ErrSessionNotFound)
			}

			if !identity.Role.CanManageAccounts() {
				a.Logger.Info("administrator route refused",
					"username", identity.Username,
					"path", ctx.OriginalURL(),
				)
				return ctx.Redirect(a.cfg.GetHomeRoute(), http.StatusFound)
			}

			return ctx.Next()
		}
	}
}

// Authorize checks capability over the target profile for the session in
// ctx.
func (a *RouteAuthenticator) Authorize(ctx router.Context, target uuid.UUID, capability Capability) error {
	identity, ok := GetRouterIdentity(ctx)
	if !ok {
		return ErrSessionNotFound
	}
	return a.resolver.Require(ctx.Context(), identity, target, capability)
}

// Capabilities resolves what the session in ctx may do to target.
func (a *RouteAuthenticator) Capabilities(ctx router.Context, target uuid.UUID) (Capabilities, error) {
	identity, _ := GetRouterIdentity(ctx)
	return a.resolver.Capabilities(ctx.Context(), identity, target)
}

func (a *RouteAuthenticator) GetRedirectOrDefault(ctx router.Context) string {
	r := ctx.Cookies(redirectCookieName)
	if r == "" || !strings.HasPrefix(r, "/") || strings.HasPrefix(r, "//") {
		r = a.cfg.GetHomeRoute()
	}
	a.cookieDel(ctx, redirectCookieName)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	ctx.Cookie(&router.Cookie{
		Name:     redirectCookieName,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) setSessionCookie(c router.Context, id string) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetSessionCookieName(),
		Value:    id,
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: "Lax",
	})
}

// defaultAuthErrHandler redirects to the login route, flagging timeouts so
// the login page can explain why.
func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	target := a.cfg.GetLoginRoute()
	if IsSessionExpired(err) {
		target += "?timeout=1"
	} else if c.Method() == http.MethodGet {
		a.SetRedirect(c)
	}

	statusCode := http.StatusSeeOther
	if c.Method() == http.MethodGet {
		statusCode = http.StatusFound
	}
	return c.Redirect(target, statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Info(
		"request error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.TextCode {
	case TextCodeSessionExpired, TextCodeSessionNotFound:
		return a.AuthErrorHandler(c, richErr)
	}

	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	message := richErr.Message
	if code >= http.StatusInternalServerError {
		message = "An unexpected server error occurred"
	}
	return c.Status(code).SendString(message)
}
