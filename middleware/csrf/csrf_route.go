package csrf

import (
	"net/http"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router method used to mount the endpoint.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// RouteConfig controls the token endpoint.
type RouteConfig struct {
	Path      string
	RouteName string
	// SessionContextKey is where the session middleware stored the
	// touched *auth.Session. Defaults to auth.SessionContextKey.
	SessionContextKey string
	FormFieldName     string
	HeaderName        string
}

const (
	defaultRoutePath = "/csrf"
	defaultRouteName = "auth.csrf.get"
)

// RegisterRoutes mounts a GET endpoint that hands script driven forms the
// token of the caller's session. protected must validate and touch the
// session, normally RouteAuthenticator.ProtectedRoute.
func RegisterRoutes(app RouteRegistrar, guard *auth.CSRFGuard, protected router.MiddlewareFunc, cfg ...RouteConfig) {
	conf := routeConfigDefault(cfg...)
	app.Get(conf.Path, TokenHandler(guard, conf), protected).SetName(conf.RouteName)
}

func routeConfigDefault(cfg ...RouteConfig) RouteConfig {
	conf := RouteConfig{
		Path:              defaultRoutePath,
		RouteName:         defaultRouteName,
		SessionContextKey: auth.SessionContextKey,
		FormFieldName:     DefaultFormFieldName,
		HeaderName:        DefaultHeaderName,
	}
	if len(cfg) == 0 {
		return conf
	}

	c := cfg[0]
	if c.Path != "" {
		conf.Path = c.Path
	}
	if c.RouteName != "" {
		conf.RouteName = c.RouteName
	}
	if c.SessionContextKey != "" {
		conf.SessionContextKey = c.SessionContextKey
	}
	if c.FormFieldName != "" {
		conf.FormFieldName = c.FormFieldName
	}
	if c.HeaderName != "" {
		conf.HeaderName = c.HeaderName
	}

	return conf
}

// TokenHandler answers with the session token, issuing one when the
// session has none yet.
func TokenHandler(guard *auth.CSRFGuard, cfg RouteConfig) router.HandlerFunc {
	return func(ctx router.Context) error {
		session, ok := auth.GetRouterSession(ctx, cfg.SessionContextKey)
		if !ok || !session.Authenticated() {
			return ctx.JSON(http.StatusUnauthorized, map[string]string{
				"error": auth.ErrSessionNotFound.Message,
			})
		}

		token, err := guard.Issue(ctx.Context(), session.ID)
		if err != nil {
			status := auth.StatusCode(err)
			message := auth.ErrCSRFMismatch.Message
			if status >= http.StatusInternalServerError {
				message = "An unexpected server error occurred"
			}
			return ctx.JSON(status, map[string]string{"error": message})
		}

		ctx.SetHeader("Cache-Control", "no-store, max-age=0")

		return ctx.JSON(http.StatusOK, map[string]string{
			"token":       token,
			"field_name":  cfg.FormFieldName,
			"header_name": cfg.HeaderName,
		})
	}
}
