package csrf

import (
	"net/http"
	"slices"
	"strings"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// DefaultContextKey is the locals key the token is exposed under
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName is the default name for the CSRF token form field
const DefaultFormFieldName = "csrf_token"

// DefaultHeaderName is the default header name for CSRF tokens
const DefaultHeaderName = "X-CSRF-Token"

// DefaultTemplateHelpersKey is the locals key holding the helper map.
const DefaultTemplateHelpersKey = "template_helpers"

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	// SessionContextKey is where the session middleware stored the
	// *auth.Session. Defaults to auth.SessionContextKey.
	SessionContextKey string

	// ContextKey defines the key for exposing the token in locals
	ContextKey string

	// FormFieldName defines the name of the form field containing the token
	FormFieldName string

	// HeaderName defines the header name for the token
	HeaderName string

	// TokenLookup defines where to look for the token
	// Format: "form:csrf_token,header:X-CSRF-Token"
	TokenLookup string

	// ErrorHandler receives auth.ErrCSRFMismatch
	ErrorHandler router.ErrorHandler

	// SuccessHandler defines the success handler
	SuccessHandler router.HandlerFunc

	// SafeMethods defines HTTP methods that don't require CSRF protection
	SafeMethods []string

	// DisableTemplateHelpers disables helper injection when true.
	DisableTemplateHelpers bool
	// TemplateHelpersKey defines the key used when merging helper maps.
	TemplateHelpersKey string
}

// TokenExtractor defines a function to extract token from request
type TokenExtractor func(router.Context) string

// New returns middleware that rejects state changing requests whose token
// does not match the one bound to the caller's session. It must run after
// the session middleware. A missing session, a session without a token, a
// missing token and a wrong token are all reported as auth.ErrCSRFMismatch.
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)
	extractors := getExtractors(cfg.TokenLookup, cfg.FormFieldName, cfg.HeaderName)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			session, _ := ctx.Locals(cfg.SessionContextKey).(*auth.Session)

			if session != nil && session.CSRFToken != "" {
				ctx.Locals(cfg.ContextKey, session.CSRFToken)
				ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
				ctx.Locals(cfg.ContextKey+"_header", cfg.HeaderName)
				if !cfg.DisableTemplateHelpers {
					ctx.LocalsMerge(cfg.TemplateHelpersKey, TemplateHelpers(session.CSRFToken, cfg.FormFieldName, cfg.HeaderName))
				}
			}

			method := strings.ToUpper(ctx.Method())
			if slices.Contains(cfg.SafeMethods, method) {
				return cfg.SuccessHandler(ctx)
			}

			if !auth.ValidateCSRFToken(session, extractToken(ctx, extractors)) {
				return cfg.ErrorHandler(ctx, auth.ErrCSRFMismatch)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

func extractToken(ctx router.Context, extractors []TokenExtractor) string {
	for _, extractor := range extractors {
		if token := strings.TrimSpace(extractor(ctx)); token != "" {
			return token
		}
	}
	return ""
}

// getExtractors returns token extractors based on configuration
func getExtractors(tokenLookup, formField, header string) []TokenExtractor {
	if tokenLookup == "" {
		return []TokenExtractor{
			extractorFromForm(formField),
			extractorFromHeader(header),
		}
	}

	var extractors []TokenExtractor
	for _, part := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" {
			continue
		}
		switch source {
		case "form":
			extractors = append(extractors, extractorFromForm(name))
		case "header":
			extractors = append(extractors, extractorFromHeader(name))
		}
	}

	return extractors
}

func extractorFromForm(fieldName string) TokenExtractor {
	return func(ctx router.Context) string {
		return ctx.FormValue(fieldName)
	}
}

func extractorFromHeader(headerName string) TokenExtractor {
	return func(ctx router.Context) string {
		return ctx.GetString(headerName, "")
	}
}

// configDefault returns a default config
func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SessionContextKey == "" {
		cfg.SessionContextKey = auth.SessionContextKey
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.TemplateHelpersKey == "" {
		cfg.TemplateHelpersKey = DefaultTemplateHelpersKey
	}

	return cfg
}

// defaultErrorHandler answers with the same generic message whatever went
// wrong.
func defaultErrorHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = auth.ErrCSRFMismatch
	}
	return ctx.Status(richErr.Code).SendString(richErr.Message)
}

// TemplateHelpers returns the values a form template needs to embed token.
func TemplateHelpers(token, fieldName, headerName string) map[string]any {
	return map[string]any{
		"csrf_token":       token,
		"csrf_field":       `<input type="hidden" name="` + fieldName + `" value="` + token + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + token + `">`,
		"csrf_header_name": headerName,
	}
}
