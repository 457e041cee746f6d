package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSessionTimeout    = 1800 * time.Second
	DefaultLoginWindow       = 900 * time.Second
	DefaultMaxLoginAttempts  = 5
	DefaultTokenLength       = 32
	DefaultSessionCookieName = "fis_session"
	DefaultLoginRoute        = "/login"
	DefaultHomeRoute         = "/dashboard"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	envPrefix = "FIS_"
)

// Options is the concrete Config. It loads from YAML and FIS_* environment
// variables override individual fields.
type Options struct {
	SessionTimeout    time.Duration   `yaml:"session_timeout"`
	LoginWindow       time.Duration   `yaml:"login_window"`
	MaxLoginAttempts  int             `yaml:"max_login_attempts"`
	TokenLength       int             `yaml:"token_length"`
	SessionCookieName string          `yaml:"session_cookie_name"`
	SessionLookup     string          `yaml:"session_lookup"`
	CookieSecure      bool            `yaml:"cookie_secure"`
	LoginRoute        string          `yaml:"login_route"`
	HomeRoute         string          `yaml:"home_route"`
	Database          DatabaseOptions `yaml:"database"`
	Sessions          SessionOptions  `yaml:"sessions"`
	Log               LogOptions      `yaml:"log"`
}

type DatabaseOptions struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

// SessionOptions selects the session store. Backend is "memory", "sql"
// or "redis".
type SessionOptions struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

type LogOptions struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultOptions returns options matching the legacy system's constants.
func DefaultOptions() Options {
	return Options{
		SessionTimeout:    DefaultSessionTimeout,
		LoginWindow:       DefaultLoginWindow,
		MaxLoginAttempts:  DefaultMaxLoginAttempts,
		TokenLength:       DefaultTokenLength,
		SessionCookieName: DefaultSessionCookieName,
		SessionLookup:     "cookie:" + DefaultSessionCookieName,
		LoginRoute:        DefaultLoginRoute,
		HomeRoute:         DefaultHomeRoute,
		Database: DatabaseOptions{
			Driver: DriverSQLite,
			DSN:    "file:fis.db?cache=shared",
		},
		Sessions: SessionOptions{
			Backend:   "sql",
			KeyPrefix: "fis:session:",
		},
		Log: LogOptions{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadOptions reads path on top of the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return opts, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(raw, &opts); err != nil {
			return opts, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := opts.applyEnv(os.LookupEnv); err != nil {
		return opts, err
	}

	if err := opts.Validate(); err != nil {
		return opts, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}

	return opts, nil
}

func (o *Options) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = n
		return nil
	}

	if err := dur("SESSION_TIMEOUT", &o.SessionTimeout); err != nil {
		return err
	}
	if err := dur("LOGIN_WINDOW", &o.LoginWindow); err != nil {
		return err
	}
	if err := num("MAX_LOGIN_ATTEMPTS", &o.MaxLoginAttempts); err != nil {
		return err
	}
	if err := num("SESSIONS_REDIS_DB", &o.Sessions.RedisDB); err != nil {
		return err
	}
	if v, ok := lookup(envPrefix + "COOKIE_SECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("COOKIE_SECURE", v, err)
		}
		o.CookieSecure = b
	}

	str("SESSION_LOOKUP", &o.SessionLookup)
	str("DATABASE_DRIVER", &o.Database.Driver)
	str("DATABASE_DSN", &o.Database.DSN)
	str("SESSIONS_BACKEND", &o.Sessions.Backend)
	str("SESSIONS_REDIS_ADDR", &o.Sessions.RedisAddr)
	str("SESSIONS_REDIS_PASSWORD", &o.Sessions.RedisPassword)
	str("LOG_LEVEL", &o.Log.Level)
	str("LOG_FORMAT", &o.Log.Format)

	return nil
}

func envError(name, value string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("invalid value for %s%s", envPrefix, name)).
		WithMetadata(map[string]any{"value": value})
}

func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.SessionTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.LoginWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.MaxLoginAttempts, validation.Required, validation.Min(1)),
		validation.Field(&o.TokenLength, validation.Required, validation.Min(16)),
		validation.Field(&o.SessionCookieName, validation.Required),
		validation.Field(&o.LoginRoute, validation.Required),
		validation.Field(&o.HomeRoute, validation.Required),
		validation.Field(&o.Database),
		validation.Field(&o.Sessions),
	)
}

func (d DatabaseOptions) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (s SessionOptions) Validate() error {
	rules := []validation.Rule{}
	if s.Backend == "redis" {
		rules = append(rules, validation.Required)
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required, validation.In("memory", "sql", "redis")),
		validation.Field(&s.RedisAddr, rules...),
	)
}

func (o Options) GetSessionTimeout() time.Duration { return o.SessionTimeout }
func (o Options) GetLoginWindow() time.Duration    { return o.LoginWindow }
func (o Options) GetMaxLoginAttempts() int         { return o.MaxLoginAttempts }
func (o Options) GetTokenLength() int              { return o.TokenLength }
func (o Options) GetSessionCookieName() string     { return o.SessionCookieName }
func (o Options) GetCookieSecure() bool            { return o.CookieSecure }
func (o Options) GetLoginRoute() string            { return o.LoginRoute }
func (o Options) GetHomeRoute() string             { return o.HomeRoute }

func (o Options) GetSessionLookup() string {
	if strings.TrimSpace(o.SessionLookup) == "" {
		return "cookie:" + o.SessionCookieName
	}
	return o.SessionLookup
}
