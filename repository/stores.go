package repository

import (
	"context"
	"fmt"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// NewSessionStore builds the store selected by opts.Sessions.Backend. db
// is only used by the sql backend. The returned close func releases the
// redis client, if any.
func NewSessionStore(ctx context.Context, opts auth.Options, db *bun.DB) (auth.SessionStore, func() error, error) {
	noop := func() error { return nil }

	switch opts.Sessions.Backend {
	case "", BackendMemory:
		return auth.NewMemorySessionStore(), noop, nil
	case BackendSQL:
		if db == nil {
			return nil, noop, goerrors.New("sql session backend requires a database", goerrors.CategoryBadInput)
		}
		return NewSQLSessionStore(db), noop, nil
	case BackendRedis:
		client := NewRedisClient(opts.Sessions)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, auth.NewStoreUnavailableError(err, "session.redis_ping")
		}
		store := NewRedisSessionStore(client, opts.Sessions.KeyPrefix, opts.GetSessionTimeout())
		return store, client.Close, nil
	default:
		return nil, noop, goerrors.New(fmt.Sprintf("unknown session backend %q", opts.Sessions.Backend), goerrors.CategoryBadInput)
	}
}
