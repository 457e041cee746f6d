package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultSessionKeyPrefix = "fis:session:"

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSessionStore keeps each session as a JSON value. Updates use
// WATCH/MULTI so a concurrent writer makes the transaction fail and the
// update is retried. Keys expire after twice the idle timeout, which
// keeps abandoned pre-auth sessions from piling up. Authenticated session
// ids are also kept in a per account set so they can be revoked together.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ auth.SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(client redis.UniversalClient, prefix string, idleTimeout time.Duration) *RedisSessionStore {
	if prefix == "" {
		prefix = DefaultSessionKeyPrefix
	}
	if idleTimeout <= 0 {
		idleTimeout = auth.DefaultSessionTimeout
	}
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
		ttl:    2 * idleTimeout,
	}
}

// NewRedisClient builds a client from the session options.
func NewRedisClient(opts auth.SessionOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisSessionStore) accountKey(accountID uuid.UUID) string {
	return s.prefix + "account:" + accountID.String()
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*auth.Session, error) {
	session, err := s.get(ctx, s.client, s.key(id))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, auth.ErrSessionNotFound
	}
	return session, nil
}

func (s *RedisSessionStore) Update(ctx context.Context, id string, fn auth.SessionUpdateFunc) (*auth.Session, error) {
	key := s.key(id)

	var (
		result *auth.Session
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		result, fnErr = nil, nil

		current, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}

		if next == nil {
			if current == nil {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				if current.Authenticated() {
					pipe.SRem(ctx, s.accountKey(current.Identity.AccountID), id)
				}
				return nil
			})
			return err
		}

		next.ID = id
		next.Version = 1
		if current != nil {
			next.Version = current.Version + 1
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			if next.Authenticated() {
				accountKey := s.accountKey(next.Identity.AccountID)
				pipe.SAdd(ctx, accountKey, id)
				pipe.Expire(ctx, accountKey, s.ttl)
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = next
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case auth.IsStoreUnavailable(err):
			return nil, err
		default:
			return nil, auth.NewStoreUnavailableError(err, "session.update")
		}
	}

	return nil, auth.ErrSessionConflict
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return auth.NewStoreUnavailableError(err, "session.delete")
	}
	return nil
}

// DeleteByAccount removes the sessions listed in the account set. Only the
// ids that were read are taken out of the set, so a session added in the
// meantime stays indexed.
func (s *RedisSessionStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	accountKey := s.accountKey(accountID)

	ids, err := s.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return 0, auth.NewStoreUnavailableError(err, "session.delete_by_account")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key(id))
		members = append(members, id)
	}

	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, accountKey, members...)
		return nil
	})
	if err != nil {
		return 0, auth.NewStoreUnavailableError(err, "session.delete_by_account")
	}
	return int(del.Val()), nil
}

func (s *RedisSessionStore) get(ctx context.Context, c getter, key string) (*auth.Session, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, auth.NewStoreUnavailableError(err, "session.load")
	}

	session := &auth.Session{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, auth.NewStoreUnavailableError(err, "session.decode")
	}
	return session, nil
}
