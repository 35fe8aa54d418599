// Package lobby reserves room codes in Redis so several server processes
// never hand out the same code.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/park285/omok-room-server/internal/room"
)

const ttlCode = 24 * time.Hour

// Store implements room.CodeReserver. Each process reserves under its own
// owner id and only releases codes it owns.
type Store struct {
	rdb   *redis.Client
	owner string
	ttl   time.Duration
}

var _ room.CodeReserver = (*Store)(nil)

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, owner: uuid.NewString(), ttl: ttlCode}
}

// NewStoreFromURL dials REDIS_URL and checks the connection.
func NewStoreFromURL(ctx context.Context, raw string) (*Store, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := parseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(rdb), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Owner is this process's reservation id.
func (s *Store) Owner() string { return s.owner }

func keyCode(code string) string { return "omok:room:" + strings.TrimSpace(code) }
func keyIndex() string           { return "omok:rooms" }

// Reserve claims code for this process. It returns false if another
// process already holds it.
func (s *Store) Reserve(ctx context.Context, code string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, keyCode(code), s.owner, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", code, err)
	}
	if !ok {
		return false, nil
	}
	if err := s.rdb.SAdd(ctx, keyIndex(), code).Err(); err != nil {
		return true, fmt.Errorf("index %s: %w", code, err)
	}
	_ = s.rdb.Expire(ctx, keyIndex(), s.ttl).Err()
	return true, nil
}

// Release drops code if this process still owns it.
func (s *Store) Release(ctx context.Context, code string) error {
	key := keyCode(code)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur != s.owner {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			p.SRem(ctx, keyIndex(), code)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("release %s: %w", code, err)
	}
	return nil
}

// Reserved lists codes that are still held by any process. Expired codes are
// pruned from the index as a side effect.
func (s *Store) Reserved(ctx context.Context) ([]string, error) {
	codes, err := s.rdb.SMembers(ctx, keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		n, err := s.rdb.Exists(ctx, keyCode(c)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = s.rdb.SRem(ctx, keyIndex(), c).Err()
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
