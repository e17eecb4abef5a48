package origin

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBackend keeps all sessions in one hash: field = origin, value = JSON.
// Several bridge processes can share it; last write wins per origin.
type RedisBackend struct {
	client redis.UniversalClient
	key    string
	logger *zap.Logger
}

// NewRedisBackend connects to addr (plain host:port or a redis://,
// rediss://, redis-sentinel:// URL) and pings it.
func NewRedisBackend(ctx context.Context, addr, key string, logger *zap.Logger) (*RedisBackend, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	return NewRedisBackendFromClient(ctx, redis.NewUniversalClient(opts), key, logger)
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(ctx context.Context, client redis.UniversalClient, key string, logger *zap.Logger) (*RedisBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = "dappbridge:sessions"
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &RedisBackend{client: client, key: key, logger: logger.Named("redis_backend")}, nil
}

func (b *RedisBackend) Load(ctx context.Context) ([]*Session, error) {
	entries, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions hash: %w", err)
	}

	out := make([]*Session, 0, len(entries))
	for origin, raw := range entries {
		var s Session
		if err := sonic.UnmarshalString(raw, &s); err != nil {
			b.logger.Warn("skipping corrupt session entry", zap.String("origin", origin), zap.Error(err))
			continue
		}
		s.Origin = origin
		out = append(out, &s)
	}
	return out, nil
}

func (b *RedisBackend) Save(ctx context.Context, s *Session) error {
	raw, err := sonic.MarshalString(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := b.client.HSet(ctx, b.key, s.Origin, raw).Err(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, origin string) error {
	if err := b.client.HDel(ctx, b.key, origin).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// parseRedisURL accepts single-node, cluster (comma separated hosts) and
// sentinel deployments. Without a scheme addr is a plain host:port.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	opts := &redis.UniversalOptions{Addrs: strings.Split(u.Host, ",")}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}

	q := u.Query()
	parseDB := func(s string) error {
		if s == "" {
			return nil
		}
		db, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("redis: invalid db %q", s)
		}
		opts.DB = db
		return nil
	}

	switch u.Scheme {
	case "redis", "rediss":
		db := strings.TrimPrefix(u.Path, "/")
		if db == "" {
			db = q.Get("db")
		}
		if err := parseDB(db); err != nil {
			return nil, err
		}
		if u.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = strings.TrimPrefix(u.Path, "/")
		if err := parseDB(q.Get("db")); err != nil {
			return nil, err
		}
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
		if u.Scheme == "rediss-sentinel" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	return opts, nil
}
