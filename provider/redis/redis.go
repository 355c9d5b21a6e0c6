package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/tally/provider"
)

// DefaultTTL is the native expiry applied to every key written through this
// provider. It is independent of the timed-envelope freshness window.
const DefaultTTL = 7 * 24 * time.Hour

const defaultScanCount = 500

var ErrNilClient = errors.New("redis provider: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	ttl         time.Duration
	scanCount   int64
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	TTL         time.Duration // 0 => DefaultTTL; negative => no expiry
	ScanCount   int64         // SCAN COUNT hint for DelPrefix; 0 => 500
	CloseClient bool          // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ttl := cfg.TTL
	switch {
	case ttl == 0:
		ttl = DefaultTTL
	case ttl < 0:
		ttl = 0
	}
	count := cfg.ScanCount
	if count <= 0 {
		count = defaultScanCount
	}
	return &Redis{rdb: cfg.Client, ttl: ttl, scanCount: count, closeClient: cfg.CloseClient}, nil
}

func (p *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := p.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil // miss
	}
	if err != nil {
		return "", false, err // transport/server error
	}
	return s, true, nil
}

func (p *Redis) Set(ctx context.Context, key, value string) error {
	return p.rdb.Set(ctx, key, value, p.ttl).Err()
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// DelPrefix walks the keyspace with SCAN MATCH and deletes matches in batches.
// Cost grows with the total number of keys in the database, not with the
// number of matches; fine for the key counts this is meant for.
func (p *Redis) DelPrefix(ctx context.Context, prefix string) (int, error) {
	match := escapeGlob(prefix) + "*"
	removed := 0
	batch := make([]string, 0, p.scanCount)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := p.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	it := p.rdb.Scan(ctx, 0, match, p.scanCount).Iterator()
	for it.Next(ctx) {
		batch = append(batch, it.Val())
		if int64(len(batch)) >= p.scanCount {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return removed, err
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

// IncrBy uses native INCRBY. Keys it creates get the provider TTL; a value
// Redis refuses to treat as an integer is overwritten with delta.
func (p *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := p.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		if !isNotInteger(err) {
			return 0, err
		}
		if err := p.Set(ctx, key, pr.FormatCount(delta)); err != nil {
			return 0, err
		}
		return delta, nil
	}
	if n == delta && p.ttl > 0 {
		// freshly created by INCRBY (or it was 0): make sure it expires like Set
		if err := p.rdb.Expire(ctx, key, p.ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func isNotInteger(err error) bool {
	return strings.Contains(err.Error(), "not an integer")
}

// escapeGlob makes prefix literal inside a SCAN MATCH pattern.
func escapeGlob(prefix string) string {
	var b strings.Builder
	b.Grow(len(prefix))
	for i := 0; i < len(prefix); i++ {
		switch c := prefix[i]; c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
