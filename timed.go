package tally

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tally/codec"
	"github.com/unkn0wn-root/tally/internal/wire"
)

// ExpireAt is the freshness window of every timed entry. An entry whose age
// (now - created) is >= ExpireAt is discarded on read.
const ExpireAt = time.Hour

// Timed is a value read through the timed API together with its creation
// time in milliseconds since the Unix epoch.
type Timed[V any] struct {
	Created int64
	Value   V
}

// CreatedAt returns Created as a time.Time.
func (t Timed[V]) CreatedAt() time.Time { return time.UnixMilli(t.Created) }

// SetTimed stamps v with the cache clock and stores it with a plain Set.
// An encode failure is reported as false, like any failed write.
func SetTimed[V any](ctx context.Context, c *Cache, cd codec.Codec[V], key string, v V) bool {
	payload, err := cd.Encode(v)
	if err != nil {
		c.log.Warn("timed encode failed", Fields{"key": key, "err": err})
		return false
	}
	return c.Set(ctx, key, string(wire.EncodeTimed(c.now().UnixMilli(), payload)))
}

// GetTimed returns the stored value if it is still fresh. Expired, foreign or
// undecodable entries are removed and reported as a miss; a stale format is
// never an error.
func GetTimed[V any](ctx context.Context, c *Cache, cd codec.Codec[V], key string) (Timed[V], bool) {
	var zero Timed[V]
	raw, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	created, payload, err := wire.DecodeTimed([]byte(raw))
	if err != nil {
		c.discard(ctx, key, "corrupt")
		return zero, false
	}
	if c.now().UnixMilli()-created >= ExpireAt.Milliseconds() {
		c.discard(ctx, key, "expired")
		return zero, false
	}
	v, err := cd.Decode(payload)
	if err != nil {
		c.discard(ctx, key, "decode")
		return zero, false
	}
	return Timed[V]{Created: created, Value: v}, true
}

func (c *Cache) discard(ctx context.Context, key, reason string) {
	c.Remove(ctx, key)
	c.hooks.TimedDiscarded(key, reason)
	c.log.Debug("timed entry discarded", Fields{"key": key, "reason": reason})
}
