package kvd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store is a persistent KV store with per-key expiry on top of bbolt.
// Layout of every value: 8 bytes big endian expiresAt (unix ms, 0 = never) || raw value.
// It is safe for concurrent use; bbolt serialises writers.
type Store struct {
	db         *bolt.DB
	bucket     []byte
	defaultTTL time.Duration
	now        func() time.Time

	closeOnce sync.Once
	closeErr  error
}

type Options struct {
	// Bucket is the name of the Bolt bucket to use.
	Bucket string
	// DefaultTTL is used when Put is called with ttl <= 0; <= 0 here means never expire.
	DefaultTTL time.Duration
}

var ErrNotFound = errors.New("kvd: not found")

const headerLen = 8

// Open initializes or opens a Store at the given path.
func Open(path string, opts Options) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	bucket := []byte("kv")
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, bucket: bucket, defaultTTL: opts.DefaultTTL, now: time.Now}, nil
}

// Close closes the underlying database. Repeated calls return the first result.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.closeOnce.Do(func() { s.closeErr = s.db.Close() })
	return s.closeErr
}

// Get returns the value if present and not expired. Expired entries read as ErrNotFound
// and are left for the next write or prefix removal to reclaim.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil || s.expired(v) {
			return ErrNotFound
		}
		out = append([]byte(nil), v[headerLen:]...)
		return nil
	})
	return out, err
}

// Put stores value with an absolute expiration computed as now+ttl.
func (s *Store) Put(key string, value []byte, ttl time.Duration) error {
	buf := s.frame(value, s.expiry(ttl))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), buf)
	})
}

// Delete removes a key; missing keys are not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Keys lists live keys starting with prefix, in byte order.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if s.expired(v) {
				continue
			}
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// DeletePrefix removes every key starting with prefix (live or expired) and
// reports how many live keys went away.
func (s *Store) DeletePrefix(prefix string) (int, error) {
	removed := 0
	p := []byte(prefix)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		var victims [][]byte
		c := b.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if !s.expired(v) {
				removed++
			}
			victims = append(victims, append([]byte(nil), k...))
		}
		for _, k := range victims {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// IncrBy adds delta to the integer stored at key inside one write transaction.
// Absent, expired or unparsable values count as zero. A live entry keeps its
// expiry; a new one gets the default TTL.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		exp := s.expiry(0)
		if v := b.Get([]byte(key)); v != nil && !s.expired(v) {
			cur, err := strconv.ParseInt(string(v[headerLen:]), 10, 64)
			if err == nil {
				n = cur
			}
			exp = int64(binary.BigEndian.Uint64(v[:headerLen]))
		}
		n += delta
		return b.Put([]byte(key), s.frame([]byte(strconv.FormatInt(n, 10)), exp))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixMilli()
}

func (s *Store) expired(v []byte) bool {
	if len(v) < headerLen {
		return true // foreign/corrupt value; treat as gone
	}
	exp := int64(binary.BigEndian.Uint64(v[:headerLen]))
	return exp > 0 && s.now().UnixMilli() >= exp
}

func (s *Store) frame(value []byte, expiresAt int64) []byte {
	buf := make([]byte, headerLen+len(value))
	binary.BigEndian.PutUint64(buf[:headerLen], uint64(expiresAt))
	copy(buf[headerLen:], value)
	return buf
}
