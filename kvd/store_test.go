package kvd

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts Options) (*Store, *time.Time) {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kv.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStorePutGetDelete(t *testing.T) {
	s, _ := openTestStore(t, Options{})

	_, err := s.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put("a", []byte{0, 1, 2}, 0))
	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2}, v)

	require.NoError(t, s.Delete("a"))
	require.NoError(t, s.Delete("a"))
	_, err = s.Get("a")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreExpiry(t *testing.T) {
	s, now := openTestStore(t, Options{DefaultTTL: time.Minute})

	require.NoError(t, s.Put("default", []byte("x"), 0))
	require.NoError(t, s.Put("short", []byte("x"), time.Second))

	*now = now.Add(time.Second)
	_, err := s.Get("short")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("default")
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	_, err = s.Get("default")
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := s.Keys("")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestStoreKeysAndDeletePrefix(t *testing.T) {
	s, now := openTestStore(t, Options{})

	for _, k := range []string{"app.users:1", "app.users:2", "app.users:1/card", "app.usersx:1", "app.followers:1"} {
		require.NoError(t, s.Put(k, []byte("v"), 0))
	}
	require.NoError(t, s.Put("app.users:3", []byte("v"), time.Second))
	*now = now.Add(2 * time.Second)

	keys, err := s.Keys("app.users:")
	require.NoError(t, err)
	require.Equal(t, []string{"app.users:1", "app.users:1/card", "app.users:2"}, keys)

	n, err := s.DeletePrefix("app.users:")
	require.NoError(t, err)
	require.Equal(t, 3, n, "expired keys are removed but not counted")

	keys, err = s.Keys("app.")
	require.NoError(t, err)
	require.Equal(t, []string{"app.followers:1", "app.usersx:1"}, keys)
}

func TestStoreIncrBy(t *testing.T) {
	s, now := openTestStore(t, Options{DefaultTTL: time.Hour})

	n, err := s.IncrBy("c", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.IncrBy("c", -3)
	require.NoError(t, err)
	require.Equal(t, int64(-2), n)

	require.NoError(t, s.Put("g", []byte("garbage"), 0))
	n, err = s.IncrBy("g", 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	// increments keep the original expiry
	*now = now.Add(30 * time.Minute)
	_, err = s.IncrBy("c", 1)
	require.NoError(t, err)
	*now = now.Add(31 * time.Minute)
	_, err = s.Get("c")
	require.ErrorIs(t, err, ErrNotFound)

	// an expired counter restarts from zero
	n, err = s.IncrBy("c", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestStoreCustomBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(path, Options{Bucket: "counters"})
	require.NoError(t, err)
	require.NoError(t, s.Put("a", []byte("1"), 0))
	require.NoError(t, s.Close())

	s, err = Open(path, Options{Bucket: "counters"})
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}
