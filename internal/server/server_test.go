package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/unkn0wn-root/tally"
	"github.com/unkn0wn-root/tally/genstore"
	promhooks "github.com/unkn0wn-root/tally/hooks/prom"
	"github.com/unkn0wn-root/tally/internal/database"
	"github.com/unkn0wn-root/tally/internal/models"
	"github.com/unkn0wn-root/tally/provider/ristretto"
)

func init() { gin.SetMode(gin.TestMode) }

type harness struct {
	db     *gorm.DB
	cache  *tally.Cache
	router *gin.Engine
	reg    *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, db.Create(&models.Profile{ID: "1", Handle: "ada", FollowerCount: 5}).Error)

	p, err := ristretto.New(ristretto.Config{MaxEntries: 1000})
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	hooks, err := promhooks.New("tally", reg)
	require.NoError(t, err)
	cache, err := tally.NewCache(tally.Options{Provider: p, Hooks: hooks})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close(context.Background()) })

	gens := genstore.NewLocal(0, 0)
	t.Cleanup(func() { _ = gens.Close(context.Background()) })

	svc, err := New(Deps{
		DB:          db,
		Cache:       cache,
		Gens:        gens,
		Keyspace:    tally.Keyspace{App: "test"},
		Hooks:       hooks,
		Codec:       "msgpack",
		MetricsPath: "/metrics",
		Gatherer:    reg,
		Checks:      map[string]func(context.Context) error{"cache": func(context.Context) error { return nil }},
	})
	require.NoError(t, err)
	return &harness{db: db, cache: cache, router: svc.Router(), reg: reg}
}

func (h *harness) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) counter(t *testing.T, name, id string) CounterResponse {
	t.Helper()
	rec := h.do(t, http.MethodGet, "/v1/counters/"+name+"/"+id)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out CounterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (h *harness) incr(t *testing.T, name, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		rec := h.do(t, http.MethodPost, "/v1/counters/"+name+"/"+id+"/incr")
		require.Equal(t, http.StatusOK, rec.Code)
		var out BumpResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.True(t, out.Applied)
	}
}

func (h *harness) row(t *testing.T, id string) models.Profile {
	t.Helper()
	var p models.Profile
	require.NoError(t, h.db.Where("id = ?", id).Take(&p).Error)
	return p
}

func TestCounterLifecycle(t *testing.T) {
	h := newHarness(t)

	out := h.counter(t, "followers", "1")
	require.EqualValues(t, 5, out.Value)
	require.Equal(t, "no_cache", out.Outcome)
	require.Nil(t, out.Cached)

	h.incr(t, "followers", "1", 3)
	out = h.counter(t, "followers", "1")
	require.EqualValues(t, 5, out.Value)
	require.Equal(t, "cache_refreshed", out.Outcome)
	require.NotNil(t, out.Cached)
	require.EqualValues(t, 3, *out.Cached)

	h.incr(t, "followers", "1", 2)
	out = h.counter(t, "followers", "1")
	require.EqualValues(t, 7, out.Value)
	require.Equal(t, "row_written", out.Outcome)
	require.False(t, out.WriteBackFailed)
	require.EqualValues(t, 7, h.row(t, "1").FollowerCount)
}

func TestDecrIsCacheOnly(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/counters/unread/1/decr")
	require.Equal(t, http.StatusOK, rec.Code)
	v, ok := h.cache.Get(context.Background(), "test.unread:1")
	require.True(t, ok)
	require.Equal(t, "0", v)
	require.EqualValues(t, 0, h.row(t, "1").UnreadCount)
}

func TestProfileReconcilesCounters(t *testing.T) {
	h := newHarness(t)
	get := func() models.Profile {
		rec := h.do(t, http.MethodGet, "/v1/profiles/1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p models.Profile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		return p
	}

	require.EqualValues(t, 5, get().FollowerCount)

	// cache behind the row: the row value wins
	h.incr(t, "followers", "1", 3)
	require.EqualValues(t, 5, get().FollowerCount)

	// cache at 6 after the refresh to 5: written back, read-model invalidated
	h.incr(t, "followers", "1", 1)
	h.incr(t, "responses", "1", 2)
	p := get()
	require.EqualValues(t, 6, p.FollowerCount)
	require.EqualValues(t, 2, p.ResponseCount)
	require.EqualValues(t, 6, h.row(t, "1").FollowerCount)
	require.EqualValues(t, 2, h.row(t, "1").ResponseCount)

	// next read loads the new row; the counters are already converged
	p = get()
	require.EqualValues(t, 6, p.FollowerCount)
	require.Equal(t, "ada", p.Handle)
}

// A row changed outside the gateway must win over the cached read-model's copy
// and must never be lowered by a later write-back.
func TestProfileAfterOutOfBandRowUpdate(t *testing.T) {
	h := newHarness(t)
	get := func() models.Profile {
		rec := h.do(t, http.MethodGet, "/v1/profiles/1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p models.Profile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		return p
	}

	require.EqualValues(t, 5, get().FollowerCount)
	h.incr(t, "followers", "1", 2)

	// bulk import bypasses the gateway; the cached profile still says 5
	require.NoError(t, h.db.Exec("UPDATE profiles SET follower_count = ? WHERE id = ?", 100, "1").Error)

	require.EqualValues(t, 100, get().FollowerCount)
	require.EqualValues(t, 100, h.row(t, "1").FollowerCount)
	v, ok := h.cache.Get(context.Background(), "test.followers:1")
	require.True(t, ok)
	require.Equal(t, "100", v)

	h.incr(t, "followers", "1", 5)
	require.EqualValues(t, 105, get().FollowerCount)
	require.EqualValues(t, 105, h.row(t, "1").FollowerCount)
}

func TestDeleteProfileCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/v1/profiles/1").Code)
	h.incr(t, "unread", "1", 1)
	_, ok := h.cache.Get(ctx, "test.profiles:1")
	require.True(t, ok)

	require.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/v1/profiles/1/cache").Code)
	_, ok = h.cache.Get(ctx, "test.profiles:1")
	require.False(t, ok)
	_, ok = h.cache.Get(ctx, "test.unread:1")
	require.False(t, ok)
}

func TestNotFound(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/v1/counters/likes/1/incr").Code)
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/counters/likes/1").Code)
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/counters/followers/404").Code)
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/profiles/404").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "ok", status["database"])
	require.Equal(t, "ok", status["cache"])

	h.counter(t, "followers", "1")
	rec = h.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `tally_counter_reconciliations_total{counter="followers",outcome="no_cache"} 1`), rec.Body.String())
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}
