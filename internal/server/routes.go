package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tally"
	"github.com/unkn0wn-root/tally/gateway"
)

const healthTimeout = 2 * time.Second

// CounterResponse is returned by the counter endpoints.
type CounterResponse struct {
	Counter string `json:"counter"`
	ID      string `json:"id"`
	Value   int64  `json:"value"`
	Row     int64  `json:"row"`
	Cached  *int64 `json:"cached,omitempty"`
	Outcome string `json:"outcome"`
	// WriteBackFailed is set when the cached winner could not be persisted;
	// Value is still the winner and the write is retried on the next read.
	WriteBackFailed bool `json:"write_back_failed,omitempty"`
}

// BumpResponse reports whether a cache-side increment was applied.
type BumpResponse struct {
	Counter string `json:"counter"`
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Router builds the gin engine for the service.
func (s *Service) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	if s.metricsPath != "" {
		r.GET(s.metricsPath, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/counters/:name/:id/incr", s.bump(true))
		v1.POST("/counters/:name/:id/decr", s.bump(false))
		v1.GET("/counters/:name/:id", s.counter)
		v1.GET("/profiles/:id", s.getProfile)
		v1.DELETE("/profiles/:id/cache", s.deleteProfileCache)
	}
	return r
}

func (s *Service) bump(up bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, id := c.Param("name"), c.Param("id")
		var (
			ok  bool
			err error
		)
		if up {
			ok, err = s.rec.Incr(c.Request.Context(), name, id)
		} else {
			ok, err = s.rec.Decr(c.Request.Context(), name, id)
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, BumpResponse{Counter: name, ID: id, Applied: ok})
	}
}

func (s *Service) counter(c *gin.Context) {
	name, id := c.Param("name"), c.Param("id")
	res, err := s.rec.Refresh(c.Request.Context(), name, id)
	var wb *tally.WriteBackError
	if err != nil && !errors.As(err, &wb) {
		s.fail(c, err)
		return
	}
	out := CounterResponse{
		Counter:         name,
		ID:              id,
		Value:           res.Value,
		Row:             res.Row,
		Outcome:         res.Outcome.String(),
		WriteBackFailed: wb != nil,
	}
	if res.Hit {
		cached := res.Cached
		out.Cached = &cached
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) getProfile(c *gin.Context) {
	p, err := s.profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Service) deleteProfileCache(c *gin.Context) {
	if err := s.forget(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := gin.H{}
	healthy := true
	if sqlDB, err := s.db.DB(); err != nil {
		status["database"], healthy = err.Error(), false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		status["database"], healthy = err.Error(), false
	} else {
		status["database"] = "ok"
	}
	// cache checks never fail /healthz; the cache is fail-open
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Service) fail(c *gin.Context, err error) {
	var unk *tally.UnknownCounterError
	switch {
	case errors.As(err, &unk), errors.Is(err, gateway.ErrRowNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
