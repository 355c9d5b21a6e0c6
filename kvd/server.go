package kvd

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter exposes s over HTTP using the routes in protocol.go.
func NewRouter(s *Store, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{store: s, log: log}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(PathHealth, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET(PathKV, h.get)
	r.PUT(PathKV, h.put)
	r.DELETE(PathKV, h.del)
	r.GET(PathKeys, h.keys)
	r.DELETE(PathKeys, h.delPrefix)
	r.POST(PathIncr, h.incr)
	return r
}

type handler struct {
	store *Store
	log   *zap.Logger
}

func (h *handler) get(c *gin.Context) {
	key, ok := requireQuery(c, "key")
	if !ok {
		return
	}
	v, err := h.store.Get(key)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.fail(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, ValueResponse{Value: v})
}

func (h *handler) put(c *gin.Context) {
	var req PutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.store.Put(req.Key, req.Value, time.Duration(req.TTLSeconds)*time.Second); err != nil {
		h.fail(c, "put", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) del(c *gin.Context) {
	key, ok := requireQuery(c, "key")
	if !ok {
		return
	}
	if err := h.store.Delete(key); err != nil {
		h.fail(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) keys(c *gin.Context) {
	keys, err := h.store.Keys(c.Query("prefix"))
	if err != nil {
		h.fail(c, "keys", err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, KeysResponse{Keys: keys})
}

// delPrefix refuses an empty prefix; wiping the whole store is not an API operation.
func (h *handler) delPrefix(c *gin.Context) {
	prefix, ok := requireQuery(c, "prefix")
	if !ok {
		return
	}
	n, err := h.store.DeletePrefix(prefix)
	if err != nil {
		h.fail(c, "delete_prefix", err)
		return
	}
	c.JSON(http.StatusOK, RemovedResponse{Removed: n})
}

func (h *handler) incr(c *gin.Context) {
	var req IncrRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	n, err := h.store.IncrBy(req.Key, req.Delta)
	if err != nil {
		h.fail(c, "incr", err)
		return
	}
	c.JSON(http.StatusOK, IncrResponse{Value: n})
}

func (h *handler) fail(c *gin.Context, op string, err error) {
	h.log.Error("kvd operation failed", zap.String("op", op), zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

func requireQuery(c *gin.Context, name string) (string, bool) {
	v := c.Query(name)
	if v == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: name + " is required"})
		return "", false
	}
	return v, true
}
