// Package remote is a thin client for the kvd HTTP key/value service.
// Every call is a network round trip; transport failures, timeouts and
// non-2xx answers come back as errors and tally.Cache turns them into misses.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unkn0wn-root/tally/kvd"
	pr "github.com/unkn0wn-root/tally/provider"
)

const defaultTimeout = 2 * time.Second

var (
	ErrNoBaseURL = errors.New("remote provider: base URL is required")
	// ErrStatus wraps any unexpected HTTP status from the service.
	ErrStatus = errors.New("remote provider: unexpected status")
)

type Remote struct {
	base string
	hc   *http.Client
	ttl  time.Duration
}

var _ pr.Provider = (*Remote)(nil)

type Config struct {
	BaseURL string        // e.g. http://127.0.0.1:7070
	Timeout time.Duration // per request; 0 => 2s (ignored when Client is set)
	TTL     time.Duration // sent with every put; 0 => server default
	Client  *http.Client
}

func New(cfg Config) (*Remote, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrNoBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("remote provider: base URL: %w", err)
	}
	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Remote{base: base, hc: hc, ttl: cfg.TTL}, nil
}

func (p *Remote) Get(ctx context.Context, key string) (string, bool, error) {
	var out kvd.ValueResponse
	status, err := p.do(ctx, http.MethodGet, kvd.PathKV, url.Values{"key": {key}}, nil, &out)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNotFound {
		return "", false, nil
	}
	return string(out.Value), true, nil
}

func (p *Remote) Set(ctx context.Context, key, value string) error {
	req := kvd.PutRequest{Key: key, Value: []byte(value), TTLSeconds: int64(p.ttl / time.Second)}
	_, err := p.do(ctx, http.MethodPut, kvd.PathKV, nil, req, nil)
	return err
}

func (p *Remote) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, http.MethodDelete, kvd.PathKV, url.Values{"key": {key}}, nil, nil)
	return err
}

// DelPrefix delegates the filtering to the service.
func (p *Remote) DelPrefix(ctx context.Context, prefix string) (int, error) {
	var out kvd.RemovedResponse
	if _, err := p.do(ctx, http.MethodDelete, kvd.PathKeys, url.Values{"prefix": {prefix}}, nil, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// Keys lists live keys under prefix (filter-keys endpoint).
func (p *Remote) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out kvd.KeysResponse
	if _, err := p.do(ctx, http.MethodGet, kvd.PathKeys, url.Values{"prefix": {prefix}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

func (p *Remote) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	var out kvd.IncrResponse
	if _, err := p.do(ctx, http.MethodPost, kvd.PathIncr, nil, kvd.IncrRequest{Key: key, Delta: delta}, &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (p *Remote) Close(context.Context) error {
	p.hc.CloseIdleConnections()
	return nil
}

// do performs one request. 404 is returned as a status (not an error) so Get
// can report a miss; every other non-2xx wraps ErrStatus.
func (p *Remote) do(ctx context.Context, method, path string, q url.Values, body, out any) (int, error) {
	u := p.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet && path == kvd.PathKV:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var e kvd.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s", ErrStatus, method, path, resp.StatusCode, e.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("remote provider: decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
