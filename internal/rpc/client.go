package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/cache"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgrpc "github.com/goran-ethernal/ChainSyncer/pkg/rpc"
	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds the part of an error response kept in RequestError.
const maxErrorBody = 512

// Compile-time check to ensure Client implements pkgrpc.Client interface.
var _ pkgrpc.Client = (*Client)(nil)

// Client performs rate limited, retried and optionally cached GET requests against an indexer REST API.
// It implements the pkgrpc.Client interface.
type Client struct {
	name    string
	baseURL string
	cfg     *config.HTTPConfig
	http    *http.Client
	limiter *rate.Limiter
	cache   cache.Cache
	log     *logger.Logger
}

// NewClient creates a client for the API at baseURL.
// A nil cache disables response caching.
func NewClient(name, baseURL string, cfg *config.HTTPConfig, c cache.Cache, log *logger.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid datasource url %q: %w", baseURL, err)
	}

	if c == nil {
		c = cache.NewNoop()
	}

	client := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.ConnectionTimeout.Duration},
		cache:   c,
		log:     log,
	}

	if cfg.RatelimitRPS > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RatelimitRPS), max(cfg.RatelimitBurst, 1))
	}

	return client, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Get performs the request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, req pkgrpc.Request, out any) error {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	endpoint := req.Name
	if endpoint == "" {
		endpoint = req.Path
	}

	var key string
	if req.Cacheable {
		key = cache.Key(c.name, target)
		if body, err := c.cache.Get(ctx, key); err == nil {
			RPCCacheHitInc(c.name)
			return decode(body, out, target)
		} else if !errors.Is(err, cache.ErrNotFound) {
			c.log.Warnf("cache lookup for %s failed: %v", target, err)
		}
	}

	var body []byte
	err := retry(ctx, c.cfg, c.name, endpoint, func() error {
		var err error
		body, err = c.do(ctx, endpoint, target)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	if err := decode(body, out, target); err != nil {
		RPCMethodError(c.name, endpoint, "decode")
		return err
	}

	if req.Cacheable {
		if err := c.cache.Set(ctx, key, body); err != nil {
			c.log.Warnf("failed to cache response for %s: %v", target, err)
		}
	}

	return nil
}

func (c *Client) do(ctx context.Context, endpoint, target string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	RPCMethodInc(c.name, endpoint)
	start := time.Now()
	defer func() { RPCMethodDuration(c.name, endpoint, time.Since(start)) }()

	c.log.Debugf("GET %s", target)

	resp, err := c.http.Do(req)
	if err != nil {
		RPCMethodError(c.name, endpoint, "transport")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		RPCMethodError(c.name, endpoint, fmt.Sprintf("status_%d", resp.StatusCode))
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RequestError{
			Status: resp.StatusCode,
			URL:    target,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		RPCMethodError(c.name, endpoint, "read")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

func decode(body []byte, out any, target string) error {
	if out == nil {
		return nil
	}
	if err := sonnet.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", target, err)
	}

	return nil
}
