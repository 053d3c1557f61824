// Package fetch issues the clustered viewport query: it pads the bounds,
// deduplicates identical requests across callers, and tracks the single
// in-flight request of a view's channel.
package fetch

import (
	"context"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/query"
)

// Margin is the share of the viewport span added on every side before
// querying, so small pans stay inside already loaded data.
const Margin = 0.5

// BuildQuery returns the clustered query for viewport v.
func BuildQuery(v geo.Viewport, f query.Filter) query.ClusterQuery {
	return query.ClusterQuery{
		Bounds:   geo.Expand(v.Bounds, Margin),
		Zoom:     int(math.Trunc(v.Zoom)),
		Category: f.Category,
		User:     f.User,
	}
}

// Client wraps a query.Service so that concurrent identical queries share
// one request. The shared request runs on its own context and is cancelled
// only once every caller waiting on it has gone away.
type Client struct {
	svc   query.Service
	log   *zap.Logger
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewClient(svc query.Service, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{svc: svc, log: log.Named("fetch"), flights: make(map[string]*flight)}
}

func (c *Client) Clusters(ctx context.Context, q query.ClusterQuery) (query.ClusterResponse, error) {
	return shared(c, ctx, q.Key(), func(fctx context.Context) (query.ClusterResponse, error) {
		return c.svc.Clusters(fctx, q)
	})
}

func (c *Client) Rooms(ctx context.Context, q query.PageQuery) (query.PageResponse, error) {
	return shared(c, ctx, q.Key(), func(fctx context.Context) (query.PageResponse, error) {
		return c.svc.Rooms(fctx, q)
	})
}

func shared[T any](c *Client, ctx context.Context, key string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	c.mu.Lock()
	f := c.joinLocked(ctx, key)
	ch := c.group.DoChan(key, func() (any, error) {
		defer c.finish(key, f)
		v, err := call(f.ctx)
		return v, err
	})
	c.mu.Unlock()

	select {
	case res := <-ch:
		c.leave(key, f)
		if res.Shared {
			c.log.Debug("shared in-flight query", zap.String("key", key))
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		c.leave(key, f)
		return zero, ctx.Err()
	}
}

func (c *Client) joinLocked(ctx context.Context, key string) *flight {
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Client) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
		// A later caller must not attach to the request being cancelled.
		c.group.Forget(key)
	}
}

func (c *Client) finish(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

// Canceled reports whether err only means the request was superseded or
// its caller went away.
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
