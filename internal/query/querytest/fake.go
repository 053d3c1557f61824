// Package querytest provides an in-memory query.Service for tests.
package querytest

import (
	"context"
	"sync"

	"github.com/alimutlu55/localchat-discovery/internal/query"
)

// Fake records every query and answers with OnClusters / OnRooms. A nil
// handler answers with an empty response.
type Fake struct {
	OnClusters func(ctx context.Context, q query.ClusterQuery) (query.ClusterResponse, error)
	OnRooms    func(ctx context.Context, q query.PageQuery) (query.PageResponse, error)

	mu       sync.Mutex
	clusters []query.ClusterQuery
	rooms    []query.PageQuery
}

func (f *Fake) Clusters(ctx context.Context, q query.ClusterQuery) (query.ClusterResponse, error) {
	f.mu.Lock()
	f.clusters = append(f.clusters, q)
	h := f.OnClusters
	f.mu.Unlock()
	if h == nil {
		return query.ClusterResponse{}, nil
	}
	return h(ctx, q)
}

func (f *Fake) Rooms(ctx context.Context, q query.PageQuery) (query.PageResponse, error) {
	f.mu.Lock()
	f.rooms = append(f.rooms, q)
	h := f.OnRooms
	f.mu.Unlock()
	if h == nil {
		return query.PageResponse{}, nil
	}
	return h(ctx, q)
}

func (f *Fake) ClusterCalls() []query.ClusterQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]query.ClusterQuery(nil), f.clusters...)
}

func (f *Fake) RoomCalls() []query.PageQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]query.PageQuery(nil), f.rooms...)
}

// Gate makes a handler block until Release or the request's context ends.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

func NewGate() *Gate { return &Gate{ch: make(chan struct{})} }

func (g *Gate) Release() { g.once.Do(func() { close(g.ch) }) }

// Wait returns ctx.Err() if the request was cancelled first.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
