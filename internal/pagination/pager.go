// Package pagination drives the list view: a page cursor over the
// viewport list query with read-ahead of the first pages and merge by
// room id.
package pagination

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alimutlu55/localchat-discovery/internal/query"
	"github.com/alimutlu55/localchat-discovery/internal/room"
)

const DefaultPageSize = 20

// readAhead is how many pages after the first a reset loads in parallel.
const readAhead = 2

var ErrSuperseded = errors.New("list reset superseded by a newer one")

type RoomLister interface {
	Rooms(ctx context.Context, q query.PageQuery) (query.PageResponse, error)
}

// RoomSink receives every room the pager loads.
type RoomSink interface {
	UpsertRooms(rooms []room.Room) error
}

type Filter struct {
	Bounds orb.Bound
	query.Filter
}

type State struct {
	Count         int    `json:"count"`
	NextPage      int    `json:"nextPage"`
	HasNext       bool   `json:"hasNext"`
	Loading       bool   `json:"loading"`
	TotalElements int    `json:"totalElements"`
	Err           string `json:"error,omitempty"`
}

// Pager is safe for concurrent use. Only one load runs at a time; a Reset
// supersedes whatever load is in flight.
type Pager struct {
	svc      RoomLister
	sink     RoomSink
	log      *zap.Logger
	pageSize int

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	filter  Filter
	items   []room.Room
	seen    map[string]struct{}
	next    int
	hasNext bool
	total   int
	loading bool
	err     error
}

func New(svc RoomLister, sink RoomSink, pageSize int, log *zap.Logger) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pager{svc: svc, sink: sink, pageSize: pageSize, log: log.Named("pager"), seen: map[string]struct{}{}}
}

// Reset drops the accumulated list and loads the first page for f. When
// more pages exist the next two load in parallel; their failures are
// ignored.
func (p *Pager) Reset(ctx context.Context, f Filter) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.filter = f
	p.items = nil
	p.seen = map[string]struct{}{}
	p.next, p.hasNext, p.total = 0, false, 0
	p.loading = true
	p.err = nil
	p.mu.Unlock()

	first, err := p.svc.Rooms(ctx, p.pageQuery(f, 0))

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		p.fail(err)
		p.mu.Unlock()
		return err
	}
	p.merge(first, 0)
	more := first.HasNext
	if !more {
		p.loading = false
		p.cancel = nil
	}
	p.mu.Unlock()
	p.publish(first.Rooms)

	if !more {
		return nil
	}
	return p.readAhead(ctx, gen, f)
}

func (p *Pager) readAhead(ctx context.Context, gen uint64, f Filter) error {
	pages := make([]*query.PageResponse, readAhead)
	g, gctx := errgroup.WithContext(ctx)
	for i := range pages {
		page := i + 1
		g.Go(func() error {
			resp, err := p.svc.Rooms(gctx, p.pageQuery(f, page))
			if err != nil {
				p.log.Debug("read-ahead page failed", zap.Int("page", page), zap.Error(err))
				return nil
			}
			pages[i] = &resp
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return ErrSuperseded
	}
	var loaded []room.Room
	for i, resp := range pages {
		// A gap would leave the cursor pointing past a missing page.
		if resp == nil {
			break
		}
		p.merge(*resp, i+1)
		loaded = append(loaded, resp.Rooms...)
		if !resp.HasNext {
			break
		}
	}
	p.loading = false
	p.cancel = nil
	p.mu.Unlock()

	p.publish(loaded)
	return nil
}

// LoadMore fetches the next page. It does nothing while another load is
// running or when the last page has been reached.
func (p *Pager) LoadMore(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.loading || !p.hasNext {
		p.mu.Unlock()
		return false, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.loading = true
	p.cancel = cancel
	gen, page, f := p.gen, p.next, p.filter
	p.mu.Unlock()

	resp, err := p.svc.Rooms(ctx, p.pageQuery(f, page))

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return false, ErrSuperseded
	}
	if err != nil {
		p.fail(err)
		p.mu.Unlock()
		return false, err
	}
	p.merge(resp, page)
	p.loading = false
	p.cancel = nil
	p.mu.Unlock()

	p.publish(resp.Rooms)
	return true, nil
}

func (p *Pager) pageQuery(f Filter, page int) query.PageQuery {
	return query.PageQuery{
		Bounds:   f.Bounds,
		Category: f.Category,
		User:     f.User,
		Page:     page,
		PageSize: p.pageSize,
	}
}

// merge appends the rooms of page not seen yet. Callers hold p.mu.
func (p *Pager) merge(resp query.PageResponse, page int) {
	for _, r := range resp.Rooms {
		if _, dup := p.seen[r.ID]; dup {
			continue
		}
		p.seen[r.ID] = struct{}{}
		p.items = append(p.items, r)
	}
	p.next = page + 1
	p.hasNext = resp.HasNext
	p.total = resp.TotalElements
	p.err = nil
}

func (p *Pager) fail(err error) {
	p.loading = false
	p.cancel = nil
	if errors.Is(err, context.Canceled) {
		return
	}
	p.err = err
	p.log.Warn("list page failed", zap.Int("page", p.next), zap.Error(err))
}

func (p *Pager) publish(rooms []room.Room) {
	if p.sink == nil || len(rooms) == 0 {
		return
	}
	if err := p.sink.UpsertRooms(rooms); err != nil {
		p.log.Warn("storing listed rooms", zap.Error(err))
	}
}

// Items returns the accumulated list without hidden rooms, hydrated from
// snap.
func (p *Pager) Items(snap room.Snapshot) []room.Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]room.Room, 0, len(p.items))
	for _, r := range p.items {
		if snap.Hidden.Has(r.ID) {
			continue
		}
		out = append(out, snap.Hydrate(r))
	}
	return out
}

func (p *Pager) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := State{
		Count:         len(p.items),
		NextPage:      p.next,
		HasNext:       p.hasNext,
		Loading:       p.loading,
		TotalElements: p.total,
	}
	if p.err != nil {
		s.Err = p.err.Error()
	}
	return s
}

// Close aborts any load in flight.
func (p *Pager) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.loading = false
}
