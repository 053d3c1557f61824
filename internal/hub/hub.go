// Package hub keeps the registry of open discovery sessions. Each session
// pairs a map view with a list pager over the same room store.
package hub

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/clock"
	"github.com/alimutlu55/localchat-discovery/internal/discovery"
	"github.com/alimutlu55/localchat-discovery/internal/pagination"
)

var ErrSessionNotFound = errors.New("session not found")
var ErrHubClosed = errors.New("hub closed")

type RoomStore interface {
	discovery.Store
	pagination.RoomSink
}

type Fetcher interface {
	discovery.Fetcher
	pagination.RoomLister
}

type Config struct {
	// Clock stamps sessions and is handed to views that have none.
	Clock    clock.Clock
	Store    RoomStore
	Fetcher  Fetcher
	View     discovery.Options
	PageSize int
	Logger   *zap.Logger
}

type Session struct {
	ID        string
	View      *discovery.View
	List      *pagination.Pager
	CreatedAt time.Time
}

func (s *Session) Close() {
	s.List.Close()
	s.View.Close()
}

type HubMsg interface{ isHubMsg() }

type CreateResult struct {
	Session *Session
	Err     error
}

type CreateSession struct {
	Reply chan CreateResult
}

type GetSession struct {
	ID    string
	Reply chan *Session
}

type RemoveSession struct {
	ID    string
	Reply chan bool
}

type ListSessions struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*Session
	cfg      Config
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.View.Clock == nil {
		cfg.View.Clock = cfg.Clock
	}
	if cfg.View.Logger == nil {
		cfg.View.Logger = cfg.Logger
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*Session),
		cfg:      cfg,
		log:      cfg.Logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				s, err := h.create()
				msg.Reply <- CreateResult{Session: s, Err: err}

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case RemoveSession:
				s, ok := h.sessions[msg.ID]
				if ok {
					delete(h.sessions, msg.ID)
					s.Close()
					h.log.Info("session closed", zap.String("session", msg.ID))
				}
				if msg.Reply != nil {
					msg.Reply <- ok
				}

			case ListSessions:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				msg.Reply <- ids

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create() (*Session, error) {
	id := uuid.NewString()
	view, err := discovery.New(h.ctx, id, h.cfg.Store, h.cfg.Fetcher, h.cfg.View)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:        id,
		View:      view,
		List:      pagination.New(h.cfg.Fetcher, h.cfg.Store, h.cfg.PageSize, h.log.With(zap.String("session", id))),
		CreatedAt: h.cfg.Clock.Now(),
	}
	h.sessions[id] = s
	h.log.Info("session opened", zap.String("session", id))
	return s, nil
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		s.Close()
		delete(h.sessions, id)
	}
	h.cancel()
}
