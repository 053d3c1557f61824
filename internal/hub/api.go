package hub

import "context"

func (h *Hub) send(m HubMsg) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// request sends m and waits for the reply it carries.
func request[T any](ctx context.Context, h *Hub, m HubMsg, reply chan T) (T, error) {
	var zero T
	if err := h.send(m); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.done:
		return zero, ErrHubClosed
	}
}

func (h *Hub) Create(ctx context.Context) (*Session, error) {
	reply := make(chan CreateResult, 1)
	res, err := request(ctx, h, CreateSession{Reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	return res.Session, res.Err
}

func (h *Hub) Get(ctx context.Context, id string) (*Session, error) {
	reply := make(chan *Session, 1)
	s, err := request(ctx, h, GetSession{ID: id, Reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (h *Hub) Remove(ctx context.Context, id string) error {
	reply := make(chan bool, 1)
	ok, err := request(ctx, h, RemoveSession{ID: id, Reply: reply}, reply)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (h *Hub) Sessions(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	return request(ctx, h, ListSessions{Reply: reply}, reply)
}

// Close closes every session and waits for the hub to stop.
func (h *Hub) Close() {
	h.cancel()
	<-h.done
}
