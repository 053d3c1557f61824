package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimutlu55/localchat-discovery/internal/clock"
	"github.com/alimutlu55/localchat-discovery/internal/discovery"
	"github.com/alimutlu55/localchat-discovery/internal/query/querytest"
	"github.com/alimutlu55/localchat-discovery/internal/store"
)

func newHub(t *testing.T) *Hub {
	t.Helper()
	st, err := store.New(context.Background(), store.Options{})
	require.NoError(t, err)
	h := NewHub(context.Background(), Config{Store: st, Fetcher: &querytest.Fake{}})
	t.Cleanup(func() {
		h.Close()
		_ = st.Close()
	})
	return h
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()

	s1, err := h.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, s1.ID)

	s2, err := h.Get(ctx, s1.ID)
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	ids, err := h.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{s1.ID}, ids)
}

func TestHub_SessionStampedByClock(t *testing.T) {
	st, err := store.New(context.Background(), store.Options{})
	require.NoError(t, err)
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	fc := clock.Fake(start)
	h := NewHub(context.Background(), Config{Clock: fc, Store: st, Fetcher: &querytest.Fake{}})
	t.Cleanup(func() {
		h.Close()
		_ = st.Close()
	})

	s1, err := h.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start, s1.CreatedAt)

	fc.Advance(time.Minute)
	s2, err := h.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Minute), s2.CreatedAt)
}

func TestHub_UnknownSession(t *testing.T) {
	h := newHub(t)
	_, err := h.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, h.Remove(context.Background(), "nope"), ErrSessionNotFound)
}

func TestHub_RemoveClosesView(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	s, err := h.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, h.Remove(ctx, s.ID))
	select {
	case <-s.View.Done():
	case <-time.After(time.Second):
		t.Fatal("view still running after removal")
	}
	_, err = h.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.View.Refetch(), discovery.ErrViewClosed)
}

func TestHub_ShutdownClosesEverySession(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()
	a, err := h.Create(ctx)
	require.NoError(t, err)
	b, err := h.Create(ctx)
	require.NoError(t, err)

	h.Inbox() <- ShutdownHub{}
	for _, s := range []*Session{a, b} {
		select {
		case <-s.View.Done():
		case <-time.After(time.Second):
			t.Fatalf("session %s still running after shutdown", s.ID)
		}
	}
	_, err = h.Create(ctx)
	assert.ErrorIs(t, err, ErrHubClosed)
}
