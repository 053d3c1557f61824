// Package filecache keeps the room store's persisted state in a single
// CBOR file on the device.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/alimutlu55/localchat-discovery/internal/store"
)

const formatVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported cache file version")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	if encMode, err = opts.EncMode(); err != nil {
		panic("filecache: cbor encoder: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("filecache: cbor decoder: " + err.Error())
	}
}

type envelope struct {
	Version int             `cbor:"v"`
	State   store.Persisted `cbor:"state"`
}

type Cache struct {
	mu   sync.Mutex
	path string
}

// Open prepares path's directory. The file itself is created on the
// first Save.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{path: path}, nil
}

func (c *Cache) Load(ctx context.Context) (store.Persisted, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return store.Persisted{}, nil
	}
	if err != nil {
		return store.Persisted{}, err
	}

	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return store.Persisted{}, fmt.Errorf("decoding %s: %w", c.path, err)
	}
	if env.Version != formatVersion {
		return store.Persisted{}, fmt.Errorf("%s: %w %d", c.path, ErrUnsupportedVersion, env.Version)
	}
	return env.State, nil
}

// Save replaces the file atomically.
func (c *Cache) Save(ctx context.Context, p store.Persisted) error {
	data, err := encMode.Marshal(envelope{Version: formatVersion, State: p})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".rooms-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}

func (c *Cache) Close() error { return nil }
