package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Blobs is a flat key-value space holding one serialized document per key,
// the way a browser's local storage does.
type Blobs interface {
	// Load returns nil data and no error when the key was never written.
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

type MapBlobs struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMapBlobs() *MapBlobs {
	return &MapBlobs{data: make(map[string][]byte)}
}

func (m *MapBlobs) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (m *MapBlobs) Save(key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return nil
}

// DirBlobs keeps every key in its own JSON file so data survives restarts.
type DirBlobs struct {
	dir string
}

func NewDirBlobs(dir string) (*DirBlobs, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &DirBlobs{dir: dir}, nil
}

func (d *DirBlobs) path(key string) string {
	return filepath.Join(d.dir, key+".json")
}

func (d *DirBlobs) Load(key string) ([]byte, error) {
	raw, err := os.ReadFile(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return raw, err
}

// Save writes through a temp file and rename so a crash never leaves a
// half-written document behind.
func (d *DirBlobs) Save(key string, data []byte) error {
	tmp, err := os.CreateTemp(d.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), d.path(key))
}
