package geocache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrStoreUnavailable is returned by stores that have no durable backing
// (the equivalent of running outside a browser). The cache treats it as
// "permanently empty" and never surfaces it.
var ErrStoreUnavailable = errors.New("geocache: store unavailable")

// BlobStore persists the cache's entry list as one opaque blob under a
// single logical key. Load returns os.ErrNotExist when nothing has been
// saved yet.
type BlobStore interface {
	Load() ([]byte, error)
	Save(data []byte) error
	Delete() error
}

// FileStore keeps the blob in a single file. Saves go through a temp file
// and rename so a crash mid-write cannot leave a truncated blob behind.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path. The parent directory
// is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f *FileStore) Save(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
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
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Delete() error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemStore is an in-memory BlobStore for tests and ephemeral runs.
type MemStore struct {
	mu      sync.Mutex
	data    []byte
	present bool
}

func (m *MemStore) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return nil, os.ErrNotExist
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemStore) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make([]byte, len(data))
	copy(m.data, data)
	m.present = true
	return nil
}

func (m *MemStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.present = false
	return nil
}

// Null is a BlobStore with no backing at all; every load misses and every
// save reports ErrStoreUnavailable. A cache on top of it stays empty for
// the life of the process.
type Null struct{}

func (Null) Load() ([]byte, error) { return nil, os.ErrNotExist }
func (Null) Save([]byte) error     { return ErrStoreUnavailable }
func (Null) Delete() error         { return nil }
