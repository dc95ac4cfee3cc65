package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DiskStore stores uploads on the local filesystem. Each upload is a payload
// file named by its ID plus a JSON sidecar holding its metadata.
type DiskStore struct {
	dir     string
	maxSize int64

	mu  sync.RWMutex
	now func() time.Time
}

type diskMeta struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

const metaSuffix = ".meta"

// NewDiskStore creates a new DiskStore.
//
// Parameters:
//   - dir: Directory to store uploads in
//   - maxSize: Maximum file size in bytes (0 = no limit)
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{
		dir:     dir,
		maxSize: maxSize,
		now:     time.Now,
	}, nil
}

// Save writes the payload to disk and returns its ID.
func (s *DiskStore) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	path := s.payloadPath(id)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	written, err := limitedCopy(f, r, s.maxSize)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}

	meta := &diskMeta{
		Filename:    filepath.Base(filename),
		ContentType: contentType,
		Size:        written,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	err = s.saveMeta(id, meta)
	s.mu.Unlock()
	if err != nil {
		os.Remove(path)
		return "", err
	}

	return id, nil
}

// Open returns a reader over a stored payload.
func (s *DiskStore) Open(ctx context.Context, id string) (*File, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	meta, err := s.loadMeta(id)
	s.mu.RUnlock()
	if err != nil {
		return nil, ErrNotFound
	}

	f, err := os.Open(s.payloadPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &File{
		ID:          id,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		CreatedAt:   meta.CreatedAt,
		Reader:      f,
	}, nil
}

// Delete removes an upload and its metadata.
func (s *DiskStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.payloadPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Cleanup removes uploads created before now-maxAge, along with orphaned
// files whose modification time is older than the cutoff.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		id := strings.TrimSuffix(name, metaSuffix)

		created := time.Time{}
		if meta, err := s.loadMeta(id); err == nil {
			created = meta.CreatedAt
		} else if info, err := entry.Info(); err == nil {
			created = info.ModTime()
		}

		if !created.IsZero() && created.Before(cutoff) {
			os.Remove(filepath.Join(s.dir, name))
		}
	}
	return nil
}

func (s *DiskStore) payloadPath(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *DiskStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+metaSuffix)
}

func (s *DiskStore) saveMeta(id string, meta *diskMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(id), data, 0o644)
}

func (s *DiskStore) loadMeta(id string) (*diskMeta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return nil, err
	}
	var meta diskMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// validID reports whether id has the shape of an ID issued by Save.
// It keeps client-supplied IDs from escaping the store directory.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
