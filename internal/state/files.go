package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore keeps one <id>.json file per session in a directory.
// It is used as a human-readable mirror of the SQLite store.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the mirror directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// PathFor returns the file path used for id.
func (f *FileStore) PathFor(id string) string {
	return filepath.Join(f.dir, id+".json")
}

// Save writes the blob atomically via a temp file and rename.
func (f *FileStore) Save(_ context.Context, id string, blob []byte) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session %s: %w", id, err)
	}
	if err := os.Rename(tmpName, f.PathFor(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename session %s: %w", id, err)
	}
	return nil
}

// Load reads the session file, or returns nil if it does not exist.
func (f *FileStore) Load(_ context.Context, id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.PathFor(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	return data, nil
}

// List returns mirrored sessions, most recently modified first.
func (f *FileStore) List(_ context.Context) ([]Record, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read mirror directory: %w", err)
	}

	var records []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		records = append(records, Record{
			ID:        strings.TrimSuffix(name, ".json"),
			UpdatedAt: info.ModTime(),
			Size:      info.Size(),
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].UpdatedAt.After(records[j].UpdatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// Delete removes the session file.
func (f *FileStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(f.PathFor(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error { return nil }
