package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"

	"github.com/lad75020/SendToOneNote/internal/fileutil"
)

// FileCache persists the identity SDK's serialized cache in a 0600 file.
type FileCache struct {
	path string
	mu   sync.Mutex
}

var _ cache.ExportReplace = (*FileCache)(nil)

// NewFileCache returns a cache stored at path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// Replace loads the file into the SDK cache. A missing file is an empty cache.
func (c *FileCache) Replace(_ context.Context, u cache.Unmarshaler, _ cache.ReplaceHints) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read token cache: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return u.Unmarshal(data)
}

// Export writes the SDK cache to the file.
func (c *FileCache) Export(_ context.Context, m cache.Marshaler, _ cache.ExportHints) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("serialize token cache: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(c.path, data, 0o600)
}
