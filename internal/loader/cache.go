package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache keeps downloaded PDFs on local disk, one file per source URL.
type Cache struct {
	dir   string
	group singleflight.Group
}

// NewCache creates dir if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Key returns the cache key of url.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.dir, Key(url)+".pdf")
}

// Get returns the cached payload of url.
func (c *Cache) Get(url string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(url))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data for url. Concurrent writers of the same url share one
// write, and an existing entry is left alone.
func (c *Cache) Put(url string, data []byte) error {
	dst := c.path(url)
	_, err, _ := c.group.Do(dst, func() (interface{}, error) {
		if _, err := os.Stat(dst); err == nil {
			return nil, nil
		}
		tmp, err := os.CreateTemp(c.dir, filepath.Base(dst)+".*.tmp")
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return nil, err
		}
		if err := tmp.Close(); err != nil {
			return nil, err
		}
		return nil, os.Rename(tmp.Name(), dst)
	})
	if err != nil {
		return fmt.Errorf("cache %s: %w", url, err)
	}
	return nil
}

// Prune deletes cached files last modified more than maxAge ago and returns
// how many were removed.
func (c *Cache) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != c.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".pdf") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}
