// Package cache implements a content-addressed artifact store: downloaded
// server archives and installer output are stored by SHA-256, with a
// secondary (engine, version) -> hash index for convenience lookups.
// Writes are atomic (temp file + rename); reads verify the hash.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Cache is a content-addressed local store rooted at a directory.
type Cache struct {
	root string
	log  *zap.Logger

	mu    sync.Mutex
	index map[string]string // "engine/version" -> sha256 hex
}

// New returns a Cache rooted at root, creating it if necessary.
func New(root string, log *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(root, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating root: %w", err)
	}
	return &Cache{root: root, log: log, index: make(map[string]string)}, nil
}

func (c *Cache) objectPath(hash string) string {
	return filepath.Join(c.root, "objects", hash[:2], hash)
}

// Put stores data and returns its content hash. The write is atomic: data
// lands in a temp file beside the destination, then is renamed into place,
// so a reader never observes a partially written object.
func (c *Cache) Put(data io.Reader) (hash string, size int64, err error) {
	tmp, err := os.CreateTemp(c.root, "incoming-*")
	if err != nil {
		return "", 0, fmt.Errorf("cache: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("cache: writing object: %w", err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	dest := c.objectPath(sum)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, fmt.Errorf("cache: creating shard dir: %w", err)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		// Already have this content; nothing to rename.
		if c.log != nil {
			c.log.Debug("cache hit on write", zap.String("hash", sum), zap.String("size", humanize.Bytes(uint64(n))))
		}
		return sum, n, nil
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", 0, fmt.Errorf("cache: finalizing object: %w", err)
	}
	return sum, n, nil
}

// Open returns a reader for a stored object. The hash is checked as the
// object is read: Close returns an error if the bytes read do not hash to
// the requested value.
func (c *Cache) Open(hash string) (io.ReadCloser, error) {
	f, err := os.Open(c.objectPath(hash))
	if err != nil {
		return nil, err
	}
	return &verifyingReader{f: f, want: hash, h: sha256.New()}, nil
}

// Has reports whether an object is present without verifying its contents.
func (c *Cache) Has(hash string) bool {
	_, err := os.Stat(c.objectPath(hash))
	return err == nil
}

// Remember records that (engine, version) currently resolves to hash, for
// the secondary convenience index.
func (c *Cache) Remember(engine, version, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[engine+"/"+version] = hash
}

// Lookup returns the hash last remembered for (engine, version), if any.
func (c *Cache) Lookup(engine, version string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.index[engine+"/"+version]
	return h, ok
}

// verifyingReader hashes bytes as they're read and fails on Close if the
// accumulated hash doesn't match what the caller asked for.
type verifyingReader struct {
	f    *os.File
	want string
	h    hash.Hash
}

func (r *verifyingReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if n > 0 {
		r.h.Write(p[:n])
	}
	return n, err
}

func (r *verifyingReader) Close() error {
	got := hex.EncodeToString(r.h.Sum(nil))
	err := r.f.Close()
	if got != r.want {
		return fmt.Errorf("cache: checksum mismatch: want %s got %s", r.want, got)
	}
	return err
}
