// Package oracle implements the staleness oracle: it combines a resource
// adapter's raw modification time with an on-disk hash-time cache to decide
// whether a dependency has truly changed.
//
// Grounded on spec.md §4.2 and, for the cache's atomicity, on the teacher's
// internal/core/cache.go writeFileAtomic (create-temp, then os.Rename).
package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"buildweaver/internal/uri"
)

// entry is the on-disk hash-cache record: {"t": <float-seconds>, "h": <hex>}.
type entry struct {
	T float64 `json:"t"`
	H string  `json:"h"`
}

// hashCache reads and writes the on-disk per-dependency cache files.
//
// Path layout: CACHE_DIR/<scheme>/<netloc>/<abs-path-with-leading-slash-stripped>.
type hashCache struct {
	dir string
}

func newHashCache(dir string) *hashCache {
	return &hashCache{dir: dir}
}

func (c *hashCache) pathFor(u uri.URI) string {
	clean := strings.TrimPrefix(filepath.Clean("/"+u.Path), "/")
	return filepath.Join(c.dir, url.PathEscape(u.Scheme), url.PathEscape(u.Netloc), clean)
}

// readWithLock acquires the file's advisory exclusive lock and reads the
// cache record and its own mtime, returning the held lock. A file that does
// not exist, cannot be read, or is corrupt yields (nil, 0, lock, nil), so the
// oracle treats all three the same way. An error is returned (with no lock
// held) only when the cache directory or the lock cannot be obtained.
func (c *hashCache) readWithLock(path string) (*entry, float64, *flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, 0, nil, fmt.Errorf("oracle: creating cache directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, 0, nil, fmt.Errorf("oracle: acquiring cache lock: %w", err)
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, lock, nil
	}
	if err != nil {
		// Unreadable cache: treated the same as "does not exist".
		return nil, 0, lock, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Unreadable cache: treated the same as "does not exist".
		return nil, 0, lock, nil
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt cache: treated the same as "does not exist".
		return nil, 0, lock, nil
	}

	mtimeSeconds := float64(info.ModTime().UnixNano()) / 1e9
	return &e, mtimeSeconds, lock, nil
}

// write commits e to path atomically: create a temp file in the same
// directory, then os.Rename over the destination. The caller must already
// hold the path's lock.
func (c *hashCache) write(path string, e entry) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("oracle: creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	data, err := json.Marshal(e)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("oracle: marshaling cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("oracle: writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("oracle: closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("oracle: committing cache file: %w", err)
	}
	committed = true
	return nil
}

// touch advances path's own mtime to now without altering its content,
// matching "touch the cache file (update its mtime to now)".
func (c *hashCache) touch(path string) error {
	now := nowFunc()
	return os.Chtimes(path, now, now)
}
