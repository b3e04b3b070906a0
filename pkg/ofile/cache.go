package ofile

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// DefaultCacheSize is the number of files kept by NewCache(0).
const DefaultCacheSize = 256

// Cache keeps recently opened dependent libraries keyed by file identity so a batch of
// binaries sharing libraries reads each library once. It is safe for concurrent use.
type Cache struct {
	files *lru.Cache[ID, *File]
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[ID, *File](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file cache")
	}
	return &Cache{files: c}, nil
}

// Open returns the cached file for path or reads it. Cached files must be treated as
// read-only.
func (c *Cache) Open(path string) (*File, error) {
	if c == nil {
		return Open(path)
	}
	id, err := Identify(path)
	if err != nil {
		return nil, err
	}
	if f, ok := c.files.Get(id); ok {
		return f, nil
	}
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	c.files.Add(id, f)
	return f, nil
}

// Forget drops path from the cache, e.g. after it was rewritten.
func (c *Cache) Forget(path string) {
	if c == nil {
		return
	}
	if id, err := Identify(path); err == nil {
		c.files.Remove(id)
	}
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.files.Len()
}
