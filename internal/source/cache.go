package source

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/git-pkgs/nuget/internal/core"
)

// Key identifies one memoized gather operation: a single source answering
// about a single identity. Two concurrent callers asking about the same Key
// share one in-flight fetch.
type Key struct {
	Source   string
	Identity core.Identity
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s", k.Source, k.Identity.String())
}

// Cache is the GatherCache: it deduplicates concurrent fetches for the same
// Key to a single underlying call. Results are memoized for the cache's
// lifetime (one per Gateway); errors are never cached, so a transient
// failure does not poison later callers.
type Cache struct {
	group singleflight.Group

	mu   sync.Mutex
	memo map[string]*core.ResolvedDependencyInfo
}

// NewCache returns an empty GatherCache.
func NewCache() *Cache {
	return &Cache{
		memo: make(map[string]*core.ResolvedDependencyInfo),
	}
}

// Gather returns the memoized result for key, or calls fetch exactly once
// across any number of concurrent callers sharing key and memoizes a
// successful result. A failed fetch is not memoized, so a subsequent call
// with the same key retries.
func (c *Cache) Gather(ctx context.Context, key Key, fetch func(context.Context) (*core.ResolvedDependencyInfo, error)) (*core.ResolvedDependencyInfo, error) {
	c.mu.Lock()
	if info, ok := c.memo[key.String()]; ok {
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		c.mu.Lock()
		if info, ok := c.memo[key.String()]; ok {
			c.mu.Unlock()
			return info, nil
		}
		c.mu.Unlock()

		info, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.memo[key.String()] = info
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*core.ResolvedDependencyInfo), nil
}

// Forget evicts key's memoized result, if any, forcing the next Gather for
// that key to refetch.
func (c *Cache) Forget(key Key) {
	c.mu.Lock()
	delete(c.memo, key.String())
	c.mu.Unlock()
}
