package graph

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/filament-dev/filament/internal/imports"
)

// ParseCache memoizes import scans by content hash. Scanning is pure over
// the source text, so a hash hit can skip the scan entirely; resolution
// is never cached because it depends on what exists on disk.
type ParseCache struct {
	cache *lru.Cache[string, []imports.Ref]
}

// NewParseCache creates a cache bounded to size entries. Non-positive
// sizes fall back to a default bound.
func NewParseCache(size int) (*ParseCache, error) {
	if size < 1 {
		size = 1024
	}
	cache, err := lru.New[string, []imports.Ref](size)
	if err != nil {
		return nil, err
	}
	return &ParseCache{cache: cache}, nil
}

// Scan returns the import references for src, consulting the cache by
// content hash first.
func (p *ParseCache) Scan(hash string, src []byte) []imports.Ref {
	if refs, ok := p.cache.Get(hash); ok {
		return refs
	}
	refs := imports.Scan(src)
	p.cache.Add(hash, refs)
	return refs
}

// Len reports the number of cached scans.
func (p *ParseCache) Len() int {
	return p.cache.Len()
}
