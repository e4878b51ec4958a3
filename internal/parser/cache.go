package parser

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// DefaultCacheSize bounds the number of syntax trees kept alive by a TreeCache.
const DefaultCacheSize = 512

// CachedTree is a parsed file kept between regenerations.
type CachedTree struct {
	Tree   *tree_sitter.Tree
	Source []byte
	Hash   string
}

// TreeCache keeps parsed trees keyed by source-relative path.
// Evicted and replaced trees are closed. Not safe for concurrent use.
type TreeCache struct {
	lru *lru.Cache[string, *CachedTree]
}

// NewTreeCache creates a cache holding at most size trees.
func NewTreeCache(size int) (*TreeCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.NewWithEvict[string, *CachedTree](size, func(_ string, v *CachedTree) {
		if v != nil && v.Tree != nil {
			v.Tree.Close()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("tree cache: %w", err)
	}
	return &TreeCache{lru: c}, nil
}

// Get returns the cached tree for relPath when it was parsed from content
// with the given hash.
func (c *TreeCache) Get(relPath, hash string) (*CachedTree, bool) {
	v, ok := c.lru.Get(relPath)
	if !ok || v.Hash != hash {
		return nil, false
	}
	return v, true
}

// Put stores a tree, closing any tree previously cached for relPath.
func (c *TreeCache) Put(relPath, hash string, tree *tree_sitter.Tree, source []byte) {
	c.lru.Remove(relPath)
	c.lru.Add(relPath, &CachedTree{Tree: tree, Source: source, Hash: hash})
}

// Forget drops and closes the tree cached for relPath.
func (c *TreeCache) Forget(relPath string) {
	c.lru.Remove(relPath)
}

// Len returns the number of cached trees.
func (c *TreeCache) Len() int {
	return c.lru.Len()
}

// Purge closes every cached tree.
func (c *TreeCache) Purge() {
	c.lru.Purge()
}

// ParseCached returns the cached tree for (relPath, hash) or parses source
// and caches the result. The returned tree is owned by the cache.
func (c *TreeCache) ParseCached(relPath, hash string, source []byte) (*CachedTree, error) {
	if v, ok := c.Get(relPath, hash); ok {
		return v, nil
	}
	tree, err := Parse(source)
	if err != nil {
		return nil, err
	}
	c.Put(relPath, hash, tree, StripBOM(source))
	v, _ := c.lru.Peek(relPath)
	return v, nil
}
