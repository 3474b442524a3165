package http

import (
	"errors"
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrNoStats = errors.New("statistics file not found")

type cachedDocument struct {
	modTime time.Time
	size    int64
	data    []byte
}

// StatsCache serves JSON documents from disk, re-reading a file only when its
// modification time or size changes.
type StatsCache struct {
	cache *lru.Cache[string, cachedDocument]
}

func NewStatsCache(size int) (*StatsCache, error) {
	cache, err := lru.New[string, cachedDocument](size)
	if err != nil {
		return nil, err
	}
	return &StatsCache{cache: cache}, nil
}

// Load returns the contents of path. It returns ErrNoStats when the file is absent.
func (s *StatsCache) Load(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		s.cache.Remove(path)
		return nil, ErrNoStats
	}
	if err != nil {
		return nil, err
	}

	if doc, ok := s.cache.Get(path); ok && doc.modTime.Equal(info.ModTime()) && doc.size == info.Size() {
		return doc.data, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoStats
	}
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	s.cache.Add(path, cachedDocument{modTime: info.ModTime(), size: info.Size(), data: data})
	return data, nil
}
