package post

import (
	"context"
	"sync"

	"github.com/babbling-brook/streambed/shared/domain"
)

type StreamStore interface {
	GetStream(ctx context.Context, key domain.StreamKey) (*domain.Stream, error)
}

// StreamCache memoises stream schemas by key. Failed lookups are not cached so the
// next render retries them.
type StreamCache struct {
	store   StreamStore
	mu      sync.Mutex
	streams map[domain.StreamKey]*domain.Stream
}

func NewStreamCache(store StreamStore) *StreamCache {
	return &StreamCache{store: store, streams: make(map[domain.StreamKey]*domain.Stream)}
}

func (c *StreamCache) Get(ctx context.Context, key domain.StreamKey) (*domain.Stream, error) {
	c.mu.Lock()
	stream, ok := c.streams[key]
	c.mu.Unlock()
	if ok {
		return stream, nil
	}

	stream, err := c.store.GetStream(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cached, ok := c.streams[key]; ok {
		stream = cached
	} else {
		c.streams[key] = stream
	}
	c.mu.Unlock()
	return stream, nil
}

func (c *StreamCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}
