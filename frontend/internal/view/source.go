package view

import (
	"context"
	"sync"

	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
)

type PostLister interface {
	GetPosts(ctx context.Context, req api.GetPostsRequest) (*api.PostsResponse, error)
}

// pagedSource walks a domus post listing with its cursor. The first page always
// starts from the top; later pages follow the last cursor until it runs out.
type pagedSource struct {
	lister PostLister
	source api.PostSource
	limit  int

	mu     sync.Mutex
	cursor string
	done   bool
}

func newPagedSource(lister PostLister, source api.PostSource, limit int) *pagedSource {
	return &pagedSource{lister: lister, source: source, limit: limit}
}

func (s *pagedSource) first(ctx context.Context) ([]domain.Post, error) {
	s.mu.Lock()
	s.cursor = ""
	s.done = false
	s.mu.Unlock()
	return s.next(ctx)
}

func (s *pagedSource) next(ctx context.Context) ([]domain.Post, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, nil
	}
	cursor := s.cursor
	s.mu.Unlock()

	resp, err := s.lister.GetPosts(ctx, api.GetPostsRequest{Source: s.source, Cursor: cursor, Limit: s.limit})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cursor = resp.Cursor
	s.done = resp.Cursor == ""
	s.mu.Unlock()
	return resp.Posts, nil
}
