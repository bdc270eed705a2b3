package apiclient

import (
	"context"

	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
)

// GetPost fetches one revision of a post with its content. Revision 0 asks for the latest.
func (c *APIClient) GetPost(ctx context.Context, key domain.PostKey, revision int) (*domain.Post, error) {
	var resp api.PostResponse
	req := api.GetPostRequest{Domain: key.Domain, PostID: key.PostID, Revision: revision}
	if err := c.do(ctx, api.ActionGetPost, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Post, nil
}

// GetPosts fetches one page of a cascade source. An empty cursor starts from the top.
func (c *APIClient) GetPosts(ctx context.Context, req api.GetPostsRequest) (*api.PostsResponse, error) {
	var resp api.PostsResponse
	if err := c.do(ctx, api.ActionGetPosts, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) MakePost(ctx context.Context, req api.MakePostRequest) (*domain.Post, error) {
	var resp api.PostResponse
	if err := c.do(ctx, api.ActionMakePost, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Post, nil
}

func (c *APIClient) DeletePost(ctx context.Context, key domain.PostKey) error {
	return c.do(ctx, api.ActionDeletePost, api.DeletePostRequest{Domain: key.Domain, PostID: key.PostID}, nil)
}
