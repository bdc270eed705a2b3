package apiclient

import (
	"context"

	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
)

func (c *APIClient) GetTakesForPost(ctx context.Context, key domain.PostKey) (domain.TakeSet, error) {
	var resp api.TakesResponse
	if err := c.do(ctx, api.ActionGetTakesForPost, api.GetTakesRequest{Domain: key.Domain, PostID: key.PostID}, &resp); err != nil {
		return nil, err
	}
	if resp.Takes == nil {
		resp.Takes = domain.TakeSet{}
	}
	return resp.Takes, nil
}

func (c *APIClient) TakePost(ctx context.Context, req api.TakePostRequest) (domain.Take, error) {
	var take domain.Take
	if err := c.do(ctx, api.ActionTakePost, req, &take); err != nil {
		return domain.Take{}, err
	}
	return take, nil
}

func (c *APIClient) TakeRingPost(ctx context.Context, req api.TakeRingPostRequest) error {
	return c.do(ctx, api.ActionTakeRingPost, req, nil)
}
