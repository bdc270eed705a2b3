package apiclient

import (
	"context"
	"encoding/json"

	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
)

func (c *APIClient) GetStream(ctx context.Context, key domain.StreamKey) (*domain.Stream, error) {
	var resp api.StreamResponse
	if err := c.do(ctx, api.ActionGetStream, api.GetStreamRequest{StreamKey: key}, &resp); err != nil {
		return nil, err
	}
	if resp.Stream.Key == (domain.StreamKey{}) {
		resp.Stream.Key = key
	}
	return &resp.Stream, nil
}

// InfoRequest runs a generic domus query and returns its raw payload.
func (c *APIClient) InfoRequest(ctx context.Context, kind string, params map[string]string) (json.RawMessage, error) {
	var resp api.InfoResponse
	if err := c.do(ctx, api.ActionInfoRequest, api.InfoRequest{Kind: kind, Params: params}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *APIClient) GetWaitingPostCount(ctx context.Context, kind string) (int, error) {
	var resp api.WaitingPostCountResponse
	if err := c.do(ctx, api.ActionGetWaitingPostCount, api.WaitingPostCountRequest{Kind: kind}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *APIClient) SetWaitingPostCount(ctx context.Context, kind string, count int) error {
	return c.do(ctx, api.ActionSetWaitingPostCount, api.WaitingPostCountRequest{Kind: kind, Count: count}, nil)
}
