package api

import "github.com/babbling-brook/streambed/shared/domain"

// Request DTOs

type GetPostRequest struct {
	Domain   string `json:"domain" validate:"required"`
	PostID   string `json:"post_id" validate:"required"`
	Revision int    `json:"revision,omitempty"`
}

type MakePostRequest struct {
	Stream      domain.StreamKey `json:"stream" validate:"required"`
	Content     []domain.Field   `json:"content" validate:"required,min=1"`
	PostID      string           `json:"post_id,omitempty"` // set when editing
	ParentID    string           `json:"parent_id,omitempty"`
	TopParentID string           `json:"top_parent_id,omitempty"`
	Private     bool             `json:"private,omitempty"`
}

type DeletePostRequest struct {
	Domain string `json:"domain" validate:"required"`
	PostID string `json:"post_id" validate:"required"`
}

type GetTakesRequest struct {
	Domain string `json:"domain" validate:"required"`
	PostID string `json:"post_id" validate:"required"`
}

type TakePostRequest struct {
	Domain     string  `json:"domain" validate:"required"`
	PostID     string  `json:"post_id" validate:"required"`
	FieldIndex int     `json:"field_id" validate:"gte=1"`
	Value      float64 `json:"value"`
}

type TakeRingPostRequest struct {
	RingDomain string `json:"ring_domain" validate:"required"`
	RingName   string `json:"ring_name" validate:"required"`
	TakeName   string `json:"take_name" validate:"required"`
	Domain     string `json:"domain" validate:"required"`
	PostID     string `json:"post_id" validate:"required"`
	Untake     bool   `json:"untake,omitempty"`
}

// PostSource selects the posts a cascade pages through.
type PostSource struct {
	Kind   string           `json:"kind" validate:"oneof=stream tree delta"`
	Stream domain.StreamKey `json:"stream"`
	Root   domain.PostKey   `json:"root"`
	Filter string           `json:"filter,omitempty"`
}

type GetPostsRequest struct {
	Source PostSource `json:"source"`
	Cursor string     `json:"cursor,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

// Response DTOs

type PostResponse struct {
	Post domain.Post `json:"post"`
}

type PostsResponse struct {
	Posts  []domain.Post `json:"posts"`
	Cursor string        `json:"cursor,omitempty"`
}

type TakesResponse struct {
	Takes domain.TakeSet `json:"takes"`
}
