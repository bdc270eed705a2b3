package api

import (
	"encoding/json"

	"github.com/babbling-brook/streambed/shared/domain"
)

type GetStreamRequest struct {
	domain.StreamKey
}

type StreamResponse struct {
	Stream domain.Stream `json:"stream"`
}

// InfoRequest is a generic read against the domus. Kind selects the query.
type InfoRequest struct {
	Kind   string            `json:"kind" validate:"required"`
	Params map[string]string `json:"params,omitempty"`
}

type InfoResponse struct {
	Data json.RawMessage `json:"data"`
}

type WaitingPostCountRequest struct {
	Kind  string `json:"type" validate:"required"`
	Count int    `json:"count"`
}

type WaitingPostCountResponse struct {
	Count int `json:"count"`
}
