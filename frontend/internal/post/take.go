package post

import (
	"context"
	"fmt"
	"net/http"

	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
	internal_errors "github.com/babbling-brook/streambed/shared/errors"
)

type TakeStore interface {
	TakePost(ctx context.Context, req api.TakePostRequest) (domain.Take, error)
	TakeRingPost(ctx context.Context, req api.TakeRingPostRequest) error
}

// Taker records the visitor's takes on value fields and ring takes on posts.
type Taker struct {
	store   TakeStore
	streams *StreamCache
}

func NewTaker(store TakeStore, streams *StreamCache) *Taker {
	return &Taker{store: store, streams: streams}
}

// Take sets the visitor's value on one value field of p. Values outside the field's
// range are rejected before reaching the domus.
func (t *Taker) Take(ctx context.Context, user *domain.User, p *domain.Post, fieldIndex int, value float64) (domain.Take, error) {
	if user == nil {
		return domain.Take{}, &internal_errors.ErrorWithStatusCode{Message: "Log in to take posts", StatusCode: http.StatusUnauthorized}
	}
	stream, err := t.streams.Get(ctx, p.Stream)
	if err != nil {
		return domain.Take{}, fmt.Errorf("%w %s: %w", ErrStreamUnavailable, p.Stream, err)
	}
	def, ok := stream.Definition(fieldIndex)
	if !ok || def.Type != domain.FieldValue {
		return domain.Take{}, &internal_errors.ErrorWithStatusCode{Message: fmt.Sprintf("Field %d is not a value field", fieldIndex), StatusCode: http.StatusBadRequest}
	}
	if def.Who == domain.VisibleOwner && !user.Owns(p) {
		return domain.Take{}, &internal_errors.ErrorWithStatusCode{Message: "Only the owner can take this field", StatusCode: http.StatusForbidden}
	}
	field, _ := p.Field(fieldIndex)
	lo, hi := ValueRange(def, field)
	if value < lo || value > hi {
		return domain.Take{}, &internal_errors.ErrorWithStatusCode{
			Message:    fmt.Sprintf("Value must be between %v and %v", lo, hi),
			StatusCode: http.StatusBadRequest,
		}
	}

	return t.store.TakePost(ctx, api.TakePostRequest{
		Domain:     p.Domain,
		PostID:     p.PostID,
		FieldIndex: fieldIndex,
		Value:      value,
	})
}

// TakeRing applies (or with untake, removes) a ring-scoped take.
func (t *Taker) TakeRing(ctx context.Context, key domain.PostKey, ringDomain, ringName, takeName string, untake bool) error {
	if ringDomain == "" || ringName == "" || takeName == "" {
		return &internal_errors.ErrorWithStatusCode{Message: "Ring and take name are required", StatusCode: http.StatusBadRequest}
	}
	return t.store.TakeRingPost(ctx, api.TakeRingPostRequest{
		RingDomain: ringDomain,
		RingName:   ringName,
		TakeName:   takeName,
		Domain:     key.Domain,
		PostID:     key.PostID,
		Untake:     untake,
	})
}
