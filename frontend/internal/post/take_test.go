package post

import (
	"context"
	"net/http"
	"testing"

	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
	internal_errors "github.com/babbling-brook/streambed/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTakeStore struct {
	takePostFunc     func(ctx context.Context, req api.TakePostRequest) (domain.Take, error)
	takeRingPostFunc func(ctx context.Context, req api.TakeRingPostRequest) error
}

func (m *mockTakeStore) TakePost(ctx context.Context, req api.TakePostRequest) (domain.Take, error) {
	if m.takePostFunc != nil {
		return m.takePostFunc(ctx, req)
	}
	return domain.Take{FieldIndex: req.FieldIndex, Value: req.Value, Taken: true}, nil
}

func (m *mockTakeStore) TakeRingPost(ctx context.Context, req api.TakeRingPostRequest) error {
	if m.takeRingPostFunc != nil {
		return m.takeRingPostFunc(ctx, req)
	}
	return nil
}

func TestTake(t *testing.T) {
	testCases := []struct {
		name         string
		user         *domain.User
		field        int
		value        float64
		expectedCode int
	}{
		{name: "vote up", user: &domain.User{Username: "bob"}, field: 3, value: 1},
		{name: "anonymous", user: nil, field: 3, value: 1, expectedCode: http.StatusUnauthorized},
		{name: "out of range", user: &domain.User{Username: "bob"}, field: 3, value: 2, expectedCode: http.StatusBadRequest},
		{name: "not a value field", user: &domain.User{Username: "bob"}, field: 1, value: 1, expectedCode: http.StatusBadRequest},
		{name: "owner only field by visitor", user: &domain.User{Username: "bob"}, field: 4, value: 3, expectedCode: http.StatusForbidden},
		{name: "owner only field by owner", user: &domain.User{Username: "alice"}, field: 4, value: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var sent *api.TakePostRequest
			store := &mockTakeStore{takePostFunc: func(ctx context.Context, req api.TakePostRequest) (domain.Take, error) {
				sent = &req
				return domain.Take{FieldIndex: req.FieldIndex, Value: req.Value, Taken: true}, nil
			}}
			taker := NewTaker(store, NewStreamCache(streamStore(testStream())))

			take, err := taker.Take(context.Background(), tc.user, testPost(), tc.field, tc.value)
			if tc.expectedCode != 0 {
				var statusErr *internal_errors.ErrorWithStatusCode
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tc.expectedCode, statusErr.StatusCode)
				assert.Nil(t, sent)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, sent)
			assert.Equal(t, tc.field, sent.FieldIndex)
			assert.Equal(t, tc.value, take.Value)
		})
	}
}

func TestTakeRing(t *testing.T) {
	var sent api.TakeRingPostRequest
	store := &mockTakeStore{takeRingPostFunc: func(ctx context.Context, req api.TakeRingPostRequest) error {
		sent = req
		return nil
	}}
	taker := NewTaker(store, NewStreamCache(streamStore(testStream())))
	key := domain.PostKey{Domain: "a.com", PostID: "1"}

	require.NoError(t, taker.TakeRing(context.Background(), key, "ring.com", "mods", "spam", true))
	assert.Equal(t, api.TakeRingPostRequest{RingDomain: "ring.com", RingName: "mods", TakeName: "spam", Domain: "a.com", PostID: "1", Untake: true}, sent)

	err := taker.TakeRing(context.Background(), key, "ring.com", "mods", "", false)
	assert.Error(t, err)
}
