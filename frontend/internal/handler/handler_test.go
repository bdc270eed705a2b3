package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babbling-brook/streambed/frontend/internal/cascade"
	"github.com/babbling-brook/streambed/frontend/internal/compose"
	"github.com/babbling-brook/streambed/frontend/internal/markdown"
	"github.com/babbling-brook/streambed/frontend/internal/notify"
	"github.com/babbling-brook/streambed/frontend/internal/post"
	"github.com/babbling-brook/streambed/frontend/internal/view"
	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/config"
	"github.com/babbling-brook/streambed/shared/domain"
	mw "github.com/babbling-brook/streambed/shared/middleware"
)

var testStreamKey = domain.StreamKey{Domain: "a.com", Username: "sky", Name: "news", Version: "1/0/0"}

type mockDomus struct {
	mu          sync.Mutex
	posts       []domain.Post
	failListing bool
	deleteErr   error
	deleted     []domain.PostKey
}

func (m *mockDomus) GetPosts(ctx context.Context, req api.GetPostsRequest) (*api.PostsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failListing {
		return nil, errors.New("domus down")
	}
	return &api.PostsResponse{Posts: m.posts}, nil
}

func (m *mockDomus) GetPost(ctx context.Context, key domain.PostKey, revision int) (*domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.Key() == key {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("post %s not found", key)
}

func (m *mockDomus) GetTakesForPost(ctx context.Context, key domain.PostKey) (domain.TakeSet, error) {
	return domain.TakeSet{}, nil
}

func (m *mockDomus) GetStream(ctx context.Context, key domain.StreamKey) (*domain.Stream, error) {
	return &domain.Stream{Key: key, Fields: []domain.FieldDefinition{
		{Index: 1, Type: domain.FieldTextbox, Label: "Title", Required: true},
		{Index: 2, Type: domain.FieldValue, Label: "Vote", ValueType: domain.ValueUpDown, Who: domain.VisibleEveryone},
	}}, nil
}

func (m *mockDomus) DeletePost(ctx context.Context, key domain.PostKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	return m.deleteErr
}

func (m *mockDomus) InfoRequest(ctx context.Context, kind string, params map[string]string) (json.RawMessage, error) {
	raw, err := json.Marshal(map[string]any{"kind": kind, "params": params})
	return raw, err
}

func (m *mockDomus) GetWaitingPostCount(ctx context.Context, kind string) (int, error) {
	return 3, nil
}

func (m *mockDomus) SetWaitingPostCount(ctx context.Context, kind string, count int) error {
	return nil
}

func (m *mockDomus) TakePost(ctx context.Context, req api.TakePostRequest) (domain.Take, error) {
	return domain.Take{FieldIndex: req.FieldIndex, Value: req.Value, Taken: true}, nil
}

func (m *mockDomus) TakeRingPost(ctx context.Context, req api.TakeRingPostRequest) error {
	return nil
}

func (m *mockDomus) MakePost(ctx context.Context, req api.MakePostRequest) (*domain.Post, error) {
	return &domain.Post{Domain: "a.com", PostID: "new", Revision: 1, Stream: req.Stream, Content: req.Content}, nil
}

func testPost(id string, sort float64) domain.Post {
	return domain.Post{
		Domain:    "a.com",
		PostID:    id,
		Revision:  1,
		Sort:      sort,
		Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Username:  "alice",
		Stream:    testStreamKey,
		Content:   []domain.Field{{Index: 1, Text: "post " + id}},
		Takes:     domain.TakeSet{},
	}
}

type testEnv struct {
	domus    *mockDomus
	sessions *view.Manager
	router   chi.Router
	user     *domain.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	domus := &mockDomus{}
	public := config.Public{
		Domus:    config.Domus{Timeout: time.Second},
		Cascade:  config.Cascade{PageSize: 10, ViewportSlots: 5},
		Messages: config.Messages{BoxChars: 160},
		Render:   config.Render{LongTextThreshold: 200},
	}
	streams := post.NewStreamCache(domus)
	sessions := view.NewManager(view.Deps{
		Config:   public,
		Domus:    domus,
		Renderer: post.NewRenderer(domus, streams, markdown.New(), public.Render),
		Taker:    post.NewTaker(domus, streams),
		Composer: compose.NewService(streams, domus),
	}, time.Hour)
	t.Cleanup(sessions.Shutdown)

	env := &testEnv{domus: domus, sessions: sessions}
	h := New(sessions, public)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if env.user != nil {
				r = r.WithContext(mw.WithUser(r.Context(), env.user))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/sessions", h.OpenSession)
	r.Route("/sessions/{session}", func(r chi.Router) {
		r.Use(h.Recover)
		r.Delete("/", h.CloseSession)
		r.Post("/cascades", h.OpenCascade)
		r.Get("/cascades/{cascade}", h.GetCascade)
		r.Delete("/cascades/{cascade}", h.CloseCascade)
		r.Post("/cascades/{cascade}/scroll", h.Scroll)
		r.Post("/cascades/{cascade}/resize", h.Resize)
		r.Post("/cascades/{cascade}/retry", h.Retry)
		r.Post("/cascades/{cascade}/update", h.Update)
		r.Post("/cascades/{cascade}/reveal", h.Reveal)
		r.Post("/cascades/{cascade}/posts/{domain}/{post}/show-update", h.ShowUpdate)
		r.Post("/updates", h.Broadcast)
		r.Get("/messages", h.GetMessages)
		r.Post("/messages", h.AddMessage)
		r.Post("/messages/{message}/press", h.PressButton)
		r.Post("/messages/{message}/ack", h.AcknowledgeMessage)
		r.Post("/messages/{message}/toggle", h.ToggleMessage)
		r.Post("/path", h.SetPath)
		r.Post("/suggestion-mode", h.SetSuggestionMode)
		r.Get("/waiting-count", h.WaitingPostCount)
		r.Get("/info/{kind}", h.Info)
		r.Post("/compose/validate", h.ValidateDraft)
		r.Post("/compose", h.SubmitDraft)
		r.Post("/posts/{domain}/{post}/delete", h.RequestDelete)
		r.Post("/posts/{domain}/{post}/delete/confirm", h.ConfirmDelete)
		r.Post("/posts/{domain}/{post}/delete/cancel", h.CancelDelete)
		r.Post("/posts/{domain}/{post}/take", h.Take)
		r.Post("/posts/{domain}/{post}/ring-take", h.TakeRing)
		r.Get("/panic", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	})
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (e *testEnv) openSession(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/sessions", openSessionRequest{Path: "/a.com/sky/stream/news"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[openSessionResponse](t, rr).Session
}

func (e *testEnv) openCascade(t *testing.T, session string) (string, cascade.View) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/sessions/"+session+"/cascades", map[string]any{
		"source": api.PostSource{Kind: "stream", Stream: testStreamKey},
		"slots":  2,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[openCascadeResponse](t, rr)
	return resp.Cascade, resp.View
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/sessions", `{"path": ""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	id := env.openSession(t)
	assert.Equal(t, 1, env.sessions.Len())

	rr = env.do(t, http.MethodDelete, "/sessions/"+id+"/", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, "/sessions/"+id+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCascadeEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.domus.posts = []domain.Post{testPost("1", 40), testPost("2", 30), testPost("3", 20), testPost("4", 10)}
	session := env.openSession(t)
	base := "/sessions/" + session + "/cascades/"

	id, opened := env.openCascade(t, session)
	require.Len(t, opened.Rows, 2, "only the viewport is filled")
	assert.Equal(t, 2, opened.Pending)

	t.Run("scroll drains into the freed space", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, base+id+"/scroll", scrollRequest{Offset: 3})
		require.Equal(t, http.StatusOK, rr.Code)
		v := decode[cascade.View](t, rr)
		assert.Len(t, v.Rows, 4)
		assert.Equal(t, cascade.IndicatorNoMorePosts, v.Indicator)
	})

	t.Run("negative offset rejected", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, base+id+"/scroll", `{"offset": -1}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("newer revision is held back until shown", func(t *testing.T) {
		updated := testPost("2", 30)
		updated.Revision = 2
		rr := env.do(t, http.MethodPost, base+id+"/update", updateRequest{Posts: []domain.Post{updated}})
		require.Equal(t, http.StatusOK, rr.Code)
		v := decode[cascade.View](t, rr)
		assert.True(t, v.Rows[1].UpdateAvailable)

		rr = env.do(t, http.MethodPost, base+id+"/posts/a.com/2/show-update", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = env.do(t, http.MethodPost, base+id+"/posts/a.com/2/show-update", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("new post revealed", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/sessions/"+session+"/updates", updateRequest{Posts: []domain.Post{testPost("9", 90)}})
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr = env.do(t, http.MethodPost, base+id+"/reveal", `{}`)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, decode[revealResponse](t, rr).Revealed)
	})

	t.Run("resize needs a slot", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, base+id+"/resize", resizeRequest{Slots: 0})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("closed", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, base+id, nil)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		rr = env.do(t, http.MethodGet, base+id, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCascadeFailureAndRetry(t *testing.T) {
	env := newTestEnv(t)
	env.domus.failListing = true
	session := env.openSession(t)

	id, opened := env.openCascade(t, session)
	assert.Equal(t, cascade.StateFetching, opened.State)

	rr := env.do(t, http.MethodGet, "/sessions/"+session+"/messages", nil)
	msgs := decode[messagesResponse](t, rr)
	assert.Equal(t, notify.TypeError, msgs.Banner.Type)
	assert.Contains(t, msgs.Banner.Buttons, notify.ButtonRetry)

	rr = env.do(t, http.MethodPost, "/sessions/"+session+"/cascades/"+id+"/retry", nil)
	require.Equal(t, http.StatusOK, rr.Code, "a failure already on the banner is not an HTTP error")

	env.domus.mu.Lock()
	env.domus.failListing = false
	env.domus.posts = []domain.Post{testPost("1", 10)}
	env.domus.mu.Unlock()

	rr = env.do(t, http.MethodPost, "/sessions/"+session+"/messages/"+msgs.Banner.ID+"/press", pressRequest{Button: notify.ButtonRetry})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/sessions/"+session+"/cascades/"+id, nil)
	assert.Len(t, decode[cascade.View](t, rr).Rows, 1)
}

func TestMessageEndpoints(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t)
	base := "/sessions/" + session

	rr := env.do(t, http.MethodPost, base+"/messages", addMessageRequest{Type: notify.TypeNotice, Text: "Saved"})
	require.Equal(t, http.StatusCreated, rr.Code)
	added := decode[addMessageResponse](t, rr)

	rr = env.do(t, http.MethodPost, base+"/messages", addMessageRequest{Type: notify.TypeNotice, Text: "Saved"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[addMessageResponse](t, rr).Added, "duplicate is not queued twice")

	rr = env.do(t, http.MethodPost, base+"/messages", `{"type": "shout", "message": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, base+"/messages/"+added.ID+"/press", pressRequest{Button: "Nope"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, base+"/messages/"+added.ID+"/ack", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[notify.Banner](t, rr).Visible)

	rr = env.do(t, http.MethodPost, base+"/suggestion-mode", suggestionModeRequest{Enabled: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[notify.Banner](t, rr).Placeholder)

	rr = env.do(t, http.MethodPost, base+"/path", pathRequest{Path: "/elsewhere"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestComposeEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.user = &domain.User{Username: "bob", Domain: "a.com"}
	session := env.openSession(t)
	base := "/sessions/" + session

	empty := compose.Draft{Stream: testStreamKey, Fields: []domain.Field{{Index: 1}}}
	rr := env.do(t, http.MethodPost, base+"/compose/validate", empty)
	require.Equal(t, http.StatusOK, rr.Code)
	v := decode[validateResponse](t, rr)
	assert.NotEmpty(t, v.Errors)
	assert.Equal(t, compose.CorrectErrorsBanner, v.Banner)

	rr = env.do(t, http.MethodPost, base+"/compose", empty)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, base+"/compose", compose.Draft{Stream: testStreamKey, Fields: []domain.Field{{Index: 1, Text: "hi"}}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "new", decode[compose.Result](t, rr).Post.PostID)
}

func TestDeleteEndpoints(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t)
	post := "/sessions/" + session + "/posts/a.com/1/delete"

	rr := env.do(t, http.MethodPost, post+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, post, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodPost, post+"/confirm", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []domain.PostKey{{Domain: "a.com", PostID: "1"}}, env.domus.deleted)

	env.domus.deleteErr = errors.New("forbidden")
	env.do(t, http.MethodPost, post, nil)
	rr = env.do(t, http.MethodPost, post+"/confirm", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "Failed to delete")
}

func TestTakeEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.domus.posts = []domain.Post{testPost("1", 10)}
	session := env.openSession(t)
	base := "/sessions/" + session + "/posts/a.com/1"

	rr := env.do(t, http.MethodPost, base+"/take", takeRequest{FieldIndex: 2, Value: 1})
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "anonymous visitors cannot take")

	env.user = &domain.User{Username: "bob", Domain: "a.com"}
	session = env.openSession(t)
	base = "/sessions/" + session + "/posts/a.com/1"

	rr = env.do(t, http.MethodPost, base+"/take", takeRequest{FieldIndex: 2, Value: 1})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[domain.Take](t, rr).Taken)

	rr = env.do(t, http.MethodPost, base+"/take", takeRequest{FieldIndex: 2, Value: 4})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, base+"/ring-take", takeRingRequest{RingDomain: "a.com", RingName: "mods", TakeName: "spam"})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodPost, base+"/ring-take", `{"ring_domain": "a.com"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInfoAndWaitingCount(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t)
	base := "/sessions/" + session

	rr := env.do(t, http.MethodGet, base+"/waiting-count", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, base+"/waiting-count?kind=stream", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, decode[waitingCountResponse](t, rr).Count)

	rr = env.do(t, http.MethodGet, base+"/info/child_count?post_id=7", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"kind":"child_count","params":{"post_id":"7"}}`, rr.Body.String())
}

func TestRecoverReportsPanic(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t)

	rr := env.do(t, http.MethodGet, "/sessions/"+session+"/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = env.do(t, http.MethodGet, "/sessions/"+session+"/messages", nil)
	msgs := decode[messagesResponse](t, rr)
	assert.Equal(t, notify.TypeError, msgs.Banner.Type)
	assert.Equal(t, []string{"Something went wrong. Please reload the page."}, msgs.ErrorStack)
}
