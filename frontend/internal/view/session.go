package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/babbling-brook/streambed/frontend/internal/apiclient"
	"github.com/babbling-brook/streambed/frontend/internal/cascade"
	"github.com/babbling-brook/streambed/frontend/internal/compose"
	frontend_domain "github.com/babbling-brook/streambed/frontend/internal/domain"
	"github.com/babbling-brook/streambed/frontend/internal/notify"
	"github.com/babbling-brook/streambed/frontend/internal/post"
	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
	internal_errors "github.com/babbling-brook/streambed/shared/errors"
)

var (
	ErrSessionNotFound = &internal_errors.ErrorWithStatusCode{Message: "Page session not found, reload the page", StatusCode: http.StatusNotFound}
	ErrCascadeNotFound = &internal_errors.ErrorWithStatusCode{Message: "Cascade not found", StatusCode: http.StatusNotFound}
	ErrNotConfirming   = &internal_errors.ErrorWithStatusCode{Message: "Delete was not requested for this post", StatusCode: http.StatusConflict}
	ErrDeleteFailed    = errors.New("failed to delete post")
)

// Domus is everything a session asks of the domus proxy.
type Domus interface {
	PostLister
	GetPost(ctx context.Context, key domain.PostKey, revision int) (*domain.Post, error)
	DeletePost(ctx context.Context, key domain.PostKey) error
	InfoRequest(ctx context.Context, kind string, params map[string]string) (json.RawMessage, error)
	GetWaitingPostCount(ctx context.Context, kind string) (int, error)
	SetWaitingPostCount(ctx context.Context, kind string, count int) error
}

type Publisher interface {
	Publish(session string, msg any)
	CloseSession(session string)
}

// PushKind tags what a push message carries.
type PushKind string

const (
	PushCascade PushKind = "cascade"
	PushBanner  PushKind = "banner"
	PushReload  PushKind = "reload"
)

type PushMessage struct {
	Kind    PushKind       `json:"kind"`
	Cascade string         `json:"cascade,omitempty"`
	Event   *cascade.Event `json:"event,omitempty"`
	Banner  *notify.Banner `json:"banner,omitempty"`
}

type cascadeEntry struct {
	c      *cascade.Cascade
	source api.PostSource
}

// Session is the server side of one open page: its cascades, its message queue and
// its pending delete confirmations. Cascades are addressed by opaque handles.
type Session struct {
	ID   string
	User *domain.User

	deps   *Deps
	token  string
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
	queue  *notify.Queue

	mu       sync.Mutex
	cascades map[string]*cascadeEntry
	deleting map[domain.PostKey]bool
	lastSeen time.Time
}

func (s *Session) Queue() *notify.Queue {
	return s.queue
}

// domusContext carries the visitor's access token into domus calls.
func (s *Session) domusContext(ctx context.Context) context.Context {
	return apiclient.WithAccessToken(ctx, s.token)
}

func (s *Session) publish(msg PushMessage) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(s.ID, msg)
	}
}

// OpenCascade creates a cascade over source and fetches its first page. A failing
// first fetch is not an error here: it is reported on the message queue with a
// Retry button and shows in the returned view.
func (s *Session) OpenCascade(ctx context.Context, source api.PostSource, viewport cascade.Viewport) (string, cascade.View, error) {
	if viewport.Slots <= 0 {
		viewport.Slots = s.deps.Config.Cascade.ViewportSlots
	}
	id := uuid.NewString()
	src := newPagedSource(s.deps.Domus, source, s.deps.Config.Cascade.PageSize)
	opts := post.Options{User: s.User, ShowEmptyFields: false}

	c, err := cascade.New(s.ctx, cascade.Config{
		Fetch: func(ctx context.Context) ([]domain.Post, error) {
			return src.first(s.domusContext(ctx))
		},
		FetchMore: func(ctx context.Context) ([]domain.Post, error) {
			return src.next(s.domusContext(ctx))
		},
		Render: func(ctx context.Context, p *domain.Post) (*frontend_domain.RenderedPost, error) {
			return s.deps.Renderer.Render(s.domusContext(ctx), p, opts)
		},
		Viewport: viewport,
		OnEvent: func(e cascade.Event) {
			s.publish(PushMessage{Kind: PushCascade, Cascade: id, Event: &e})
		},
		OnError: s.reportError,
		OnReveal: func(int) {
			s.resetWaitingCount(source.Kind)
		},
	})
	if err != nil {
		return "", cascade.View{}, err
	}

	s.mu.Lock()
	s.cascades[id] = &cascadeEntry{c: c, source: source}
	s.mu.Unlock()

	if err := c.Initialize(ctx); err != nil && !errors.Is(err, cascade.ErrClosed) {
		s.log.Warn("cascade opened without posts", "cascade", id, "source", source.Kind, "error", err)
	}
	return id, c.Snapshot(), nil
}

func (s *Session) Cascade(id string) (*cascade.Cascade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cascades[id]
	if !ok {
		return nil, ErrCascadeNotFound
	}
	return entry.c, nil
}

func (s *Session) CloseCascade(id string) error {
	s.mu.Lock()
	entry, ok := s.cascades[id]
	delete(s.cascades, id)
	s.mu.Unlock()
	if !ok {
		return ErrCascadeNotFound
	}
	entry.c.Close()
	return nil
}

// Broadcast feeds pushed posts to every cascade of the session.
func (s *Session) Broadcast(ctx context.Context, posts []domain.Post, jumpToTop bool) {
	s.mu.Lock()
	targets := make([]*cascade.Cascade, 0, len(s.cascades))
	for _, entry := range s.cascades {
		targets = append(targets, entry.c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		if err := c.Update(ctx, posts, jumpToTop); err != nil && !errors.Is(err, cascade.ErrClosed) {
			s.log.Warn("broadcast update failed", "error", err)
		}
	}
}

// reportError turns a retryable failure into an error message with a Retry button.
func (s *Session) reportError(err error, retry cascade.RetryFunc) {
	msg := notify.Message{Type: notify.TypeError, Text: errorText(err)}
	if retry != nil {
		msg.Buttons = []notify.Button{{
			Name: notify.ButtonRetry,
			Action: func(ctx context.Context) error {
				return retry(ctx)
			},
		}}
	}
	if _, _, addErr := s.queue.AddMessage(msg); addErr != nil {
		s.log.Error("error message rejected", "error", addErr)
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, post.ErrFetchPost):
		return "A post could not be loaded."
	case errors.Is(err, post.ErrStreamUnavailable):
		return "A stream could not be loaded."
	default:
		return "Posts could not be loaded."
	}
}

// ReportPanic queues the generic message shown after an unexpected failure.
func (s *Session) ReportPanic() {
	_, _, _ = s.queue.AddMessage(notify.Message{
		Type: notify.TypeError,
		Text: "Something went wrong. Please reload the page.",
	})
}

func (s *Session) resetWaitingCount(kind string) {
	ctx, cancel := context.WithTimeout(s.domusContext(s.ctx), s.deps.Config.Domus.Timeout)
	defer cancel()
	if err := s.deps.Domus.SetWaitingPostCount(ctx, kind, 0); err != nil {
		s.log.Warn("waiting post count reset failed", "kind", kind, "error", err)
	}
}

func (s *Session) WaitingPostCount(ctx context.Context, kind string) (int, error) {
	return s.deps.Domus.GetWaitingPostCount(s.domusContext(ctx), kind)
}

func (s *Session) Info(ctx context.Context, kind string, params map[string]string) (json.RawMessage, error) {
	return s.deps.Domus.InfoRequest(s.domusContext(ctx), kind, params)
}

// RequestDelete is the first click of the two-step delete.
func (s *Session) RequestDelete(key domain.PostKey) {
	s.mu.Lock()
	s.deleting[key] = true
	s.mu.Unlock()
}

func (s *Session) CancelDelete(key domain.PostKey) {
	s.mu.Lock()
	delete(s.deleting, key)
	s.mu.Unlock()
}

// ConfirmDelete is the second click. A failed delete is reported inline and not
// retried; the visitor has to start over.
func (s *Session) ConfirmDelete(ctx context.Context, key domain.PostKey) error {
	s.mu.Lock()
	requested := s.deleting[key]
	delete(s.deleting, key)
	s.mu.Unlock()
	if !requested {
		return ErrNotConfirming
	}
	if err := s.deps.Domus.DeletePost(s.domusContext(ctx), key); err != nil {
		s.log.Warn("delete failed", "post", key.String(), "error", err)
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	s.log.Info("post deleted", "post", key.String())
	return nil
}

// Take records a value take. The post is read fresh so the field bounds are current.
func (s *Session) Take(ctx context.Context, key domain.PostKey, fieldIndex int, value float64) (domain.Take, error) {
	ctx = s.domusContext(ctx)
	p, err := s.deps.Domus.GetPost(ctx, key, 0)
	if err != nil {
		return domain.Take{}, err
	}
	return s.deps.Taker.Take(ctx, s.User, p, fieldIndex, value)
}

func (s *Session) TakeRing(ctx context.Context, key domain.PostKey, ringDomain, ringName, takeName string, untake bool) error {
	return s.deps.Taker.TakeRing(s.domusContext(ctx), key, ringDomain, ringName, takeName, untake)
}

func (s *Session) Submit(ctx context.Context, d compose.Draft) (*compose.Result, error) {
	return s.deps.Composer.Submit(s.domusContext(ctx), d)
}

func (s *Session) ValidateDraft(ctx context.Context, d compose.Draft) ([]compose.FieldError, error) {
	return s.deps.Composer.Validate(s.domusContext(ctx), d)
}

func (s *Session) close() {
	s.mu.Lock()
	cascades := s.cascades
	s.cascades = make(map[string]*cascadeEntry)
	s.mu.Unlock()
	for _, entry := range cascades {
		entry.c.Close()
	}
	s.cancel()
	if s.deps.Publisher != nil {
		s.deps.Publisher.CloseSession(s.ID)
	}
}
