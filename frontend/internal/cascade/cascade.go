// Package cascade keeps the ordered, incrementally fetched list of posts shown by one
// view, and reconciles pushed updates into it.
package cascade

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	frontend_domain "github.com/babbling-brook/streambed/frontend/internal/domain"
	"github.com/babbling-brook/streambed/frontend/internal/metrics"
	"github.com/babbling-brook/streambed/frontend/internal/post"
	"github.com/babbling-brook/streambed/shared/domain"
	internal_errors "github.com/babbling-brook/streambed/shared/errors"
	"github.com/babbling-brook/streambed/shared/logger"
)

var (
	ErrClosed             = errors.New("cascade closed")
	ErrAlreadyInitialized = errors.New("cascade already initialized")
	ErrUnknownPost        = errors.New("post is not displayed in this cascade")
	ErrNoUpdate           = errors.New("no update waiting for this post")
)

// FetchFunc returns the next batch of posts. An empty batch means the source has
// nothing more.
type FetchFunc func(ctx context.Context) ([]domain.Post, error)

type RenderFunc func(ctx context.Context, p *domain.Post) (*frontend_domain.RenderedPost, error)

// RetryFunc re-runs the operation that failed.
type RetryFunc func(ctx context.Context) error

type Config struct {
	Fetch     FetchFunc // first page, required
	FetchMore FetchFunc // later pages; nil means the first page is all there is
	Render    RenderFunc
	Viewport  Viewport

	OnEvent  func(Event)
	OnError  func(err error, retry RetryFunc) // user-facing failures that can be retried
	OnReveal func(revealed int)
}

type row struct {
	post     domain.Post
	rendered *frontend_domain.RenderedPost
	hidden   bool
	anchor   domain.PostKey // nearest visible row above a hidden row; zero is the top
	shadow   *shadow
}

// shadow is a newer revision kept out of sight until the user asks for it.
type shadow struct {
	post     domain.Post
	rendered *frontend_domain.RenderedPost
}

func (r *row) revision() int {
	if r.shadow != nil {
		return r.shadow.post.Revision
	}
	return r.post.Revision
}

type Cascade struct {
	cfg    Config
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	pending     []domain.Post
	displayed   []*row
	inflight    map[domain.PostKey]bool // popped from pending, render in progress
	viewport    Viewport
	initialized bool
	initFailed  bool
	fetching    bool
	exhausted   bool
	draining    bool
	closed      bool
	lastErr     error
	indicator   Indicator
	outbox      []Event

	emitMu sync.Mutex
}

// New creates a cascade bound to parent: cancelling parent, or calling Close, stops
// every fetch and render the cascade has in flight.
func New(parent context.Context, cfg Config) (*Cascade, error) {
	if cfg.Fetch == nil || cfg.Render == nil {
		return nil, internal_errors.Violation("cascade", "fetch and render functions are required")
	}
	if cfg.Viewport.Slots <= 0 {
		return nil, internal_errors.Violation("cascade", "viewport needs at least one slot, got %d", cfg.Viewport.Slots)
	}
	ctx, cancel := context.WithCancel(parent)
	return &Cascade{
		cfg:       cfg,
		log:       logger.Component("cascade"),
		ctx:       ctx,
		cancel:    cancel,
		inflight:  make(map[domain.PostKey]bool),
		viewport:  cfg.Viewport,
		indicator: IndicatorNone,
	}, nil
}

// opContext is cancelled by either the caller or the cascade's own teardown.
func (c *Cascade) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// Initialize fetches the first page and renders as much of it as the viewport shows.
func (c *Cascade) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.initialized && !c.initFailed {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.initFailed = false
	c.fetching = true
	c.lastErr = nil
	c.setIndicator(IndicatorLoading)
	c.mu.Unlock()
	c.flush()

	opCtx, done := c.opContext(ctx)
	posts, err := c.cfg.Fetch(opCtx)
	done()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		// stays fetching until Retry
		c.initFailed = true
		c.lastErr = err
		c.mu.Unlock()
		metrics.Fetches.WithLabelValues("initial", "error").Inc()
		c.log.Warn("initial fetch failed", "error", err)
		if c.cfg.OnError != nil {
			c.cfg.OnError(err, c.Retry)
		}
		return err
	}
	c.fetching = false
	if len(posts) == 0 {
		metrics.Fetches.WithLabelValues("initial", "empty").Inc()
		c.finish()
		c.mu.Unlock()
		c.drain(ctx)
		return nil
	}
	metrics.Fetches.WithLabelValues("initial", "ok").Inc()
	c.enqueue(posts)
	c.setIndicator(IndicatorNone)
	c.mu.Unlock()

	c.drain(ctx)
	return nil
}

// DisplayNext renders the next pending post if the viewport has room for it, fetching
// more when the queue is empty. It is a no-op while a fetch is in flight.
func (c *Cascade) DisplayNext(ctx context.Context) {
	c.drain(ctx)
}

// Scrolled records the client's new scroll offset and drains into the freed space.
// A fetch that previously failed is re-triggered.
func (c *Cascade) Scrolled(ctx context.Context, offset int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if offset < 0 {
		offset = 0
	}
	c.viewport.Offset = offset
	initFailed := c.initFailed
	c.clearFetchFailure()
	c.mu.Unlock()

	if initFailed {
		return c.Initialize(ctx)
	}
	c.drain(ctx)
	return nil
}

// Resize changes how many post slots the client can show.
func (c *Cascade) Resize(ctx context.Context, slots int) error {
	if slots <= 0 {
		return internal_errors.Violation("cascade", "viewport needs at least one slot, got %d", slots)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.viewport.Slots = slots
	c.mu.Unlock()
	c.drain(ctx)
	return nil
}

// Retry re-runs whatever left the cascade stuck: the initial fetch, a fetch-more, or
// a post render.
func (c *Cascade) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	initFailed := c.initFailed
	c.clearFetchFailure()
	c.mu.Unlock()

	if initFailed {
		return c.Initialize(ctx)
	}
	c.drain(ctx)
	return nil
}

// clearFetchFailure releases a fetch-more that failed. Caller holds mu.
func (c *Cascade) clearFetchFailure() {
	if c.lastErr != nil && !c.initFailed {
		c.fetching = false
		c.lastErr = nil
	}
}

// Close stops the cascade. Results that arrive afterwards are discarded.
func (c *Cascade) Close() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()
	c.cancel()
}

func (c *Cascade) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Cascade) state() State {
	switch {
	case c.exhausted:
		return StateExhausted
	case c.fetching:
		return StateFetching
	default:
		return StateIdle
	}
}

// Snapshot returns the current list as the client should show it.
func (c *Cascade) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:     c.state(),
		Indicator: c.indicator,
		Rows:      make([]RowView, 0, len(c.displayed)),
		Pending:   len(c.pending),
		Viewport:  c.viewport,
	}
	if c.lastErr != nil {
		v.Error = c.lastErr.Error()
	}
	for _, r := range c.displayed {
		rv := RowView{Post: r.rendered, Hidden: r.hidden}
		if r.hidden {
			anchor := r.anchor
			rv.Anchor = &anchor
		}
		if r.shadow != nil {
			rv.UpdateAvailable = true
			rv.UpdateRevision = r.shadow.post.Revision
		}
		v.Rows = append(v.Rows, rv)
	}
	return v
}

// drain keeps rendering pending posts while the bottom of the list is visible. Only
// one drain runs at a time; the running one re-checks the viewport after every render.
func (c *Cascade) drain(ctx context.Context) {
	opCtx, done := c.opContext(ctx)
	defer done()

	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true

	var failed error
	for !c.closed && !c.fetching && c.viewport.BottomVisible(c.visibleRows()) {
		if len(c.pending) == 0 {
			if c.exhausted || !c.initialized {
				break
			}
			if !c.fetchMore(opCtx) {
				break
			}
			continue
		}

		next := c.pending[0]
		c.pending = c.pending[1:]
		if next.Filtered() {
			metrics.PostsFiltered.Inc()
			continue
		}

		key := next.Key()
		c.inflight[key] = true
		c.mu.Unlock()
		rendered, err := c.cfg.Render(opCtx, &next)
		c.mu.Lock()
		delete(c.inflight, key)

		if c.closed {
			break
		}
		if err != nil {
			if errors.Is(err, post.ErrFetchPost) || isContextErr(err) {
				// put it back so a retry renders it in the same place
				c.pending = append([]domain.Post{next}, c.pending...)
				failed = err
				metrics.RenderFailures.WithLabelValues("fetch").Inc()
				break
			}
			metrics.RenderFailures.WithLabelValues("fatal").Inc()
			c.log.Error("post skipped", "post", key.String(), "error", err)
			continue
		}

		after := c.lastVisibleKey()
		c.displayed = append(c.displayed, &row{post: next, rendered: rendered})
		metrics.PostsRendered.Inc()
		c.emit(Event{Kind: EventRendered, Key: &key, Revision: next.Revision, Post: rendered, After: after, Animate: true})
		if c.exhausted {
			c.finish()
		}
	}
	c.draining = false
	c.mu.Unlock()
	c.flush()

	if failed != nil && !isContextErr(failed) && c.cfg.OnError != nil {
		c.cfg.OnError(failed, c.Retry)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// fetchMore runs the fetch-more callback with mu released. It reports whether the
// drain should continue. Caller holds mu.
func (c *Cascade) fetchMore(ctx context.Context) bool {
	if c.cfg.FetchMore == nil {
		c.finish()
		return false
	}
	c.fetching = true
	c.setIndicator(IndicatorLoading)
	c.mu.Unlock()
	c.flush()
	posts, err := c.cfg.FetchMore(ctx)
	c.mu.Lock()

	if c.closed {
		return false
	}
	if err != nil {
		// not retried automatically: the next scroll or Retry re-triggers it
		c.lastErr = err
		metrics.Fetches.WithLabelValues("more", "error").Inc()
		c.log.Warn("fetch more failed", "error", err)
		return false
	}
	c.fetching = false
	if len(posts) == 0 {
		metrics.Fetches.WithLabelValues("more", "empty").Inc()
		c.finish()
		return false
	}
	metrics.Fetches.WithLabelValues("more", "ok").Inc()
	c.enqueue(posts)
	c.setIndicator(IndicatorNone)
	return true
}

// finish marks the source as exhausted. Caller holds mu.
func (c *Cascade) finish() {
	c.exhausted = true
	if c.visibleRows() == 0 {
		c.setIndicator(IndicatorNoPosts)
	} else {
		c.setIndicator(IndicatorNoMorePosts)
	}
}

// enqueue adds fetched posts to pending in sort order, skipping any identity the
// cascade already holds. Caller holds mu.
func (c *Cascade) enqueue(posts []domain.Post) {
	for _, p := range posts {
		if c.holds(p.Key()) {
			continue
		}
		c.insertPending(p)
	}
}

// insertPending keeps pending ordered by sort descending; equal sorts keep arrival
// order.
func (c *Cascade) insertPending(p domain.Post) {
	i := sort.Search(len(c.pending), func(i int) bool { return c.pending[i].Sort < p.Sort })
	c.pending = append(c.pending, domain.Post{})
	copy(c.pending[i+1:], c.pending[i:])
	c.pending[i] = p
}

// holds reports whether key is displayed, pending, or being rendered.
func (c *Cascade) holds(key domain.PostKey) bool {
	return c.findDisplayed(key) >= 0 || c.findPending(key) >= 0 || c.inflight[key]
}

func (c *Cascade) findDisplayed(key domain.PostKey) int {
	for i, r := range c.displayed {
		if r.post.Key() == key {
			return i
		}
	}
	return -1
}

func (c *Cascade) findPending(key domain.PostKey) int {
	for i := range c.pending {
		if c.pending[i].Key() == key {
			return i
		}
	}
	return -1
}

func (c *Cascade) visibleRows() int {
	n := 0
	for _, r := range c.displayed {
		if !r.hidden {
			n++
		}
	}
	return n
}

func (c *Cascade) lastVisibleKey() *domain.PostKey {
	for i := len(c.displayed) - 1; i >= 0; i-- {
		if !c.displayed[i].hidden {
			key := c.displayed[i].post.Key()
			return &key
		}
	}
	return nil
}

func (c *Cascade) setIndicator(ind Indicator) {
	if c.indicator == ind {
		return
	}
	c.indicator = ind
	c.emit(Event{Kind: EventIndicator, Indicator: ind})
}

// emit queues an event for delivery once mu is released. Caller holds mu.
func (c *Cascade) emit(e Event) {
	if c.cfg.OnEvent != nil {
		c.outbox = append(c.outbox, e)
	}
}

// flush delivers queued events in the order they were emitted. Must not hold mu.
func (c *Cascade) flush() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	events := c.outbox
	c.outbox = nil
	c.mu.Unlock()
	for _, e := range events {
		c.cfg.OnEvent(e)
	}
}
