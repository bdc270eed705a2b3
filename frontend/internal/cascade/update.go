package cascade

import (
	"context"
	"errors"

	frontend_domain "github.com/babbling-brook/streambed/frontend/internal/domain"
	"github.com/babbling-brook/streambed/frontend/internal/metrics"
	"github.com/babbling-brook/streambed/frontend/internal/post"
	"github.com/babbling-brook/streambed/shared/domain"
)

type updateKind int

const (
	kindShadow  updateKind = iota // newer revision of a displayed post
	kindNew                       // unseen post placed among the displayed rows
	kindPending                   // unseen post that sorts below everything displayed
)

type candidate struct {
	post     domain.Post
	kind     updateKind
	rendered *frontend_domain.RenderedPost
}

// Update reconciles pushed posts into the cascade:
//   - a displayed post with a higher revision gets a hidden rendering of the new
//     revision that ShowUpdate swaps in; an equal or lower revision is dropped
//   - a post still pending is dropped, keeping its original place
//   - an unseen post is inserted by sort behind a "new posts" affordance that
//     RevealNew opens; one that sorts below every displayed row while more posts
//     are still to come joins pending instead
//
// With jumpToTop the unseen posts go to the top of the list, and the whole push is
// abandoned if its first post is already displayed.
func (c *Cascade) Update(ctx context.Context, posts []domain.Post, jumpToTop bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	candidates := c.classify(posts, jumpToTop)
	c.mu.Unlock()
	if len(candidates) == 0 {
		return nil
	}

	opCtx, done := c.opContext(ctx)
	defer done()

	var (
		retryable []domain.Post
		lastErr   error
	)
	ready := make([]candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.kind == kindPending {
			ready = append(ready, cand)
			continue
		}
		rendered, err := c.cfg.Render(opCtx, &cand.post)
		if err != nil {
			if isContextErr(err) {
				return err
			}
			if errors.Is(err, post.ErrFetchPost) {
				metrics.RenderFailures.WithLabelValues("fetch").Inc()
				retryable = append(retryable, cand.post)
				lastErr = err
				continue
			}
			metrics.RenderFailures.WithLabelValues("fatal").Inc()
			c.log.Error("pushed post skipped", "post", cand.post.Key().String(), "error", err)
			continue
		}
		cand.rendered = rendered
		ready = append(ready, cand)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.commit(ready, jumpToTop)
	c.mu.Unlock()
	c.flush()

	if len(retryable) > 0 && c.cfg.OnError != nil {
		c.cfg.OnError(lastErr, func(ctx context.Context) error {
			return c.Update(ctx, retryable, jumpToTop)
		})
	}

	c.drain(ctx)
	return nil
}

// classify decides what each pushed post needs before any rendering happens. commit
// re-checks every decision since mu is released in between. Caller holds mu.
func (c *Cascade) classify(posts []domain.Post, jumpToTop bool) []candidate {
	if jumpToTop && len(posts) > 0 && c.findDisplayed(posts[0].Key()) >= 0 {
		metrics.Updates.WithLabelValues(metrics.OutcomeDropped).Add(float64(len(posts)))
		c.log.Debug("top push abandoned, first post already displayed", "post", posts[0].Key().String())
		return nil
	}

	out := make([]candidate, 0, len(posts))
	seen := make(map[domain.PostKey]int, len(posts))
	for _, p := range posts {
		key := p.Key()
		if i, ok := seen[key]; ok {
			if p.Revision > out[i].post.Revision {
				out[i].post = p
			}
			metrics.Updates.WithLabelValues(metrics.OutcomeDropped).Inc()
			continue
		}

		kind, keep := c.classifyOne(p, jumpToTop)
		if !keep {
			metrics.Updates.WithLabelValues(metrics.OutcomeDropped).Inc()
			continue
		}
		seen[key] = len(out)
		out = append(out, candidate{post: p, kind: kind})
	}
	return out
}

func (c *Cascade) classifyOne(p domain.Post, jumpToTop bool) (updateKind, bool) {
	key := p.Key()
	if i := c.findDisplayed(key); i >= 0 {
		if jumpToTop || p.Revision <= c.displayed[i].revision() {
			return 0, false
		}
		return kindShadow, true
	}
	if c.findPending(key) >= 0 || c.inflight[key] || p.Filtered() {
		return 0, false
	}
	if !jumpToTop && c.belongsInPending(p) {
		return kindPending, true
	}
	return kindNew, true
}

// belongsInPending reports whether p sorts below every displayed row while the
// source may still deliver posts above it.
func (c *Cascade) belongsInPending(p domain.Post) bool {
	return c.insertionIndex(p.Sort) == len(c.displayed) && (len(c.pending) > 0 || !c.exhausted)
}

// insertionIndex is the position of the first displayed row sorting strictly below s.
func (c *Cascade) insertionIndex(s float64) int {
	for i, r := range c.displayed {
		if r.post.Sort < s {
			return i
		}
	}
	return len(c.displayed)
}

func (c *Cascade) visibleKeyBefore(idx int) domain.PostKey {
	for i := idx - 1; i >= 0; i-- {
		if !c.displayed[i].hidden {
			return c.displayed[i].post.Key()
		}
	}
	return domain.PostKey{}
}

// commit applies rendered candidates. Caller holds mu.
func (c *Cascade) commit(cands []candidate, jumpToTop bool) {
	top := 0
	var anchors []domain.PostKey
	touched := make(map[domain.PostKey]bool)

	for _, cand := range cands {
		key := cand.post.Key()
		switch cand.kind {
		case kindShadow:
			i := c.findDisplayed(key)
			if i < 0 || cand.post.Revision <= c.displayed[i].revision() {
				metrics.Updates.WithLabelValues(metrics.OutcomeDropped).Inc()
				continue
			}
			r := c.displayed[i]
			if r.hidden {
				// not seen yet, nothing to protect
				r.post = cand.post
				r.rendered = cand.rendered
				c.emit(Event{Kind: EventReplaced, Key: &key, Revision: cand.post.Revision, Post: cand.rendered})
				metrics.Updates.WithLabelValues(metrics.OutcomeShadowed).Inc()
				continue
			}
			r.shadow = &shadow{post: cand.post, rendered: cand.rendered}
			metrics.Updates.WithLabelValues(metrics.OutcomeShadowed).Inc()
			c.emit(Event{Kind: EventUpdateAvailable, Key: &key, Revision: cand.post.Revision})

		case kindPending:
			if c.holds(key) {
				metrics.Updates.WithLabelValues(metrics.OutcomeDropped).Inc()
				continue
			}
			c.insertPending(cand.post)
			metrics.Updates.WithLabelValues(metrics.OutcomePending).Inc()

		case kindNew:
			if c.holds(key) {
				metrics.Updates.WithLabelValues(metrics.OutcomeDropped).Inc()
				continue
			}
			idx := top
			if jumpToTop {
				top++
			} else {
				idx = c.insertionIndex(cand.post.Sort)
				if idx == len(c.displayed) && (len(c.pending) > 0 || !c.exhausted) {
					c.insertPending(cand.post)
					metrics.Updates.WithLabelValues(metrics.OutcomePending).Inc()
					continue
				}
			}
			anchor := c.visibleKeyBefore(idx)
			r := &row{post: cand.post, rendered: cand.rendered, hidden: true, anchor: anchor}
			c.displayed = append(c.displayed, nil)
			copy(c.displayed[idx+1:], c.displayed[idx:])
			c.displayed[idx] = r
			metrics.Updates.WithLabelValues(metrics.OutcomeNew).Inc()
			if !touched[anchor] {
				touched[anchor] = true
				anchors = append(anchors, anchor)
			}
		}
	}

	for _, anchor := range anchors {
		c.emit(Event{Kind: EventNewPosts, Anchor: keyPtr(anchor), Count: c.hiddenBehind(anchor)})
	}
}

func (c *Cascade) hiddenBehind(anchor domain.PostKey) int {
	n := 0
	for _, r := range c.displayed {
		if r.hidden && r.anchor == anchor {
			n++
		}
	}
	return n
}

// keyPtr maps the zero key, meaning the top of the list, to nil.
func keyPtr(key domain.PostKey) *domain.PostKey {
	if key == (domain.PostKey{}) {
		return nil
	}
	return &key
}

// ShowUpdate swaps the waiting newer revision of key into its slot.
func (c *Cascade) ShowUpdate(key domain.PostKey) (*frontend_domain.RenderedPost, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	i := c.findDisplayed(key)
	if i < 0 {
		c.mu.Unlock()
		return nil, ErrUnknownPost
	}
	r := c.displayed[i]
	if r.shadow == nil {
		c.mu.Unlock()
		return nil, ErrNoUpdate
	}
	r.post = r.shadow.post
	r.rendered = r.shadow.rendered
	r.shadow = nil
	c.emit(Event{Kind: EventReplaced, Key: &key, Revision: r.post.Revision, Post: r.rendered})
	rendered := r.rendered
	c.mu.Unlock()
	c.flush()
	return rendered, nil
}

// RevealNew shows the hidden new posts waiting behind anchor. The zero key is the
// top of the list. It returns how many posts became visible.
func (c *Cascade) RevealNew(anchor domain.PostKey) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	var revealed []*frontend_domain.RenderedPost
	for _, r := range c.displayed {
		if r.hidden && r.anchor == anchor {
			r.hidden = false
			revealed = append(revealed, r.rendered)
		}
	}
	if len(revealed) == 0 {
		c.mu.Unlock()
		return 0, nil
	}
	c.emit(Event{Kind: EventRevealed, Anchor: keyPtr(anchor), Posts: revealed, Count: len(revealed), Animate: true})
	if c.exhausted {
		c.finish()
	}
	c.mu.Unlock()
	c.flush()

	if c.cfg.OnReveal != nil {
		c.cfg.OnReveal(len(revealed))
	}
	return len(revealed), nil
}
