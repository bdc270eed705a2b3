// Package post turns domus posts into render-ready view models.
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	frontend_domain "github.com/babbling-brook/streambed/frontend/internal/domain"
	"github.com/babbling-brook/streambed/frontend/internal/markdown"
	"github.com/babbling-brook/streambed/shared/config"
	"github.com/babbling-brook/streambed/shared/domain"
	internal_errors "github.com/babbling-brook/streambed/shared/errors"
	"github.com/babbling-brook/streambed/shared/logger"
)

var (
	// ErrFetchPost is retryable: the caller offers the user a Retry button.
	ErrFetchPost = errors.New("failed to fetch post")
	// ErrStreamUnavailable is fatal for the post being rendered, never for the page.
	ErrStreamUnavailable = errors.New("stream schema unavailable")
)

type PostStore interface {
	GetPost(ctx context.Context, key domain.PostKey, revision int) (*domain.Post, error)
	GetTakesForPost(ctx context.Context, key domain.PostKey) (domain.TakeSet, error)
}

type Options struct {
	User            *domain.User
	ShowEmptyFields bool
}

type Renderer struct {
	posts   PostStore
	streams *StreamCache
	text    *markdown.TextProcessor
	cfg     config.Render
	now     func() time.Time
	log     *slog.Logger
}

func NewRenderer(posts PostStore, streams *StreamCache, text *markdown.TextProcessor, cfg config.Render) *Renderer {
	return &Renderer{
		posts:   posts,
		streams: streams,
		text:    text,
		cfg:     cfg,
		now:     time.Now,
		log:     logger.Component("post"),
	}
}

// Render produces the view model of one post revision. A post without content is
// fetched first. The input post is never modified.
func (r *Renderer) Render(ctx context.Context, p *domain.Post, opts Options) (*frontend_domain.RenderedPost, error) {
	if p.Content == nil && p.Status != domain.PostStatusDeleted {
		fetched, err := r.posts.GetPost(ctx, p.Key(), p.Revision)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w %s: %w", ErrFetchPost, p.Key(), err)
		}
		merged := *fetched
		// the cascade ordering belongs to the source that listed the post
		merged.Sort = p.Sort
		p = &merged
	}

	stream, err := r.streams.Get(ctx, p.Stream)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Error("stream schema fetch failed", "stream", p.Stream.String(), "post", p.Key().String(), "error", err)
		return nil, fmt.Errorf("%w %s: %w", ErrStreamUnavailable, p.Stream, err)
	}

	owned := opts.User.Owns(p)
	rendered := &frontend_domain.RenderedPost{
		Key:       p.Key(),
		Revision:  p.Revision,
		Sort:      p.Sort,
		Username:  p.Username,
		Timestamp: p.Timestamp,
		TimeAgo:   humanize.RelTime(p.Timestamp, r.now(), "ago", "from now"),
		Status:    p.Status,
		IsOwned:   owned,
	}

	if p.ParentID != "" {
		rendered.ParentLink = postLink(p.Domain, p.ParentID)
	}
	if r.cfg.Features.ThreadLink && p.TopParentID != "" && p.TopParentID != p.ParentID {
		rendered.ThreadLink = postLink(p.Domain, p.TopParentID)
	}
	if r.cfg.Features.ChildCount {
		count := p.ChildCount
		rendered.ChildCount = &count
	}

	if p.Status == domain.PostStatusDeleted {
		return rendered, nil
	}

	rendered.Affordances = frontend_domain.Affordances{
		Edit:   r.cfg.Features.Edit && owned,
		Delete: r.cfg.Features.Delete && owned,
		Reply:  r.cfg.Features.Reply && opts.User != nil,
	}

	takes := p.Takes
	if takes == nil && opts.User != nil && hasValueFields(stream) {
		takes, err = r.posts.GetTakesForPost(ctx, p.Key())
		if err != nil {
			// value widgets still render, just without the visitor's takes
			r.log.Warn("takes fetch failed", "post", p.Key().String(), "error", err)
			takes = nil
		}
	}

	for _, def := range stream.Fields {
		widget, ok, err := r.renderField(def, p, takes, owned, opts)
		if err != nil {
			r.log.Error("field render aborted", "post", p.Key().String(), "field", def.Index, "error", err)
			return nil, err
		}
		if ok {
			rendered.Fields = append(rendered.Fields, widget)
		}
	}
	return rendered, nil
}

func postLink(domainName string, id domain.PostID) string {
	return "/post/" + url.PathEscape(domainName) + "/" + url.PathEscape(id)
}

func hasValueFields(stream *domain.Stream) bool {
	for _, def := range stream.Fields {
		if def.Type == domain.FieldValue {
			return true
		}
	}
	return false
}

func (r *Renderer) renderField(def domain.FieldDefinition, p *domain.Post, takes domain.TakeSet, owned bool, opts Options) (frontend_domain.FieldWidget, bool, error) {
	if def.Index < 1 {
		return frontend_domain.FieldWidget{}, false, internal_errors.Violation("post", "field index %d out of range", def.Index)
	}
	field, present := p.Field(def.Index)
	widget := frontend_domain.FieldWidget{Index: def.Index, Type: def.Type, Label: def.Label}

	switch def.Type {
	case domain.FieldTextbox:
		if !r.text.HasPayload(field.Text) && !opts.ShowEmptyFields {
			return widget, false, nil
		}
		html, err := r.text.Render(field.Text)
		if err != nil {
			r.log.Warn("markdown render failed, falling back to escaped text", "post", p.Key().String(), "error", err)
		}
		widget.HTML = html
		widget.Display = frontend_domain.TextTitle
		if utf8.RuneCountInString(field.Text) > r.cfg.LongTextThreshold {
			widget.Display = frontend_domain.TextBlock
		}

	case domain.FieldLink:
		if field.Link == "" && !opts.ShowEmptyFields {
			return widget, false, nil
		}
		widget.Link = renderLink(field)

	case domain.FieldCheckbox:
		checked := def.CheckboxDefault
		if field.Checked != nil {
			checked = *field.Checked
		} else if !present && !opts.ShowEmptyFields {
			return widget, false, nil
		}
		widget.Checked = &checked

	case domain.FieldList, domain.FieldOpenList:
		if len(field.Selected) == 0 && !opts.ShowEmptyFields {
			return widget, false, nil
		}
		widget.Items = renderListItems(def, field.Selected)

	case domain.FieldValue:
		if def.Who == domain.VisibleOwner && !owned {
			return widget, false, nil
		}
		value, err := renderValue(def, field, takes)
		if err != nil {
			return widget, false, err
		}
		widget.Value = value

	default:
		return widget, false, internal_errors.Violation("post", "unknown field type %q at index %d", def.Type, def.Index)
	}
	return widget, true, nil
}

func renderLink(field domain.Field) *frontend_domain.LinkWidget {
	link := &frontend_domain.LinkWidget{URL: safeLink(field.Link), Title: field.LinkTitle}
	if link.Title == "" {
		link.Title = field.Link
	}
	if thumb := safeLink(field.LinkThumbnailURL); thumb != "" {
		link.ThumbnailURL = thumb
		link.HasThumbnail = true
	}
	return link
}

// safeLink drops anything that is not an absolute http(s) URL.
func safeLink(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

// renderListItems lists every choice of a closed list, and only the selected entries
// of an open list.
func renderListItems(def domain.FieldDefinition, selected []string) []frontend_domain.ListItem {
	chosen := make(map[string]bool, len(selected))
	for _, s := range selected {
		chosen[s] = true
	}
	if def.Type == domain.FieldOpenList {
		items := make([]frontend_domain.ListItem, 0, len(selected))
		for _, s := range selected {
			items = append(items, frontend_domain.ListItem{Name: s, Selected: true})
		}
		return items
	}
	items := make([]frontend_domain.ListItem, 0, len(def.ListItems))
	for _, name := range def.ListItems {
		items = append(items, frontend_domain.ListItem{Name: name, Selected: chosen[name]})
	}
	return items
}

// ValueRange returns the bounds a value field accepts. The post may narrow the stream's
// bounds for its own field.
func ValueRange(def domain.FieldDefinition, field domain.Field) (float64, float64) {
	lo, hi := defaultRange(def)
	if def.ValueMin != nil {
		lo = *def.ValueMin
	}
	if def.ValueMax != nil {
		hi = *def.ValueMax
	}
	if field.ValueMin != nil {
		lo = *field.ValueMin
	}
	if field.ValueMax != nil {
		hi = *field.ValueMax
	}
	return lo, hi
}

func defaultRange(def domain.FieldDefinition) (float64, float64) {
	switch def.ValueType {
	case domain.ValueUpDown:
		return -1, 1
	case domain.ValueButton:
		return 0, 1
	case domain.ValueStars:
		return 0, 5
	case domain.ValueList:
		return 0, float64(max(len(def.ListItems)-1, 0))
	default:
		return 0, 100
	}
}

func renderValue(def domain.FieldDefinition, field domain.Field, takes domain.TakeSet) (*frontend_domain.ValueWidget, error) {
	lo, hi := ValueRange(def, field)
	if hi < lo {
		return nil, internal_errors.Violation("post", "value field %d has min %v above max %v", def.Index, lo, hi)
	}
	widget := &frontend_domain.ValueWidget{
		ValueType: def.ValueType,
		Min:       lo,
		Max:       hi,
		OwnerOnly: def.Who == domain.VisibleOwner,
	}
	if take, ok := takes[def.Index]; ok {
		widget.Take = take.Value
		widget.Taken = take.Taken
	}

	switch def.ValueType {
	case domain.ValueUpDown, domain.ValueTextbox, domain.ValueButton:
	case domain.ValueLinear:
		widget.Position = linearPosition(widget.Take, lo, hi)
	case domain.ValueLogarithmic:
		widget.Position = logPosition(widget.Take, lo, hi)
	case domain.ValueStars:
		widget.Stars = int(math.Round(math.Min(math.Max(widget.Take, 0), hi)))
	case domain.ValueList:
		widget.Options = def.ListItems
	default:
		return nil, internal_errors.Violation("post", "unknown value type %q at index %d", def.ValueType, def.Index)
	}
	return widget, nil
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func linearPosition(take, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return clamp01((take - lo) / (hi - lo))
}

// logPosition places take on a slider whose scale is logarithmic in the distance from
// the lower bound.
func logPosition(take, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	span := math.Log1p(hi - lo)
	return clamp01(math.Log1p(math.Max(take-lo, 0)) / span)
}
