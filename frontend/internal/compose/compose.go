// Package compose validates and submits the make-post form. The form state is a
// plain Draft the client sends back on every round trip; nothing is kept server side.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/babbling-brook/streambed/frontend/internal/post"
	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
	"github.com/babbling-brook/streambed/shared/logger"
)

const CorrectErrorsBanner = "Please correct the errors above"

// Draft is the serializable state of one make-post form.
type Draft struct {
	Stream      domain.StreamKey `json:"stream" validate:"required"`
	PostID      string           `json:"post_id,omitempty"` // set when editing
	ParentID    string           `json:"parent_id,omitempty"`
	TopParentID string           `json:"top_parent_id,omitempty"`
	Private     bool             `json:"private,omitempty"`
	Fields      []domain.Field   `json:"fields"`
}

func (d Draft) field(index int) (domain.Field, bool) {
	for _, f := range d.Fields {
		if f.Index == index {
			return f, true
		}
	}
	return domain.Field{}, false
}

type FieldError struct {
	Index   int    `json:"index"`
	Label   string `json:"label,omitempty"`
	Message string `json:"message"`
}

// Result is the answer to a submit: either inline errors plus the banner, or the
// created post.
type Result struct {
	Errors []FieldError `json:"errors,omitempty"`
	Banner string       `json:"banner,omitempty"`
	Post   *domain.Post `json:"post,omitempty"`
}

type PostMaker interface {
	MakePost(ctx context.Context, req api.MakePostRequest) (*domain.Post, error)
}

type Service struct {
	streams  *post.StreamCache
	store    PostMaker
	validate *validator.Validate
	log      *slog.Logger
}

func NewService(streams *post.StreamCache, store PostMaker) *Service {
	return &Service{
		streams:  streams,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.Component("compose"),
	}
}

// Validate checks every field of d against its stream. The error is non-nil only
// when the stream itself cannot be loaded.
func (s *Service) Validate(ctx context.Context, d Draft) ([]FieldError, error) {
	stream, err := s.streams.Get(ctx, d.Stream)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", post.ErrStreamUnavailable, d.Stream, err)
	}

	var errs []FieldError
	hasContent := false
	for _, f := range d.Fields {
		if _, ok := stream.Definition(f.Index); !ok {
			errs = append(errs, FieldError{Index: f.Index, Message: "Unknown field"})
		}
		if !f.IsEmpty() {
			hasContent = true
		}
	}

	for _, def := range stream.Fields {
		f, _ := d.field(def.Index)
		if msg := s.checkField(def, f); msg != "" {
			errs = append(errs, FieldError{Index: def.Index, Label: def.Label, Message: msg})
		}
	}

	if !hasContent && len(errs) == 0 {
		errs = append(errs, FieldError{Message: "The post is empty"})
	}
	return errs, nil
}

// checkField returns the first problem with f, or "".
func (s *Service) checkField(def domain.FieldDefinition, f domain.Field) string {
	switch def.Type {
	case domain.FieldTextbox:
		return s.checkText(def, f.Text)

	case domain.FieldLink:
		if f.Link == "" {
			if def.Required {
				return "This field is required"
			}
			return ""
		}
		if s.validate.Var(f.Link, "http_url") != nil {
			return "Must be a valid http or https link"
		}
		if def.MaxSize > 0 && s.validate.Var(f.LinkTitle, fmt.Sprintf("max=%d", def.MaxSize)) != nil {
			return fmt.Sprintf("The title must be at most %d characters", def.MaxSize)
		}

	case domain.FieldCheckbox:
		if def.Required && (f.Checked == nil || !*f.Checked) {
			return "This box must be checked"
		}

	case domain.FieldList, domain.FieldOpenList:
		return s.checkList(def, f.Selected)

	case domain.FieldValue:
		return s.checkValue(def, f)
	}
	return ""
}

func (s *Service) checkText(def domain.FieldDefinition, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		if def.Required {
			return "This field is required"
		}
		return ""
	}
	if def.MaxSize > 0 && s.validate.Var(text, fmt.Sprintf("max=%d", def.MaxSize)) != nil {
		return fmt.Sprintf("Must be at most %d characters", def.MaxSize)
	}
	if def.Regex != "" {
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			s.log.Error("stream field has an invalid regex", "field", def.Index, "regex", def.Regex, "error", err)
			return ""
		}
		if !re.MatchString(text) {
			if def.RegexError != "" {
				return def.RegexError
			}
			return "Does not match the required format"
		}
	}
	return ""
}

func (s *Service) checkList(def domain.FieldDefinition, selected []string) string {
	lo := def.SelectQty.Min
	if def.Required && lo < 1 {
		lo = 1
	}
	if lo > 0 && s.validate.Var(len(selected), fmt.Sprintf("gte=%d", lo)) != nil {
		return fmt.Sprintf("Select at least %d", lo)
	}
	if def.SelectQty.Max > 0 && s.validate.Var(len(selected), fmt.Sprintf("lte=%d", def.SelectQty.Max)) != nil {
		return fmt.Sprintf("Select at most %d", def.SelectQty.Max)
	}
	seen := make(map[string]bool, len(selected))
	for _, item := range selected {
		if seen[item] {
			return fmt.Sprintf("%q is selected twice", item)
		}
		seen[item] = true
		if def.Type == domain.FieldList && !slices.Contains(def.ListItems, item) {
			return fmt.Sprintf("%q is not one of the choices", item)
		}
		if def.Type == domain.FieldOpenList && def.MaxSize > 0 && s.validate.Var(item, fmt.Sprintf("max=%d", def.MaxSize)) != nil {
			return fmt.Sprintf("Entries must be at most %d characters", def.MaxSize)
		}
	}
	return ""
}

// checkValue validates the bounds a poster sets on their own value field.
func (s *Service) checkValue(def domain.FieldDefinition, f domain.Field) string {
	if f.ValueMin == nil && f.ValueMax == nil {
		return ""
	}
	lo, hi := post.ValueRange(def, domain.Field{})
	for _, v := range []*float64{f.ValueMin, f.ValueMax} {
		if v == nil {
			continue
		}
		if s.validate.Var(*v, fmt.Sprintf("gte=%v,lte=%v", lo, hi)) != nil {
			return fmt.Sprintf("Must be between %v and %v", lo, hi)
		}
	}
	if f.ValueMin != nil && f.ValueMax != nil && *f.ValueMin > *f.ValueMax {
		return "The minimum must not exceed the maximum"
	}
	return ""
}

// Submit validates d and, when it is clean, sends it to the domus. Submission is
// refused while any field error remains.
func (s *Service) Submit(ctx context.Context, d Draft) (*Result, error) {
	errs, err := s.Validate(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return &Result{Errors: errs, Banner: CorrectErrorsBanner}, nil
	}

	content := make([]domain.Field, 0, len(d.Fields))
	for _, f := range d.Fields {
		if !f.IsEmpty() {
			content = append(content, f)
		}
	}
	created, err := s.store.MakePost(ctx, api.MakePostRequest{
		Stream:      d.Stream,
		Content:     content,
		PostID:      d.PostID,
		ParentID:    d.ParentID,
		TopParentID: d.TopParentID,
		Private:     d.Private,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("post submitted", "post", created.Key().String(), "revision", created.Revision)
	return &Result{Post: created}, nil
}
