package domain

import (
	"fmt"
	"strings"
	"time"
)

type (
	PostID   = string
	Username = string
)

// SortFiltered is the sort value at or below which a post is treated as filtered out:
// it keeps its place in the fetched ordering but is never displayed.
const SortFiltered = -9999

type PostStatus string

const (
	PostStatusNormal  PostStatus = "normal"
	PostStatusDeleted PostStatus = "deleted"
	PostStatusPrivate PostStatus = "private"
)

// PostKey is the global identity of a post. The same key may arrive many times with
// different revisions.
type PostKey struct {
	Domain string `json:"domain"`
	PostID PostID `json:"post_id"`
}

func (k PostKey) String() string {
	return k.Domain + "/" + k.PostID
}

// ParsePostKey parses the "domain/post_id" form produced by PostKey.String.
func ParsePostKey(s string) (PostKey, error) {
	domainPart, id, ok := strings.Cut(s, "/")
	if !ok || domainPart == "" || id == "" {
		return PostKey{}, fmt.Errorf("invalid post key %q", s)
	}
	return PostKey{Domain: domainPart, PostID: id}, nil
}

// Post is a read-only snapshot of one content item as served by the domus.
// Content is nil when only the header has been fetched.
type Post struct {
	Domain      string     `json:"domain"`
	PostID      PostID     `json:"post_id"`
	Revision    int        `json:"revision"`
	Sort        float64    `json:"sort"`
	Timestamp   time.Time  `json:"timestamp"`
	Status      PostStatus `json:"status,omitempty"`
	Username    Username   `json:"username"`
	Stream      StreamKey  `json:"stream"`
	Content     []Field    `json:"content,omitempty"`
	ParentID    PostID     `json:"parent_id,omitempty"`
	TopParentID PostID     `json:"top_parent_id,omitempty"`
	ChildCount  int        `json:"child_count"`
	Takes       TakeSet    `json:"takes,omitempty"`
}

func (p *Post) Key() PostKey {
	return PostKey{Domain: p.Domain, PostID: p.PostID}
}

// Filtered reports whether the post is below the display sentinel.
func (p *Post) Filtered() bool {
	return p.Sort < SortFiltered
}

// Field returns the content field with the given display index.
func (p *Post) Field(index int) (Field, bool) {
	for _, f := range p.Content {
		if f.Index == index {
			return f, true
		}
	}
	return Field{}, false
}

// Field is one value of a post's content, matched to the stream's field definition
// with the same index (1-based, index 1 is the title field).
type Field struct {
	Index            int      `json:"display_order"`
	Text             string   `json:"text,omitempty"`
	Link             string   `json:"link,omitempty"`
	LinkTitle        string   `json:"link_title,omitempty"`
	LinkThumbnailURL string   `json:"link_thumbnail_url,omitempty"`
	Checked          *bool    `json:"checked,omitempty"`
	Selected         []string `json:"selected,omitempty"`
	ValueMin         *float64 `json:"value_min,omitempty"`
	ValueMax         *float64 `json:"value_max,omitempty"`
}

func (f Field) IsEmpty() bool {
	return strings.TrimSpace(f.Text) == "" &&
		f.Link == "" &&
		f.Checked == nil &&
		len(f.Selected) == 0 &&
		f.ValueMin == nil && f.ValueMax == nil
}

// Take is the current user's recorded value against one field of a post.
type Take struct {
	FieldIndex int     `json:"field_id"`
	Value      float64 `json:"value"`
	Taken      bool    `json:"taken"`
}

// TakeSet maps field index to the user's take on that field.
type TakeSet map[int]Take
