package frontend_domain

import (
	"html/template"
	"time"

	"github.com/babbling-brook/streambed/shared/domain"
)

// TextDisplay is how a textbox field is laid out.
type TextDisplay string

const (
	TextTitle TextDisplay = "title" // short text rendered as a link to the post
	TextBlock TextDisplay = "block" // long text rendered as a paragraph block
)

// Affordances are the per-post actions offered to the visitor.
type Affordances struct {
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
	Reply  bool `json:"reply"`
}

// RenderedPost is the render-ready form of one post revision.
type RenderedPost struct {
	Key         domain.PostKey    `json:"key"`
	Revision    int               `json:"revision"`
	Sort        float64           `json:"sort"`
	Username    string            `json:"username"`
	Timestamp   time.Time         `json:"timestamp"`
	TimeAgo     string            `json:"time_ago"`
	Status      domain.PostStatus `json:"status"`
	IsOwned     bool              `json:"is_owned"`
	Fields      []FieldWidget     `json:"fields"`
	ChildCount  *int              `json:"child_count,omitempty"`
	ParentLink  string            `json:"parent_link,omitempty"`
	ThreadLink  string            `json:"thread_link,omitempty"`
	Affordances Affordances       `json:"affordances"`
}

// FieldWidget is one field slot of a rendered post. Exactly one of the typed parts
// is populated, matching Type.
type FieldWidget struct {
	Index   int              `json:"index"`
	Type    domain.FieldType `json:"type"`
	Label   string           `json:"label"`
	Display TextDisplay      `json:"display,omitempty"`
	HTML    template.HTML    `json:"html,omitempty"`
	Link    *LinkWidget      `json:"link,omitempty"`
	Checked *bool            `json:"checked,omitempty"`
	Items   []ListItem       `json:"items,omitempty"`
	Value   *ValueWidget     `json:"value,omitempty"`
}

type LinkWidget struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	HasThumbnail bool   `json:"has_thumbnail"`
}

type ListItem struct {
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// ValueWidget is the voting/rating control of a value field, bound to the visitor's
// current take on it.
type ValueWidget struct {
	ValueType domain.ValueType `json:"value_type"`
	Min       float64          `json:"min"`
	Max       float64          `json:"max"`
	Take      float64          `json:"take"`
	Taken     bool             `json:"taken"`
	Position  float64          `json:"position"`          // 0..1 slider position for linear/logarithmic
	Stars     int              `json:"stars,omitempty"`   // filled stars for the stars type
	Options   []string         `json:"options,omitempty"` // choices for the list type
	OwnerOnly bool             `json:"owner_only"`
}
