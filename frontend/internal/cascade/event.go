package cascade

import (
	frontend_domain "github.com/babbling-brook/streambed/frontend/internal/domain"
	"github.com/babbling-brook/streambed/shared/domain"
)

type State string

const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateExhausted State = "exhausted"
)

// Indicator is the status line shown under the list.
type Indicator string

const (
	IndicatorNone        Indicator = "none"
	IndicatorLoading     Indicator = "loading"
	IndicatorNoPosts     Indicator = "no_posts"
	IndicatorNoMorePosts Indicator = "no_more_posts"
)

type EventKind string

const (
	EventRendered        EventKind = "rendered"            // a pending post was appended
	EventNewPosts        EventKind = "new_posts_available" // hidden new posts wait behind Anchor
	EventUpdateAvailable EventKind = "update_available"    // a newer revision of Key can be shown
	EventReplaced        EventKind = "replaced"            // Key now shows Post in the same slot
	EventRevealed        EventKind = "revealed"            // hidden new posts became visible
	EventIndicator       EventKind = "indicator"
)

// Event describes one change to the rendered list. After is the visible row a new
// rendering goes below; nil means the top of the list.
type Event struct {
	Kind      EventKind                       `json:"kind"`
	Key       *domain.PostKey                 `json:"key,omitempty"`
	Revision  int                             `json:"revision,omitempty"`
	Post      *frontend_domain.RenderedPost   `json:"post,omitempty"`
	Posts     []*frontend_domain.RenderedPost `json:"posts,omitempty"`
	After     *domain.PostKey                 `json:"after,omitempty"`
	Anchor    *domain.PostKey                 `json:"anchor,omitempty"`
	Count     int                             `json:"count,omitempty"`
	Animate   bool                            `json:"animate,omitempty"`
	Indicator Indicator                       `json:"indicator,omitempty"`
}

// RowView is one entry of the displayed list as the client sees it.
type RowView struct {
	Post            *frontend_domain.RenderedPost `json:"post"`
	Hidden          bool                          `json:"hidden"`
	Anchor          *domain.PostKey               `json:"anchor,omitempty"`
	UpdateAvailable bool                          `json:"update_available"`
	UpdateRevision  int                           `json:"update_revision,omitempty"`
}

// View is a consistent snapshot of a cascade.
type View struct {
	State     State     `json:"state"`
	Indicator Indicator `json:"indicator"`
	Rows      []RowView `json:"rows"`
	Pending   int       `json:"pending"`
	Viewport  Viewport  `json:"viewport"`
	Error     string    `json:"error,omitempty"`
}
