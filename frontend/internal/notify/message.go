// Package notify is the page's notification banner: a prioritised queue of messages
// of which at most one is shown at a time.
package notify

import (
	"context"
	"unicode"
	"unicode/utf8"
)

type Type string

const (
	TypeError      Type = "error"
	TypeSystem     Type = "system"
	TypeNotice     Type = "notice"
	TypeTutorial   Type = "tutorial"
	TypeSuggestion Type = "suggestion"
	TypeRing       Type = "ring"
)

var typeRank = map[Type]int{
	TypeError:      1,
	TypeSystem:     2,
	TypeNotice:     3,
	TypeTutorial:   4,
	TypeSuggestion: 5,
	TypeRing:       6,
}

// Rank is the type's urgency, 1 being the most urgent. Unknown types rank 0.
func (t Type) Rank() int {
	return typeRank[t]
}

const (
	ButtonReload = "Reload Page"
	ButtonIgnore = "Ignore"
	ButtonOK     = "OK"
	ButtonRetry  = "Retry"

	ExpandMore = "More"
	ExpandLess = "Less"

	DefaultPriority = 100

	ellipsis = "…"
)

// Action runs when its button is pressed. It may block on a domus round trip.
type Action func(ctx context.Context) error

type Button struct {
	Name   string `json:"name"`
	Action Action `json:"-"`
}

type Message struct {
	ID           string   `json:"id"`
	Type         Type     `json:"type"`
	Text         string   `json:"message"`
	Full         string   `json:"full,omitempty"`
	Buttons      []Button `json:"buttons"`
	Acknowledged bool     `json:"acknowledged"`
	Priority     int      `json:"priority"`
	URL          string   `json:"url,omitempty"`

	AllowDuplicate bool `json:"-"`
	NoIgnore       bool `json:"-"`
}

func (m *Message) button(name string) (Button, bool) {
	for _, b := range m.Buttons {
		if b.Name == name {
			return b, true
		}
	}
	return Button{}, false
}

func (m *Message) buttonNames() []string {
	names := make([]string, len(m.Buttons))
	for i, b := range m.Buttons {
		names[i] = b.Name
	}
	return names
}

// Banner is what the client draws. It only changes when the selected message, its
// expansion, or the busy state changes.
type Banner struct {
	Visible     bool     `json:"visible"`
	Placeholder bool     `json:"placeholder,omitempty"` // "no more suggestions"
	ID          string   `json:"id,omitempty"`
	Type        Type     `json:"type,omitempty"`
	Text        string   `json:"text,omitempty"`
	Expander    string   `json:"expander,omitempty"`
	Buttons     []string `json:"buttons,omitempty"`
	Busy        bool     `json:"busy,omitempty"`
}

// Crop shortens text so that it fits in limit characters, ellipsis included. The
// longest fitting prefix is found by binary search and then cut back to the last
// whitespace so no word is split.
func Crop(text string, limit int) (string, bool) {
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)
	fits := func(n int) bool {
		return n+utf8.RuneCountInString(ellipsis) <= limit
	}

	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	cut := lo
	for i := lo; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	trimmed := trimRightSpace(runes[:cut])
	return string(trimmed) + ellipsis, true
}

func trimRightSpace(r []rune) []rune {
	for len(r) > 0 && unicode.IsSpace(r[len(r)-1]) {
		r = r[:len(r)-1]
	}
	return r
}
