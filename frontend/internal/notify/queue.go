package notify

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/babbling-brook/streambed/frontend/internal/metrics"
	internal_errors "github.com/babbling-brook/streambed/shared/errors"
	"github.com/babbling-brook/streambed/shared/logger"
)

var (
	ErrUnknownMessage = errors.New("message not found")
	ErrUnknownButton  = errors.New("message has no such button")
	ErrBusy           = errors.New("another message action is still running")
)

const noMoreSuggestions = "No more suggestions."

type Config struct {
	BoxChars int
	OnChange func(Banner) // called outside the queue lock, in change order
	OnReload func()       // what the default Reload Page button does
}

// Queue holds every message of a page session. Messages are acknowledged, never
// removed, so the list lives exactly as long as the page.
type Queue struct {
	cfg Config
	log *slog.Logger

	mu          sync.Mutex
	messages    []*Message
	path        string
	suggestions bool
	current     *Message
	expanded    bool
	busyID      string // message whose button action is in flight
	banner      Banner
	errorStack  []string
	changes     []Banner

	emitMu sync.Mutex
}

func NewQueue(cfg Config) *Queue {
	if cfg.BoxChars <= 0 {
		cfg.BoxChars = 160
	}
	return &Queue{cfg: cfg, log: logger.Component("notify")}
}

// AddMessage queues m and re-runs the selection. A message equal in text, url and
// type to one still unacknowledged is not added again unless AllowDuplicate is set;
// the existing id is returned with added=false. The message whose action is running
// does not count, since Press acknowledges it once the action returns.
func (q *Queue) AddMessage(m Message) (id string, added bool, err error) {
	if m.Type.Rank() == 0 {
		return "", false, internal_errors.Violation("notify", "unknown message type %q", m.Type)
	}
	if strings.TrimSpace(m.Text) == "" {
		return "", false, internal_errors.Violation("notify", "empty %s message", m.Type)
	}
	if m.Priority == 0 {
		m.Priority = DefaultPriority
	}

	q.mu.Lock()
	if !m.AllowDuplicate {
		for _, existing := range q.messages {
			if existing.ID == q.busyID {
				continue
			}
			if !existing.Acknowledged && existing.Text == m.Text && existing.URL == m.URL && existing.Type == m.Type {
				q.mu.Unlock()
				return existing.ID, false, nil
			}
		}
	}

	msg := &m
	msg.ID = uuid.NewString()
	msg.Acknowledged = false
	msg.Buttons = q.defaultButtons(msg)
	if msg.Type == TypeError {
		q.errorStack = append(q.errorStack, msg.Text)
		q.log.Info("error message queued", "message", msg.Text)
	}
	q.messages = append(q.messages, msg)
	metrics.Messages.WithLabelValues(string(msg.Type)).Inc()
	q.showNext()
	q.mu.Unlock()
	q.flush()
	return msg.ID, true, nil
}

// defaultButtons adds Reload Page to errors, ahead of any Ignore, and OK to bare
// notices. Every type but suggestions gets Ignore unless the message opts out.
func (q *Queue) defaultButtons(m *Message) []Button {
	buttons := slices.Clone(m.Buttons)
	if m.Type == TypeError {
		if _, ok := m.button(ButtonReload); !ok {
			reload := Button{Name: ButtonReload, Action: q.reload}
			at := len(buttons)
			for i, b := range buttons {
				if b.Name == ButtonIgnore {
					at = i
					break
				}
			}
			buttons = slices.Insert(buttons, at, reload)
		}
	}
	if m.Type == TypeNotice && len(buttons) == 0 {
		buttons = append(buttons, Button{Name: ButtonOK})
	}
	if m.Type == TypeSuggestion || m.NoIgnore {
		return buttons
	}
	if _, ok := m.button(ButtonIgnore); ok {
		return buttons
	}
	return append(buttons, Button{Name: ButtonIgnore})
}

func (q *Queue) reload(ctx context.Context) error {
	if q.cfg.OnReload != nil {
		q.cfg.OnReload()
	}
	return nil
}

// ShowNext re-runs the selection.
func (q *Queue) ShowNext() {
	q.mu.Lock()
	q.showNext()
	q.mu.Unlock()
	q.flush()
}

// showNext selects the message to show. It does nothing while a button action is in
// flight. Caller holds mu.
func (q *Queue) showNext() {
	if q.busyID != "" {
		return
	}
	next := q.selectNext()
	switch {
	case next == nil:
		q.current = nil
		q.expanded = false
		if q.suggestions {
			q.setBanner(Banner{Visible: true, Placeholder: true, Text: noMoreSuggestions})
		} else {
			q.setBanner(Banner{})
		}
	case next == q.current:
		// unchanged selection, no re-render
	default:
		q.current = next
		q.expanded = false
		q.setBanner(q.render(next))
	}
}

func (q *Queue) selectNext() *Message {
	var best *Message
	for _, m := range q.messages {
		if m.Acknowledged {
			continue
		}
		if m.URL != "" && m.URL != q.path {
			continue
		}
		if q.suggestions {
			if m.Type != TypeSuggestion && m.Type != TypeError {
				continue
			}
		} else if m.Type == TypeSuggestion {
			continue
		}
		if best == nil ||
			m.Type.Rank() < best.Type.Rank() ||
			(m.Type.Rank() == best.Type.Rank() && m.Priority > best.Priority) {
			best = m
		}
	}
	return best
}

func (q *Queue) render(m *Message) Banner {
	b := Banner{Visible: true, ID: m.ID, Type: m.Type, Buttons: m.buttonNames(), Busy: q.busyID == m.ID}
	if q.expanded {
		b.Text = m.Text
		if m.Full != "" {
			b.Text = m.Full
		}
		b.Expander = ExpandLess
		return b
	}
	text, cropped := Crop(m.Text, q.cfg.BoxChars)
	b.Text = text
	if cropped || m.Full != "" {
		b.Expander = ExpandMore
	}
	return b
}

// setBanner records a banner change for delivery. Caller holds mu.
func (q *Queue) setBanner(b Banner) {
	if bannersEqual(q.banner, b) {
		return
	}
	q.banner = b
	q.changes = append(q.changes, b)
}

func bannersEqual(a, b Banner) bool {
	return a.Visible == b.Visible &&
		a.Placeholder == b.Placeholder &&
		a.ID == b.ID &&
		a.Type == b.Type &&
		a.Text == b.Text &&
		a.Expander == b.Expander &&
		a.Busy == b.Busy &&
		slices.Equal(a.Buttons, b.Buttons)
}

func (q *Queue) flush() {
	q.emitMu.Lock()
	defer q.emitMu.Unlock()
	q.mu.Lock()
	changes := q.changes
	q.changes = nil
	q.mu.Unlock()
	if q.cfg.OnChange == nil {
		return
	}
	for _, b := range changes {
		q.cfg.OnChange(b)
	}
}

// Press runs a button's action. While it runs the banner is held on this message;
// once it resolves the message is acknowledged and the next one selected.
// AcknowledgeMessage releases the hold early.
func (q *Queue) Press(ctx context.Context, id, name string) error {
	q.mu.Lock()
	if q.busyID != "" {
		q.mu.Unlock()
		return ErrBusy
	}
	m := q.find(id)
	if m == nil || m.Acknowledged {
		q.mu.Unlock()
		return ErrUnknownMessage
	}
	button, ok := m.button(name)
	if !ok {
		q.mu.Unlock()
		return ErrUnknownButton
	}
	q.busyID = id
	if q.current == m {
		q.setBanner(q.render(m))
	}
	q.mu.Unlock()
	q.flush()

	var err error
	if button.Action != nil {
		err = button.Action(ctx)
		if err != nil {
			q.log.Warn("message action failed", "button", name, "message", m.Text, "error", err)
		}
	}

	q.mu.Lock()
	if q.busyID == id {
		q.busyID = ""
	}
	m.Acknowledged = true
	q.showNext()
	q.mu.Unlock()
	q.flush()
	return err
}

// AcknowledgeMessage dismisses a message. If one of its actions is still running the
// banner is released without waiting for it.
func (q *Queue) AcknowledgeMessage(id string) error {
	q.mu.Lock()
	m := q.find(id)
	if m == nil {
		q.mu.Unlock()
		return ErrUnknownMessage
	}
	m.Acknowledged = true
	if q.busyID == id {
		q.busyID = ""
	}
	q.showNext()
	q.mu.Unlock()
	q.flush()
	return nil
}

// Toggle flips the shown message between its cropped and full text.
func (q *Queue) Toggle(id string) error {
	q.mu.Lock()
	if q.current == nil || q.current.ID != id {
		q.mu.Unlock()
		return ErrUnknownMessage
	}
	q.expanded = !q.expanded
	q.setBanner(q.render(q.current))
	q.mu.Unlock()
	q.flush()
	return nil
}

// SetPath scopes the queue to the page the client is on.
func (q *Queue) SetPath(path string) {
	q.mu.Lock()
	q.path = path
	q.showNext()
	q.mu.Unlock()
	q.flush()
}

func (q *Queue) SetSuggestionMode(on bool) {
	q.mu.Lock()
	q.suggestions = on
	q.showNext()
	q.mu.Unlock()
	q.flush()
}

func (q *Queue) Banner() Banner {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.banner
}

// ErrorStack returns the text of every error message queued so far, oldest first.
func (q *Queue) ErrorStack() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.errorStack)
}

// Messages returns copies of every message, acknowledged ones included.
func (q *Queue) Messages() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.messages))
	for i, m := range q.messages {
		out[i] = *m
		out[i].Buttons = slices.Clone(m.Buttons)
	}
	return out
}

func (q *Queue) find(id string) *Message {
	for _, m := range q.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}
