package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/babbling-brook/streambed/frontend/internal/notify"
	"github.com/babbling-brook/streambed/shared/utils"
)

type messagesResponse struct {
	Banner     notify.Banner `json:"banner"`
	ErrorStack []string      `json:"error_stack"`
}

// addMessageRequest carries messages raised by the page itself. They get the default
// buttons only.
type addMessageRequest struct {
	Type           notify.Type `json:"type" validate:"oneof=error system notice tutorial suggestion ring"`
	Text           string      `json:"message" validate:"required"`
	Full           string      `json:"full"`
	URL            string      `json:"url"`
	Priority       int         `json:"priority" validate:"gte=0"`
	AllowDuplicate bool        `json:"allow_duplicate"`
	NoIgnore       bool        `json:"no_ignore"`
}

type addMessageResponse struct {
	ID    string `json:"id"`
	Added bool   `json:"added"`
}

type pressRequest struct {
	Button string `json:"button" validate:"required"`
}

type pathRequest struct {
	Path string `json:"path" validate:"required"`
}

type suggestionModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := s.Queue()
	utils.WriteJSON(w, http.StatusOK, messagesResponse{Banner: q.Banner(), ErrorStack: q.ErrorStack()})
}

func (h *Handler) AddMessage(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body addMessageRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	id, added, err := s.Queue().AddMessage(notify.Message{
		Type:           body.Type,
		Text:           body.Text,
		Full:           body.Full,
		URL:            body.URL,
		Priority:       body.Priority,
		AllowDuplicate: body.AllowDuplicate,
		NoIgnore:       body.NoIgnore,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	utils.WriteJSON(w, status, addMessageResponse{ID: id, Added: added})
}

// PressButton runs the button's action and answers once it has finished, with the
// banner that follows it.
func (h *Handler) PressButton(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body pressRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	q := s.Queue()
	if err := q.Press(r.Context(), chi.URLParam(r, "message"), body.Button); err != nil {
		// a failed action still acknowledges its message
		if errors.Is(err, notify.ErrBusy) || errors.Is(err, notify.ErrUnknownMessage) || errors.Is(err, notify.ErrUnknownButton) {
			h.writeError(w, r, err)
			return
		}
		h.log.Debug("button action failed", "button", body.Button, "error", err)
	}
	utils.WriteJSON(w, http.StatusOK, q.Banner())
}

func (h *Handler) AcknowledgeMessage(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := s.Queue()
	if err := q.AcknowledgeMessage(chi.URLParam(r, "message")); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, q.Banner())
}

func (h *Handler) ToggleMessage(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := s.Queue()
	if err := q.Toggle(chi.URLParam(r, "message")); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, q.Banner())
}

// SetPath records client-side navigation; messages bound to another url drop out of
// the banner.
func (h *Handler) SetPath(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body pathRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	q := s.Queue()
	q.SetPath(body.Path)
	utils.WriteJSON(w, http.StatusOK, q.Banner())
}

func (h *Handler) SetSuggestionMode(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body suggestionModeRequest
	if err := utils.Decode(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	q := s.Queue()
	q.SetSuggestionMode(body.Enabled)
	utils.WriteJSON(w, http.StatusOK, q.Banner())
}
