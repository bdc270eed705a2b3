package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/babbling-brook/streambed/frontend/internal/cascade"
	"github.com/babbling-brook/streambed/shared/api"
	"github.com/babbling-brook/streambed/shared/domain"
	"github.com/babbling-brook/streambed/shared/utils"
)

type openCascadeRequest struct {
	Source api.PostSource `json:"source"`
	Slots  int            `json:"slots" validate:"gte=0"`
}

type openCascadeResponse struct {
	Cascade string       `json:"cascade"`
	View    cascade.View `json:"view"`
}

type scrollRequest struct {
	Offset int `json:"offset" validate:"gte=0"`
}

type resizeRequest struct {
	Slots int `json:"slots" validate:"gte=1"`
}

type updateRequest struct {
	Posts     []domain.Post `json:"posts" validate:"required,min=1"`
	JumpToTop bool          `json:"jump_to_top"`
}

type revealRequest struct {
	Anchor domain.PostKey `json:"anchor"`
}

type revealResponse struct {
	Revealed int `json:"revealed"`
}

func (h *Handler) OpenCascade(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body openCascadeRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	id, v, err := s.OpenCascade(r.Context(), body.Source, cascade.Viewport{Slots: body.Slots})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, openCascadeResponse{Cascade: id, View: v})
}

func (h *Handler) GetCascade(w http.ResponseWriter, r *http.Request) {
	c, err := h.cascade(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) CloseCascade(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.CloseCascade(chi.URLParam(r, "cascade")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Scroll reports the client's scroll offset; the cascade drains into the space
// it freed and the new view is returned.
func (h *Handler) Scroll(w http.ResponseWriter, r *http.Request) {
	c, err := h.cascade(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body scrollRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	if err := c.Scrolled(r.Context(), body.Offset); err != nil && !fetchReported(err) {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	c, err := h.cascade(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body resizeRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	if err := c.Resize(r.Context(), body.Slots); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.Snapshot())
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	c, err := h.cascade(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := c.Retry(r.Context()); err != nil && !fetchReported(err) {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.Snapshot())
}

// Update feeds pushed posts into one cascade.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	c, err := h.cascade(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body updateRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	if err := c.Update(r.Context(), body.Posts, body.JumpToTop); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c.Snapshot())
}

// Broadcast feeds pushed posts into every cascade of the session.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body updateRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	s.Broadcast(r.Context(), body.Posts, body.JumpToTop)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ShowUpdate(w http.ResponseWriter, r *http.Request) {
	c, err := h.cascade(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rendered, err := c.ShowUpdate(postKey(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, rendered)
}

func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	c, err := h.cascade(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body revealRequest
	if err := utils.Decode(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	n, err := c.RevealNew(body.Anchor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, revealResponse{Revealed: n})
}

// fetchReported reports whether err is a failed fetch that the cascade already put
// on the session's banner. The request itself succeeded.
func fetchReported(err error) bool {
	return !errors.Is(err, cascade.ErrClosed) && !errors.Is(err, cascade.ErrAlreadyInitialized)
}
