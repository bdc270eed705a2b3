package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/babbling-brook/streambed/frontend/internal/middleware"
	"github.com/babbling-brook/streambed/frontend/internal/notify"
	mw "github.com/babbling-brook/streambed/shared/middleware"
	"github.com/babbling-brook/streambed/shared/utils"
)

type openSessionRequest struct {
	Path string `json:"path" validate:"required"`
}

type openSessionResponse struct {
	Session   string        `json:"session"`
	CSRFToken string        `json:"csrf_token"`
	Banner    notify.Banner `json:"banner"`
}

// OpenSession starts the server side of a page load.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var body openSessionRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	s, err := h.sessions.Open(mw.GetUserFromContext(r), accessToken(r), body.Path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, openSessionResponse{
		Session:   s.ID,
		CSRFToken: middleware.GetCSRFTokenFromContext(r),
		Banner:    s.Queue().Banner(),
	})
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.CloseSession(chi.URLParam(r, "session")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
