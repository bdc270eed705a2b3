package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/babbling-brook/streambed/frontend/internal/cascade"
	"github.com/babbling-brook/streambed/frontend/internal/notify"
	"github.com/babbling-brook/streambed/frontend/internal/view"
	"github.com/babbling-brook/streambed/shared/config"
	"github.com/babbling-brook/streambed/shared/domain"
	internal_errors "github.com/babbling-brook/streambed/shared/errors"
	"github.com/babbling-brook/streambed/shared/logger"
	mw "github.com/babbling-brook/streambed/shared/middleware"
	"github.com/babbling-brook/streambed/shared/utils"
)

type Handler struct {
	sessions *view.Manager
	public   config.Public
	log      *slog.Logger
}

func New(sessions *view.Manager, public config.Public) *Handler {
	return &Handler{
		sessions: sessions,
		public:   public,
		log:      logger.Component("handler"),
	}
}

func (h *Handler) session(r *http.Request) (*view.Session, error) {
	return h.sessions.Get(chi.URLParam(r, "session"))
}

func (h *Handler) cascade(r *http.Request) (*cascade.Cascade, error) {
	s, err := h.session(r)
	if err != nil {
		return nil, err
	}
	return s.Cascade(chi.URLParam(r, "cascade"))
}

// PushSession resolves the websocket's ?session= parameter to a live session.
func (h *Handler) PushSession(r *http.Request) (string, error) {
	id := r.URL.Query().Get("session")
	if _, err := h.sessions.Get(id); err != nil {
		return "", err
	}
	return id, nil
}

func postKey(r *http.Request) domain.PostKey {
	return domain.PostKey{Domain: chi.URLParam(r, "domain"), PostID: chi.URLParam(r, "post")}
}

func accessToken(r *http.Request) string {
	if c, err := r.Cookie(mw.AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// writeError maps view-layer errors to status codes. Anything unknown falls through
// to utils.WriteErrorAndStatusCode.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var violation *internal_errors.ContractViolation
	switch {
	case errors.Is(err, cascade.ErrClosed),
		errors.Is(err, cascade.ErrUnknownPost),
		errors.Is(err, notify.ErrUnknownMessage),
		errors.Is(err, notify.ErrUnknownButton):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cascade.ErrNoUpdate),
		errors.Is(err, cascade.ErrAlreadyInitialized),
		errors.Is(err, notify.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, view.ErrDeleteFailed):
		http.Error(w, "Failed to delete", http.StatusBadGateway)
	case errors.As(err, &violation):
		h.log.Warn("rejected request", "path", r.URL.Path, "error", err)
		http.Error(w, "Invalid request", http.StatusBadRequest)
	default:
		utils.WriteErrorAndStatusCode(w, err)
	}
}

// Health is a liveness probe endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
