package handler

import (
	"net/http"
	"runtime/debug"
)

// Recover turns a panic in a session route into a 500 and a "reload the page" error
// on that session's banner.
func (h *Handler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.log.Error("handler panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			if s, err := h.session(r); err == nil {
				s.ReportPanic()
			}
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
