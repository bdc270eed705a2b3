package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/babbling-brook/streambed/frontend/internal/compose"
	"github.com/babbling-brook/streambed/shared/utils"
)

type validateResponse struct {
	Errors []compose.FieldError `json:"errors"`
	Banner string               `json:"banner,omitempty"`
}

type takeRequest struct {
	FieldIndex int     `json:"field_id" validate:"gte=1"`
	Value      float64 `json:"value"`
}

type takeRingRequest struct {
	RingDomain string `json:"ring_domain" validate:"required"`
	RingName   string `json:"ring_name" validate:"required"`
	TakeName   string `json:"take_name" validate:"required"`
	Untake     bool   `json:"untake"`
}

type waitingCountResponse struct {
	Count int `json:"count"`
}

func (h *Handler) ValidateDraft(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var draft compose.Draft
	if err := utils.DecodeValidate(r.Body, &draft); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	errs, err := s.ValidateDraft(r.Context(), draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := validateResponse{Errors: errs}
	if len(errs) > 0 {
		resp.Banner = compose.CorrectErrorsBanner
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

// SubmitDraft creates or edits a post. A draft with field errors is answered with
// 422 and the errors; nothing is sent to the domus.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var draft compose.Draft
	if err := utils.DecodeValidate(r.Body, &draft); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	res, err := s.Submit(r.Context(), draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(res.Errors) > 0 {
		utils.WriteJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s.RequestDelete(postKey(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.ConfirmDelete(r.Context(), postKey(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CancelDelete(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s.CancelDelete(postKey(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Take(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body takeRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	take, err := s.Take(r.Context(), postKey(r), body.FieldIndex, body.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, take)
}

func (h *Handler) TakeRing(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body takeRingRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	if err := s.TakeRing(r.Context(), postKey(r), body.RingDomain, body.RingName, body.TakeName, body.Untake); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) WaitingPostCount(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		http.Error(w, "kind is required", http.StatusBadRequest)
		return
	}
	count, err := s.WaitingPostCount(r.Context(), kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, waitingCountResponse{Count: count})
}

// Info forwards a read-only info request; every query parameter becomes a request
// parameter.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	params := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	data, err := s.Info(r.Context(), chi.URLParam(r, "kind"), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
