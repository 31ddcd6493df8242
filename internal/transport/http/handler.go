// Package httptransport exposes the registry's read API. Lookup semantics
// follow the accession lifecycle: merged accessions answer with redirect
// info, and deprecated accessions answer 410 with their last known state.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domainerrors "varreg/pkg/domain-errors"
	"varreg/pkg/sentinel"

	"varreg/internal/variant/service"
)

type Handler struct {
	svc *service.Service
	log *slog.Logger
}

func NewHandler(svc *service.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) GetClusteredVariant(w http.ResponseWriter, r *http.Request) {
	accession, ok := h.accessionParam(w, r)
	if !ok {
		return
	}
	lookup, err := h.svc.GetClustered(r.Context(), accession)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, lookup)
	case errors.Is(err, sentinel.ErrMerged):
		h.writeJSON(w, http.StatusOK, lookup)
	case errors.Is(err, sentinel.ErrDeprecated):
		h.writeJSON(w, http.StatusGone, lookup)
	default:
		h.writeError(w, err)
	}
}

func (h *Handler) GetClusteredVariantHistory(w http.ResponseWriter, r *http.Request) {
	accession, ok := h.accessionParam(w, r)
	if !ok {
		return
	}
	history, err := h.svc.GetHistory(r.Context(), accession)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

func (h *Handler) GetSubmittedVariant(w http.ResponseWriter, r *http.Request) {
	accession, ok := h.accessionParam(w, r)
	if !ok {
		return
	}
	sv, err := h.svc.GetSubmitted(r.Context(), accession)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sv)
}

func (h *Handler) accessionParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "accession")
	accession, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "accession must be a positive integer"))
		return 0, false
	}
	return accession, true
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := domainerrors.GetCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}

func statusFor(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeBadRequest, domainerrors.CodeValidation:
		return http.StatusBadRequest
	case domainerrors.CodeConflict:
		return http.StatusConflict
	case domainerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case domainerrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("write response", "error", err)
	}
}
