package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the read API. The metrics listener is separate (see
// cmd/server), so the router only carries the API and a liveness probe.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/clustered-variants/{accession}", h.GetClusteredVariant)
		r.Get("/clustered-variants/{accession}/history", h.GetClusteredVariantHistory)
		r.Get("/submitted-variants/{accession}", h.GetSubmittedVariant)
	})
	return r
}
