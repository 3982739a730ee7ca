package api

import (
	"net/http"
)

// Instrumenter wraps a handler with request metrics labelled by route pattern.
type Instrumenter interface {
	InstrumentHandler(pattern string, next http.Handler) http.Handler
}

// SetupRoutes configures all API routes. metricsHandler is mounted on
// /metrics when non-nil.
func SetupRoutes(mux *http.ServeMux, h *Handler, instr Instrumenter, metricsHandler http.Handler) {
	route := func(pattern string, fn http.HandlerFunc) {
		var handler http.Handler = fn
		if instr != nil {
			handler = instr.InstrumentHandler(pattern, handler)
		}
		mux.Handle(pattern, handler)
	}

	route("POST /api/analyze_mpa", h.AnalyzeMPA)
	route("GET /api/mpa_list", h.ListMPAs)

	// Run history
	route("GET /api/analyses", h.ListAnalyses)
	route("GET /api/analyses/{id}", h.GetAnalysis)

	route("GET /healthz", h.Health)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
}
