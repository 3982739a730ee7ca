package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/mpawatch/mpawatch/internal/database"
	"github.com/mpawatch/mpawatch/internal/models"
	"github.com/mpawatch/mpawatch/internal/monitor"
)

const maxRequestBody = 1 << 20

// Analyzer runs one MPA analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req monitor.Request) models.AnalysisResult
}

// MPASource lists the known protected areas.
type MPASource interface {
	MPAs() []models.MPA
}

// RunReader reads persisted analysis runs.
type RunReader interface {
	Get(ctx context.Context, id string) (*models.AnalysisRun, error)
	List(ctx context.Context, filter database.RunFilter) ([]models.AnalysisRun, error)
}

// Handler serves the MPA analysis API.
type Handler struct {
	analyzer  Analyzer
	mpas      MPASource
	runs      RunReader
	limiter   *rate.Limiter
	health    func(ctx context.Context) error
	logger    *slog.Logger
	now       func() time.Time
	startTime time.Time
}

// NewHandler creates a Handler. Run history and the inbound limiter are
// optional and enabled with SetRuns and SetRateLimit.
func NewHandler(analyzer Analyzer, mpas MPASource, logger *slog.Logger) *Handler {
	return &Handler{
		analyzer:  analyzer,
		mpas:      mpas,
		logger:    logger,
		now:       time.Now,
		startTime: time.Now(),
	}
}

// SetRuns enables the run history endpoints.
func (h *Handler) SetRuns(runs RunReader) {
	h.runs = runs
}

// SetRateLimit caps analysis requests at perSecond with the given burst.
// A non-positive rate leaves analysis unlimited.
func (h *Handler) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		h.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// SetHealthCheck registers a dependency probe reported by /healthz.
func (h *Handler) SetHealthCheck(check func(ctx context.Context) error) {
	h.health = check
}

// AnalyzeMPA handles POST /api/analyze_mpa
func (h *Handler) AnalyzeMPA(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		h.writeError(w, http.StatusTooManyRequests, "Too many analysis requests, try again shortly")
		return
	}

	var req AnalyzeRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := validateAnalyzeRequest(&req); err != nil {
		if errors.Is(err, errMissingParameters) {
			h.writeError(w, http.StatusBadRequest, missingParametersMessage)
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start, end, err := req.window(h.now())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.analyzer.Analyze(r.Context(), monitor.Request{
		MPAName:  req.MPAName,
		WDPACode: req.WDPACode,
		Start:    start,
		End:      end,
	})

	// Failed analyses are still reported with 200; the status field carries
	// the outcome.
	h.writeJSON(w, http.StatusOK, result)
}

// ListMPAs handles GET /api/mpa_list
func (h *Handler) ListMPAs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.mpas.MPAs())
}

// ListAnalyses handles GET /api/analyses
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Run history is not configured")
		return
	}

	filter := database.RunFilter{WDPACode: r.URL.Query().Get("wdpa_code")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	runs, err := h.runs.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list analysis runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"analyses": runs,
		"count":    len(runs),
	})
}

// GetAnalysis handles GET /api/analyses/{id}
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Run history is not configured")
		return
	}

	run, err := h.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			h.writeError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		h.logger.Error("failed to get analysis run", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, run)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	}

	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["error"] = err.Error()
		}
	}

	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
