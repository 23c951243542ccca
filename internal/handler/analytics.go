package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blogpulse/blogpulse/internal/analytics"
	"github.com/blogpulse/blogpulse/internal/filter"
	"github.com/blogpulse/blogpulse/internal/ingest"
	"github.com/blogpulse/blogpulse/internal/model"
	"github.com/blogpulse/blogpulse/internal/source"
)

// maxRequestBody caps analytics request payloads at 1 MiB.
const maxRequestBody = 1 << 20

// AnalyticsHandler serves the aggregation endpoints and view tracking.
type AnalyticsHandler struct {
	service   *analytics.Service
	publisher *ingest.Publisher
	logger    *slog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler. The publisher may be
// nil when view tracking is disabled.
func NewAnalyticsHandler(service *analytics.Service, publisher *ingest.Publisher, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service:   service,
		publisher: publisher,
		logger:    logger.With("component", "handler.analytics"),
	}
}

// pointsResponse is the envelope for aggregation results.
type pointsResponse struct {
	Results []model.Point `json:"results"`
}

// BlogViews handles POST /api/v1/analytics/blog-views/{objectType}.
// The body is a flat filter; the response is one point per group.
func (h *AnalyticsHandler) BlogViews(w http.ResponseWriter, r *http.Request) {
	f, ok := h.decodeFlatFilter(w, r)
	if !ok {
		return
	}

	objectType := analytics.ObjectType(chi.URLParam(r, "objectType"))
	points, err := h.service.Grouped(r.Context(), objectType, f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Results: points})
}

// BlogViewsFast handles POST /api/v1/analytics/blog-views/{objectType}/fast.
// Same shape as BlogViews but answered from the daily summary rollup.
func (h *AnalyticsHandler) BlogViewsFast(w http.ResponseWriter, r *http.Request) {
	f, ok := h.decodeFlatFilter(w, r)
	if !ok {
		return
	}

	objectType := analytics.ObjectType(chi.URLParam(r, "objectType"))
	points, err := h.service.FastGrouped(r.Context(), objectType, f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Results: points})
}

// Top handles POST /api/v1/analytics/top/{topType}.
func (h *AnalyticsHandler) Top(w http.ResponseWriter, r *http.Request) {
	f, ok := h.decodeFlatFilter(w, r)
	if !ok {
		return
	}

	topType := analytics.TopType(chi.URLParam(r, "topType"))
	points, err := h.service.Top(r.Context(), topType, f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Results: points})
}

// Performance handles POST /api/v1/analytics/performance.
func (h *AnalyticsHandler) Performance(w http.ResponseWriter, r *http.Request) {
	f, ok := h.decodeFlatFilter(w, r)
	if !ok {
		return
	}

	points, err := h.service.Performance(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Results: points})
}

// CountEvents handles POST /api/v1/analytics/events/count.
// The body is a recursive filter expression rather than a flat filter.
func (h *AnalyticsHandler) CountEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	count, err := h.service.CountEvents(r.Context(), body)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// trackViewRequest is the payload for recording a page view.
type trackViewRequest struct {
	BlogID         int64  `json:"blog_id"`
	BlogTitle      string `json:"blog_title"`
	AuthorUsername string `json:"author_username"`
	ViewerID       string `json:"viewer_id,omitempty"`
	ViewedAt       string `json:"viewed_at,omitempty"` // RFC3339, defaults to now
}

// TrackView handles POST /api/v1/views. The event is published to the
// ingest stream fire-and-forget; a 202 means accepted, not persisted.
func (h *AnalyticsHandler) TrackView(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "INGEST_DISABLED", "View tracking is not enabled")
		return
	}

	var req trackViewRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	viewedAt := time.Now().UTC()
	if req.ViewedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ViewedAt)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "viewed_at must be RFC3339")
			return
		}
		viewedAt = parsed.UTC()
	}

	payload := ingest.ViewEventPayload{
		BlogID:         req.BlogID,
		BlogTitle:      req.BlogTitle,
		AuthorUsername: req.AuthorUsername,
		CountryCode:    ingest.ExtractCountryCode(r.Header.Get("CF-IPCountry")),
		ViewerID:       req.ViewerID,
		VisitorHash:    ingest.GenerateVisitorHash(r.RemoteAddr, r.UserAgent(), viewedAt),
		ViewedAt:       viewedAt.UnixMilli(),
	}

	if err := ingest.ValidateViewEventPayload(payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	h.publisher.PublishAsync(payload)
	w.WriteHeader(http.StatusAccepted)
}

// decodeFlatFilter reads and validates a flat filter body. An empty body is
// the unfiltered query.
func (h *AnalyticsHandler) decodeFlatFilter(w http.ResponseWriter, r *http.Request) (filter.FlatFilter, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return filter.FlatFilter{}, false
	}

	f, err := filter.DecodeFlatFilter(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return filter.FlatFilter{}, false
	}
	return f, true
}

// writeServiceError maps service errors to HTTP responses. User input errors
// are 400s; everything else is a 500 with a generic message.
func (h *AnalyticsHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidObjectType),
		errors.Is(err, analytics.ErrInvalidTopType):
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, filter.ErrInvalidFilter),
		errors.Is(err, filter.ErrFieldNotAllowed),
		errors.Is(err, filter.ErrUnsupportedOperator),
		errors.Is(err, filter.ErrExpressionTooDeep):
		h.writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
	case errors.Is(err, source.ErrInvalidDimension):
		h.logger.Error("dimension contract violation", "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to run analytics query")
	default:
		h.logger.Error("analytics query failed", "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to run analytics query")
	}
}

// writeError writes a JSON error response.
func (h *AnalyticsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
