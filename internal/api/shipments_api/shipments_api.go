// Package shipments_api — JSON HTTP-обвязка сервиса грузов. Здесь же
// маппинг ошибок на статусы и лимит запросов к публичному трекингу.
package shipments_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipTrace/internal/models"
	"github.com/BearBump/ShipTrace/internal/services/shipments"
	"github.com/BearBump/ShipTrace/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Service interface {
	Track(ctx context.Context, orderNo, trackingNo string) (*models.Shipment, error)
	List(ctx context.Context, opts store.ListOptions) ([]*models.ShipmentSummary, error)
	UpdateCheckboxes(ctx context.Context, recordID string, updates map[string]bool) (*models.CheckboxUpdateResult, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type API struct {
	svc Service

	rl          RateLimiter
	queryLimit  int64
	queryWindow time.Duration
}

func New(svc Service) *API {
	return &API{
		svc:         svc,
		queryLimit:  10,
		queryWindow: time.Hour,
	}
}

// WithRateLimiter включает лимит на публичный трекинг (по клиентскому IP).
func (a *API) WithRateLimiter(rl RateLimiter, limit int64, window time.Duration) *API {
	a.rl = rl
	if limit > 0 {
		a.queryLimit = limit
	}
	if window > 0 {
		a.queryWindow = window
	}
	return a
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/health", a.health)
	r.Get("/api/tracking", a.track)
	r.Post("/api/tracking", a.track)
	r.Get("/api/list", a.list)
	r.Post("/api/update-checkbox", a.updateCheckbox)
	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "ShipTrace Tracking API",
	})
}

type trackRequest struct {
	Order      string `json:"order"`
	OrderNo    string `json:"orderNo"`
	Job        string `json:"job"`
	TrackingNo string `json:"trackingNo"`
}

func (a *API) track(w http.ResponseWriter, r *http.Request) {
	var orderNo, trackingNo string
	switch r.Method {
	case http.MethodGet:
		orderNo = r.URL.Query().Get("orderNo")
		trackingNo = r.URL.Query().Get("trackingNo")
	case http.MethodPost:
		var req trackRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		orderNo = firstNonEmpty(req.Order, req.OrderNo)
		trackingNo = firstNonEmpty(req.Job, req.TrackingNo)
	}

	if strings.TrimSpace(orderNo) == "" || strings.TrimSpace(trackingNo) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Missing parameters",
			"message": "Both orderNo and trackingNo are required",
		})
		return
	}

	if a.rl != nil {
		allowed, _, err := a.rl.Allow(r.Context(), "rl:tracking:"+clientIP(r), a.queryLimit, a.queryWindow)
		if err != nil {
			// Недоступный лимитер не должен ронять трекинг.
			slog.Warn("rate limiter unavailable", "err", err)
		} else if !allowed {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"success": false,
				"message": "Query limit reached (10 per hour). Please try again later.",
			})
			return
		}
	}

	sh, err := a.svc.Track(r.Context(), orderNo, trackingNo)
	if err != nil {
		a.writeTrackError(w, orderNo, trackingNo, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    sh,
	})
}

func (a *API) writeTrackError(w http.ResponseWriter, orderNo, trackingNo string, err error) {
	switch {
	case errors.Is(err, shipments.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"message": "No record found. Please verify the tracking number.",
		})
	case errors.Is(err, shipments.ErrTimeout):
		slog.Warn("tracking lookup timed out", "orderNo", orderNo, "trackingNo", trackingNo)
		writeJSON(w, http.StatusGatewayTimeout, map[string]any{
			"success": false,
			"error":   "Query timeout",
			"message": "Query timed out. Please verify the tracking number and retry.",
		})
	default:
		slog.Error("tracking lookup failed", "orderNo", orderNo, "trackingNo", trackingNo, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Store query failed",
			"message": err.Error(),
		})
	}
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		SortField:     q.Get("sortField"),
		SortDirection: q.Get("sortDirection"),
	}
	if v := q.Get("maxRecords"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxRecords = n
		}
	}

	summaries, err := a.svc.List(r.Context(), opts)
	if err != nil {
		slog.Error("list shipments failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to fetch shipments list",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(summaries),
		"data":    summaries,
	})
}

type updateCheckboxRequest struct {
	RecordID        string           `json:"recordId"`
	CheckboxUpdates map[string]*bool `json:"checkboxUpdates"`
}

func (a *API) updateCheckbox(w http.ResponseWriter, r *http.Request) {
	var req updateCheckboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Invalid body",
			"message": "request body must be a JSON object",
		})
		return
	}

	if strings.TrimSpace(req.RecordID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Missing recordId",
			"message": "recordId is required",
		})
		return
	}
	if req.CheckboxUpdates == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Missing checkboxUpdates",
			"message": "checkboxUpdates object is required",
		})
		return
	}

	updates := make(map[string]bool, len(req.CheckboxUpdates))
	for k, v := range req.CheckboxUpdates {
		if v != nil {
			updates[k] = *v
		}
	}

	res, err := a.svc.UpdateCheckboxes(r.Context(), req.RecordID, updates)
	if err != nil {
		slog.Error("checkbox update failed", "recordId", req.RecordID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Update failed",
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    res,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
