// Package telemetry serves ingest and query endpoints for metrics and logs.
// Ingest endpoints authenticate with a project API key; query endpoints sit
// behind user JWT auth.
package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/pulsewatch/internal/api/middleware"
	"github.com/good-yellow-bee/pulsewatch/internal/ingest"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeUnauthorized  = "UNAUTHORIZED"
	errCodeInternalError = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonAccepted(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

const (
	maxBatchSize    = 1000
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

type Handler struct {
	ingest    *ingest.Service
	telemetry storage.TelemetryStorage
}

func NewHandler(ingestSvc *ingest.Service, telemetry storage.TelemetryStorage) *Handler {
	return &Handler{ingest: ingestSvc, telemetry: telemetry}
}

type metricSample struct {
	ServiceID string    `json:"service_id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type metricBatch struct {
	Metrics []metricSample `json:"metrics"`
}

// IngestMetrics accepts a metric batch for the API-key-authenticated project.
func (h *Handler) IngestMetrics(w http.ResponseWriter, r *http.Request) {
	project := middleware.GetProject(r.Context())
	if project == nil {
		jsonError(w, http.StatusUnauthorized, errCodeUnauthorized, "project authentication required")
		return
	}

	var batch metricBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if len(batch.Metrics) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "metrics batch is empty")
		return
	}
	if len(batch.Metrics) > maxBatchSize {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "metrics batch exceeds 1000 samples")
		return
	}

	now := time.Now()
	samples := make([]models.MetricSample, 0, len(batch.Metrics))
	for _, m := range batch.Metrics {
		if m.Name == "" || m.ServiceID == "" {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "each sample needs service_id and name")
			return
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = now
		}
		samples = append(samples, models.MetricSample{
			ProjectID: project.ID,
			ServiceID: m.ServiceID,
			Name:      m.Name,
			Value:     m.Value,
			Timestamp: ts,
		})
	}

	if err := h.ingest.IngestMetrics(r.Context(), samples); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "buffering metrics failed")
		return
	}
	jsonAccepted(w, map[string]int{"accepted": len(samples)})
}

type logRecord struct {
	ServiceID string    `json:"service_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
}

type logBatch struct {
	Logs []logRecord `json:"logs"`
}

// IngestLogs accepts a log batch for the API-key-authenticated project.
func (h *Handler) IngestLogs(w http.ResponseWriter, r *http.Request) {
	project := middleware.GetProject(r.Context())
	if project == nil {
		jsonError(w, http.StatusUnauthorized, errCodeUnauthorized, "project authentication required")
		return
	}

	var batch logBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if len(batch.Logs) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "logs batch is empty")
		return
	}
	if len(batch.Logs) > maxBatchSize {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "logs batch exceeds 1000 entries")
		return
	}

	now := time.Now()
	entries := make([]models.LogEntry, 0, len(batch.Logs))
	for _, l := range batch.Logs {
		if l.ServiceID == "" || l.Message == "" {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "each entry needs service_id and message")
			return
		}
		level := models.LogLevel(l.Level)
		if level == "" {
			level = models.LogLevelInfo
		}
		ts := l.Timestamp
		if ts.IsZero() {
			ts = now
		}
		entries = append(entries, models.LogEntry{
			ProjectID: project.ID,
			ServiceID: l.ServiceID,
			Level:     level,
			Message:   l.Message,
			TraceID:   l.TraceID,
			Timestamp: ts,
		})
	}

	if err := h.ingest.IngestLogs(r.Context(), entries); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "buffering logs failed")
		return
	}
	jsonAccepted(w, map[string]int{"accepted": len(entries)})
}

type queryResult struct {
	Metric      string               `json:"metric"`
	Aggregation string               `json:"aggregation"`
	Points      []models.MetricPoint `json:"points"`
}

// QueryMetrics returns an aggregated time series for one metric.
func (h *Handler) QueryMetrics(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	q := r.URL.Query()

	name := q.Get("metric")
	if name == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "metric parameter is required")
		return
	}
	agg := models.AggregationKind(q.Get("aggregation"))
	if agg == "" {
		agg = models.AggAvg
	}
	if !models.ValidAggregation(agg) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid aggregation")
		return
	}

	from, to, err := parseTimeRange(q.Get("from"), q.Get("to"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	points, err := h.telemetry.Query(r.Context(), projectID, name, agg, q.Get("service_id"), from, to)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "metric query failed")
		return
	}
	jsonOK(w, queryResult{Metric: name, Aggregation: string(agg), Points: points})
}

// SearchLogs returns log entries matching the filter, newest first.
func (h *Handler) SearchLogs(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	q := r.URL.Query()

	from, to, err := parseTimeRange(q.Get("from"), q.Get("to"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	limit := defaultLogLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid limit")
			return
		}
		if limit > maxLogLimit {
			limit = maxLogLimit
		}
	}

	filter := storage.LogFilter{
		ServiceID: q.Get("service_id"),
		Level:     models.LogLevel(q.Get("level")),
		Contains:  q.Get("contains"),
		From:      from,
		To:        to,
		Limit:     limit,
	}

	entries, err := h.telemetry.SearchLogs(r.Context(), projectID, filter)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "log search failed")
		return
	}
	jsonOK(w, entries)
}

func parseTimeRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.Add(-time.Hour)

	var err error
	if fromRaw != "" {
		from, err = time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from must be RFC3339")
		}
	}
	if toRaw != "" {
		to, err = time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to must be RFC3339")
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be before to")
	}
	return from, to, nil
}
