package ingest

import (
	"context"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// Service fans ingested telemetry into per-kind buffers backed by the
// telemetry store.
type Service struct {
	metrics *Buffer[models.MetricSample]
	logs    *Buffer[models.LogEntry]
}

// NewService creates the ingest service with one buffer per telemetry kind.
func NewService(store storage.TelemetryStorage, config BufferConfig) *Service {
	return &Service{
		metrics: NewBuffer("metrics", config, store.WriteMetrics),
		logs:    NewBuffer("logs", config, store.WriteLogs),
	}
}

// IngestMetrics buffers metric samples.
func (s *Service) IngestMetrics(_ context.Context, samples []models.MetricSample) error {
	return s.metrics.Add(samples...)
}

// IngestLogs buffers log entries.
func (s *Service) IngestLogs(_ context.Context, entries []models.LogEntry) error {
	return s.logs.Add(entries...)
}

// Stop flushes and stops both buffers.
func (s *Service) Stop() error {
	merr := s.metrics.Stop()
	lerr := s.logs.Stop()
	if merr != nil {
		return merr
	}
	return lerr
}
