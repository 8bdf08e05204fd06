package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

// ErrInvalidQuery is returned for malformed telemetry queries.
var ErrInvalidQuery = fmt.Errorf("invalid telemetry query")

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for telemetry retention.
	RetentionDays int
}

// ClickHouseStorage implements TelemetryStorage for ClickHouse.
type ClickHouseStorage struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseStorage creates a new ClickHouse telemetry storage.
func NewClickHouseStorage(config *ClickHouseConfig) *ClickHouseStorage {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 30
	}

	return &ClickHouseStorage{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseStorage) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *ClickHouseStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the telemetry tables if they don't exist.
func (s *ClickHouseStorage) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createMetrics := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS metrics (
			project_id String,
			service_id String,
			name LowCardinality(String),
			value Float64,
			timestamp DateTime64(3, 'UTC'),
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (project_id, name, service_id, timestamp)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createMetrics); err != nil {
		return fmt.Errorf("create metrics table: %w", err)
	}

	createLogs := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS logs (
			id UUID DEFAULT generateUUIDv4(),
			project_id String,
			service_id String,
			level LowCardinality(String),
			message String,
			trace_id String DEFAULT '',
			timestamp DateTime64(3, 'UTC'),
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (project_id, service_id, level, timestamp, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createLogs); err != nil {
		return fmt.Errorf("create logs table: %w", err)
	}

	// Token index for log message search; index creation may not be
	// supported on every ClickHouse version, so failures only warn.
	idx := "ALTER TABLE logs ADD INDEX IF NOT EXISTS idx_message message TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4"
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		fmt.Printf("warning: failed to create index: %v\n", err)
	}

	return nil
}

// Ping checks the connection health.
func (s *ClickHouseStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WriteMetrics inserts metric samples using a batch insert.
func (s *ClickHouseStorage) WriteMetrics(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metrics (project_id, service_id, name, value, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx,
			sample.ProjectID, sample.ServiceID, sample.Name, sample.Value, sample.Timestamp,
		); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// WriteLogs inserts log entries using a batch insert.
func (s *ClickHouseStorage) WriteLogs(ctx context.Context, entries []models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO logs (id, project_id, service_id, level, message, trace_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		id := entry.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx,
			id, entry.ProjectID, entry.ServiceID, entry.Level, entry.Message,
			entry.TraceID, entry.Timestamp,
		); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// aggregationExpr maps an aggregation kind to its ClickHouse expression.
func aggregationExpr(agg models.AggregationKind) (string, error) {
	switch agg {
	case models.AggAvg:
		return "avg(value)", nil
	case models.AggP95:
		return "quantile(0.95)(value)", nil
	case models.AggP99:
		return "quantile(0.99)(value)", nil
	case models.AggMax:
		return "max(value)", nil
	case models.AggMin:
		return "min(value)", nil
	}
	return "", fmt.Errorf("%w: unknown aggregation %q", ErrInvalidQuery, agg)
}

// Query returns the metric series aggregated into one-minute buckets over
// [from, to], time-ordered.
func (s *ClickHouseStorage) Query(ctx context.Context, projectID, metricName string,
	agg models.AggregationKind, serviceID string, from, to time.Time) ([]models.MetricPoint, error) {

	if metricName == "" {
		return nil, fmt.Errorf("%w: metric name is required", ErrInvalidQuery)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: time range end must be after start", ErrInvalidQuery)
	}

	expr, err := aggregationExpr(agg)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT toStartOfMinute(timestamp) AS bucket, %s AS value
		FROM metrics
		WHERE project_id = ? AND name = ? AND service_id = ?
			AND timestamp >= ? AND timestamp <= ?
		GROUP BY bucket
		ORDER BY bucket
	`, expr)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, projectID, metricName, serviceID, from, to)
	metrics.StorageQueryDuration.WithLabelValues("query_metrics", "clickhouse").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues("query_metrics", "clickhouse").Inc()
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var points []models.MetricPoint
	for rows.Next() {
		var p models.MetricPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("scan metric point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric points: %w", err)
	}
	return points, nil
}

// SearchLogs returns log entries matching the filter, newest first.
func (s *ClickHouseStorage) SearchLogs(ctx context.Context, projectID string, filter LogFilter) ([]models.LogEntry, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}

	conditions := []string{"project_id = ?"}
	args := []any{projectID}

	if filter.ServiceID != "" {
		conditions = append(conditions, "service_id = ?")
		args = append(args, filter.ServiceID)
	}
	if filter.Level != "" {
		conditions = append(conditions, "level = ?")
		args = append(args, filter.Level)
	}
	if filter.Contains != "" {
		conditions = append(conditions, "positionCaseInsensitive(message, ?) > 0")
		args = append(args, filter.Contains)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.To)
	}

	query := fmt.Sprintf(`
		SELECT id, project_id, service_id, level, message, trace_id, timestamp
		FROM logs
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT %d
	`, strings.Join(conditions, " AND "), filter.Limit)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	metrics.StorageQueryDuration.WithLabelValues("search_logs", "clickhouse").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StorageErrors.WithLabelValues("search_logs", "clickhouse").Inc()
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ServiceID, &e.Level, &e.Message, &e.TraceID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}
