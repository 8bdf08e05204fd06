package health

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
)

// SQLiteChecker pings the metadata database.
type SQLiteChecker struct {
	db *sql.DB
}

func NewSQLiteChecker(db *sql.DB) *SQLiteChecker { return &SQLiteChecker{db: db} }

func (c *SQLiteChecker) Name() string { return "sqlite" }

func (c *SQLiteChecker) Check(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Pinger is satisfied by the telemetry store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClickHouseChecker pings the telemetry database.
type ClickHouseChecker struct {
	store Pinger
}

func NewClickHouseChecker(store Pinger) *ClickHouseChecker {
	return &ClickHouseChecker{store: store}
}

func (c *ClickHouseChecker) Name() string { return "clickhouse" }

func (c *ClickHouseChecker) Check(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// RedisChecker pings the alert state store and task queue backend.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
