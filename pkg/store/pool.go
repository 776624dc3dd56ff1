// Package store is the persistence used by the chat handlers: a
// database/sql pool with fail-fast configuration and the joined_chats table.
package store

import (
	"context"
	"database/sql"
	"time"

	// database/sql drivers selectable through PoolConfig.DriverName
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fluxorio/eventa/pkg/observability/prometheus"
)

// Driver names accepted by NewPool
const (
	DriverSQLite   = "sqlite3"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// PoolConfig configures the connection pool
type PoolConfig struct {
	DriverName string
	DSN        string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections kept around
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may sit idle
	ConnMaxIdleTime time.Duration

	// Metrics receives pool gauges and query timings. Optional.
	Metrics *prometheus.Metrics
}

// DefaultPoolConfig returns the defaults for dsn on driverName
func DefaultPoolConfig(driverName, dsn string) PoolConfig {
	return PoolConfig{
		DriverName:      driverName,
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Error is a store failure with a stable code
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func invalidConfig(msg string) error {
	return &Error{Code: "INVALID_CONFIG", Message: msg}
}

// Pool wraps *sql.DB and times every statement
type Pool struct {
	db     *sql.DB
	config PoolConfig
}

// NewPool validates config, opens the pool and pings the database
func NewPool(ctx context.Context, config PoolConfig) (*Pool, error) {
	switch {
	case config.DSN == "":
		return nil, invalidConfig("DSN cannot be empty")
	case config.DriverName == "":
		return nil, invalidConfig("DriverName cannot be empty")
	case config.MaxOpenConns <= 0:
		return nil, invalidConfig("MaxOpenConns must be positive")
	case config.MaxIdleConns < 0:
		return nil, invalidConfig("MaxIdleConns cannot be negative")
	case config.MaxIdleConns > config.MaxOpenConns:
		return nil, invalidConfig("MaxIdleConns cannot exceed MaxOpenConns")
	case config.ConnMaxLifetime < 0:
		return nil, invalidConfig("ConnMaxLifetime cannot be negative")
	case config.ConnMaxIdleTime < 0:
		return nil, invalidConfig("ConnMaxIdleTime cannot be negative")
	}

	db, err := sql.Open(config.DriverName, config.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	p := &Pool{db: db, config: config}
	p.ReportStats()
	return p, nil
}

// DB returns the underlying *sql.DB
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Driver returns the driver name the pool was opened with
func (p *Pool) Driver() string {
	return p.config.DriverName
}

func (p *Pool) Close() error {
	return p.db.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Stats returns pool statistics
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// ReportStats publishes the current pool gauges
func (p *Pool) ReportStats() {
	s := p.db.Stats()
	p.config.Metrics.UpdateDatabasePool(s.OpenConnections, s.InUse)
}

func (p *Pool) observe(operation string, start time.Time) {
	p.config.Metrics.RecordDatabaseQuery(operation, time.Since(start))
}

// Exec runs a statement; operation labels the timing metric
func (p *Pool) Exec(ctx context.Context, operation, query string, args ...any) (sql.Result, error) {
	defer p.observe(operation, time.Now())
	return p.db.ExecContext(ctx, query, args...)
}

// Query runs a query returning rows
func (p *Pool) Query(ctx context.Context, operation, query string, args ...any) (*sql.Rows, error) {
	defer p.observe(operation, time.Now())
	return p.db.QueryContext(ctx, query, args...)
}

// QueryRow runs a query returning at most one row
func (p *Pool) QueryRow(ctx context.Context, operation, query string, args ...any) *sql.Row {
	defer p.observe(operation, time.Now())
	return p.db.QueryRowContext(ctx, query, args...)
}
