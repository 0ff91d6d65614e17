package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	dbBreakerName    = "postgresql"
	dbBreakerService = "schema-lookup"
)

// DatabaseWrapper wraps read-only sqlx operations with a circuit breaker
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	config := GetDatabaseConfig().ToConfig()
	config.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled)
	}
	cb := NewCircuitBreaker(dbBreakerName, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(dbBreakerName, dbBreakerService, cb)

	return &DatabaseWrapper{db: db, cb: cb, logger: logger}
}

// PingContext wraps database ping with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	return dw.run(ctx, func() error { return dw.db.PingContext(ctx) })
}

// SelectContext scans all rows of query into dest
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.run(ctx, func() error { return dw.db.SelectContext(ctx, dest, query, args...) })
}

// GetContext scans a single row of query into dest
func (dw *DatabaseWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.run(ctx, func() error { return dw.db.GetContext(ctx, dest, query, args...) })
}

func (dw *DatabaseWrapper) run(ctx context.Context, fn func() error) error {
	err := dw.cb.Execute(ctx, fn)
	GlobalMetricsCollector.RecordRequest(dbBreakerName, dbBreakerService, dw.cb.State(), dw.cb.isSuccessful(err))
	return err
}

// Close closes the underlying pool
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}

// DB returns the wrapped pool
func (dw *DatabaseWrapper) DB() *sqlx.DB {
	return dw.db
}

// IsCircuitBreakerOpen reports whether calls are currently short-circuited
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.State() == StateOpen
}
