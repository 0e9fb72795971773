package circuitbreaker

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// DatabaseWrapper wraps database operations with circuit breaker
type DatabaseWrapper struct {
	db     *sql.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sql.DB, logger *zap.Logger) *DatabaseWrapper {
	config := GetDatabaseConfig().ToConfig()
	cb := NewCircuitBreaker("postgresql", config, logger)

	GlobalMetricsCollector.RegisterCircuitBreaker("postgresql", "eventlog", cb)

	return &DatabaseWrapper{
		db:     db,
		cb:     cb,
		logger: logger,
	}
}

// PingContext wraps database ping with circuit breaker
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	var err error

	cbErr := dw.cb.Execute(ctx, func() error {
		err = dw.db.PingContext(ctx)
		return err
	})

	state := dw.cb.State()
	success := cbErr == nil && err == nil
	GlobalMetricsCollector.RecordRequest("postgresql", "eventlog", state, success)

	if cbErr != nil {
		return cbErr
	}
	return err
}

// ExecContext wraps database exec with circuit breaker
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error

	cbErr := dw.cb.Execute(ctx, func() error {
		result, err = dw.db.ExecContext(ctx, query, args...)
		return err
	})

	state := dw.cb.State()
	success := cbErr == nil && err == nil
	GlobalMetricsCollector.RecordRequest("postgresql", "eventlog", state, success)

	if cbErr != nil {
		return nil, cbErr
	}
	return result, err
}

// QueryContext wraps database query with circuit breaker
func (dw *DatabaseWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error

	cbErr := dw.cb.Execute(ctx, func() error {
		rows, err = dw.db.QueryContext(ctx, query, args...)
		return err
	})

	state := dw.cb.State()
	success := cbErr == nil && err == nil
	GlobalMetricsCollector.RecordRequest("postgresql", "eventlog", state, success)

	if cbErr != nil {
		return nil, cbErr
	}
	return rows, err
}

// Close closes the underlying connection pool
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}
