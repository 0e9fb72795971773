package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/circuitbreaker"
	"github.com/Brohammad/Insurance-Graph-Analysis/internal/metrics"
)

// TurnRecord is one completed query turn persisted for audit
type TurnRecord struct {
	ID         uuid.UUID
	SessionID  string
	CustomerID string
	Query      string
	Intent     string
	Confidence float64
	Route      string
	Response   string
	Retries    int
	Escalated  bool
	DurationMS int64
	CreatedAt  time.Time
}

const insertTurnSQL = `
        INSERT INTO turn_logs (
            id, session_id, customer_id, query, intent, confidence,
            route, response, retries, escalated, duration_ms, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    `

const createTableSQL = `
        CREATE TABLE IF NOT EXISTS turn_logs (
            id UUID PRIMARY KEY,
            session_id TEXT,
            customer_id TEXT,
            query TEXT NOT NULL,
            intent TEXT,
            confidence DOUBLE PRECISION,
            route TEXT,
            response TEXT,
            retries INT,
            escalated BOOLEAN,
            duration_ms BIGINT,
            created_at TIMESTAMPTZ NOT NULL
        )
    `

// Writer persists turn records asynchronously. Record never blocks the
// request path: when the queue is full the record is dropped and
// counted instead.
type Writer struct {
	db      *circuitbreaker.DatabaseWrapper
	reader  *sqlx.DB
	logger  *zap.Logger
	queue   chan TurnRecord
	stopCh  chan struct{}
	wg      sync.WaitGroup
	workers int
}

// NewWriter opens a connection pool for the DSN and ensures the turn
// log table exists.
func NewWriter(dsn string, logger *zap.Logger) (*Writer, error) {
	rawDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event log database: %w", err)
	}
	rawDB.SetMaxOpenConns(10)
	rawDB.SetMaxIdleConns(2)
	rawDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("ping event log database: %w", err)
	}
	if _, err := rawDB.ExecContext(ctx, createTableSQL); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("ensure turn_logs table: %w", err)
	}

	return newWriter(rawDB, logger), nil
}

// NewWriterWithDB builds a writer on an existing connection pool,
// skipping connectivity checks and schema setup.
func NewWriterWithDB(db *sql.DB, logger *zap.Logger) *Writer {
	return newWriter(db, logger)
}

func newWriter(rawDB *sql.DB, logger *zap.Logger) *Writer {
	w := &Writer{
		db:      circuitbreaker.NewDatabaseWrapper(rawDB, logger),
		reader:  sqlx.NewDb(rawDB, "postgres"),
		logger:  logger,
		queue:   make(chan TurnRecord, 1000),
		stopCh:  make(chan struct{}),
		workers: 4,
	}
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
	return w
}

// Record enqueues a turn for persistence, dropping it when the queue is
// full.
func (w *Writer) Record(rec TurnRecord) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	select {
	case w.queue <- rec:
	default:
		metrics.EventLogDropped.Inc()
		w.logger.Warn("Event log queue full, dropping turn record",
			zap.String("session_id", rec.SessionID),
		)
	}
}

func (w *Writer) worker(id int) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			// Drain what is already queued before exiting
			for {
				select {
				case rec := <-w.queue:
					w.save(rec)
				default:
					return
				}
			}
		case rec := <-w.queue:
			w.save(rec)
		}
	}
}

func (w *Writer) save(rec TurnRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := w.db.ExecContext(ctx, insertTurnSQL,
		rec.ID, nullIfEmpty(rec.SessionID), nullIfEmpty(rec.CustomerID),
		rec.Query, rec.Intent, rec.Confidence, rec.Route, rec.Response,
		rec.Retries, rec.Escalated, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		metrics.EventLogWrites.WithLabelValues("error").Inc()
		w.logger.Warn("Failed to persist turn record", zap.Error(err))
		return
	}
	metrics.EventLogWrites.WithLabelValues("ok").Inc()
}

// TurnRow is the read-side shape of a persisted turn
type TurnRow struct {
	ID         uuid.UUID `db:"id" json:"id"`
	SessionID  *string   `db:"session_id" json:"session_id,omitempty"`
	CustomerID *string   `db:"customer_id" json:"customer_id,omitempty"`
	Query      string    `db:"query" json:"query"`
	Intent     string    `db:"intent" json:"intent"`
	Confidence float64   `db:"confidence" json:"confidence"`
	Route      string    `db:"route" json:"route"`
	Response   string    `db:"response" json:"response"`
	Retries    int       `db:"retries" json:"retries"`
	Escalated  bool      `db:"escalated" json:"escalated"`
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RecentTurns returns the most recent persisted turns for a session,
// newest first.
func (w *Writer) RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []TurnRow
	err := w.reader.SelectContext(ctx, &rows, `
        SELECT id, session_id, customer_id, query, intent, confidence,
               route, response, retries, escalated, duration_ms, created_at
        FROM turn_logs
        WHERE session_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	return rows, nil
}

// Close stops the workers after draining the queue
func (w *Writer) Close() error {
	close(w.stopCh)
	w.wg.Wait()
	return w.db.Close()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
