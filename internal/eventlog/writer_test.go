package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sampleTurn() TurnRecord {
	return TurnRecord{
		SessionID:  "sess-1",
		CustomerID: "CUST001",
		Query:      "Is knee surgery covered?",
		Intent:     "coverage_check",
		Confidence: 0.92,
		Route:      "synthesize",
		Response:   "Yes, up to the sub-limit.",
		Retries:    0,
		Escalated:  false,
		DurationMS: 120,
	}
}

func TestWriterPersistsTurn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO turn_logs").
		WithArgs(
			sqlmock.AnyArg(), "sess-1", "CUST001", "Is knee surgery covered?",
			"coverage_check", 0.92, "synthesize", "Yes, up to the sub-limit.",
			0, false, int64(120), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	w := NewWriterWithDB(db, zaptest.NewLogger(t))
	w.Record(sampleTurn())
	require.NoError(t, w.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriterFillsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO turn_logs").
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	w := NewWriterWithDB(db, zaptest.NewLogger(t))
	rec := sampleTurn()
	rec.ID = uuid.Nil
	rec.CreatedAt = time.Time{}
	w.Record(rec)
	require.NoError(t, w.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriterNullsEmptyIdentifiers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO turn_logs").
		WithArgs(
			sqlmock.AnyArg(), nil, nil, sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	w := NewWriterWithDB(db, zaptest.NewLogger(t))
	rec := sampleTurn()
	rec.SessionID = ""
	rec.CustomerID = ""
	w.Record(rec)
	require.NoError(t, w.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriterSurvivesInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO turn_logs").
		WillReturnError(assert.AnError)
	mock.ExpectClose()

	w := NewWriterWithDB(db, zaptest.NewLogger(t))
	w.Record(sampleTurn())
	require.NoError(t, w.Close())
}

func TestRecentTurns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sess := "sess-1"
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "customer_id", "query", "intent", "confidence",
		"route", "response", "retries", "escalated", "duration_ms", "created_at",
	}).AddRow(
		uuid.New(), &sess, nil, "hello", "greeting", 0.99,
		"rag_fallback", "Hi!", 0, false, int64(40), time.Now(),
	)
	mock.ExpectQuery("SELECT (.+) FROM turn_logs").
		WithArgs("sess-1", 20).
		WillReturnRows(rows)
	mock.ExpectClose()

	w := NewWriterWithDB(db, zaptest.NewLogger(t))
	got, err := w.RecentTurns(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "greeting", got[0].Intent)
	assert.Equal(t, "sess-1", *got[0].SessionID)

	require.NoError(t, w.Close())
}
