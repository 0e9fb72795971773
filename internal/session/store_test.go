package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, maxHistory int, ttl time.Duration) *Store {
	t.Helper()
	store, err := NewStore(maxHistory, ttl, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestCreateSessionReplacesExisting(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)

	store.CreateSession("s1", "CUST0001")
	store.AddMessage("s1", RoleUser, "hello", nil)
	require.Len(t, store.GetHistory("s1", 0), 1)

	// Re-creating the same id resets the conversation
	store.CreateSession("s1", "CUST0002")
	assert.Empty(t, store.GetHistory("s1", 0))

	sess, err := store.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "CUST0002", sess.CustomerID)
}

func TestAddMessageAutoCreates(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)

	store.AddMessage("never-created", RoleUser, "hi", nil)

	history := store.GetHistory("never-created", 0)
	require.Len(t, history, 1)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "hi", history[0].Content)
	assert.NotEmpty(t, history[0].ID)
}

func TestHistoryBounded(t *testing.T) {
	const maxHistory = 5
	store := newTestStore(t, maxHistory, time.Hour)
	store.CreateSession("s1", "")

	for i := 0; i < maxHistory+3; i++ {
		store.AddMessage("s1", RoleUser, fmt.Sprintf("msg-%d", i), nil)
	}

	history := store.GetHistory("s1", 0)
	require.Len(t, history, maxHistory)
	// The most recent messages survive, in original order
	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("msg-%d", i+3), msg.Content)
	}
}

func TestGetHistoryUnknownSession(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)
	assert.Empty(t, store.GetHistory("nope", 0))
	assert.Equal(t, "", store.GetContextString("nope", 2))
}

func TestGetContextStringReflectsRecentTurns(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)
	store.CreateSession("s1", "CUST0001")

	turns := []struct {
		query, answer string
	}{
		{"Is diabetes covered?", "Yes, after a waiting period."},
		{"What about the co-pay?", "The co-pay is 10 percent."},
		{"And knee surgery?", "Knee surgery is covered at network hospitals."},
	}

	for _, turn := range turns {
		store.AddMessage("s1", RoleUser, turn.query, nil)
		store.AddMessage("s1", RoleAssistant, turn.answer, nil)

		want := "User: " + turn.query + "\nAssistant: " + turn.answer
		assert.Equal(t, want, store.GetContextString("s1", 2))
	}
}

func TestClearSession(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)
	store.CreateSession("s1", "")

	assert.True(t, store.ClearSession("s1"))
	assert.False(t, store.ClearSession("s1"))
	assert.False(t, store.ClearSession("never-existed"))
}

func TestCleanupExpired(t *testing.T) {
	store := newTestStore(t, 10, 30*time.Minute)

	store.CreateSession("stale", "")
	store.AddMessage("stale", RoleUser, "old message", nil)
	store.CreateSession("fresh", "")
	store.AddMessage("fresh", RoleUser, "recent message", nil)

	// Backdate the stale session beyond the TTL window
	store.mu.Lock()
	store.sessions["stale"].LastAccessedAt = time.Now().Add(-45 * time.Minute)
	store.mu.Unlock()

	removed := store.CleanupExpired()
	assert.Equal(t, 1, removed)
	assert.Empty(t, store.GetHistory("stale", 0))
	assert.Len(t, store.GetHistory("fresh", 0), 1)

	// Second sweep finds nothing
	assert.Equal(t, 0, store.CleanupExpired())
}

func TestPersistLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	store, err := NewStore(10, time.Hour, dir, logger)
	require.NoError(t, err)

	store.CreateSession("s1", "CUST0001")
	store.AddMessage("s1", RoleUser, "Is diabetes covered?", map[string]interface{}{"intent": "coverage_check"})
	store.AddMessage("s1", RoleAssistant, "Yes, it is covered.", nil)
	require.NoError(t, store.Persist("s1"))

	// A fresh store instance restores the identical ordered history
	restored, err := NewStore(10, time.Hour, dir, logger)
	require.NoError(t, err)
	require.True(t, restored.Load("s1"))

	history := restored.GetHistory("s1", 0)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "Is diabetes covered?", history[0].Content)
	assert.Equal(t, "coverage_check", history[0].Metadata["intent"])
	assert.Equal(t, RoleAssistant, history[1].Role)

	sess, err := restored.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "CUST0001", sess.CustomerID)
}

func TestPersistUnknownSession(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)
	assert.ErrorIs(t, store.Persist("nope"), ErrSessionNotFound)
	assert.False(t, store.Load("nope"))
}

func TestCleanupSnapshotsBeforeEviction(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(10, time.Minute, dir, zap.NewNop())
	require.NoError(t, err)

	store.CreateSession("stale", "CUST0009")
	store.AddMessage("stale", RoleUser, "hello", nil)
	store.mu.Lock()
	store.sessions["stale"].LastAccessedAt = time.Now().Add(-2 * time.Minute)
	store.mu.Unlock()

	require.Equal(t, 1, store.CleanupExpired())

	// The evicted session can be restored from its snapshot
	require.True(t, store.Load("stale"))
	history := store.GetHistory("stale", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
}

func TestStats(t *testing.T) {
	store := newTestStore(t, 7, 42*time.Minute)
	store.CreateSession("a", "")
	store.CreateSession("b", "")
	store.AddMessage("a", RoleUser, "one", nil)
	store.AddMessage("a", RoleAssistant, "two", nil)
	store.AddMessage("b", RoleUser, "three", nil)

	stats := store.Stats()
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 7, stats.MaxHistory)
	assert.Equal(t, 42*time.Minute, stats.TTL)
}

func TestConcurrentAppends(t *testing.T) {
	store := newTestStore(t, 1000, time.Hour)
	store.CreateSession("shared", "")

	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				store.AddMessage("shared", RoleUser, fmt.Sprintf("g%d-%d", g, i), nil)
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, store.GetHistory("shared", 0), goroutines*perGoroutine)
}
