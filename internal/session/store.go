package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brohammad/Insurance-Graph-Analysis/internal/metrics"
)

// Store is an in-memory, bounded, TTL-evicting session store.
// A single coarse lock guards the map; every public method holds it
// for its full body. Concurrent turns on the same session serialize
// in lock-acquisition order.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	maxHistory int
	ttl        time.Duration
	persistDir string
	logger     *zap.Logger
}

// NewStore creates a session store. The persist directory is created
// eagerly so snapshot writes during cleanup cannot fail on a missing dir.
func NewStore(maxHistory int, ttl time.Duration, persistDir string, logger *zap.Logger) (*Store, error) {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("create persist dir: %w", err)
	}

	logger.Info("Session store initialized",
		zap.Int("max_history", maxHistory),
		zap.Duration("ttl", ttl),
		zap.String("persist_dir", persistDir),
	)

	return &Store{
		sessions:   make(map[string]*Session),
		maxHistory: maxHistory,
		ttl:        ttl,
		persistDir: persistDir,
		logger:     logger,
	}, nil
}

// CreateSession creates a session. Re-creating an existing id replaces it;
// callers use this for an intentional conversation reset.
func (s *Store) CreateSession(sessionID, customerID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(sessionID, customerID)
}

func (s *Store) createLocked(sessionID, customerID string) *Session {
	now := time.Now()
	sess := &Session{
		ID:             sessionID,
		CustomerID:     customerID,
		CreatedAt:      now,
		LastAccessedAt: now,
		Messages:       make([]Message, 0, s.maxHistory),
	}
	s.sessions[sessionID] = sess

	s.logger.Info("Created session",
		zap.String("session_id", sessionID),
		zap.String("customer_id", customerID),
	)
	metrics.SessionsCreated.Inc()
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	return sess
}

// AddMessage appends a message, auto-creating the session if absent,
// and trims the oldest entries beyond the history bound.
func (s *Store) AddMessage(sessionID, role, content string, metadata map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Warn("Session not found, creating new session",
			zap.String("session_id", sessionID))
		sess = s.createLocked(sessionID, "")
	}

	sess.Messages = append(sess.Messages, Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
	sess.LastAccessedAt = time.Now()

	if len(sess.Messages) > s.maxHistory {
		sess.Messages = sess.Messages[len(sess.Messages)-s.maxHistory:]
	}

	metrics.SessionMessages.Inc()
	s.logger.Debug("Added message",
		zap.String("session_id", sessionID),
		zap.String("role", role),
	)
}

// GetHistory returns the last n messages (all when lastN <= 0).
// Unknown sessions yield an empty slice, not an error. Reading
// counts as access for TTL purposes.
func (s *Store) GetHistory(sessionID string, lastN int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		s.logger.Warn("Session not found", zap.String("session_id", sessionID))
		return []Message{}
	}

	sess.LastAccessedAt = time.Now()

	msgs := sess.Messages
	if lastN > 0 && len(msgs) > lastN {
		msgs = msgs[len(msgs)-lastN:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// GetContextString formats the last n messages as "Role: content" lines
// for injection into generation prompts. Empty string when no history.
func (s *Store) GetContextString(sessionID string, lastN int) string {
	history := s.GetHistory(sessionID, lastN)
	if len(history) == 0 {
		return ""
	}

	parts := make([]string, 0, len(history))
	for _, msg := range history {
		parts = append(parts, capitalize(msg.Role)+": "+msg.Content)
	}
	return strings.Join(parts, "\n")
}

// GetSession returns a session's metadata without its messages
func (s *Store) GetSession(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	meta := &Session{
		ID:             sess.ID,
		CustomerID:     sess.CustomerID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
	}
	return meta, nil
}

// UpdateCustomerID attaches a customer id to an existing session
func (s *Store) UpdateCustomerID(sessionID, customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		sess.CustomerID = customerID
		s.logger.Info("Updated session customer id",
			zap.String("session_id", sessionID),
			zap.String("customer_id", customerID),
		)
	}
}

// ClearSession removes a session, reporting whether it existed
func (s *Store) ClearSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	s.logger.Info("Cleared session", zap.String("session_id", sessionID))
	return true
}

// CleanupExpired snapshots and removes every session idle past the TTL,
// returning the count removed. Callers schedule this; the store never
// sweeps on its own.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var expired []string
	for id, sess := range s.sessions {
		if now.Sub(sess.LastAccessedAt) > s.ttl {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		// Best-effort snapshot before eviction
		if err := s.persistLocked(id); err != nil {
			s.logger.Error("Failed to snapshot expiring session",
				zap.String("session_id", id),
				zap.Error(err),
			)
			metrics.SessionSnapshotErrors.Inc()
		}
		delete(s.sessions, id)
		metrics.SessionsEvicted.Inc()
	}

	if len(expired) > 0 {
		metrics.SessionsActive.Set(float64(len(s.sessions)))
		s.logger.Info("Cleaned up expired sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Persist snapshots one session to its file
func (s *Store) Persist(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(sessionID)
}

func (s *Store) persistLocked(sessionID string) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sessionID, err)
	}
	path := filepath.Join(s.persistDir, sessionID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", sessionID, err)
	}
	s.logger.Debug("Persisted session", zap.String("session_id", sessionID))
	return nil
}

// Load restores a session from its snapshot file, reporting success.
// The restored session's last access time is reset to now so it does
// not get immediately re-evicted.
func (s *Store) Load(sessionID string) bool {
	path := filepath.Join(s.persistDir, sessionID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Failed to read session snapshot",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
		return false
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Error("Failed to decode session snapshot",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return false
	}
	sess.LastAccessedAt = time.Now()

	s.mu.Lock()
	s.sessions[sessionID] = &sess
	metrics.SessionsActive.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	s.logger.Info("Loaded session from disk", zap.String("session_id", sessionID))
	return true
}

// ActiveSessions returns the ids of all in-memory sessions
func (s *Store) ActiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Stats reports the store's current contents
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, sess := range s.sessions {
		total += len(sess.Messages)
	}
	return Stats{
		ActiveSessions: len(s.sessions),
		TotalMessages:  total,
		MaxHistory:     s.maxHistory,
		TTL:            s.ttl,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
