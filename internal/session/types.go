package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSession is returned when session data is invalid
	ErrInvalidSession = errors.New("invalid session")
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session represents one conversation with bounded history
type Session struct {
	ID             string    `json:"session_id"`
	CustomerID     string    `json:"customer_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed"`
	Messages       []Message `json:"messages"`
}

// Message represents a single turn in the session history
type Message struct {
	ID        string                 `json:"id"`
	Role      string                 `json:"role"` // "user", "assistant", "system"
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Stats summarizes the store's current contents
type Stats struct {
	ActiveSessions int           `json:"active_sessions"`
	TotalMessages  int           `json:"total_messages"`
	MaxHistory     int           `json:"max_history"`
	TTL            time.Duration `json:"ttl"`
}
