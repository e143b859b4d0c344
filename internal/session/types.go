package session

import (
	"errors"
	"time"
)

// Message roles as stored in the transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound indicates the session does not exist.
var ErrNotFound = errors.New("session not found")

// Message is one transcript entry. Seq is dense and starts at 0.
type Message struct {
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the metadata view of a session used in listings.
type Summary struct {
	SessionID       string    `json:"session_id"`
	KBID            string    `json:"kb_id"`
	TotalMessages   int       `json:"total_messages"`
	LastUpdated     time.Time `json:"last_updated"`
	Unread          bool      `json:"unread"`
	PotentialClient bool      `json:"potential_client"`
	CreatedAt       time.Time `json:"created_at"`
}
