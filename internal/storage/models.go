package storage

import "time"

// Session is one conversation with the answering service. Anonymous
// callers are never persisted; a session row exists only when the
// caller supplied a user id.
type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Mode          string    `json:"mode"`
	StartedAt     time.Time `json:"started_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// MessageRecord is a single stored turn within a session.
type MessageRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
