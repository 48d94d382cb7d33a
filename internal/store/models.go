package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a room lookup misses
var ErrNotFound = errors.New("not found")

// Message types stored in messages.message_type
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageFile  = "file"
)

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	FileURL     string    `json:"file_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
