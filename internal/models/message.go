package models

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// SenderUser is the GroupMessage sender id of the human participant.
	SenderUser = "user"
)

// Message is one turn of a 1:1 chat.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// GroupMessage is one turn of a group chat. SenderID is a character id or
// SenderUser.
type GroupMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryEntry is one line of a character's private view of a group chat.
type MemoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}
