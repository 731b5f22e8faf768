package domain

import "time"

// Order is customer order context surfaced in conversational replies.
type Order struct {
	OrderID       string
	CustomerPhone string
	Status        string
	DeliveryDate  *time.Time
	CreatedAt     time.Time
}

// ChatRole is the author of a conversation message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a support conversation.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
