package types

import (
	"fmt"
	"strings"
)

// Role identifies the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// ChatMessage represents a single message sent to the completion endpoint
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewChatMessage creates a message after validating its role
func NewChatMessage(role Role, content string) (ChatMessage, error) {
	msg := ChatMessage{Role: role, Content: content}
	if err := msg.Validate(); err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// Validate checks the message role
func (m ChatMessage) Validate() error {
	if !m.Role.Valid() {
		return &ValidationError{
			Field: "role",
			Value: string(m.Role),
			Err:   fmt.Errorf("%w: must be one of %s", ErrInvalidRole, strings.Join([]string{string(RoleSystem), string(RoleUser), string(RoleAssistant)}, ", ")),
		}
	}
	return nil
}
