// Package models defines the conversation, message and catalogue types shared
// across the chat backend.
package models

import (
	"fmt"
	"strings"
	"time"
)

// MessageType tags the origin of a message.
type MessageType string

const (
	MessageTypeUser  MessageType = "user"
	MessageTypeAgent MessageType = "agent"
)

// ParseMessageType normalises a stored type tag. The widget historically
// wrote "assistant" for replies, which is read back as an agent message.
func ParseMessageType(s string) (MessageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return MessageTypeUser, nil
	case "agent", "assistant":
		return MessageTypeAgent, nil
	}
	return "", fmt.Errorf("models: unknown message type %q", s)
}

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	return t == MessageTypeUser || t == MessageTypeAgent
}

// Conversation groups the ordered messages exchanged with one user.
type Conversation struct {
	ID          string    `json:"id"`
	DateCreated time.Time `json:"date_created"`
}

// Message is one immutable unit of conversation content.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	UserID         string      `json:"user_id,omitempty"`
	DateCreated    time.Time   `json:"date_created"`
}

// IsAgent reports whether the message was written by an agent.
func (m Message) IsAgent() bool {
	return m.Type == MessageTypeAgent
}

// Latest returns the last message of an ordered sequence, or nil when empty.
func Latest(msgs []Message) *Message {
	if len(msgs) == 0 {
		return nil
	}
	m := msgs[len(msgs)-1]
	return &m
}
