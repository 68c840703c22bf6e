package models

import "time"

// Rows kept by the local dev store. Collection payloads in and out of the
// store use the json tags.

// ConversationRecord is a stored conversation.
type ConversationRecord struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	DateCreated time.Time `gorm:"index" json:"date_created"`
}

func (ConversationRecord) TableName() string { return "conversations" }

// MessageRecord is a stored chat message.
type MessageRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"size:64;index" json:"conversation_id"`
	Content        string    `gorm:"type:text" json:"content"`
	Type           string    `gorm:"size:16;index" json:"type"`
	UserID         string    `gorm:"size:64" json:"user_id,omitempty"`
	DateCreated    time.Time `gorm:"index" json:"date_created"`
}

func (MessageRecord) TableName() string { return "messages" }

// ServiceRecord is a stored support service. Links, documents and FAQs are
// JSON text columns.
type ServiceRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"type:text"`
	Prompt      string    `gorm:"type:text"`
	Links       string    `gorm:"type:text"`
	Documents   string    `gorm:"type:text"`
	FAQs        string    `gorm:"column:faqs;type:text"`
	DateCreated time.Time `gorm:"autoCreateTime"`
}

func (ServiceRecord) TableName() string { return "services" }
