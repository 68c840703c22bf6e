package webhook

import (
	"encoding/json"
	"time"

	"github.com/zulandar/supportchat/internal/models"
)

// QueryPayload is the body forwarded to the workflow engine. Service and user
// are always passed in by the caller.
type QueryPayload struct {
	ConversationID string         `json:"conversationId"`
	Query          string         `json:"query"`
	Language       string         `json:"language"`
	Service        ServicePayload `json:"service"`
	User           UserPayload    `json:"user"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ServicePayload describes the support service the question is about.
type ServicePayload struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Prompt      string          `json:"prompt"`
	Links       json.RawMessage `json:"links,omitempty"`
	Documents   json.RawMessage `json:"documents,omitempty"`
}

// UserPayload identifies who asked.
type UserPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ServiceFromModel builds the service block from a catalogue entry.
func ServiceFromModel(svc models.Service) ServicePayload {
	p := ServicePayload{
		ID:          svc.ID,
		Title:       svc.Title,
		Description: svc.Description,
		Prompt:      svc.Prompt,
		Links:       svc.Links,
	}
	if len(svc.Documents) > 0 {
		if b, err := json.Marshal(svc.Documents); err == nil {
			p.Documents = b
		}
	}
	return p
}

// UserFromModel builds the user block.
func UserFromModel(u models.User) UserPayload {
	return UserPayload{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Response is whatever JSON object the engine answered with.
type Response map[string]any
