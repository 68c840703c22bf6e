package models

import "encoding/json"

// Service is a support topic the user chats about. Its prompt and documents
// are forwarded to the workflow engine with every query.
type Service struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Prompt      string          `json:"prompt,omitempty"`
	Links       json.RawMessage `json:"links,omitempty"`
	Documents   []Document      `json:"documents,omitempty"`
	FAQs        []FAQ           `json:"faqs,omitempty"`
}

// Document is reference material attached to a service.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// FAQ is a canned question offered for a service.
type FAQ struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// User identifies the person chatting.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}
