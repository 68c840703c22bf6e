package directus

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/zulandar/supportchat/internal/models"
)

// itemID decodes Directus primary keys, which are integers or strings
// (uuid) depending on the collection.
type itemID string

func (id *itemID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = itemID(s)
		return nil
	}
	// Relations expanded with fields=*.* come back as objects.
	if b[0] == '{' {
		var obj struct {
			ID itemID `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*id = obj.ID
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = itemID(n.String())
	return nil
}

// timestampLayouts are the date formats Directus emits for timestamp and
// datetime fields.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type conversationItem struct {
	ID          itemID `json:"id"`
	DateCreated string `json:"date_created"`
}

func (c conversationItem) model() models.Conversation {
	return models.Conversation{ID: string(c.ID), DateCreated: parseTimestamp(c.DateCreated)}
}

type messageItem struct {
	ID             itemID `json:"id"`
	ConversationID itemID `json:"conversation_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	UserID         itemID `json:"user_id"`
	DateCreated    string `json:"date_created"`
}

// model converts a stored item. Unknown type tags are kept verbatim so they
// never match as agent replies.
func (m messageItem) model() models.Message {
	typ, err := models.ParseMessageType(m.Type)
	if err != nil {
		typ = models.MessageType(m.Type)
	}
	return models.Message{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		Content:        m.Content,
		Type:           typ,
		UserID:         string(m.UserID),
		DateCreated:    parseTimestamp(m.DateCreated),
	}
}

type newMessageItem struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	UserID         string `json:"user_id,omitempty"`
}

type faqItem struct {
	ID       itemID `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type documentItem struct {
	ID    itemID `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// decodeService maps a raw service item. Documents live under a configurable
// relation name.
func decodeService(raw map[string]json.RawMessage, documentsField string) (models.Service, error) {
	var svc models.Service
	var id itemID
	if v, ok := raw["id"]; ok {
		if err := json.Unmarshal(v, &id); err != nil {
			return svc, err
		}
	}
	svc.ID = string(id)

	str := func(key string) string {
		var s string
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, &s)
		}
		return s
	}
	svc.Title = str("title")
	svc.Description = str("description")
	svc.Prompt = str("prompt")
	if v, ok := raw["links"]; ok && string(v) != "null" {
		svc.Links = v
	}

	docs := raw[documentsField]
	if docs == nil {
		docs = raw["documents"]
	}
	if len(docs) > 0 && docs[0] == '[' {
		var items []documentItem
		if err := json.Unmarshal(docs, &items); err == nil {
			for _, d := range items {
				svc.Documents = append(svc.Documents, models.Document{ID: string(d.ID), Title: d.Title, URL: d.URL})
			}
		}
	}

	if v, ok := raw["faqs"]; ok && len(v) > 0 && v[0] == '[' {
		faqs, err := decodeFAQs(v)
		if err != nil {
			return svc, err
		}
		svc.FAQs = faqs
	}
	return svc, nil
}

// decodeFAQs reads a faqs relation. Unexpanded relations (bare ids) carry no
// question text and are skipped.
func decodeFAQs(v json.RawMessage) ([]models.FAQ, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(v, &raws); err != nil {
		return nil, err
	}
	faqs := make([]models.FAQ, 0, len(raws))
	for _, r := range raws {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] != '{' {
			continue
		}
		var f faqItem
		if err := json.Unmarshal(r, &f); err != nil {
			return nil, err
		}
		faqs = append(faqs, models.FAQ{ID: string(f.ID), Question: f.Question, Answer: f.Answer})
	}
	return faqs, nil
}
