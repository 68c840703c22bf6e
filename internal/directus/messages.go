package directus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/models"
)

// CreateConversation creates an empty conversation record and returns its
// store-assigned id.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	var item conversationItem
	if err := c.do(ctx, http.MethodPost, itemPath(c.conversations), nil, map[string]any{}, &item); err != nil {
		return "", fmt.Errorf("directus: create conversation: %w: %w", errs.ErrStoreUnavailable, err)
	}
	if item.ID == "" {
		return "", fmt.Errorf("directus: create conversation: %w: store returned no id", errs.ErrStoreUnavailable)
	}
	return string(item.ID), nil
}

// CreateMessage writes a message. When conversationID is empty a new
// conversation is created first; the returned message carries the
// (possibly new) conversation id.
func (c *Client) CreateMessage(ctx context.Context, content, userID, conversationID string, typ models.MessageType) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("directus: create message: %w: content is required", errs.ErrValidation)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("directus: create message: %w: unknown message type %q", errs.ErrValidation, typ)
	}

	if conversationID == "" {
		id, err := c.CreateConversation(ctx)
		if err != nil {
			return nil, err
		}
		conversationID = id
	}

	body := newMessageItem{
		ConversationID: conversationID,
		Content:        content,
		Type:           string(typ),
		UserID:         userID,
	}
	var item messageItem
	if err := c.do(ctx, http.MethodPost, itemPath(c.messages), nil, body, &item); err != nil {
		kind := errs.ErrStoreUnavailable
		if IsClientError(err) {
			kind = errs.ErrValidation
		}
		return nil, fmt.Errorf("directus: create message: %w: %w", kind, err)
	}

	msg := item.model()
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	if msg.Content == "" {
		msg.Content = content
	}
	if msg.Type == "" {
		msg.Type = typ
	}
	if msg.UserID == "" {
		msg.UserID = userID
	}
	return &msg, nil
}

// GetMessages returns the conversation's messages ordered ascending by
// timestamp. Ties keep the store's order. An unknown conversation yields an
// empty slice.
func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("directus: get messages: %w: conversation id is required", errs.ErrValidation)
	}

	q := url.Values{}
	q.Set("filter[conversation_id][_eq]", conversationID)
	q.Set("sort", "date_created")
	q.Set("limit", "-1")

	var items []messageItem
	if err := c.do(ctx, http.MethodGet, itemPath(c.messages), q, nil, &items); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return []models.Message{}, nil
		}
		return nil, fmt.Errorf("directus: get messages %s: %w: %w", conversationID, errs.ErrStoreUnavailable, err)
	}

	msgs := make([]models.Message, 0, len(items))
	for _, it := range items {
		msgs = append(msgs, it.model())
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].DateCreated.Before(msgs[j].DateCreated)
	})
	return msgs, nil
}
