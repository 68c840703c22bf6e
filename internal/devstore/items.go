package devstore

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zulandar/supportchat/internal/db"
	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/models"
)

var (
	conversationFields = map[string]bool{"id": true, "date_created": true}
	messageFields      = map[string]bool{"id": true, "conversation_id": true, "type": true, "user_id": true, "date_created": true}
	serviceFields      = map[string]bool{"id": true, "title": true}
)

func (s *Server) collection(c *gin.Context) (kind, bool) {
	k, ok := s.collections[c.Param("collection")]
	if !ok {
		abortError(c, http.StatusForbidden, "You don't have permission to access this.")
	}
	return k, ok
}

func (s *Server) handleCreate(c *gin.Context) {
	k, ok := s.collection(c)
	if !ok {
		return
	}
	switch k {
	case kindConversations:
		s.createConversation(c)
	case kindMessages:
		s.createMessage(c)
	case kindServices:
		s.createService(c)
	}
}

func (s *Server) handleList(c *gin.Context) {
	k, ok := s.collection(c)
	if !ok {
		return
	}
	allowed := map[kind]map[string]bool{
		kindConversations: conversationFields,
		kindMessages:      messageFields,
		kindServices:      serviceFields,
	}[k]
	q, err := parseListQuery(c.Request.URL.Query(), allowed)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	tx := q.apply(s.db.WithContext(c.Request.Context()))

	switch k {
	case kindConversations:
		var rows []models.ConversationRecord
		if err := tx.Find(&rows).Error; err != nil {
			s.internalError(c, err)
			return
		}
		writeData(c, http.StatusOK, nonNil(rows))
	case kindMessages:
		var rows []models.MessageRecord
		if err := tx.Find(&rows).Error; err != nil {
			s.internalError(c, err)
			return
		}
		writeData(c, http.StatusOK, nonNil(rows))
	case kindServices:
		var rows []models.ServiceRecord
		if err := tx.Find(&rows).Error; err != nil {
			s.internalError(c, err)
			return
		}
		out := make([]gin.H, 0, len(rows))
		for _, r := range rows {
			item, err := s.serviceItem(r)
			if err != nil {
				s.internalError(c, err)
				return
			}
			out = append(out, item)
		}
		writeData(c, http.StatusOK, out)
	}
}

func (s *Server) handleGet(c *gin.Context) {
	k, ok := s.collection(c)
	if !ok {
		return
	}
	id := c.Param("id")
	tx := s.db.WithContext(c.Request.Context())

	var (
		item any
		err  error
	)
	switch k {
	case kindConversations:
		var row models.ConversationRecord
		err = tx.Where("id = ?", id).First(&row).Error
		item = row
	case kindMessages:
		n, perr := strconv.ParseUint(id, 10, 64)
		if perr != nil {
			err = gorm.ErrRecordNotFound
			break
		}
		var row models.MessageRecord
		err = tx.First(&row, n).Error
		item = row
	case kindServices:
		n, perr := strconv.ParseUint(id, 10, 64)
		if perr != nil {
			err = gorm.ErrRecordNotFound
			break
		}
		var row models.ServiceRecord
		if err = tx.First(&row, n).Error; err == nil {
			item, err = s.serviceItem(row)
		}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		abortError(c, http.StatusNotFound, "Item \""+id+"\" doesn't exist.")
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	writeData(c, http.StatusOK, item)
}

func (s *Server) createConversation(c *gin.Context) {
	row := models.ConversationRecord{
		ID:          uuid.NewString(),
		DateCreated: time.Now().UTC(),
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&row).Error; err != nil {
		s.internalError(c, err)
		return
	}
	writeData(c, http.StatusOK, row)
}

type messageInput struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	UserID         string `json:"user_id"`
}

func (s *Server) createMessage(c *gin.Context) {
	var in messageInput
	if err := json.NewDecoder(c.Request.Body).Decode(&in); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid payload. "+err.Error())
		return
	}
	switch {
	case strings.TrimSpace(in.Content) == "":
		abortError(c, http.StatusBadRequest, `Validation failed for field "content". Value is required.`)
		return
	case in.ConversationID == "":
		abortError(c, http.StatusBadRequest, `Validation failed for field "conversation_id". Value is required.`)
		return
	}
	if _, err := models.ParseMessageType(in.Type); err != nil {
		abortError(c, http.StatusBadRequest, `Validation failed for field "type". Value has to be one of user, agent, assistant.`)
		return
	}

	row := models.MessageRecord{
		ConversationID: in.ConversationID,
		Content:        in.Content,
		Type:           strings.ToLower(strings.TrimSpace(in.Type)),
		UserID:         in.UserID,
		DateCreated:    time.Now().UTC(),
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&row).Error; err != nil {
		s.internalError(c, err)
		return
	}
	writeData(c, http.StatusOK, row)
}

func (s *Server) createService(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(c.Request.Body).Decode(&raw); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid payload. "+err.Error())
		return
	}
	svc, err := decodeServiceInput(raw, s.docsField)
	if err != nil {
		abortError(c, http.StatusBadRequest, "Invalid payload. "+err.Error())
		return
	}
	if svc.Title == "" {
		abortError(c, http.StatusBadRequest, `Validation failed for field "title". Value is required.`)
		return
	}
	row, err := db.ServiceRecord(svc)
	if err != nil {
		abortError(c, http.StatusBadRequest, "Invalid payload. "+err.Error())
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&row).Error; err != nil {
		s.internalError(c, err)
		return
	}
	item, err := s.serviceItem(row)
	if err != nil {
		s.internalError(c, err)
		return
	}
	writeData(c, http.StatusOK, item)
}

func decodeServiceInput(raw map[string]json.RawMessage, docsField string) (models.Service, error) {
	var svc models.Service
	fields := map[string]any{
		"title":       &svc.Title,
		"description": &svc.Description,
		"prompt":      &svc.Prompt,
		"faqs":        &svc.FAQs,
		docsField:     &svc.Documents,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return svc, err
		}
	}
	if v, ok := raw["links"]; ok && string(v) != "null" {
		svc.Links = v
	}
	return svc, nil
}

// serviceItem renders a service the way Directus does with its relations
// expanded.
func (s *Server) serviceItem(row models.ServiceRecord) (gin.H, error) {
	svc, err := db.Service(row)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"id":          row.ID,
		"title":       svc.Title,
		"description": svc.Description,
		"prompt":      svc.Prompt,
		"links":       svc.Links,
		s.docsField:   nonNil(svc.Documents),
		"faqs":        nonNil(svc.FAQs),
	}, nil
}

func (s *Server) internalError(c *gin.Context, err error) {
	l := logging.Ctx(c.Request.Context())
	l.Error().Err(err).Str(logging.FieldPath, c.Request.URL.Path).Msg("devstore query failed")
	abortError(c, http.StatusInternalServerError, "An unexpected error occurred.")
}

func writeData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
