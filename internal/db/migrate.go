package db

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/zulandar/supportchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the GORM models kept by the dev store.
func AllModels() []interface{} {
	return []interface{}{
		&models.ConversationRecord{},
		&models.MessageRecord{},
		&models.ServiceRecord{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedServices upserts services. Services with a numeric ID keep it; others
// get a new one.
func SeedServices(db *gorm.DB, services []models.Service) error {
	for _, svc := range services {
		rec, err := ServiceRecord(svc)
		if err != nil {
			return fmt.Errorf("db: seed service %q: %w", svc.Title, err)
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "description", "prompt", "links", "documents", "faqs"}),
		}).Create(&rec)
		if result.Error != nil {
			return fmt.Errorf("db: seed service %q: %w", svc.Title, result.Error)
		}
	}
	return nil
}

// ServiceRecord converts a catalogue service to its stored row.
func ServiceRecord(svc models.Service) (models.ServiceRecord, error) {
	rec := models.ServiceRecord{
		Title:       svc.Title,
		Description: svc.Description,
		Prompt:      svc.Prompt,
	}
	if svc.ID != "" {
		id, err := strconv.ParseUint(svc.ID, 10, 64)
		if err == nil {
			rec.ID = uint(id)
		}
	}
	if len(svc.Links) > 0 {
		rec.Links = string(svc.Links)
	}
	var err error
	if rec.Documents, err = marshalJSON(svc.Documents); err != nil {
		return rec, fmt.Errorf("marshal documents: %w", err)
	}
	if rec.FAQs, err = marshalJSON(svc.FAQs); err != nil {
		return rec, fmt.Errorf("marshal faqs: %w", err)
	}
	return rec, nil
}

// Service converts a stored row back to a catalogue service.
func Service(rec models.ServiceRecord) (models.Service, error) {
	svc := models.Service{
		ID:          strconv.FormatUint(uint64(rec.ID), 10),
		Title:       rec.Title,
		Description: rec.Description,
		Prompt:      rec.Prompt,
	}
	if rec.Links != "" {
		svc.Links = json.RawMessage(rec.Links)
	}
	if rec.Documents != "" {
		if err := json.Unmarshal([]byte(rec.Documents), &svc.Documents); err != nil {
			return svc, fmt.Errorf("db: service %d documents: %w", rec.ID, err)
		}
	}
	if rec.FAQs != "" {
		if err := json.Unmarshal([]byte(rec.FAQs), &svc.FAQs); err != nil {
			return svc, fmt.Errorf("db: service %d faqs: %w", rec.ID, err)
		}
	}
	return svc, nil
}

// marshalJSON marshals a value to a JSON string, returning empty string for
// nil or empty slices.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	switch s := v.(type) {
	case []models.Document:
		if len(s) == 0 {
			return "", nil
		}
	case []models.FAQ:
		if len(s) == 0 {
			return "", nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
