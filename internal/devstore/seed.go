package devstore

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zulandar/supportchat/internal/models"
)

// seedFile is the YAML layout accepted by LoadSeed.
type seedFile struct {
	Services []struct {
		ID          string   `yaml:"id"`
		Title       string   `yaml:"title"`
		Description string   `yaml:"description"`
		Prompt      string   `yaml:"prompt"`
		Links       []string `yaml:"links"`
		Documents   []struct {
			Title string `yaml:"title"`
			URL   string `yaml:"url"`
		} `yaml:"documents"`
		FAQs []struct {
			Question string `yaml:"question"`
			Answer   string `yaml:"answer"`
		} `yaml:"faqs"`
	} `yaml:"services"`
}

// LoadSeed reads services to preload into the dev store.
func LoadSeed(path string) ([]models.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devstore: read seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML. Documents and FAQs are numbered from 1 within
// each service.
func ParseSeed(data []byte) ([]models.Service, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("devstore: parse seed: %w", err)
	}

	out := make([]models.Service, 0, len(f.Services))
	for i, s := range f.Services {
		if s.Title == "" {
			return nil, fmt.Errorf("devstore: seed service %d: title is required", i+1)
		}
		svc := models.Service{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			Prompt:      s.Prompt,
		}
		if len(s.Links) > 0 {
			links, err := json.Marshal(s.Links)
			if err != nil {
				return nil, fmt.Errorf("devstore: seed service %q links: %w", s.Title, err)
			}
			svc.Links = links
		}
		for j, d := range s.Documents {
			svc.Documents = append(svc.Documents, models.Document{ID: fmt.Sprint(j + 1), Title: d.Title, URL: d.URL})
		}
		for j, q := range s.FAQs {
			svc.FAQs = append(svc.FAQs, models.FAQ{ID: fmt.Sprint(j + 1), Question: q.Question, Answer: q.Answer})
		}
		out = append(out, svc)
	}
	return out, nil
}
