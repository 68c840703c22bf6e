package directus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/models"
)

// Services lists the support services.
func (c *Client) Services(ctx context.Context) ([]models.Service, error) {
	q := url.Values{}
	q.Set("fields", "*")

	var raws []map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, itemPath(c.services), q, nil, &raws); err != nil {
		return nil, fmt.Errorf("directus: services: %w: %w", errs.ErrStoreUnavailable, err)
	}
	out := make([]models.Service, 0, len(raws))
	for _, raw := range raws {
		svc, err := decodeService(raw, c.documentsField)
		if err != nil {
			return nil, fmt.Errorf("directus: services: %w", err)
		}
		out = append(out, svc)
	}
	return out, nil
}

// Service fetches one service with its documents and FAQs expanded.
func (c *Client) Service(ctx context.Context, id string) (*models.Service, error) {
	q := url.Values{}
	q.Set("fields", "*,"+c.documentsField+".*,faqs.*")

	raw, err := c.getService(ctx, id, q)
	if err != nil {
		return nil, fmt.Errorf("directus: service %s: %w", id, err)
	}
	svc, err := decodeService(raw, c.documentsField)
	if err != nil {
		return nil, fmt.Errorf("directus: service %s: %w", id, err)
	}
	return &svc, nil
}

// FAQs returns the canned questions of a service.
func (c *Client) FAQs(ctx context.Context, serviceID string) ([]models.FAQ, error) {
	q := url.Values{}
	q.Set("fields", "faqs.*")

	raw, err := c.getService(ctx, serviceID, q)
	if err != nil {
		return nil, fmt.Errorf("directus: faqs %s: %w", serviceID, err)
	}
	v, ok := raw["faqs"]
	if !ok || string(v) == "null" {
		return []models.FAQ{}, nil
	}
	faqs, err := decodeFAQs(v)
	if err != nil {
		return nil, fmt.Errorf("directus: faqs %s: %w", serviceID, err)
	}
	return faqs, nil
}

func (c *Client) getService(ctx context.Context, id string, q url.Values) (map[string]json.RawMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: service id is required", errs.ErrValidation)
	}
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, itemPath(c.services, id), q, nil, &raw); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", errs.ErrNotFound, err)
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrStoreUnavailable, err)
	}
	if raw == nil {
		return nil, errs.ErrNotFound
	}
	return raw, nil
}
