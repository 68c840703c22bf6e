// Package webhook forwards user questions to the external workflow engine.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/logging"
)

// DefaultTimeout bounds one forward.
const DefaultTimeout = 30 * time.Second

const maxResponseBytes = 1 << 20

// Opts holds parameters for creating a Dispatcher.
type Opts struct {
	URL     string
	Token   string // optional bearer token
	Timeout time.Duration

	HTTPClient *http.Client
}

// Dispatcher posts queries to the workflow engine. One attempt per call.
type Dispatcher struct {
	url   string
	token string
	http  *http.Client
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("webhook: url is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Dispatcher{url: opts.URL, token: opts.Token, http: hc}, nil
}

// SendQuery posts payload as JSON. Any transport failure or non-2xx status
// is errs.ErrWebhookUnavailable. A JSON object body is returned as the
// Response; an empty or non-object body yields an empty Response.
func (d *Dispatcher) SendQuery(ctx context.Context, payload QueryPayload) (Response, error) {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("webhook: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook: build request: %w: %w", errs.ErrWebhookUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	log := logging.Ctx(ctx)
	start := time.Now()
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: send query: %w: %w", errs.ErrWebhookUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("webhook: read response: %w: %w", errs.ErrWebhookUnavailable, err)
	}

	log.Debug().
		Str(logging.FieldConversationID, payload.ConversationID).
		Int(logging.FieldStatus, resp.StatusCode).
		Dur(logging.FieldLatency, time.Since(start)).
		Msg("webhook forwarded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook: send query: %w: status %d %s", errs.ErrWebhookUnavailable, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	out := Response{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		// Engines that answer with plain text or an array still accepted the query.
		log.Debug().Err(err).Msg("webhook response is not a JSON object")
		return Response{}, nil
	}
	return out, nil
}
