// Package directus is the HTTP client for the Directus item store that holds
// conversations, messages and the services catalogue.
//
// Every call goes to the network; nothing is cached here.
package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 10 << 20

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL string
	Token   string // sent as a bearer token when non-empty
	Timeout time.Duration

	Conversations  string // collection names; default to conversations/messages/poc_service
	Messages       string
	Services       string
	DocumentsField string // relation holding a service's documents, default poc_docus

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client talks to the Directus REST items API.
type Client struct {
	baseURL        string
	token          string
	http           *http.Client
	conversations  string
	messages       string
	services       string
	documentsField string
}

// New creates a Client.
func New(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("directus: base url is required")
	}
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("directus: base url: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		token:          opts.Token,
		http:           hc,
		conversations:  opts.Conversations,
		messages:       opts.Messages,
		services:       opts.Services,
		documentsField: opts.DocumentsField,
	}
	if c.conversations == "" {
		c.conversations = "conversations"
	}
	if c.messages == "" {
		c.messages = "messages"
	}
	if c.services == "" {
		c.services = "poc_service"
	}
	if c.documentsField == "" {
		c.documentsField = "poc_docus"
	}
	return c, nil
}

// StatusError is a non-2xx answer from the store.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// IsClientError reports whether err is a 4xx StatusError.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status >= 400 && se.Status < 500
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Ping checks that the store answers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/server/ping", nil, nil, nil); err != nil {
		return fmt.Errorf("directus: ping: %w", err)
	}
	return nil
}

// envelope is the Directus response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do sends a request and decodes the data envelope into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && len(eb.Errors) > 0 {
			se.Message = eb.Errors[0].Message
		}
		return se
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func itemPath(collection string, id ...string) string {
	p := "/items/" + url.PathEscape(collection)
	for _, s := range id {
		p += "/" + url.PathEscape(s)
	}
	return p
}
