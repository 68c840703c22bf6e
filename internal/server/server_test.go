package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/models"
	"github.com/zulandar/supportchat/internal/poll"
	"github.com/zulandar/supportchat/internal/webhook"
)

type memStore struct {
	mu       sync.Mutex
	nextID   int
	nextConv int
	messages []models.Message
	failWith error
	pingErr  error
}

func (s *memStore) CreateMessage(_ context.Context, content, userID, conversationID string, typ models.MessageType) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	if conversationID == "" {
		s.nextConv++
		conversationID = fmt.Sprintf("conv-%d", s.nextConv)
	}
	s.nextID++
	m := models.Message{
		ID:             fmt.Sprint(s.nextID),
		ConversationID: conversationID,
		Content:        content,
		Type:           typ,
		UserID:         userID,
		DateCreated:    time.Now(),
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *memStore) GetMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }

type fakeCatalog struct {
	services map[string]models.Service
}

func (f *fakeCatalog) Services(context.Context) ([]models.Service, error) {
	var out []models.Service
	for _, svc := range f.services {
		out = append(out, svc)
	}
	return out, nil
}

func (f *fakeCatalog) Service(_ context.Context, id string) (*models.Service, error) {
	svc, ok := f.services[id]
	if !ok {
		return nil, fmt.Errorf("fake: %w", errs.ErrNotFound)
	}
	return &svc, nil
}

func (f *fakeCatalog) FAQs(ctx context.Context, id string) ([]models.FAQ, error) {
	svc, err := f.Service(ctx, id)
	if err != nil {
		return nil, err
	}
	return svc.FAQs, nil
}

// fakeEngine records payloads and optionally answers through the store.
type fakeEngine struct {
	mu       sync.Mutex
	store    *memStore
	payloads []webhook.QueryPayload
	resp     webhook.Response
	err      error
	answer   bool
}

func (e *fakeEngine) SendQuery(_ context.Context, p webhook.QueryPayload) (webhook.Response, error) {
	e.mu.Lock()
	e.payloads = append(e.payloads, p)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if e.answer {
		go func() {
			time.Sleep(5 * time.Millisecond)
			_, _ = e.store.CreateMessage(context.Background(), "re: "+p.Query, "", p.ConversationID, models.MessageTypeAgent)
		}()
	}
	return e.resp, nil
}

func (e *fakeEngine) last() webhook.QueryPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payloads[len(e.payloads)-1]
}

type fixture struct {
	store   *memStore
	engine  *fakeEngine
	catalog *fakeCatalog
	srv     *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &memStore{}
	engine := &fakeEngine{store: store, resp: webhook.Response{"status": "queued"}}
	cat := &fakeCatalog{services: map[string]models.Service{
		"7": {ID: "7", Title: "Passports", Prompt: "be brief", FAQs: []models.FAQ{{ID: "1", Question: "Cost?"}}},
	}}

	waiter, err := poll.NewWaiter(poll.WaiterOpts{Store: store, Interval: 2 * time.Millisecond, MaxWait: 200 * time.Millisecond})
	require.NoError(t, err)
	sub, err := poll.NewSubscriber(poll.SubscriberOpts{Store: store, Interval: 2 * time.Millisecond})
	require.NoError(t, err)

	srv, err := New(Opts{
		Store:      store,
		Catalog:    cat,
		Dispatcher: engine,
		Waiter:     waiter,
		Subscriber: sub,
		Heartbeat:  time.Hour,
	})
	require.NoError(t, err)
	return &fixture{store: store, engine: engine, catalog: cat, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Opts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")

	_, err = New(Opts{Store: &memStore{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiter is required")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	f.store.pingErr = errors.New("down")
	w = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebhookQuery_MissingFields(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{}`,
		`{"query":"hi","language":"es"}`,
		`{"query":"","serviceId":"7","language":"es"}`,
		`{"query":"hi","serviceId":7}`,
		`not json`,
	} {
		w := f.do(t, http.MethodPost, "/api/webhook", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "Missing required fields: query, serviceId, language", decode(t, w)["error"], body)
	}
	assert.Empty(t, f.engine.payloads)
}

func TestWebhookQuery_GeneratesConversationID(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/webhook", `{"query":"hola","serviceId":7,"language":"es","user":{"id":"u1","name":"Ana"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, "queued", out["status"])
	convID, _ := out["conversationId"].(string)
	assert.Regexp(t, `^conv_\d+_[0-9a-z]{9}$`, convID)

	p := f.engine.last()
	assert.Equal(t, convID, p.ConversationID)
	assert.Equal(t, "hola", p.Query)
	assert.Equal(t, "es", p.Language)
	assert.Equal(t, "u1", p.User.ID)
	// No service block in the request: the catalogue entry is forwarded.
	assert.Equal(t, "Passports", p.Service.Title)
	assert.Equal(t, "be brief", p.Service.Prompt)
	assert.False(t, p.Timestamp.IsZero())
}

func TestWebhookQuery_UsesServiceFromBody(t *testing.T) {
	f := newFixture(t)
	body := `{"query":"q","serviceId":"9","language":"en","conversationId":"conv_1_abc",
		"service":{"id":9,"title":"Visas","prompt":"p","links":["https://x"]}}`
	w := f.do(t, http.MethodPost, "/api/webhook", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "conv_1_abc", decode(t, w)["conversationId"])

	p := f.engine.last()
	assert.Equal(t, "9", p.Service.ID)
	assert.Equal(t, "Visas", p.Service.Title)
	assert.JSONEq(t, `["https://x"]`, string(p.Service.Links))
}

func TestWebhookQuery_EngineFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.err = fmt.Errorf("webhook: %w: status 503", errs.ErrWebhookUnavailable)
	w := f.do(t, http.MethodPost, "/api/webhook", `{"query":"q","serviceId":"7","language":"es"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, "Internal server error", out["error"])
	assert.Contains(t, out["details"], "status 503")
}

func TestWebhookResponse(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/webhook", `{"response":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields: response, conversationId", decode(t, w)["error"])

	w = f.do(t, http.MethodPut, "/api/webhook", `{"response":"hello","conversationId":"conv-x"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Response processed successfully", out["message"])
	assert.Equal(t, "conv-x", out["conversationId"])

	msgs, err := f.store.GetMessages(context.Background(), "conv-x")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageTypeAgent, msgs[0].Type)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestWebhookResponse_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failWith = fmt.Errorf("directus: %w", errs.ErrStoreUnavailable)
	w := f.do(t, http.MethodPut, "/api/webhook", `{"response":"hello","conversationId":"conv-x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["error"])
}

func TestMessages_CreateAndList(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/messages", `{"content":"hi","userId":"u1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	convID := data["conversation_id"].(string)
	assert.Equal(t, "user", data["type"])

	w = f.do(t, http.MethodPost, "/api/messages", fmt.Sprintf(`{"content":"answer","conversationId":%q,"type":"assistant"}`, convID))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "agent", decode(t, w)["data"].(map[string]any)["type"])

	w = f.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["data"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "hi", list[0].(map[string]any)["content"])

	w = f.do(t, http.MethodGet, "/api/conversations/unknown/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["data"])
}

func TestMessages_Errors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/messages", `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/messages", `{"content":"x","type":"robot"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.store.failWith = fmt.Errorf("directus: %w", errs.ErrStoreUnavailable)
	w = f.do(t, http.MethodPost, "/api/messages", `{"content":"x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	w = f.do(t, http.MethodGet, "/api/conversations/c/messages", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestReply(t *testing.T) {
	f := newFixture(t)
	q, err := f.store.CreateMessage(context.Background(), "question", "u1", "conv-r", models.MessageTypeUser)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = f.store.CreateMessage(context.Background(), "answer", "", "conv-r", models.MessageTypeAgent)
	}()

	w := f.do(t, http.MethodGet, "/api/conversations/conv-r/reply?after="+q.ID+"&timeout=1s", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "answer", decode(t, w)["data"].(map[string]any)["content"])
}

func TestReply_Timeout(t *testing.T) {
	f := newFixture(t)
	q, err := f.store.CreateMessage(context.Background(), "question", "u1", "conv-t", models.MessageTypeUser)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/conversations/conv-t/reply?after="+q.ID+"&timeout=20", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, true, decode(t, w)["timeout"])
}

func TestReply_HugeTimeoutIsCapped(t *testing.T) {
	f := newFixture(t)
	f.srv.opts.MaxReplyWait = 20 * time.Millisecond
	q, err := f.store.CreateMessage(context.Background(), "question", "u1", "conv-h", models.MessageTypeUser)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/conversations/conv-h/reply?after="+q.ID+"&timeout=9223372036854775807", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, true, decode(t, w)["timeout"])
}

func TestReply_BadTimeout(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/conversations/c/reply?timeout=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.engine.answer = true

	w := f.do(t, http.MethodPost, "/api/chat", `{"message":"¿precio?","serviceId":"7","user":{"id":"u1"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "re: ¿precio?", out["text"])
	assert.Equal(t, false, out["fallback"])
	assert.NotEmpty(t, out["conversationId"])

	p := f.engine.last()
	assert.Equal(t, "Passports", p.Service.Title)
	assert.Equal(t, "es", p.Language)
}

func TestChat_FallbackOnTimeout(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/chat", `{"message":"hello?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, true, out["fallback"])
	assert.Equal(t, true, out["timedOut"])
	assert.NotEmpty(t, out["text"])
}

func TestChat_Errors(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/chat", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/chat", `{"message":"hi","serviceId":"404"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/services", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = f.do(t, http.MethodGet, "/api/services/7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Passports", decode(t, w)["data"].(map[string]any)["title"])

	w = f.do(t, http.MethodGet, "/api/services/7/faqs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = f.do(t, http.MethodGet, "/api/services/8", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNoRoute(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvents_StreamsNewMessages(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/conversations/conv-e/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q: %v", prefix, lines.Err())
		return ""
	}

	next("event: connected")
	_, err = f.store.CreateMessage(context.Background(), "live", "", "conv-e", models.MessageTypeAgent)
	require.NoError(t, err)

	next("event: message")
	data := next("data: ")
	assert.Contains(t, data, `"content":"live"`)
}

func TestWriteSSE(t *testing.T) {
	var b strings.Builder
	writeSSE(&b, "message", map[string]string{"id": "1"})
	assert.Equal(t, "event: message\ndata: {\"id\":\"1\"}\n\n", b.String())
}

func TestNewConversationID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	a, err := newConversationID(now)
	require.NoError(t, err)
	b, err := newConversationID(now)
	require.NoError(t, err)
	assert.Regexp(t, `^conv_1700000000123_[0-9a-z]{9}$`, a)
	assert.NotEqual(t, a, b)
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		in   string
		want flexString
	}{
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var f flexString
		require.NoError(t, json.Unmarshal([]byte(tt.in), &f), tt.in)
		assert.Equal(t, tt.want, f)
	}
	var f flexString
	assert.Error(t, json.Unmarshal([]byte(`{}`), &f))
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"1500", 1500 * time.Millisecond, false},
		{"45s", 45 * time.Second, false},
		{"9223372036854775807", time.Duration(math.MaxInt64), false},
		{"9223372036854776", time.Duration(math.MaxInt64), false},
		{"-1", 0, true},
		{"later", 0, true},
	}
	for _, tt := range tests {
		got, err := parseTimeout(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errs.ErrValidation))
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", errs.ErrNotFound)))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(errs.ErrTimeoutExceeded))
	assert.Equal(t, http.StatusBadGateway, statusFor(errs.ErrStoreUnavailable))
	assert.Equal(t, http.StatusBadGateway, statusFor(errs.ErrWebhookUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
