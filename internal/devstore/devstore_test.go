package devstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/supportchat/internal/db"
	"github.com/zulandar/supportchat/internal/directus"
	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/models"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, *directus.Client) {
	t.Helper()
	gdb, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))

	s, err := New(Opts{DB: gdb, Token: token})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	client, err := directus.New(directus.ClientOpts{BaseURL: srv.URL, Token: token})
	require.NoError(t, err)

	require.NoError(t, db.SeedServices(gdb, []models.Service{{
		ID:        "1",
		Title:     "Billing",
		Prompt:    "Answer billing questions.",
		Links:     json.RawMessage(`["https://billing.example"]`),
		Documents: []models.Document{{ID: "1", Title: "Terms", URL: "https://terms.example"}},
		FAQs:      []models.FAQ{{ID: "1", Question: "Where is my invoice?", Answer: "Account page"}},
	}}))
	return srv, client
}

func getJSON(t *testing.T, rawURL, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(body, &out)
	return resp.StatusCode, out
}

func TestNew_RequiresDB(t *testing.T) {
	_, err := New(Opts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db is required")
}

func TestClientRoundTrip_CreateWithoutConversation(t *testing.T) {
	_, client := newTestServer(t, "")
	ctx := context.Background()

	msg, err := client.CreateMessage(ctx, "¿Dónde está mi factura?", "u-1", "", models.MessageTypeUser)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ConversationID)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.DateCreated.IsZero())

	reply, err := client.CreateMessage(ctx, "En tu cuenta.", "", msg.ConversationID, models.MessageTypeAgent)
	require.NoError(t, err)
	assert.Equal(t, msg.ConversationID, reply.ConversationID)

	msgs, err := client.GetMessages(ctx, msg.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, reply.ID, msgs[1].ID)
	assert.True(t, msgs[1].IsAgent())

	again, err := client.GetMessages(ctx, msg.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, msgs, again)
}

func TestClientRoundTrip_ConversationsAreIsolated(t *testing.T) {
	_, client := newTestServer(t, "")
	ctx := context.Background()

	a, err := client.CreateMessage(ctx, "a", "u", "", models.MessageTypeUser)
	require.NoError(t, err)
	b, err := client.CreateMessage(ctx, "b", "u", "", models.MessageTypeUser)
	require.NoError(t, err)
	require.NotEqual(t, a.ConversationID, b.ConversationID)

	msgs, err := client.GetMessages(ctx, a.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Content)

	empty, err := client.GetMessages(ctx, "never-created")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClientRoundTrip_RejectsBadMessage(t *testing.T) {
	srv, client := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/items/messages", "application/json",
		strings.NewReader(`{"conversation_id":"c","content":"x","type":"system"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = client.CreateMessage(context.Background(), "x", "u", "c", models.MessageTypeUser)
	require.NoError(t, err)
}

func TestClientRoundTrip_Services(t *testing.T) {
	_, client := newTestServer(t, "")
	ctx := context.Background()

	svcs, err := client.Services(ctx)
	require.NoError(t, err)
	require.Len(t, svcs, 1)
	assert.Equal(t, "1", svcs[0].ID)
	assert.Equal(t, "Billing", svcs[0].Title)

	svc, err := client.Service(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Answer billing questions.", svc.Prompt)
	require.Len(t, svc.Documents, 1)
	assert.Equal(t, "https://terms.example", svc.Documents[0].URL)
	assert.JSONEq(t, `["https://billing.example"]`, string(svc.Links))

	faqs, err := client.FAQs(ctx, "1")
	require.NoError(t, err)
	require.Len(t, faqs, 1)
	assert.Equal(t, "Where is my invoice?", faqs[0].Question)

	_, err = client.Service(ctx, "99")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateService(t *testing.T) {
	srv, client := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/items/poc_service", "application/json", strings.NewReader(`{
		"title": "Shipping",
		"poc_docus": [{"id": "1", "title": "Rates", "url": "https://rates"}],
		"faqs": [{"id": "1", "question": "How long?", "answer": "3 days"}]
	}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	svcs, err := client.Services(context.Background())
	require.NoError(t, err)
	require.Len(t, svcs, 2)
	assert.Equal(t, "Shipping", svcs[1].Title)
	require.Len(t, svcs[1].FAQs, 1)

	resp, err = http.Post(srv.URL+"/items/poc_service", "application/json", strings.NewReader(`{"prompt":"x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestList_FilterSortLimit(t *testing.T) {
	srv, client := newTestServer(t, "")
	ctx := context.Background()

	first, err := client.CreateMessage(ctx, "one", "u", "", models.MessageTypeUser)
	require.NoError(t, err)
	conv := first.ConversationID
	for _, content := range []string{"two", "three"} {
		_, err := client.CreateMessage(ctx, content, "u", conv, models.MessageTypeAgent)
		require.NoError(t, err)
	}

	q := url.Values{}
	q.Set("filter[conversation_id][_eq]", conv)
	q.Set("filter[type][_eq]", "agent")
	q.Set("sort", "-id")
	q.Set("limit", "1")
	status, body := getJSON(t, srv.URL+"/items/messages?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "three", data[0].(map[string]any)["content"])

	q = url.Values{}
	q.Set("filter", fmt.Sprintf(`{"conversation_id":{"_eq":%q}}`, conv))
	status, body = getJSON(t, srv.URL+"/items/messages?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 3)
}

func TestList_BadQuery(t *testing.T) {
	srv, _ := newTestServer(t, "")

	for _, query := range []string{
		"filter[content][_eq]=x",
		"filter[type][_contains]=a",
		"sort=password",
		"limit=abc",
		"filter=notjson",
	} {
		status, body := getJSON(t, srv.URL+"/items/messages?"+query, "")
		assert.Equal(t, http.StatusBadRequest, status, query)
		assert.NotEmpty(t, body["errors"], query)
	}
}

func TestGet_Item(t *testing.T) {
	srv, client := newTestServer(t, "")
	msg, err := client.CreateMessage(context.Background(), "hola", "u", "", models.MessageTypeUser)
	require.NoError(t, err)

	status, body := getJSON(t, srv.URL+"/items/messages/"+msg.ID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hola", body["data"].(map[string]any)["content"])

	status, _ = getJSON(t, srv.URL+"/items/conversations/"+msg.ConversationID, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = getJSON(t, srv.URL+"/items/messages/9999", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = getJSON(t, srv.URL+"/items/messages/abc", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUnknownCollection(t *testing.T) {
	srv, _ := newTestServer(t, "")
	status, body := getJSON(t, srv.URL+"/items/directus_users", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.NotEmpty(t, body["errors"])
}

func TestToken(t *testing.T) {
	srv, client := newTestServer(t, "s3cret")

	status, _ := getJSON(t, srv.URL+"/items/messages", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = getJSON(t, srv.URL+"/items/messages", "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	_, err := client.CreateMessage(context.Background(), "hola", "u", "", models.MessageTypeUser)
	require.NoError(t, err)

	// Ping is public.
	require.NoError(t, client.Ping(context.Background()))
	anon, err := directus.New(directus.ClientOpts{BaseURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, anon.Ping(context.Background()))
	_, err = anon.CreateConversation(context.Background())
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)
}

func TestParseSeed(t *testing.T) {
	svcs, err := ParseSeed([]byte(`
services:
  - id: "3"
    title: Billing
    prompt: Be brief.
    links: [https://billing.example]
    documents:
      - title: Terms
        url: https://terms.example
    faqs:
      - question: Where is my invoice?
        answer: Account page
      - question: Can I pay by card?
  - title: Shipping
`))
	require.NoError(t, err)
	require.Len(t, svcs, 2)
	assert.Equal(t, "3", svcs[0].ID)
	assert.JSONEq(t, `["https://billing.example"]`, string(svcs[0].Links))
	require.Len(t, svcs[0].FAQs, 2)
	assert.Equal(t, "2", svcs[0].FAQs[1].ID)
	assert.Equal(t, "Terms", svcs[0].Documents[0].Title)
	assert.Empty(t, svcs[1].Links)

	_, err = ParseSeed([]byte("services:\n  - prompt: no title\n"))
	assert.ErrorContains(t, err, "title is required")

	_, err = ParseSeed([]byte("services: [unterminated"))
	assert.ErrorContains(t, err, "parse seed")
}

func TestLoadSeed_FileNotFound(t *testing.T) {
	_, err := LoadSeed("/nonexistent/seed.yaml")
	assert.ErrorContains(t, err, "read seed")
}
