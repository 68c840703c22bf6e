package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestNew_StampsService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Service: "supportchat"}, &buf)
	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "supportchat", line[FieldService])
	assert.Equal(t, "hello", line["message"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn"}, &buf)
	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())
}

func TestCtx_FallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	custom := New(Config{}, &buf)

	ctx := WithLogger(context.Background(), custom)
	l := Ctx(ctx)
	l.Info().Msg("from ctx")
	assert.Contains(t, buf.String(), "from ctx")

	buf.Reset()
	g := Ctx(context.Background())
	g.Info().Msg("global")
	assert.Zero(t, buf.Len(), "context without logger should not use the custom writer")
}

func TestGinMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := New(Config{}, &buf)

	router := gin.New()
	router.Use(GinMiddleware(logger))
	router.GET("/ping", func(c *gin.Context) {
		l := Ctx(c.Request.Context())
		l.Info().Msg("inside handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), "inside handler")
	assert.Contains(t, buf.String(), "request completed")
}

func TestGinMiddleware_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware(zerolog.Nop()))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}
