package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/zulandar/supportchat/internal/logging"
)

const conversationIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newConversationID returns conv_<unix-ms>_<9 base36 chars>.
func newConversationID(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(conversationIDAlphabet, 9)
	if err != nil {
		return "", fmt.Errorf("server: conversation id: %w", err)
	}
	return fmt.Sprintf("conv_%d_%s", now.UnixMilli(), suffix), nil
}

// flexString accepts a JSON string or number. Widgets send service ids
// either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string { return string(f) }

// parseTimeout reads a Go duration ("45s") or a bare millisecond count.
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("timeout must not be negative")
		}
		if ms > math.MaxInt64/int64(time.Millisecond) {
			return time.Duration(math.MaxInt64), nil
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative")
	}
	return d, nil
}

func loggerFrom(c *gin.Context) zerolog.Logger {
	return logging.Ctx(c.Request.Context())
}
