package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", JSON: true, Output: &buf})

	l.WithChat("chat-1").WithComponent("orchestrator").LogError(errors.New("boom"), "stream failed", "character", "Aiden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "stream failed", line["msg"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "chat-1", line["chat_id"])
	assert.Equal(t, "orchestrator", line["component"])
	assert.Equal(t, "Aiden", line["character"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "WARN", Output: &buf})
	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := New(Config{JSON: true, Output: &buf})

	r := gin.New()
	r.Use(Middleware(base))
	r.GET("/ping", func(c *gin.Context) {
		assert.NotSame(t, base, FromGin(c, base))
		c.String(http.StatusOK, "pong")
	})

	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestMiddleware_LevelsAndChatID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := New(Config{Level: "info", JSON: true, Output: &buf})

	r := gin.New()
	r.Use(Middleware(base))
	r.GET("/api/unread", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/characters/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/api/unread", "/api/characters/c1"} {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	// The poll is below the info level; only the 404 is logged.
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "c1", line["chat_id"])
	assert.EqualValues(t, http.StatusNotFound, line["status"])
}
