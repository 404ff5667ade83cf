package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "chatmallu/client/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidator("../../api/openapi.yaml")
	require.NoError(t, err)

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	r.Use(v.Middleware())
	r.POST("/api/characters/:id/messages", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	r.PUT("/api/settings", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/undocumented", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ValidRequestPasses(t *testing.T) {
	r := newEngine(t)
	w := do(r, http.MethodPost, "/api/characters/abc/messages", `{"content":"hello"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestMiddleware_RejectsSchemaViolations(t *testing.T) {
	r := newEngine(t)

	w := do(r, http.MethodPost, "/api/characters/abc/messages", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeInvalidRequest)

	w = do(r, http.MethodPut, "/api/settings", `{"temperature": 5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"body.temperature"`)
}

func TestMiddleware_SkipsUndocumentedRoutes(t *testing.T) {
	r := newEngine(t)
	w := do(r, http.MethodGet, "/undocumented", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewOpenAPIValidator_MissingFile(t *testing.T) {
	_, err := NewOpenAPIValidator("does-not-exist.yaml")
	assert.Error(t, err)
}
