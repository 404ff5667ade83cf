package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatmallu/client/internal/models"
	"chatmallu/client/internal/service"
	"chatmallu/client/internal/storage"
	"chatmallu/client/pkg/config"
	"chatmallu/client/pkg/di"
	"chatmallu/client/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeInference(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","model":"llama3","ollama_status":"connected"}`))
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
	})
	mux.HandleFunc("/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"content\": \"Hello \"}\n\ndata: {\"content\": \"there\"}\n\ndata: {\"done\": true}\n\n"))
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"1. Hi\n2. Hey\n3. Yo","character_name":"ResponseGenerator","model":"llama3"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	cfg.Inference.BaseURL = fakeInference(t).URL
	cfg.OpenAPI.SchemaPath = "../../api/openapi.yaml"
	cfg.Security.RateLimit = 1000
	cfg.Security.RateLimitBurst = 1000

	container, err := di.New(context.Background(), cfg,
		di.WithKV(storage.NewMemory()),
		di.WithSleeper(service.NoSleep),
		di.WithLogger(logger.Nop()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	r := New(container)
	r.SetupRoutes()
	return r
}

func request(r *Router, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestCharacterChat_EndToEnd(t *testing.T) {
	r := newTestRouter(t)

	w := request(r, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, w.Code)
	characters := decode[[]models.Character](t, w)
	require.Len(t, characters, 2)
	aiden := characters[0]

	w = request(r, http.MethodPost, "/api/characters/"+aiden.ID+"/messages", `{"content":"Hello"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	r.Container.Runtime.Wait()

	w = request(r, http.MethodGet, "/api/characters/"+aiden.ID+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	messages := decode[[]models.Message](t, w)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hello there", messages[1].Content)

	w = request(r, http.MethodGet, "/api/chats/"+aiden.ID+"/suggestions", "")
	require.Equal(t, http.StatusOK, w.Code)
	sugg := decode[service.SuggestionsEvent](t, w)
	assert.Equal(t, []string{"Hi", "Hey", "Yo"}, sugg.Suggestions)

	w = request(r, http.MethodGet, "/api/sidebar", "")
	require.Equal(t, http.StatusOK, w.Code)
	sidebar := decode[[]models.SidebarEntry](t, w)
	require.NotEmpty(t, sidebar)
	assert.Equal(t, aiden.ID, sidebar[0].ID)
	assert.Equal(t, 1, sidebar[0].Unread)

	w = request(r, http.MethodPut, "/api/active", `{"chatId":"`+aiden.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = request(r, http.MethodGet, "/api/unread", "")
	assert.Equal(t, map[string]int{}, decode[map[string]int](t, w))

	w = request(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chatmallu_stream_requests_total")
}

func TestUnknownIDs_Return404(t *testing.T) {
	r := newTestRouter(t)

	w := request(r, http.MethodGet, "/api/characters/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "CHARACTER_NOT_FOUND")

	w = request(r, http.MethodPost, "/api/groups/nope/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "GROUP_NOT_FOUND")
}

func TestGroups(t *testing.T) {
	r := newTestRouter(t)

	w := request(r, http.MethodPost, "/api/groups", `{"name":"Ghosts","memberIds":["missing"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNKNOWN_MEMBER")

	characters := decode[[]models.Character](t, request(r, http.MethodGet, "/api/characters", ""))
	body := `{"name":"Friends","autoParallel":true,"memberIds":["` + characters[0].ID + `","` + characters[1].ID + `"]}`
	w = request(r, http.MethodPost, "/api/groups", body)
	require.Equal(t, http.StatusCreated, w.Code)
	group := decode[models.Group](t, w)

	w = request(r, http.MethodPost, "/api/groups/"+group.ID+"/messages", `{"content":"hi all"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	r.Container.Runtime.Wait()

	w = request(r, http.MethodGet, "/api/groups/"+group.ID+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.GroupMessage](t, w), 3)

	w = request(r, http.MethodGet, "/api/groups/"+group.ID+"/memory/"+characters[0].ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.MemoryEntry](t, w), 3)

	w = request(r, http.MethodDelete, "/api/groups/"+group.ID+"/messages", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = request(r, http.MethodGet, "/api/groups/"+group.ID+"/messages", "")
	assert.Empty(t, decode[[]models.GroupMessage](t, w))
}

func TestSettings(t *testing.T) {
	r := newTestRouter(t)

	w := request(r, http.MethodPut, "/api/settings", `{"temperature": 7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPut, "/api/settings", `{"maxTokens": 512}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 512, decode[models.Settings](t, w).MaxTokens)

	w = request(r, http.MethodGet, "/api/settings", "")
	assert.Equal(t, 512, decode[models.Settings](t, w).MaxTokens)
}

func TestModelsAndConnection(t *testing.T) {
	r := newTestRouter(t)

	w := request(r, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"models":[{"name":"llama3"}]}`, w.Body.String())

	r.Container.Health.RunChecks(context.Background())
	w = request(r, http.MethodGet, "/api/connection", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"up"`)
	assert.Contains(t, w.Body.String(), `"model":"llama3"`)

	w = request(r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
