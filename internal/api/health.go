package api

import (
	"context"
	"encoding/json"
	"net/http"

	"chatmallu/client/ai"
	"chatmallu/client/pkg/cache"
	"chatmallu/client/pkg/health"

	"github.com/gin-gonic/gin"
)

// ModelSource lists the models of the current inference server.
type ModelSource interface {
	BaseURL() string
	Models(ctx context.Context) (ai.Models, error)
}

// HealthHandler serves liveness, the inference connection indicator and
// the model list.
type HealthHandler struct {
	checker *health.Checker
	models  ModelSource
	cache   *cache.Cache
}

func NewHealthHandler(checker *health.Checker, models ModelSource, c *cache.Cache) *HealthHandler {
	return &HealthHandler{checker: checker, models: models, cache: c}
}

// RegisterRoutes registers health related routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", gin.WrapF(h.checker.HTTPHandler()))
	router.GET("/connection", h.Connection)
	router.GET("/models", h.Models)
}

func (h *HealthHandler) Connection(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Connection())
}

// Models proxies GET /models of the inference server, cached per base URL.
func (h *HealthHandler) Models(c *gin.Context) {
	load := func(ctx context.Context) (any, error) {
		return h.models.Models(ctx)
	}
	var (
		v   any
		err error
	)
	if h.cache != nil {
		v, err = h.cache.GetOrLoad(c.Request.Context(), "models:"+h.models.BaseURL(), load)
	} else {
		v, err = load(c.Request.Context())
	}
	if err != nil {
		failInference(c, err)
		return
	}
	raw, _ := v.(json.RawMessage)
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}
