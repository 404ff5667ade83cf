package api

import (
	"net/http"

	"chatmallu/client/internal/models"
	"chatmallu/client/internal/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves the chat list, view state, suggestions and settings.
type ChatHandler struct {
	rt          *service.Runtime
	settings    *service.SettingsService
	suggestions *service.SuggestionService
}

func NewChatHandler(rt *service.Runtime, settings *service.SettingsService, suggestions *service.SuggestionService) *ChatHandler {
	return &ChatHandler{rt: rt, settings: settings, suggestions: suggestions}
}

type activeChatRequest struct {
	ChatID string `json:"chatId"`
}

type summaryResponse struct {
	ChatID  string `json:"chatId"`
	Summary string `json:"summary"`
}

func (h *ChatHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/sidebar", h.Sidebar)
	router.PUT("/active", h.SetActive)
	router.GET("/unread", h.Unread)

	router.GET("/chats/:id/suggestions", h.Suggestions)
	router.POST("/chats/:id/summary", h.Summary)

	router.GET("/settings", h.GetSettings)
	router.PUT("/settings", h.UpdateSettings)
}

func (h *ChatHandler) Sidebar(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Sidebar())
}

// SetActive records which chat the UI shows; an empty id means none.
func (h *ChatHandler) SetActive(c *gin.Context) {
	var req activeChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.rt.SetActiveChat(c.Request.Context(), req.ChatID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *ChatHandler) Unread(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Unread())
}

func (h *ChatHandler) Suggestions(c *gin.Context) {
	c.JSON(http.StatusOK, service.SuggestionsEvent{
		ChatID:      c.Param("id"),
		Suggestions: h.suggestions.Get(c.Param("id")),
	})
}

func (h *ChatHandler) Summary(c *gin.Context) {
	summary, err := h.suggestions.Summarize(c.Request.Context(), c.Param("id"))
	if err != nil {
		failInference(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryResponse{ChatID: c.Param("id"), Summary: summary})
}

func (h *ChatHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Get())
}

func (h *ChatHandler) UpdateSettings(c *gin.Context) {
	var req models.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
