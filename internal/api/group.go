package api

import (
	"net/http"

	"chatmallu/client/internal/models"
	"chatmallu/client/internal/service"
	"chatmallu/client/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type GroupHandler struct {
	groups *service.GroupService
}

func NewGroupHandler(groups *service.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

func (h *GroupHandler) RegisterRoutes(router *gin.RouterGroup) {
	groups := router.Group("/groups")
	{
		groups.GET("", h.ListGroups)
		groups.POST("", h.CreateGroup)
		groups.GET("/:id", h.GetGroup)
		groups.PUT("/:id", h.UpdateGroup)
		groups.DELETE("/:id", h.DeleteGroup)

		groups.GET("/:id/messages", h.GetMessages)
		groups.POST("/:id/messages", h.SendMessage)
		groups.DELETE("/:id/messages", h.ClearHistory)
		groups.GET("/:id/memory/:characterId", h.GetMemory)
	}
}

func (h *GroupHandler) ListGroups(c *gin.Context) {
	c.JSON(http.StatusOK, h.groups.List())
}

func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, err := h.groups.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	var req models.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groups.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	if err := h.groups.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) GetMessages(c *gin.Context) {
	messages, err := h.groups.History(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage stores the user's message, answers 202 and lets the members
// reply in the background.
func (h *GroupHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.groups.Accept(middleware.Detach(c), c.Param("id"), req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, msg)
}

func (h *GroupHandler) ClearHistory(c *gin.Context) {
	if err := h.groups.ClearHistory(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) GetMemory(c *gin.Context) {
	entries, err := h.groups.Memory(c.Param("id"), c.Param("characterId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
