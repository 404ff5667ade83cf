package api

import (
	"net/http"

	"chatmallu/client/internal/models"
	"chatmallu/client/internal/service"
	"chatmallu/client/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type CharacterHandler struct {
	characters *service.CharacterService
	chats      *service.ChatService
}

func NewCharacterHandler(characters *service.CharacterService, chats *service.ChatService) *CharacterHandler {
	return &CharacterHandler{characters: characters, chats: chats}
}

func (h *CharacterHandler) RegisterRoutes(router *gin.RouterGroup) {
	characters := router.Group("/characters")
	{
		characters.GET("", h.ListCharacters)
		characters.POST("", h.CreateCharacter)
		characters.GET("/:id", h.GetCharacter)
		characters.PUT("/:id", h.UpdateCharacter)
		characters.DELETE("/:id", h.DeleteCharacter)

		characters.GET("/:id/messages", h.GetMessages)
		characters.POST("/:id/messages", h.SendMessage)
		characters.DELETE("/:id/messages", h.ClearMessages)
	}
}

func (h *CharacterHandler) ListCharacters(c *gin.Context) {
	c.JSON(http.StatusOK, h.characters.List())
}

func (h *CharacterHandler) CreateCharacter(c *gin.Context) {
	var req models.CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	character, err := h.characters.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, character)
}

func (h *CharacterHandler) GetCharacter(c *gin.Context) {
	character, err := h.characters.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *CharacterHandler) UpdateCharacter(c *gin.Context) {
	var req models.UpdateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	character, err := h.characters.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *CharacterHandler) DeleteCharacter(c *gin.Context) {
	if err := h.characters.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CharacterHandler) GetMessages(c *gin.Context) {
	messages, err := h.chats.History(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage stores the user's message and answers 202; the reply arrives
// over the event feed.
func (h *CharacterHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.chats.Accept(middleware.Detach(c), c.Param("id"), req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, msg)
}

func (h *CharacterHandler) ClearMessages(c *gin.Context) {
	if err := h.chats.Clear(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
