package api

import (
	"context"
	"errors"
	"net/http"

	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

type ChatService interface {
	Handle(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error)
}

type chatRequest struct {
	Query    string `json:"query" binding:"required"`
	ChildID  string `json:"child_id" binding:"required"`
	ChildAge *int   `json:"child_age" binding:"omitempty,gte=0,lte=18"`
}

type ChatHandler struct {
	chat   ChatService
	logger logger.Logger
}

func NewChatHandler(chat ChatService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: log.WithFields(map[string]interface{}{"handler": "chat"}),
	}
}

// Ask handles POST /api/v1/chat.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	resp, err := h.chat.Handle(c.Request.Context(), orchestrator.ChatRequest{
		Query:    req.Query,
		ChildID:  req.ChildID,
		ChildAge: req.ChildAge,
	})
	if errors.Is(err, orchestrator.ErrInvalidRequest) {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err != nil {
		h.logger.Error("chat pipeline failed", map[string]interface{}{
			"userId": userID(c),
			"error":  err.Error(),
		})
		respondError(c, apperrors.NewContextAssemblyFailedError("could not prepare the answer"))
		return
	}

	c.JSON(http.StatusOK, resp)
}
