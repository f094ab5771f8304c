package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asepsopiyan/keris-lite/internal/app"
	"github.com/asepsopiyan/keris-lite/internal/model"
	"github.com/asepsopiyan/keris-lite/internal/transport/http/response"
)

// Answerer is satisfied by *app.RAGService.
type Answerer interface {
	Answer(ctx context.Context, input app.AskInput) (*model.RetrievalResult, error)
}

type AskHandler struct {
	rag Answerer
}

type AskRequest struct {
	Question       string         `json:"question" binding:"required,max=4000"`
	Limit          int            `json:"limit" binding:"omitempty,min=1,max=50"`
	ScoreThreshold *float64       `json:"score_threshold" binding:"omitempty,min=-1,max=1"`
	Filters        map[string]any `json:"filters"`
}

func NewAskHandler(rag Answerer) *AskHandler {
	return &AskHandler{rag: rag}
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.rag.Answer(c.Request.Context(), app.AskInput{
		Question:       req.Question,
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
		Filters:        req.Filters,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, result)
}
