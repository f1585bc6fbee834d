package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListAnswers(c *gin.Context) {
	answers, err := h.forumService.ListAnswers(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payloads := make([]answerPayload, 0, len(answers))
	for _, answer := range answers {
		payloads = append(payloads, newAnswerPayload(answer))
	}
	c.JSON(http.StatusOK, gin.H{"answers": payloads})
}

func (h *httpHandler) handleCreateAnswer(c *gin.Context) {
	var request createAnswerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	answer, err := h.forumService.CreateAnswer(c.Request.Context(), forum.AnswerInput{
		QuestionID:   c.Param("id"),
		AnswererName: request.AnswererName,
		AnswererID:   request.AnswererID,
		Text:         request.AnswerText,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.realtime.Publish(RealtimeMessage{
		EventType:   RealtimeEventAnswerChanged,
		QuestionIDs: []string{answer.QuestionID},
		Reason:      reasonAnswered,
	})
	c.JSON(http.StatusCreated, newAnswerPayload(answer))
}

func (h *httpHandler) handleGetAnswer(c *gin.Context) {
	answer, err := h.forumService.GetAnswer(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAnswerPayload(answer))
}
