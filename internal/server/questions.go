package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
	"github.com/gin-gonic/gin"
)

const (
	maxListLimit = 500

	reasonCreated  = "created"
	reasonEdited   = "edited"
	reasonDeleted  = "deleted"
	reasonTallied  = "tallied"
	reasonVoted    = "voted"
	reasonUnvoted  = "unvoted"
	reasonAnswered = "answered"
)

func (h *httpHandler) handleListQuestions(c *gin.Context) {
	order, err := forum.ParseQuestionOrder(c.Query("order"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order"})
		return
	}
	limit, ok := parseLimit(c.Query("limit"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return
	}

	questions, err := h.forumService.ListQuestions(c.Request.Context(), forum.QuestionQuery{
		Category: strings.TrimSpace(c.Query("category")),
		Order:    order,
		Limit:    limit,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": newQuestionPayloads(questions)})
}

func (h *httpHandler) handleCreateQuestion(c *gin.Context) {
	var request createQuestionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	question, err := h.forumService.CreateQuestion(c.Request.Context(), forum.QuestionInput{
		AskerName: request.AskerName,
		AskerID:   request.AskerID,
		Text:      request.QuestionText,
		Category:  request.Category,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishQuestionChange(question.ID, reasonCreated)
	c.JSON(http.StatusCreated, newQuestionPayload(question))
}

func (h *httpHandler) handleGetQuestion(c *gin.Context) {
	question, err := h.forumService.GetQuestion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newQuestionPayload(question))
}

func (h *httpHandler) handleUpdateQuestion(c *gin.Context) {
	var request updateQuestionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	question, err := h.forumService.UpdateQuestion(c.Request.Context(), c.Param("id"), forum.QuestionPatch{
		Text:     request.QuestionText,
		Category: request.Category,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishQuestionChange(question.ID, reasonEdited)
	c.JSON(http.StatusOK, newQuestionPayload(question))
}

func (h *httpHandler) handleUpdateVoteCount(c *gin.Context) {
	var request voteCountRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "field": "vote_count"})
		return
	}
	question, err := h.forumService.UpdateVoteCount(c.Request.Context(), c.Param("id"), *request.VoteCount)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishQuestionChange(question.ID, reasonTallied)
	c.JSON(http.StatusOK, newQuestionPayload(question))
}

func (h *httpHandler) handleRecountVotes(c *gin.Context) {
	question, err := h.forumService.RecountVotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishQuestionChange(question.ID, reasonTallied)
	c.JSON(http.StatusOK, newQuestionPayload(question))
}

func (h *httpHandler) handleDeleteQuestion(c *gin.Context) {
	questionID := c.Param("id")
	if err := h.forumService.DeleteQuestion(c.Request.Context(), questionID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.publishQuestionChange(questionID, reasonDeleted)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	summaries, err := h.forumService.ListCategories(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	categories := make([]categoryPayload, 0, len(summaries))
	for _, summary := range summaries {
		categories = append(categories, categoryPayload{Category: summary.Category, QuestionCount: summary.QuestionCount})
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *httpHandler) publishQuestionChange(questionID, reason string) {
	h.realtime.Publish(RealtimeMessage{
		EventType:   RealtimeEventQuestionChanged,
		QuestionIDs: []string{questionID},
		Reason:      reason,
	})
}

// parseLimit accepts an empty value as "no limit" and caps larger values at maxListLimit.
func parseLimit(rawValue string) (int, bool) {
	trimmed := strings.TrimSpace(rawValue)
	if trimmed == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(trimmed)
	if err != nil || limit < 0 {
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}
