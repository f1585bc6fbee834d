package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/metrics"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleCastVote(c *gin.Context) {
	var request castVoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	result, err := h.forumService.CastVote(c.Request.Context(), c.Param("id"), request.VoterID)
	if err != nil {
		if errors.Is(err, forum.ErrDuplicateVote) {
			h.metrics.RecordVote(metrics.VoteOutcomeDuplicate)
		}
		h.respondServiceError(c, err)
		return
	}
	h.metrics.RecordVote(metrics.VoteOutcomeCast)
	h.publishQuestionChange(result.Question.ID, reasonVoted)
	c.JSON(http.StatusCreated, gin.H{
		"vote":     newVotePayload(result.Vote),
		"question": newQuestionPayload(result.Question),
	})
}

func (h *httpHandler) handleRetractVote(c *gin.Context) {
	result, err := h.forumService.RetractVote(c.Request.Context(), c.Param("id"), c.Param("voter_id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if !result.Removed {
		h.metrics.RecordVote(metrics.VoteOutcomeNoop)
	} else {
		h.metrics.RecordVote(metrics.VoteOutcomeRetracted)
		h.publishQuestionChange(result.Question.ID, reasonUnvoted)
	}
	c.JSON(http.StatusOK, gin.H{
		"removed":  result.Removed,
		"question": newQuestionPayload(result.Question),
	})
}

func (h *httpHandler) handleHasVoted(c *gin.Context) {
	questionID := c.Param("id")
	voterID := c.Param("voter_id")
	voted, err := h.forumService.HasVoted(c.Request.Context(), questionID, voterID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question_id": questionID, "voter_id": voterID, "voted": voted})
}

func (h *httpHandler) handleCountVotes(c *gin.Context) {
	questionID := c.Param("id")
	count, err := h.forumService.CountVotes(c.Request.Context(), questionID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question_id": questionID, "ledger_count": count})
}
