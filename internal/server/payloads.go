package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
)

type createQuestionRequest struct {
	AskerName    string `json:"asker_name"`
	AskerID      string `json:"asker_id"`
	QuestionText string `json:"question_text"`
	Category     string `json:"category"`
}

type updateQuestionRequest struct {
	QuestionText *string `json:"question_text"`
	Category     *string `json:"category"`
}

type voteCountRequest struct {
	VoteCount *int64 `json:"vote_count" binding:"required"`
}

type createAnswerRequest struct {
	AnswererName string `json:"answerer_name"`
	AnswererID   string `json:"answerer_id"`
	AnswerText   string `json:"answer_text"`
}

type castVoteRequest struct {
	VoterID string `json:"voter_id"`
}

type questionPayload struct {
	ID           string    `json:"id"`
	AskerName    string    `json:"asker_name"`
	AskerID      string    `json:"asker_id"`
	QuestionText string    `json:"question_text"`
	Category     string    `json:"category"`
	VoteCount    int64     `json:"vote_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type answerPayload struct {
	ID           string    `json:"id"`
	QuestionID   string    `json:"question_id"`
	AnswererName string    `json:"answerer_name"`
	AnswererID   string    `json:"answerer_id"`
	AnswerText   string    `json:"answer_text"`
	CreatedAt    time.Time `json:"created_at"`
}

type votePayload struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id"`
	VoterID    string    `json:"voter_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type categoryPayload struct {
	Category      string `json:"category"`
	QuestionCount int64  `json:"question_count"`
}

type realtimeEventPayload struct {
	QuestionIDs []string `json:"questionIds"`
	Reason      string   `json:"reason,omitempty"`
	Timestamp   string   `json:"timestamp"`
	Source      string   `json:"source"`
}

func newQuestionPayload(question forum.Question) questionPayload {
	return questionPayload{
		ID:           question.ID,
		AskerName:    question.AskerName,
		AskerID:      question.AskerID,
		QuestionText: question.QuestionText,
		Category:     question.Category,
		VoteCount:    question.VoteCount,
		CreatedAt:    question.CreatedAt.UTC(),
		UpdatedAt:    question.UpdatedAt.UTC(),
	}
}

func newQuestionPayloads(questions []forum.Question) []questionPayload {
	payloads := make([]questionPayload, 0, len(questions))
	for _, question := range questions {
		payloads = append(payloads, newQuestionPayload(question))
	}
	return payloads
}

func newAnswerPayload(answer forum.Answer) answerPayload {
	return answerPayload{
		ID:           answer.ID,
		QuestionID:   answer.QuestionID,
		AnswererName: answer.AnswererName,
		AnswererID:   answer.AnswererID,
		AnswerText:   answer.AnswerText,
		CreatedAt:    answer.CreatedAt.UTC(),
	}
}

func newVotePayload(vote forum.Vote) votePayload {
	return votePayload{
		ID:         vote.ID,
		QuestionID: vote.QuestionID,
		VoterID:    vote.VoterID,
		CreatedAt:  vote.CreatedAt.UTC(),
	}
}

func newRealtimeEventPayload(message RealtimeMessage) realtimeEventPayload {
	return realtimeEventPayload{
		QuestionIDs: message.QuestionIDs,
		Reason:      message.Reason,
		Timestamp:   message.Timestamp.UTC().Format(time.RFC3339Nano),
		Source:      realtimeSourceBackend,
	}
}
