package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/access"
)

func TestVoteLedgerOverHTTP(t *testing.T) {
	server := newTestServer(t, access.Public(), nil)
	question := server.mustCreateQuestion(t, "What is TCP?")
	votesPath := "/questions/" + question.ID + "/votes"

	first := server.do(t, http.MethodPost, votesPath, castVoteRequest{VoterID: "A1"})
	if first.Code != http.StatusCreated {
		t.Fatalf("unexpected first vote status %d: %s", first.Code, first.Body.String())
	}
	cast := decodeBody[struct {
		Vote     votePayload     `json:"vote"`
		Question questionPayload `json:"question"`
	}](t, first)
	if cast.Vote.VoterID != "A1" || cast.Question.VoteCount != 1 {
		t.Fatalf("unexpected cast payload: %#v", cast)
	}

	duplicate := server.do(t, http.MethodPost, votesPath, castVoteRequest{VoterID: "A1"})
	if duplicate.Code != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate vote, got %d", duplicate.Code)
	}
	duplicateBody := decodeBody[errorResponse](t, duplicate)
	if duplicateBody.Error != "duplicate_vote" || duplicateBody.Code != "forum.cast_vote.duplicate_vote" {
		t.Fatalf("unexpected duplicate payload: %#v", duplicateBody)
	}

	hasVoted := decodeBody[struct {
		Voted bool `json:"voted"`
	}](t, server.do(t, http.MethodGet, votesPath+"/A1", nil))
	if !hasVoted.Voted {
		t.Fatalf("expected ledger to report the vote")
	}

	counted := decodeBody[struct {
		LedgerCount int64 `json:"ledger_count"`
	}](t, server.do(t, http.MethodGet, votesPath, nil))
	if counted.LedgerCount != 1 {
		t.Fatalf("expected ledger count 1, got %d", counted.LedgerCount)
	}

	retract := server.do(t, http.MethodDelete, votesPath+"/A1", nil)
	if retract.Code != http.StatusOK {
		t.Fatalf("unexpected retract status %d", retract.Code)
	}
	retracted := decodeBody[struct {
		Removed  bool            `json:"removed"`
		Question questionPayload `json:"question"`
	}](t, retract)
	if !retracted.Removed || retracted.Question.VoteCount != 0 {
		t.Fatalf("unexpected retract payload: %#v", retracted)
	}

	again := decodeBody[struct {
		Removed bool `json:"removed"`
	}](t, server.do(t, http.MethodDelete, votesPath+"/A1", nil))
	if again.Removed {
		t.Fatalf("second retraction must not remove a ledger row")
	}

	exposition := server.do(t, http.MethodGet, "/metrics", nil)
	if exposition.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", exposition.Code)
	}
	for _, outcome := range []string{"cast", "duplicate", "retracted", "noop"} {
		line := `askroom_ledger_vote_operations_total{outcome="` + outcome + `"} 1`
		if !strings.Contains(exposition.Body.String(), line) {
			t.Fatalf("expected metrics exposition to contain %q", line)
		}
	}
}

func TestCastVoteUnknownQuestion(t *testing.T) {
	server := newTestServer(t, access.Public(), nil)

	recorder := server.do(t, http.MethodPost, "/questions/missing/votes", castVoteRequest{VoterID: "A1"})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected unprocessable entity, got %d", recorder.Code)
	}
	body := decodeBody[errorResponse](t, recorder)
	if body.Error != "unknown_question" {
		t.Fatalf("unexpected error payload: %#v", body)
	}
}

func TestAnswersOverHTTP(t *testing.T) {
	server := newTestServer(t, access.Public(), nil)
	question := server.mustCreateQuestion(t, "What is TCP?")
	answersPath := "/questions/" + question.ID + "/answers"

	created := server.do(t, http.MethodPost, answersPath, createAnswerRequest{
		AnswererName: "Bob",
		AnswererID:   "B1",
		AnswerText:   "A transport protocol.",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("unexpected answer status %d: %s", created.Code, created.Body.String())
	}
	answer := decodeBody[answerPayload](t, created)
	if answer.QuestionID != question.ID {
		t.Fatalf("expected answer to reference %s, got %s", question.ID, answer.QuestionID)
	}

	fetched := server.do(t, http.MethodGet, "/answers/"+answer.ID, nil)
	if fetched.Code != http.StatusOK {
		t.Fatalf("unexpected get answer status %d", fetched.Code)
	}

	listed := decodeBody[struct {
		Answers []answerPayload `json:"answers"`
	}](t, server.do(t, http.MethodGet, answersPath, nil))
	if len(listed.Answers) != 1 || listed.Answers[0].ID != answer.ID {
		t.Fatalf("unexpected answers: %#v", listed.Answers)
	}

	orphan := server.do(t, http.MethodPost, "/questions/missing/answers", createAnswerRequest{
		AnswererName: "Bob",
		AnswererID:   "B1",
		AnswerText:   "orphan",
	})
	if orphan.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected unprocessable entity for orphan answer, got %d", orphan.Code)
	}

	if server.do(t, http.MethodDelete, "/questions/"+question.ID, nil).Code != http.StatusNoContent {
		t.Fatalf("expected question delete to succeed")
	}
	gone := server.do(t, http.MethodGet, "/answers/"+answer.ID, nil)
	if gone.Code != http.StatusNotFound {
		t.Fatalf("expected cascaded answer to be gone, got %d", gone.Code)
	}
	if decodeBody[errorResponse](t, gone).Error != "answer_not_found" {
		t.Fatalf("unexpected error payload: %s", gone.Body.String())
	}
}
