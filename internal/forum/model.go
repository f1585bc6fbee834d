package forum

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCategory is assigned to questions submitted without a category.
const DefaultCategory = "General"

const maxIdentifierLength = 190

var (
	// ErrMissingField indicates that a required attribute was absent or blank.
	ErrMissingField = errors.New("forum: missing required field")
	// ErrFieldTooLong indicates that an attribute exceeds its storage bounds.
	ErrFieldTooLong = errors.New("forum: field exceeds storage bounds")
	// ErrQuestionReference indicates that an answer or vote referenced a question that does not exist.
	ErrQuestionReference = errors.New("forum: referenced question does not exist")
	// ErrDuplicateVote indicates that the voter already has a ledger row for the question.
	ErrDuplicateVote = errors.New("forum: voter already voted on question")
	// ErrQuestionNotFound indicates that a question lookup matched no row.
	ErrQuestionNotFound = errors.New("forum: question not found")
	// ErrAnswerNotFound indicates that an answer lookup matched no row.
	ErrAnswerNotFound = errors.New("forum: answer not found")
	// ErrInvalidOrder indicates that a question listing order is not supported.
	ErrInvalidOrder = errors.New("forum: invalid question order")
	// ErrNegativeVoteCount indicates that a stored tally would drop below zero.
	ErrNegativeVoteCount = errors.New("forum: vote count must not be negative")
)

// FieldError names the attribute that failed write-time validation.
type FieldError struct {
	Field string
	cause error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s", e.cause, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.cause
}

func requireText(field, rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", &FieldError{Field: field, cause: ErrMissingField}
	}
	return trimmed, nil
}

// normalizeIdentifier applies the same trimming to lookups that writes apply to stored ids.
func normalizeIdentifier(rawInput string) string {
	return strings.TrimSpace(rawInput)
}

func requireIdentifier(field, rawInput string) (string, error) {
	trimmed, err := requireText(field, rawInput)
	if err != nil {
		return "", err
	}
	if len(trimmed) > maxIdentifierLength {
		return "", &FieldError{Field: field, cause: ErrFieldTooLong}
	}
	return trimmed, nil
}

func normalizeCategory(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return DefaultCategory, nil
	}
	if len(trimmed) > maxIdentifierLength {
		return "", &FieldError{Field: "category", cause: ErrFieldTooLong}
	}
	return trimmed, nil
}

// Question models a submitted question with its cached vote tally.
type Question struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	AskerName    string    `gorm:"column:asker_name;size:190;not null"`
	AskerID      string    `gorm:"column:asker_id;size:190;not null"`
	QuestionText string    `gorm:"column:question_text;type:text;not null"`
	Category     string    `gorm:"column:category;size:190;not null;default:'General';index:idx_questions_category"`
	VoteCount    int64     `gorm:"column:vote_count;not null;default:0;index:idx_questions_vote_count,sort:desc"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;index:idx_questions_created_at,sort:desc"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Question) TableName() string {
	return "questions"
}

// Answer models a reply to exactly one question. Answers are append-only.
type Answer struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	QuestionID   string    `gorm:"column:question_id;size:190;not null;index:idx_answers_question_id"`
	Question     *Question `gorm:"foreignKey:QuestionID;references:ID;constraint:OnDelete:CASCADE"`
	AnswererName string    `gorm:"column:answerer_name;size:190;not null"`
	AnswererID   string    `gorm:"column:answerer_id;size:190;not null"`
	AnswerText   string    `gorm:"column:answer_text;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Answer) TableName() string {
	return "answers"
}

// Vote is a ledger row; the (question, voter) pair is unique.
type Vote struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	QuestionID string    `gorm:"column:question_id;size:190;not null;uniqueIndex:idx_votes_question_voter,priority:1;index:idx_votes_question_id"`
	Question   *Question `gorm:"foreignKey:QuestionID;references:ID;constraint:OnDelete:CASCADE"`
	VoterID    string    `gorm:"column:voter_id;size:190;not null;uniqueIndex:idx_votes_question_voter,priority:2;index:idx_votes_voter_id"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// Models lists every persisted forum model in dependency order.
func Models() []any {
	return []any{&Question{}, &Answer{}, &Vote{}}
}

// QuestionInput carries the attributes supplied when asking a question.
type QuestionInput struct {
	AskerName string
	AskerID   string
	Text      string
	Category  string
}

func (input QuestionInput) normalize() (Question, error) {
	askerName, err := requireIdentifier("asker_name", input.AskerName)
	if err != nil {
		return Question{}, err
	}
	askerID, err := requireIdentifier("asker_id", input.AskerID)
	if err != nil {
		return Question{}, err
	}
	text, err := requireText("question_text", input.Text)
	if err != nil {
		return Question{}, err
	}
	category, err := normalizeCategory(input.Category)
	if err != nil {
		return Question{}, err
	}
	return Question{
		AskerName:    askerName,
		AskerID:      askerID,
		QuestionText: text,
		Category:     category,
	}, nil
}

// QuestionPatch describes an edit. Nil fields are left untouched.
type QuestionPatch struct {
	Text     *string
	Category *string
}

func (patch QuestionPatch) assignments() (map[string]any, error) {
	updates := map[string]any{}
	if patch.Text != nil {
		text, err := requireText("question_text", *patch.Text)
		if err != nil {
			return nil, err
		}
		updates["question_text"] = text
	}
	if patch.Category != nil {
		category, err := normalizeCategory(*patch.Category)
		if err != nil {
			return nil, err
		}
		updates["category"] = category
	}
	return updates, nil
}

// QuestionOrder selects the sort applied to question listings.
type QuestionOrder string

const (
	// QuestionOrderVotes sorts by vote count, most voted first.
	QuestionOrderVotes QuestionOrder = "votes"
	// QuestionOrderRecent sorts by creation time, newest first.
	QuestionOrderRecent QuestionOrder = "recent"
)

// ParseQuestionOrder validates raw input. Blank input selects QuestionOrderVotes.
func ParseQuestionOrder(rawInput string) (QuestionOrder, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case "", string(QuestionOrderVotes):
		return QuestionOrderVotes, nil
	case string(QuestionOrderRecent):
		return QuestionOrderRecent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOrder, rawInput)
	}
}

func (order QuestionOrder) clause() string {
	if order == QuestionOrderRecent {
		return "created_at DESC, id DESC"
	}
	return "vote_count DESC, created_at DESC, id DESC"
}

// QuestionQuery filters and orders question listings. Zero Limit means unbounded.
type QuestionQuery struct {
	Category string
	Order    QuestionOrder
	Limit    int
}

// AnswerInput carries the attributes supplied when answering a question.
type AnswerInput struct {
	QuestionID   string
	AnswererName string
	AnswererID   string
	Text         string
}

func (input AnswerInput) normalize() (Answer, error) {
	questionID, err := requireIdentifier("question_id", input.QuestionID)
	if err != nil {
		return Answer{}, err
	}
	answererName, err := requireIdentifier("answerer_name", input.AnswererName)
	if err != nil {
		return Answer{}, err
	}
	answererID, err := requireIdentifier("answerer_id", input.AnswererID)
	if err != nil {
		return Answer{}, err
	}
	text, err := requireText("answer_text", input.Text)
	if err != nil {
		return Answer{}, err
	}
	return Answer{
		QuestionID:   questionID,
		AnswererName: answererName,
		AnswererID:   answererID,
		AnswerText:   text,
	}, nil
}

// CategorySummary reports how many questions carry a category.
type CategorySummary struct {
	Category      string `gorm:"column:category"`
	QuestionCount int64  `gorm:"column:question_count"`
}

// VoteResult captures the ledger row and the question after a cast.
type VoteResult struct {
	Vote     Vote
	Question Question
}

// RetractResult reports whether a ledger row was removed and the resulting question state.
type RetractResult struct {
	Removed  bool
	Question Question
}
