package forum

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreateAnswer = "forum.create_answer"
	opListAnswers  = "forum.list_answers"
	opGetAnswer    = "forum.get_answer"

	fieldAnswerID    = "answer_id"
	queryQuestionID  = fieldQuestionID + " = ?"
	orderNewestFirst = "created_at DESC, id DESC"
)

// CreateAnswer stores an answer. It fails with ErrQuestionReference when the question does not exist.
func (s *Service) CreateAnswer(ctx context.Context, input AnswerInput) (Answer, error) {
	if err := s.ready(opCreateAnswer, true); err != nil {
		return Answer{}, err
	}
	answer, err := input.normalize()
	if err != nil {
		return Answer{}, newServiceError(opCreateAnswer, reasonInvalidInput, err)
	}
	answerID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateAnswer, reasonIDGeneration, err)
		return Answer{}, newServiceError(opCreateAnswer, reasonIDGeneration, err)
	}
	answer.ID = answerID
	answer.CreatedAt = s.now()

	transactionError := s.session(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := requireQuestion(transaction, answer.QuestionID); err != nil {
			return err
		}
		return transaction.Create(&answer).Error
	})
	if transactionError != nil {
		if errors.Is(transactionError, ErrQuestionReference) || isForeignKeyViolation(transactionError) {
			return Answer{}, newServiceError(opCreateAnswer, reasonUnknownQuestion, ErrQuestionReference)
		}
		s.logError(opCreateAnswer, reasonInsertFailed, transactionError,
			zap.String(fieldQuestionID, answer.QuestionID),
			zap.String(fieldAnswerID, answer.ID))
		return Answer{}, newServiceError(opCreateAnswer, reasonInsertFailed, transactionError)
	}
	return answer, nil
}

// ListAnswers returns the answers of a question, newest first. Unknown questions yield an empty list.
func (s *Service) ListAnswers(ctx context.Context, questionID string) ([]Answer, error) {
	if err := s.ready(opListAnswers, false); err != nil {
		return nil, err
	}
	questionID = normalizeIdentifier(questionID)
	var answers []Answer
	if err := s.session(ctx).
		Where(queryQuestionID, questionID).
		Order(orderNewestFirst).
		Find(&answers).Error; err != nil {
		s.logError(opListAnswers, reasonQueryFailed, err, zap.String(fieldQuestionID, questionID))
		return nil, newServiceError(opListAnswers, reasonQueryFailed, err)
	}
	return answers, nil
}

// GetAnswer loads a single answer.
func (s *Service) GetAnswer(ctx context.Context, answerID string) (Answer, error) {
	if err := s.ready(opGetAnswer, false); err != nil {
		return Answer{}, err
	}
	answerID = normalizeIdentifier(answerID)
	var answer Answer
	err := s.session(ctx).Where(queryByID, answerID).Take(&answer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Answer{}, newServiceError(opGetAnswer, reasonNotFound, ErrAnswerNotFound)
	}
	if err != nil {
		s.logError(opGetAnswer, reasonQueryFailed, err, zap.String(fieldAnswerID, answerID))
		return Answer{}, newServiceError(opGetAnswer, reasonQueryFailed, err)
	}
	return answer, nil
}

// requireQuestion fails with ErrQuestionReference when no question row has the identifier.
func requireQuestion(transaction *gorm.DB, questionID string) error {
	var matched int64
	if err := transaction.Model(&Question{}).Where(queryByID, questionID).Count(&matched).Error; err != nil {
		return err
	}
	if matched == 0 {
		return ErrQuestionReference
	}
	return nil
}
