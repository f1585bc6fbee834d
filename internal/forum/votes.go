package forum

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCastVote     = "forum.cast_vote"
	opRetractVote  = "forum.retract_vote"
	opHasVoted     = "forum.has_voted"
	opCountVotes   = "forum.count_votes"
	opRecountVotes = "forum.recount_votes"

	fieldVoterID     = "voter_id"
	queryLedgerPair  = fieldQuestionID + " = ? AND " + fieldVoterID + " = ?"
	incrementTally   = "vote_count + 1"
	decrementTallyAt = "CASE WHEN vote_count > 0 THEN vote_count - 1 ELSE 0 END"
)

// CastVote inserts a ledger row and increments the cached tally in one transaction.
// A second vote for the same pair fails with ErrDuplicateVote and leaves the tally untouched.
func (s *Service) CastVote(ctx context.Context, questionID, voterID string) (VoteResult, error) {
	if err := s.ready(opCastVote, true); err != nil {
		return VoteResult{}, err
	}
	vote, err := newLedgerRow(questionID, voterID)
	if err != nil {
		return VoteResult{}, newServiceError(opCastVote, reasonInvalidInput, err)
	}
	voteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCastVote, reasonIDGeneration, err)
		return VoteResult{}, newServiceError(opCastVote, reasonIDGeneration, err)
	}
	vote.ID = voteID
	vote.CreatedAt = s.now()

	var result VoteResult
	transactionError := s.session(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := requireQuestion(transaction, vote.QuestionID); err != nil {
			return err
		}
		if err := transaction.Create(&vote).Error; err != nil {
			return err
		}
		if err := s.touchQuestion(transaction, vote.QuestionID, map[string]any{"vote_count": gorm.Expr(incrementTally)}); err != nil {
			return err
		}
		question, err := loadQuestion(transaction, vote.QuestionID)
		if err != nil {
			return err
		}
		result = VoteResult{Vote: vote, Question: question}
		return nil
	})
	if transactionError != nil {
		switch {
		case isUniqueViolation(transactionError):
			return VoteResult{}, newServiceError(opCastVote, reasonDuplicateVote, ErrDuplicateVote)
		case errors.Is(transactionError, ErrQuestionReference), isForeignKeyViolation(transactionError):
			return VoteResult{}, newServiceError(opCastVote, reasonUnknownQuestion, ErrQuestionReference)
		}
		s.logError(opCastVote, reasonInsertFailed, transactionError,
			zap.String(fieldQuestionID, vote.QuestionID),
			zap.String(fieldVoterID, vote.VoterID))
		return VoteResult{}, newServiceError(opCastVote, reasonInsertFailed, transactionError)
	}
	return result, nil
}

// RetractVote removes the voter's ledger row when present and, only then, decrements the tally
// in the same transaction. Retracting a vote that does not exist reports Removed=false.
func (s *Service) RetractVote(ctx context.Context, questionID, voterID string) (RetractResult, error) {
	if err := s.ready(opRetractVote, false); err != nil {
		return RetractResult{}, err
	}
	pair, err := newLedgerRow(questionID, voterID)
	if err != nil {
		return RetractResult{}, newServiceError(opRetractVote, reasonInvalidInput, err)
	}

	var result RetractResult
	transactionError := s.session(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := requireQuestion(transaction, pair.QuestionID); err != nil {
			return err
		}
		deletion := transaction.Where(queryLedgerPair, pair.QuestionID, pair.VoterID).Delete(&Vote{})
		if deletion.Error != nil {
			return deletion.Error
		}
		result.Removed = deletion.RowsAffected > 0
		if result.Removed {
			if err := s.touchQuestion(transaction, pair.QuestionID, map[string]any{"vote_count": gorm.Expr(decrementTallyAt)}); err != nil {
				return err
			}
		}
		question, err := loadQuestion(transaction, pair.QuestionID)
		if err != nil {
			return err
		}
		result.Question = question
		return nil
	})
	if transactionError != nil {
		if errors.Is(transactionError, ErrQuestionReference) {
			return RetractResult{}, newServiceError(opRetractVote, reasonUnknownQuestion, ErrQuestionReference)
		}
		s.logError(opRetractVote, reasonDeleteFailed, transactionError,
			zap.String(fieldQuestionID, pair.QuestionID),
			zap.String(fieldVoterID, pair.VoterID))
		return RetractResult{}, newServiceError(opRetractVote, reasonDeleteFailed, transactionError)
	}
	return result, nil
}

// HasVoted consults the ledger for the (question, voter) pair.
func (s *Service) HasVoted(ctx context.Context, questionID, voterID string) (bool, error) {
	if err := s.ready(opHasVoted, false); err != nil {
		return false, err
	}
	questionID = normalizeIdentifier(questionID)
	voterID = normalizeIdentifier(voterID)
	var matched int64
	if err := s.session(ctx).
		Model(&Vote{}).
		Where(queryLedgerPair, questionID, voterID).
		Count(&matched).Error; err != nil {
		s.logError(opHasVoted, reasonQueryFailed, err,
			zap.String(fieldQuestionID, questionID),
			zap.String(fieldVoterID, voterID))
		return false, newServiceError(opHasVoted, reasonQueryFailed, err)
	}
	return matched > 0, nil
}

// CountVotes aggregates the ledger rows of a question.
func (s *Service) CountVotes(ctx context.Context, questionID string) (int64, error) {
	if err := s.ready(opCountVotes, false); err != nil {
		return 0, err
	}
	questionID = normalizeIdentifier(questionID)
	count, err := countLedgerRows(s.session(ctx), questionID)
	if err != nil {
		s.logError(opCountVotes, reasonQueryFailed, err, zap.String(fieldQuestionID, questionID))
		return 0, newServiceError(opCountVotes, reasonQueryFailed, err)
	}
	return count, nil
}

// RecountVotes rewrites the cached tally from the ledger.
func (s *Service) RecountVotes(ctx context.Context, questionID string) (Question, error) {
	if err := s.ready(opRecountVotes, false); err != nil {
		return Question{}, err
	}
	questionID = normalizeIdentifier(questionID)
	var updated Question
	transactionError := s.session(ctx).Transaction(func(transaction *gorm.DB) error {
		count, err := countLedgerRows(transaction, questionID)
		if err != nil {
			return err
		}
		if err := s.touchQuestion(transaction, questionID, map[string]any{"vote_count": count}); err != nil {
			return err
		}
		updated, err = loadQuestion(transaction, questionID)
		return err
	})
	if transactionError != nil {
		return Question{}, s.wrapUpdateError(opRecountVotes, questionID, transactionError)
	}
	return updated, nil
}

func countLedgerRows(db *gorm.DB, questionID string) (int64, error) {
	var count int64
	err := db.Model(&Vote{}).Where(queryQuestionID, questionID).Count(&count).Error
	return count, err
}

func newLedgerRow(questionID, voterID string) (Vote, error) {
	normalizedQuestionID, err := requireIdentifier(fieldQuestionID, questionID)
	if err != nil {
		return Vote{}, err
	}
	normalizedVoterID, err := requireIdentifier(fieldVoterID, voterID)
	if err != nil {
		return Vote{}, err
	}
	return Vote{QuestionID: normalizedQuestionID, VoterID: normalizedVoterID}, nil
}
