package forum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "forum.service.new"
	opCreateQuestion  = "forum.create_question"
	opListQuestions   = "forum.list_questions"
	opGetQuestion     = "forum.get_question"
	opUpdateQuestion  = "forum.update_question"
	opUpdateVoteCount = "forum.update_vote_count"
	opDeleteQuestion  = "forum.delete_question"
	opListCategories  = "forum.list_categories"

	fieldQuestionID = "question_id"
	queryByID       = "id = ?"

	reasonMissingDatabase   = "missing_database"
	reasonMissingIDProvider = "missing_id_provider"
	reasonInvalidInput      = "invalid_input"
	reasonIDGeneration      = "id_generation_failed"
	reasonInsertFailed      = "insert_failed"
	reasonQueryFailed       = "query_failed"
	reasonUpdateFailed      = "update_failed"
	reasonDeleteFailed      = "delete_failed"
	reasonNotFound          = "not_found"
	reasonUnknownQuestion   = "unknown_question"
	reasonDuplicateVote     = "duplicate_vote"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns the question store, the answer store and the vote ledger.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDProvider, errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Ping verifies that the underlying database answers.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errMissingDatabase
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateQuestion stores a new question with a zero vote count.
func (s *Service) CreateQuestion(ctx context.Context, input QuestionInput) (Question, error) {
	if err := s.ready(opCreateQuestion, true); err != nil {
		return Question{}, err
	}
	question, err := input.normalize()
	if err != nil {
		return Question{}, newServiceError(opCreateQuestion, reasonInvalidInput, err)
	}
	questionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateQuestion, reasonIDGeneration, err)
		return Question{}, newServiceError(opCreateQuestion, reasonIDGeneration, err)
	}

	createdAt := s.now()
	question.ID = questionID
	question.VoteCount = 0
	question.CreatedAt = createdAt
	question.UpdatedAt = createdAt

	if err := s.session(ctx).Create(&question).Error; err != nil {
		s.logError(opCreateQuestion, reasonInsertFailed, err, zap.String(fieldQuestionID, questionID))
		return Question{}, newServiceError(opCreateQuestion, reasonInsertFailed, err)
	}
	return question, nil
}

// ListQuestions returns questions filtered by category and sorted by the requested order.
func (s *Service) ListQuestions(ctx context.Context, query QuestionQuery) ([]Question, error) {
	if err := s.ready(opListQuestions, false); err != nil {
		return nil, err
	}
	order := query.Order
	if order == "" {
		order = QuestionOrderVotes
	}
	if order != QuestionOrderVotes && order != QuestionOrderRecent {
		return nil, newServiceError(opListQuestions, reasonInvalidInput, fmt.Errorf("%w: %q", ErrInvalidOrder, order))
	}

	statement := s.session(ctx).Model(&Question{})
	if query.Category != "" {
		statement = statement.Where("category = ?", query.Category)
	}
	if query.Limit > 0 {
		statement = statement.Limit(query.Limit)
	}

	var questions []Question
	if err := statement.Order(order.clause()).Find(&questions).Error; err != nil {
		s.logError(opListQuestions, reasonQueryFailed, err, zap.String("category", query.Category))
		return nil, newServiceError(opListQuestions, reasonQueryFailed, err)
	}
	return questions, nil
}

// GetQuestion loads a single question.
func (s *Service) GetQuestion(ctx context.Context, questionID string) (Question, error) {
	if err := s.ready(opGetQuestion, false); err != nil {
		return Question{}, err
	}
	questionID = normalizeIdentifier(questionID)
	question, err := loadQuestion(s.session(ctx), questionID)
	if err != nil {
		return Question{}, s.wrapLookupError(opGetQuestion, questionID, err)
	}
	return question, nil
}

// UpdateQuestion applies an edit. The modification time is refreshed even when the patch is empty.
func (s *Service) UpdateQuestion(ctx context.Context, questionID string, patch QuestionPatch) (Question, error) {
	if err := s.ready(opUpdateQuestion, false); err != nil {
		return Question{}, err
	}
	questionID = normalizeIdentifier(questionID)
	updates, err := patch.assignments()
	if err != nil {
		return Question{}, newServiceError(opUpdateQuestion, reasonInvalidInput, err)
	}

	var updated Question
	transactionError := s.session(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := s.touchQuestion(transaction, questionID, updates); err != nil {
			return err
		}
		updated, err = loadQuestion(transaction, questionID)
		return err
	})
	if transactionError != nil {
		return Question{}, s.wrapUpdateError(opUpdateQuestion, questionID, transactionError)
	}
	return updated, nil
}

// UpdateVoteCount overwrites the cached vote tally with a non-negative value. The ledger is not
// consulted; see RecountVotes.
func (s *Service) UpdateVoteCount(ctx context.Context, questionID string, newCount int64) (Question, error) {
	if err := s.ready(opUpdateVoteCount, false); err != nil {
		return Question{}, err
	}
	questionID = normalizeIdentifier(questionID)
	if newCount < 0 {
		return Question{}, newServiceError(opUpdateVoteCount, reasonInvalidInput, &FieldError{Field: "vote_count", cause: ErrNegativeVoteCount})
	}

	var updated Question
	transactionError := s.session(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := s.touchQuestion(transaction, questionID, map[string]any{"vote_count": newCount}); err != nil {
			return err
		}
		var err error
		updated, err = loadQuestion(transaction, questionID)
		return err
	})
	if transactionError != nil {
		return Question{}, s.wrapUpdateError(opUpdateVoteCount, questionID, transactionError)
	}
	return updated, nil
}

// DeleteQuestion removes a question; its answers and votes are removed by the cascading foreign keys.
func (s *Service) DeleteQuestion(ctx context.Context, questionID string) error {
	if err := s.ready(opDeleteQuestion, false); err != nil {
		return err
	}
	questionID = normalizeIdentifier(questionID)
	result := s.session(ctx).Where(queryByID, questionID).Delete(&Question{})
	if result.Error != nil {
		s.logError(opDeleteQuestion, reasonDeleteFailed, result.Error, zap.String(fieldQuestionID, questionID))
		return newServiceError(opDeleteQuestion, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteQuestion, reasonNotFound, ErrQuestionNotFound)
	}
	return nil
}

// ListCategories reports every category in use with its question count, ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]CategorySummary, error) {
	if err := s.ready(opListCategories, false); err != nil {
		return nil, err
	}
	var summaries []CategorySummary
	if err := s.session(ctx).
		Model(&Question{}).
		Select("category, COUNT(*) AS question_count").
		Group("category").
		Order("category ASC").
		Scan(&summaries).Error; err != nil {
		s.logError(opListCategories, reasonQueryFailed, err)
		return nil, newServiceError(opListCategories, reasonQueryFailed, err)
	}
	return summaries, nil
}

// touchQuestion issues a single UPDATE against the question row and always stamps updated_at.
func (s *Service) touchQuestion(transaction *gorm.DB, questionID string, updates map[string]any) error {
	assignments := make(map[string]any, len(updates)+1)
	for column, value := range updates {
		assignments[column] = value
	}
	assignments["updated_at"] = s.now()

	result := transaction.Model(&Question{}).Where(queryByID, questionID).Updates(assignments)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

func loadQuestion(db *gorm.DB, questionID string) (Question, error) {
	var question Question
	err := db.Where(queryByID, questionID).Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Question{}, ErrQuestionNotFound
	}
	return question, err
}

func (s *Service) wrapLookupError(operation, questionID string, err error) error {
	if errors.Is(err, ErrQuestionNotFound) {
		return newServiceError(operation, reasonNotFound, err)
	}
	s.logError(operation, reasonQueryFailed, err, zap.String(fieldQuestionID, questionID))
	return newServiceError(operation, reasonQueryFailed, err)
}

func (s *Service) wrapUpdateError(operation, questionID string, err error) error {
	if errors.Is(err, ErrQuestionNotFound) {
		return newServiceError(operation, reasonNotFound, err)
	}
	s.logError(operation, reasonUpdateFailed, err, zap.String(fieldQuestionID, questionID))
	return newServiceError(operation, reasonUpdateFailed, err)
}

// session binds the service clock so GORM-managed timestamps follow it.
func (s *Service) session(ctx context.Context) *gorm.DB {
	return s.db.Session(&gorm.Session{NowFunc: s.now}).WithContext(ctx)
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) ready(operation string, needsIDs bool) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	if needsIDs && s.idProvider == nil {
		s.logError(operation, reasonMissingIDProvider, errMissingIDProvider)
		return newServiceError(operation, reasonMissingIDProvider, errMissingIDProvider)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("forum service error", attrs...)
}
