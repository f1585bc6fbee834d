package server

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/access"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultRealtimeBufferSize = 16
	unmatchedRoute            = "unmatched"
)

var (
	errMissingForumService = errors.New("forum service dependency required")
	errMissingPolicy       = errors.New("access policy dependency required")
)

type Dependencies struct {
	ForumService   *forum.Service
	Policy         access.Policy
	Realtime       *RealtimeDispatcher
	Metrics        *metrics.Registry
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ForumService == nil {
		return nil, errMissingForumService
	}
	if deps.Policy.Name() == "" {
		return nil, errMissingPolicy
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher(defaultRealtimeBufferSize)
	}

	handler := &httpHandler{
		forumService: deps.ForumService,
		policy:       deps.Policy,
		realtime:     realtime,
		metrics:      deps.Metrics,
		logger:       logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.observeRequest)
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.GET("/questions", handler.require(access.TableQuestions, access.OperationSelect), handler.handleListQuestions)
	router.POST("/questions", handler.require(access.TableQuestions, access.OperationInsert), handler.handleCreateQuestion)
	router.GET("/questions/:id", handler.require(access.TableQuestions, access.OperationSelect), handler.handleGetQuestion)
	router.PATCH("/questions/:id", handler.require(access.TableQuestions, access.OperationUpdate), handler.handleUpdateQuestion)
	router.PUT("/questions/:id/vote-count", handler.require(access.TableQuestions, access.OperationUpdate), handler.handleUpdateVoteCount)
	router.POST("/questions/:id/recount", handler.require(access.TableQuestions, access.OperationUpdate), handler.handleRecountVotes)
	router.DELETE("/questions/:id", handler.require(access.TableQuestions, access.OperationDelete), handler.handleDeleteQuestion)
	router.GET("/categories", handler.require(access.TableQuestions, access.OperationSelect), handler.handleListCategories)

	router.GET("/questions/:id/answers", handler.require(access.TableAnswers, access.OperationSelect), handler.handleListAnswers)
	router.POST("/questions/:id/answers", handler.require(access.TableAnswers, access.OperationInsert), handler.handleCreateAnswer)
	router.GET("/answers/:id", handler.require(access.TableAnswers, access.OperationSelect), handler.handleGetAnswer)

	router.GET("/questions/:id/votes", handler.require(access.TableVotes, access.OperationSelect), handler.handleCountVotes)
	router.GET("/questions/:id/votes/:voter_id", handler.require(access.TableVotes, access.OperationSelect), handler.handleHasVoted)
	router.POST("/questions/:id/votes", handler.require(access.TableVotes, access.OperationInsert), handler.handleCastVote)
	router.DELETE("/questions/:id/votes/:voter_id", handler.require(access.TableVotes, access.OperationDelete), handler.handleRetractVote)

	router.GET("/events", handler.require(access.TableQuestions, access.OperationSelect), handler.handleEventStream)

	return router, nil
}

type httpHandler struct {
	forumService *forum.Service
	policy       access.Policy
	realtime     *RealtimeDispatcher
	metrics      *metrics.Registry
	logger       *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

// require enforces the configured access policy for one table operation.
func (h *httpHandler) require(table access.Table, operation access.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.policy.Check(table, operation); err != nil {
			h.logger.Info("access denied",
				zap.String("policy", h.policy.Name()),
				zap.String("table", string(table)),
				zap.String("operation", string(operation)))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access_denied"})
			return
		}
		c.Next()
	}
}

func (h *httpHandler) observeRequest(c *gin.Context) {
	startedAt := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	status := c.Writer.Status()
	elapsed := time.Since(startedAt)
	h.metrics.ObserveRequest(c.Request.Method, route, status, elapsed)

	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("latency", elapsed),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("http request", fields...)
		return
	}
	h.logger.Debug("http request", fields...)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if err := h.forumService.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondServiceError maps forum failures onto HTTP statuses. Only unexpected failures are logged here;
// the service already logged storage errors with their operation and reason.
func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	status, reason := classifyServiceError(err)
	payload := gin.H{"error": reason}

	var serviceErr *forum.ServiceError
	if errors.As(err, &serviceErr) {
		payload["code"] = serviceErr.Code()
	}
	var fieldErr *forum.FieldError
	if errors.As(err, &fieldErr) {
		payload["field"] = fieldErr.Field
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("forum request failed", zap.String("route", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, payload)
}

func classifyServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, forum.ErrMissingField), errors.Is(err, forum.ErrFieldTooLong), errors.Is(err, forum.ErrNegativeVoteCount):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, forum.ErrInvalidOrder):
		return http.StatusBadRequest, "invalid_order"
	case errors.Is(err, forum.ErrQuestionReference):
		return http.StatusUnprocessableEntity, "unknown_question"
	case errors.Is(err, forum.ErrDuplicateVote):
		return http.StatusConflict, "duplicate_vote"
	case errors.Is(err, forum.ErrQuestionNotFound):
		return http.StatusNotFound, "question_not_found"
	case errors.Is(err, forum.ErrAnswerNotFound):
		return http.StatusNotFound, "answer_not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
