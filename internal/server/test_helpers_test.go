package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/access"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/database"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
	"github.com/MarcoPoloResearchLab/askroom/backend/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type testServer struct {
	handler  http.Handler
	service  *forum.Service
	realtime *RealtimeDispatcher
	metrics  *metrics.Registry
}

func newTestServer(t *testing.T, policy access.Policy, logger *zap.Logger) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.Open(database.Options{
		Driver: database.DriverSQLite,
		Path:   fmt.Sprintf("file:askroom_server_%d?mode=memory&cache=shared", time.Now().UnixNano()),
	}, logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	service, err := forum.NewService(forum.ServiceConfig{
		Database:   db,
		IDProvider: forum.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to construct forum service: %v", err)
	}

	dispatcher := NewRealtimeDispatcher(8)
	registry := metrics.NewRegistry()
	handler, err := NewHTTPHandler(Dependencies{
		ForumService: service,
		Policy:       policy,
		Realtime:     dispatcher,
		Metrics:      registry,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, service: service, realtime: dispatcher, metrics: registry}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field"`
}

func (s testServer) mustCreateQuestion(t *testing.T, text string) questionPayload {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/questions", createQuestionRequest{
		AskerName:    "Alice",
		AskerID:      "A1",
		QuestionText: text,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected create status %d: %s", recorder.Code, recorder.Body.String())
	}
	return decodeBody[questionPayload](t, recorder)
}
