package forum

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

type failingIDGenerator struct{}

func (failingIDGenerator) NewID() (string, error) {
	return "", errors.New("exhausted ids")
}

// tickingClock advances by one second on every reading.
type tickingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{current: time.Unix(1700000000, 0).UTC()}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:askroom_forum_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      newTickingClock().Now,
		IDProvider: &sequenceIDGenerator{prefix: "id"},
	})
	if err != nil {
		t.Fatalf("failed to construct forum service: %v", err)
	}
	return service, db
}

func mustCreateQuestion(t *testing.T, service *Service, input QuestionInput) Question {
	t.Helper()
	if input.AskerName == "" {
		input.AskerName = "Alice"
	}
	if input.AskerID == "" {
		input.AskerID = "A1"
	}
	if input.Text == "" {
		input.Text = "What is TCP?"
	}
	question, err := service.CreateQuestion(t.Context(), input)
	if err != nil {
		t.Fatalf("unexpected create question error: %v", err)
	}
	return question
}

func mustCreateAnswer(t *testing.T, service *Service, questionID, text string) Answer {
	t.Helper()
	answer, err := service.CreateAnswer(t.Context(), AnswerInput{
		QuestionID:   questionID,
		AnswererName: "Bob",
		AnswererID:   "B1",
		Text:         text,
	})
	if err != nil {
		t.Fatalf("unexpected create answer error: %v", err)
	}
	return answer
}

func expectServiceCode(t *testing.T, err error, code string) {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error %s, got %v", code, err)
	}
	if serviceErr.Code() != code {
		t.Fatalf("unexpected service error code: got %s want %s", serviceErr.Code(), code)
	}
}
