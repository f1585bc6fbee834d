package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationQuestionsUpdatedAtTrigger       = "2026-10-01_questions_updated_at_trigger"
	migrationSQLiteQuestionsUpdatedAtTrigger = "2026-10-18_sqlite_questions_updated_at_trigger"
	migrationBackfillQuestionCategory        = "2026-10-01_backfill_question_category"
)

var postgresQuestionsUpdatedAtTrigger = []string{
	`CREATE OR REPLACE FUNCTION questions_touch_updated_at() RETURNS trigger AS $$
BEGIN
	NEW.updated_at = clock_timestamp();
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS questions_touch_updated_at ON questions`,
	`CREATE TRIGGER questions_touch_updated_at BEFORE UPDATE ON questions FOR EACH ROW EXECUTE FUNCTION questions_touch_updated_at()`,
}

// The WHEN clause keeps a stamp written by the statement itself. Recursive triggers are off by
// default in SQLite, so the inner UPDATE does not fire the trigger again.
var sqliteQuestionsUpdatedAtTrigger = []string{
	`DROP TRIGGER IF EXISTS questions_touch_updated_at`,
	`CREATE TRIGGER questions_touch_updated_at AFTER UPDATE ON questions FOR EACH ROW
WHEN NEW.updated_at = OLD.updated_at
BEGIN
	UPDATE questions SET updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE id = NEW.id;
END`,
}

// questionsUpdatedAtTriggerStatements returns the trigger DDL for a dialect, or nil when the
// dialect has none.
func questionsUpdatedAtTriggerStatements(dialect string) []string {
	switch dialect {
	case DriverPostgres:
		return postgresQuestionsUpdatedAtTrigger
	case DriverSQLite:
		return sqliteQuestionsUpdatedAtTrigger
	default:
		return nil
	}
}

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationQuestionsUpdatedAtTrigger, apply: installQuestionsUpdatedAtTrigger(DriverPostgres)},
		{name: migrationSQLiteQuestionsUpdatedAtTrigger, apply: installQuestionsUpdatedAtTrigger(DriverSQLite)},
		{name: migrationBackfillQuestionCategory, apply: backfillQuestionCategory},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// installQuestionsUpdatedAtTrigger stamps updated_at for statements that bypass the service.
// The returned migration is a no-op on any other dialect.
func installQuestionsUpdatedAtTrigger(dialect string) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		if db.Dialector.Name() != dialect {
			return nil
		}
		for _, statement := range questionsUpdatedAtTriggerStatements(dialect) {
			if err := db.Exec(statement).Error; err != nil {
				return err
			}
		}
		return nil
	}
}

// backfillQuestionCategory applies the default category to rows imported without one.
func backfillQuestionCategory(db *gorm.DB) error {
	return db.Exec(
		"UPDATE questions SET category = ? WHERE category IS NULL OR TRIM(category) = ''",
		forum.DefaultCategory,
	).Error
}
