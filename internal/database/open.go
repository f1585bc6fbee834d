package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/askroom/backend/internal/forum"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// DriverSQLite selects the embedded SQLite store.
	DriverSQLite = "sqlite"
	// DriverPostgres selects a PostgreSQL server.
	DriverPostgres = "postgres"

	foreignKeysPragma = "_pragma=foreign_keys(1)"
)

var (
	ErrUnsupportedDriver = errors.New("database: unsupported driver")
	ErrMissingPath       = errors.New("database: sqlite path is required")
	ErrMissingDSN        = errors.New("database: postgres dsn is required")
)

// Options selects the store backing the forum tables.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open establishes a connection for the configured driver and migrates the forum schema.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	dialector, err := newDialector(options)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if options.Driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", options.Driver))
	}

	return db, nil
}

// Migrate brings the forum schema up to date.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(append(forum.Models(), &migrationRecord{})...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func newDialector(options Options) (gorm.Dialector, error) {
	switch options.Driver {
	case DriverSQLite:
		path := strings.TrimSpace(options.Path)
		if path == "" {
			return nil, ErrMissingPath
		}
		return sqlite.Open(SQLiteDSN(path)), nil
	case DriverPostgres:
		dsn := strings.TrimSpace(options.DSN)
		if dsn == "" {
			return nil, ErrMissingDSN
		}
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, options.Driver)
	}
}

// SQLiteDSN enables foreign key enforcement, which SQLite leaves off per connection by default.
func SQLiteDSN(path string) string {
	if strings.Contains(path, foreignKeysPragma) {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + foreignKeysPragma
}
