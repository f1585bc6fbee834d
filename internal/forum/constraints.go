package forum

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isUniqueViolation reports whether err came from a unique index. Translated GORM errors are
// checked first; SQLite and PostgreSQL driver messages are the fallback.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "foreign key constraint failed") ||
		strings.Contains(message, "violates foreign key constraint")
}
