package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrProfileNotFound  = errors.New("face profile not found")
	ErrOpenRecordExists = errors.New("user already has an open attendance record")
	ErrNoOpenRecord     = errors.New("user has no open attendance record")
	ErrSettingNotFound  = errors.New("office setting not found")
)

// pgUniqueViolation PostgreSQL unique_violation
const pgUniqueViolation = "23505"

// isUniqueViolation 兼容 postgres 与 sqlite 的唯一约束冲突
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
