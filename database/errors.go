package database

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	apperrors "github.com/kbukum/gormock/errors"
)

// ConstraintKind names the kind of integrity constraint a statement violated.
type ConstraintKind string

const (
	ConstraintNone       ConstraintKind = ""
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintPrimaryKey ConstraintKind = "primary_key"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintCheck      ConstraintKind = "check"
	ConstraintOther      ConstraintKind = "other"
)

// Constraint classifies err. It understands native go-sqlite3 errors and
// the translated GORM sentinels.
func Constraint(err error) ConstraintKind {
	if err == nil {
		return ConstraintNone
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code != sqlite3.ErrConstraint {
			return ConstraintNone
		}
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return ConstraintUnique
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintRowID:
			return ConstraintPrimaryKey
		case sqlite3.ErrConstraintForeignKey:
			return ConstraintForeignKey
		case sqlite3.ErrConstraintNotNull:
			return ConstraintNotNull
		case sqlite3.ErrConstraintCheck:
			return ConstraintCheck
		default:
			return ConstraintOther
		}
	}

	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ConstraintUnique
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ConstraintForeignKey
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return ConstraintCheck
	}
	return ConstraintNone
}

// IsIntegrityError reports whether err is a constraint violation raised by the engine.
func IsIntegrityError(err error) bool {
	return Constraint(err) != ConstraintNone
}

// IsUniqueViolation reports a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	k := Constraint(err)
	return k == ConstraintUnique || k == ConstraintPrimaryKey
}

// IsForeignKeyViolation reports a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return Constraint(err) == ConstraintForeignKey
}

// IsNotNullViolation reports a NOT NULL violation.
func IsNotNullViolation(err error) bool {
	return Constraint(err) == ConstraintNotNull
}

// IsNotFoundError checks if the error is a GORM record-not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// FromDatabase converts a database error to an AppError for reporting.
// The original error stays reachable through Unwrap.
func FromDatabase(err error, resource string) *apperrors.AppError {
	if err == nil {
		return nil
	}

	if IsNotFoundError(err) {
		return apperrors.NotFound(resource, "").WithCause(err)
	}

	if kind := Constraint(err); kind != ConstraintNone {
		return apperrors.Conflict(fmt.Sprintf("%s violates a %s constraint.", resource, kind)).
			WithDetail("constraint", string(kind)).
			WithCause(err)
	}

	return apperrors.DatabaseError(err).WithDetail("resource", resource)
}
