package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Common repository errors
var (
	// ErrBoardNotFound is returned when a board is not found
	ErrBoardNotFound = errors.New("board not found")

	// ErrSlugTaken is returned when another board already uses the slug
	ErrSlugTaken = errors.New("slug already taken")

	// ErrLoginLinkInvalid is returned for unknown, used or expired login links
	ErrLoginLinkInvalid = errors.New("login link invalid or expired")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
