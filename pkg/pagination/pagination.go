// Package pagination implements keyset pagination over (created_at, id), the
// newest-first order every showroom listing uses.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorVersion = "v1"
)

var errCursorFormat = errors.New("invalid cursor format")

// Cursor is the position of the last row a page returned.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer over-fetches one row so Trim can tell whether a next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor renders c as an opaque URL-safe token.
func EncodeCursor(c Cursor) string {
	raw := strings.Join([]string{cursorVersion, c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID.String()}, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token from EncodeCursor. A blank token means the first
// page and yields nil.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 || parts[0] != cursorVersion {
		return nil, errCursorFormat
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, fmt.Errorf("cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &Cursor{CreatedAt: createdAt, ID: id}, nil
}

// Seek restricts query to rows strictly after c in newest-first order and
// applies that order. A nil cursor only applies the order.
func (c *Cursor) Seek(query *gorm.DB) *gorm.DB {
	if c != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}
	return query.Order("created_at DESC").Order("id DESC")
}

// Trim cuts rows fetched with LimitWithBuffer down to the page size and returns
// the cursor for the following page, or "" when there is none.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(cursorOf(rows[limit-1]))
}
