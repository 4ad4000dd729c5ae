// Package pagination implements keyset paging over (created_at, id), newest first.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/packfinderz-finance/pkg/errors"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params is the page request accepted by list endpoints.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the (created_at, id) key of the last row on a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor renders the cursor as URL safe base64 so it can travel in a query string.
func EncodeCursor(cursor Cursor) string {
	payload := cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + cursor.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a cursor produced by EncodeCursor. An empty value means the
// first page and returns nil. Malformed cursors are validation errors.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, invalidCursor(err)
	}
	ts, rawID, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, invalidCursor(fmt.Errorf("missing separator"))
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, invalidCursor(err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, invalidCursor(err)
	}
	return &Cursor{CreatedAt: createdAt, ID: id}, nil
}

// After restricts query to rows strictly older than cursor in (created_at DESC, id DESC)
// order. table qualifies the columns when the query joins.
func After(query *gorm.DB, table string, cursor *Cursor) *gorm.DB {
	if cursor == nil {
		return query
	}
	createdAt, id := column(table, "created_at"), column(table, "id")
	return query.Where(
		fmt.Sprintf("(%s < ?) OR (%s = ? AND %s < ?)", createdAt, createdAt, id),
		cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
	)
}

// Newest orders query for keyset paging and fetches one extra row to detect a next page.
func Newest(query *gorm.DB, table string, limit int) *gorm.DB {
	return query.
		Order(column(table, "created_at") + " DESC").
		Order(column(table, "id") + " DESC").
		Limit(limit + 1)
}

// Trim cuts rows fetched with Newest back to limit and returns the cursor for the next
// page, or nil on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	if len(rows) <= limit {
		return rows, nil
	}
	rows = rows[:limit]
	next := key(rows[len(rows)-1])
	return rows, &next
}

func column(table, name string) string {
	if table == "" {
		return name
	}
	return table + "." + name
}

func invalidCursor(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
}
