// Package pagination implements keyset page tokens over (created_at, id).
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid_page_token")

// Pagination is the query string of a listing endpoint. A zero PageSize
// lets the service pick its default.
type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=250"`
}

// Cursor points at the last row of a page.
type Cursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(cursor Cursor) (string, error) {
	cursor.CreatedAt = cursor.CreatedAt.UTC()
	b, err := json.Marshal(cursor)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}
	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return Cursor{}, ErrInvalidToken
	}
	if cursor.ID == "" || cursor.CreatedAt.IsZero() {
		return Cursor{}, ErrInvalidToken
	}
	return cursor, nil
}

// Page trims rows fetched with limit+1 to limit and builds the page info.
// cursorOf must return the cursor of a row.
func Page[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, PageInfo, error) {
	if limit <= 0 || len(rows) <= limit {
		return rows, PageInfo{}, nil
	}
	rows = rows[:limit]
	token, err := EncodeCursor(cursorOf(rows[len(rows)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return rows, PageInfo{NextPageToken: token, HasMore: true}, nil
}
