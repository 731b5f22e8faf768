// Package pagination implements keyset cursors over (created_at, id).
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks the last row of a page. The next page starts strictly after it
// in (created_at DESC, id DESC) order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// PageResult is one page of items plus the cursor for the next page.
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Encode renders the cursor as an opaque query-safe token.
func (c Cursor) Encode() string {
	if c.ID == "" {
		return ""
	}
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode. An empty token yields nil.
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: createdAt, ID: id}, nil
}

// Limit clamps a requested page size into [1, max], using def for
// non-positive requests.
func Limit(requested, def, max int) int {
	if requested <= 0 {
		requested = def
	}
	if requested > max {
		return max
	}
	return requested
}

// Paginate builds a page from rows fetched with limit+1. The extra row only
// signals that another page exists and is dropped.
func Paginate[T any](rows []T, limit int, key func(T) Cursor) *PageResult[T] {
	page := &PageResult[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
		page.Cursor = key(page.Items[limit-1]).Encode()
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
