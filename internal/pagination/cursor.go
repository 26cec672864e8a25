// Package pagination implements the opaque keyset cursor used by listing
// endpoints. Listings are ordered by (date DESC, id DESC); a cursor carries the
// sort key of the last row a client has seen.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	// maxTokenLength bounds the work done on hostile input.
	maxTokenLength = 512
)

type Cursor struct {
	ID   string `json:"id"`
	Date string `json:"date"`
}

// Page is one slice of a keyset listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// New builds a cursor from a row's sort key.
func New(id uuid.UUID, date time.Time) Cursor {
	return Cursor{ID: id.String(), Date: date.UTC().Format("2006-01-02")}
}

// Encode serializes c as base64url JSON without padding.
func Encode(c Cursor) string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode is total: malformed base64, malformed JSON, a non-UUID id or an
// unparsable date all yield ok == false.
func Decode(token string) (Cursor, bool) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" || len(token) > maxTokenLength {
		return Cursor{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, false
	}

	var c Cursor
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Cursor{}, false
	}
	if dec.More() {
		return Cursor{}, false
	}

	if _, err := uuid.Parse(c.ID); err != nil {
		return Cursor{}, false
	}
	if _, ok := parseDate(c.Date); !ok {
		return Cursor{}, false
	}
	return c, true
}

// Key returns the typed sort key of a decoded cursor.
func (c Cursor) Key() (uuid.UUID, time.Time, bool) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil, time.Time{}, false
	}
	date, ok := parseDate(c.Date)
	if !ok {
		return uuid.Nil, time.Time{}, false
	}
	return id, date, true
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ClampLimit maps a requested page size onto [1, MaxLimit], using
// DefaultLimit for non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Paginate trims a result fetched with limit+1 rows and derives the next
// cursor from the last kept row.
func Paginate[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	if len(rows) <= limit {
		return Page[T]{Items: rows}
	}
	items := rows[:limit]
	return Page[T]{Items: items, NextCursor: Encode(key(items[len(items)-1]))}
}
