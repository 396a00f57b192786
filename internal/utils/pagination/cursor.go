// Package pagination implements opaque keyset cursors for list endpoints.
// A cursor encodes the last row seen so the next page resumes after it
// without OFFSET scans.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor marks a position in a list ordered by (created_at, id).
type Cursor struct {
	LastID      string `json:"last_id"`
	CreatedUnix int64  `json:"created_unix"`
}

// Encode serializes the cursor to an opaque URL-safe token.
func Encode(c Cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a token produced by Encode. Empty tokens yield a zero
// cursor meaning "start from the beginning".
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("parse cursor: %w", err)
	}
	return c, nil
}

// From builds a cursor from the last row of the current page.
func From(id string, createdAt time.Time) Cursor {
	return Cursor{LastID: id, CreatedUnix: createdAt.UnixMilli()}
}

// IsZero reports whether the cursor points at the start of the list.
func (c Cursor) IsZero() bool {
	return c.LastID == "" && c.CreatedUnix == 0
}

// CreatedAt returns the cursor timestamp.
func (c Cursor) CreatedAt() time.Time {
	return time.UnixMilli(c.CreatedUnix).UTC()
}
