// Package pagination provides opaque cursors for incrementally revealed
// report streams. A cursor encodes the reveal-session ID plus the next batch
// sequence number, so a consumer can pull batch after batch without the
// server re-fetching already-delivered upstream pages.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the default batch size if not specified
	DefaultLimit = 500
	// MaxLimit is the maximum allowed batch size
	MaxLimit = 1000
)

// Cursor represents a stable position inside one reveal session.
type Cursor struct {
	SessionID string
	Batch     int
}

// Encode serializes the cursor to an opaque string for clients.
// Format: base64("rs:{session_id}:b:{batch}")
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("rs:%s:b:%d", c.SessionID, c.Batch)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an encoded cursor string.
// Returns nil for an empty cursor and an error for a malformed one.
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	raw := string(data)
	if !strings.HasPrefix(raw, "rs:") {
		return nil, fmt.Errorf("invalid cursor format: missing rs prefix")
	}

	parts := strings.SplitN(raw[len("rs:"):], ":b:", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, fmt.Errorf("invalid cursor format: missing batch segment")
	}

	batch, err := strconv.Atoi(parts[1])
	if err != nil || batch < 0 {
		return nil, fmt.Errorf("invalid cursor batch: %q", parts[1])
	}

	return &Cursor{SessionID: parts[0], Batch: batch}, nil
}

// EncodeCursor is a convenience function to create and encode a cursor.
func EncodeCursor(sessionID string, batch int) string {
	return Cursor{SessionID: sessionID, Batch: batch}.Encode()
}

// ClampLimit ensures limit is within valid bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
