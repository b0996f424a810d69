package pagination

import "testing"

func TestCursorEncodeDecode(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		batch     int
	}{
		{
			name:      "basic cursor",
			sessionID: "abc123",
			batch:     0,
		},
		{
			name:      "cursor with uuid",
			sessionID: "550e8400-e29b-41d4-a716-446655440000",
			batch:     7,
		},
		{
			name:      "large batch",
			sessionID: "s",
			batch:     1 << 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeCursor(tt.sessionID, tt.batch)
			if encoded == "" {
				t.Fatal("encoded cursor should not be empty")
			}

			cursor, err := DecodeCursor(encoded)
			if err != nil {
				t.Fatalf("failed to decode cursor: %v", err)
			}
			if cursor.SessionID != tt.sessionID {
				t.Fatalf("session ID mismatch: got %q, want %q", cursor.SessionID, tt.sessionID)
			}
			if cursor.Batch != tt.batch {
				t.Fatalf("batch mismatch: got %d, want %d", cursor.Batch, tt.batch)
			}
		})
	}
}

func TestDecodeCursorEmpty(t *testing.T) {
	cursor, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("empty cursor should not error: %v", err)
	}
	if cursor != nil {
		t.Fatal("empty cursor should decode to nil")
	}
}

func TestDecodeCursorInvalid(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
	}{
		{name: "not base64", encoded: "!!!"},
		{name: "missing prefix", encoded: "dHM6MTIzOmlkOmFiYw=="}, // "ts:123:id:abc"
		{name: "missing batch", encoded: "cnM6YWJj"},              // "rs:abc"
		{name: "negative batch", encoded: "cnM6YWJjOmI6LTE="},     // "rs:abc:b:-1"
		{name: "non numeric batch", encoded: "cnM6YWJjOmI6eHl6"},  // "rs:abc:b:xyz"
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeCursor(tc.encoded); err == nil {
				t.Fatalf("expected decode error for %q", tc.encoded)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	if got := ClampLimit(0); got != DefaultLimit {
		t.Fatalf("expected default limit for 0, got %d", got)
	}
	if got := ClampLimit(-5); got != DefaultLimit {
		t.Fatalf("expected default limit for negative, got %d", got)
	}
	if got := ClampLimit(MaxLimit + 1); got != MaxLimit {
		t.Fatalf("expected clamp to max, got %d", got)
	}
	if got := ClampLimit(250); got != 250 {
		t.Fatalf("expected passthrough, got %d", got)
	}
}
