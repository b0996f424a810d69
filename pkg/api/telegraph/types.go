// Package telegraph holds the consumer-facing wire types for the report
// aggregation API.
package telegraph

import (
	"telegraph/internal/reports"
)

// QueryResponse is the body of a successful GET /reports/calls.
type QueryResponse struct {
	Rows []reports.Record `json:"rows"`
	// NextCursor resumes the reveal sequence; empty when the stream is
	// exhausted.
	NextCursor string `json:"next_cursor,omitempty"`
	// Warnings lists report sources that failed after retries while the
	// rest of the batch proceeded.
	Warnings  []reports.Warning `json:"warnings,omitempty"`
	Exhausted bool              `json:"exhausted"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
