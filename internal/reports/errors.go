package reports

import "fmt"

// InvalidQueryError marks a consumer request that can never succeed: bad
// dates, unknown kinds, missing tenant, malformed cursors. Never retried.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// SourceFailure records that one report source failed after exhausting
// retries while the rest of the batch proceeded.
type SourceFailure struct {
	Kind Kind
	Err  error
}

func (e *SourceFailure) Error() string {
	return fmt.Sprintf("source %s failed: %v", e.Kind, e.Err)
}

func (e *SourceFailure) Unwrap() error {
	return e.Err
}

// Warning is the consumer-visible annotation for a partial-source failure.
type Warning struct {
	Kind    Kind   `json:"report_kind"`
	Message string `json:"message"`
}
