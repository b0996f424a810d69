package reports

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Record is the canonical row shape all four report kinds normalize into
// before merging. EventTime is the record's chronological anchor; a zero
// EventTime means the upstream row carried no resolvable time and the record
// sorts after everything else.
type Record struct {
	CallID         string       `json:"call_id"`
	Kind           Kind         `json:"report_kind"`
	EventTime      time.Time    `json:"event_time"`
	Caller         string       `json:"caller,omitempty"`
	Callee         string       `json:"callee,omitempty"`
	TalkSeconds    int64        `json:"talk_seconds"`
	WaitSeconds    int64        `json:"wait_seconds"`
	AgentHistory   []AgentEvent `json:"agent_history,omitempty"`
	QueueHistory   []QueueEvent `json:"queue_history,omitempty"`
	QueueName      string       `json:"queue_name,omitempty"`
	CampaignName   string       `json:"campaign_name,omitempty"`
	CampaignType   string       `json:"campaign_type,omitempty"`
	Status         string       `json:"status,omitempty"`
	Disposition    string       `json:"disposition,omitempty"`
	SubDisposition string       `json:"sub_disposition,omitempty"`
	Abandoned      string       `json:"abandoned,omitempty"`
	Country        string       `json:"dialed_country,omitempty"`
	Extension      string       `json:"extension,omitempty"`
	HangupCause    string       `json:"hangup_cause,omitempty"`
	RecordingID    string       `json:"media_recording_id,omitempty"`
}

// AgentEvent is one leg attempt in a call's agent history.
type AgentEvent struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
	Extension string    `json:"extension,omitempty"`
	EventType string    `json:"event_type,omitempty"`
	Connected bool      `json:"connected"`
}

// QueueEvent is one hop in a call's queue history.
type QueueEvent struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	QueueName string    `json:"queue_name,omitempty"`
}

// newerThan orders records descending by event time. Zero times sort last.
// Exact ties return false so the caller's source-priority order decides.
func (r Record) newerThan(other Record) bool {
	if r.EventTime.IsZero() {
		return false
	}
	if other.EventTime.IsZero() {
		return true
	}
	return r.EventTime.After(other.EventTime)
}

// ----------------------------------------------------------------------------
// Raw row helpers. Upstream rows arrive as loosely typed JSON objects with
// per-tenant variation in field presence and encoding; every accessor here
// degrades to a zero value instead of failing.
// ----------------------------------------------------------------------------

func rawString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case json.Number:
			return val.String()
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(val)
		}
	}
	return ""
}

func rawInt(row map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return int64(val), true
		case int64:
			return val, true
		case int:
			return int64(val), true
		case json.Number:
			if n, err := val.Int64(); err == nil {
				return n, true
			}
		case string:
			s := strings.TrimSpace(val)
			if s == "" {
				continue
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, true
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return int64(f), true
			}
		}
	}
	return 0, false
}

func rawBool(row map[string]any, keys ...string) bool {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case bool:
			return val
		case string:
			s := strings.ToLower(strings.TrimSpace(val))
			return s == "true" || s == "yes" || s == "1"
		case float64:
			return val != 0
		}
	}
	return false
}

// gregorianEpochOffset converts Kazoo-style Gregorian-second timestamps
// (seconds since year 1) to Unix seconds.
const gregorianEpochOffset = 62167219200

// rawTime resolves a timestamp from the first present key. Accepts Unix
// seconds, Unix milliseconds, Gregorian seconds, numeric strings, and
// RFC 3339 strings. Returns the zero time when nothing parses.
func rawTime(row map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		if t := parseTimestamp(v); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func parseTimestamp(v any) time.Time {
	switch val := v.(type) {
	case float64:
		return epochToTime(int64(val))
	case int64:
		return epochToTime(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return epochToTime(n)
		}
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochToTime(n)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(int64(f))
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func epochToTime(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	switch {
	case n > 30_000_000_000_000: // microseconds
		n /= 1_000_000
	case n > 30_000_000_000 && n < 100_000_000_000: // Gregorian seconds
		n -= gregorianEpochOffset
	case n > 100_000_000_000: // milliseconds
		n /= 1000
	}
	if n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

// rawList extracts a list of raw objects (agent_history, queue_history,
// lead_history). Tolerates a JSON-encoded string holding the list.
func rawList(row map[string]any, keys ...string) []map[string]any {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case []any:
			return toObjectList(val)
		case []map[string]any:
			return val
		case string:
			var decoded []any
			if err := json.Unmarshal([]byte(val), &decoded); err == nil {
				return toObjectList(decoded)
			}
		}
	}
	return nil
}

func toObjectList(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
