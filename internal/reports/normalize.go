package reports

import (
	"github.com/google/uuid"

	"telegraph/pkg/phone"
)

// Normalize maps one upstream row into the canonical record shape. It is a
// pure function with no failure path: absent or malformed fields degrade to
// zero values. Rows with no upstream call identifier get a synthetic one so
// the merge dedup invariant (non-empty unique ID) always holds.
func Normalize(kind Kind, row map[string]any) Record {
	var rec Record
	switch kind {
	case KindCDR:
		rec = normalizeCDR(row)
	case KindInboundQueue:
		rec = normalizeInboundQueue(row)
	case KindOutboundQueue:
		rec = normalizeOutboundQueue(row)
	case KindCampaign:
		rec = normalizeCampaign(row)
	default:
		rec = Record{}
	}

	rec.Kind = kind
	if rec.CallID == "" {
		rec.CallID = "synthetic-" + uuid.NewString()
	}
	return rec
}

// NormalizeRows normalizes a fetched page. Inbound-queue reports return one
// row per agent leg of the same call; only the first-seen leg survives here,
// before anything reaches the merge engine.
func NormalizeRows(kind Kind, rows []map[string]any) []Record {
	out := make([]Record, 0, len(rows))
	var seenLegs map[string]bool
	if kind == KindInboundQueue {
		seenLegs = make(map[string]bool, len(rows))
	}

	for _, row := range rows {
		if kind == KindInboundQueue {
			if id := rawString(row, "call_id"); id != "" {
				if seenLegs[id] {
					continue
				}
				seenLegs[id] = true
			}
		}
		out = append(out, Normalize(kind, row))
	}
	return out
}

func normalizeCDR(row map[string]any) Record {
	rec := Record{
		CallID:      rawString(row, "call_id"),
		EventTime:   rawTime(row, "datetime", "timestamp"),
		Caller:      rawString(row, "caller_id_number"),
		Callee:      rawString(row, "callee_id_number"),
		HangupCause: rawString(row, "hangup_cause"),
		RecordingID: rawString(row, "media_recording_id"),
	}
	if secs, ok := rawInt(row, "duration_seconds", "billing_seconds"); ok {
		rec.TalkSeconds = secs
	}
	// CDRs carry no queue context, so either side may be the external party.
	rec.Country = phone.Country(rec.Callee)
	if rec.Country == "" {
		rec.Country = phone.Country(rec.Caller)
	}
	// CDR rows have no agent leg; extension is always empty for this kind.
	return rec
}

func normalizeInboundQueue(row map[string]any) Record {
	rec := Record{
		CallID:         rawString(row, "call_id"),
		EventTime:      rawTime(row, "called_time"),
		Caller:         rawString(row, "caller_id_number", "caller_number"),
		QueueName:      rawString(row, "queue_name"),
		Disposition:    rawString(row, "disposition"),
		SubDisposition: rawString(row, "sub_disposition"),
		RecordingID:    rawString(row, "media_recording_id"),
		AgentHistory:   normalizeAgentHistory(rawList(row, "agent_history")),
		QueueHistory:   normalizeQueueHistory(rawList(row, "queue_history")),
	}

	rec.TalkSeconds, rec.WaitSeconds = deriveDurations(row)
	rec.Extension = firstAgentExtension(rec.AgentHistory)
	if rec.Extension == "" {
		rec.Extension = rawString(row, "agent_extension")
	}
	rec.Country = phone.Country(rec.Caller)
	// The upstream "abandoned" column is unreliable across tenants; always
	// recompute it from the row itself.
	rec.Abandoned = deriveAbandoned(row, rec.AgentHistory)
	return rec
}

func normalizeOutboundQueue(row map[string]any) Record {
	rec := Record{
		CallID:         rawString(row, "call_id"),
		EventTime:      rawTime(row, "called_time"),
		Caller:         rawString(row, "caller_id_number"),
		Callee:         rawString(row, "destination", "to"),
		QueueName:      rawString(row, "queue_name"),
		Disposition:    rawString(row, "agent_disposition", "disposition"),
		SubDisposition: rawString(row, "agent_subdisposition", "sub_disposition"),
		RecordingID:    rawString(row, "media_recording_id"),
		AgentHistory:   normalizeAgentHistory(rawList(row, "agent_history")),
	}

	// Outbound queue history repeats the same queue per leg; only the first
	// (oldest) hop is meaningful.
	if history := normalizeQueueHistory(rawList(row, "queue_history")); len(history) > 0 {
		rec.QueueHistory = history[:1]
	}

	rec.TalkSeconds, rec.WaitSeconds = deriveDurations(row)
	if secs, ok := rawInt(row, "agent_talk_time"); ok {
		rec.TalkSeconds = secs
	}
	rec.Extension = firstAgentExtension(rec.AgentHistory)
	if rec.Extension == "" {
		rec.Extension = rawString(row, "agent_extension")
	}
	rec.Country = phone.Country(rec.Callee)
	return rec
}

func normalizeCampaign(row map[string]any) Record {
	rec := Record{
		CallID:       rawString(row, "call_id", "lead_id"),
		EventTime:    rawTime(row, "answered_time", "created_at", "timestamp"),
		Caller:       rawString(row, "agent_name"),
		Callee:       rawString(row, "lead_number"),
		CampaignName: rawString(row, "campaign_name"),
		CampaignType: rawString(row, "campaign_type"),
		Status:       rawString(row, "status"),
		Disposition:  rawString(row, "disposition"),
		Extension:    rawString(row, "agent_extension"),
		AgentHistory: normalizeAgentHistory(rawList(row, "lead_history", "agent_history")),
	}

	rec.TalkSeconds, rec.WaitSeconds = deriveDurations(row)
	rec.Country = phone.Country(rec.Callee)
	return rec
}

// deriveDurations resolves talk/wait durations, computing them from the
// called/answered/hangup timestamps when the upstream omits the columns.
func deriveDurations(row map[string]any) (talk, wait int64) {
	called := rawTime(row, "called_time")
	answered := rawTime(row, "answered_time")
	hangup := rawTime(row, "hangup_time")

	if secs, ok := rawInt(row, "talked_duration"); ok {
		talk = secs
	} else if !answered.IsZero() && !hangup.IsZero() && hangup.After(answered) {
		talk = int64(hangup.Sub(answered).Seconds())
	}

	if secs, ok := rawInt(row, "wait_duration"); ok {
		wait = secs
	} else if !called.IsZero() {
		switch {
		case !answered.IsZero() && answered.After(called):
			wait = int64(answered.Sub(called).Seconds())
		case !hangup.IsZero() && hangup.After(called):
			// Never answered: the caller waited until hangup.
			wait = int64(hangup.Sub(called).Seconds())
		}
	}
	return talk, wait
}

// deriveAbandoned recomputes the inbound abandonment flag. A call is
// abandoned when no agent leg exists, the call-level answered_time is
// absent, or no leg carries any evidence of an answer (connect flag, answer
// timestamp, or transfer action).
func deriveAbandoned(row map[string]any, history []AgentEvent) string {
	if len(history) == 0 {
		return "YES"
	}
	if rawTime(row, "answered_time").IsZero() {
		return "YES"
	}

	for _, leg := range history {
		if leg.Connected || !leg.Timestamp.IsZero() || leg.EventType == "transfer" {
			return "NO"
		}
	}
	return "YES"
}

func normalizeAgentHistory(raw []map[string]any) []AgentEvent {
	if len(raw) == 0 {
		return nil
	}
	out := make([]AgentEvent, 0, len(raw))
	for _, item := range raw {
		if len(item) == 0 {
			continue
		}
		out = append(out, AgentEvent{
			Timestamp: rawTime(item, "answered_time", "answer_time", "timestamp", "time"),
			AgentName: rawString(item, "agent_name", "agent", "name"),
			Extension: rawString(item, "extension", "agent_extension", "ext"),
			EventType: rawString(item, "event_type", "event", "action", "type"),
			Connected: rawBool(item, "connected"),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeQueueHistory(raw []map[string]any) []QueueEvent {
	if len(raw) == 0 {
		return nil
	}
	out := make([]QueueEvent, 0, len(raw))
	for _, item := range raw {
		if len(item) == 0 {
			continue
		}
		out = append(out, QueueEvent{
			Timestamp: rawTime(item, "timestamp", "time", "entered_time"),
			QueueName: rawString(item, "queue_name", "queue", "name"),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstAgentExtension(history []AgentEvent) string {
	if len(history) == 0 {
		return ""
	}
	return history[0].Extension
}
