package reports

import (
	"fmt"
	"strings"
)

// Kind identifies one of the four upstream report sources.
type Kind string

const (
	KindInboundQueue  Kind = "inbound-queue"
	KindOutboundQueue Kind = "outbound-queue"
	KindCampaign      Kind = "campaign-activity"
	KindCDR           Kind = "cdr"
)

// AllKinds lists every source in merge-priority order. When two buffered
// records carry exactly the same event time, the earlier kind in this list
// wins, which keeps the merge deterministic regardless of fetch timing.
var AllKinds = []Kind{KindInboundQueue, KindOutboundQueue, KindCampaign, KindCDR}

// KindConfig is the static per-source contract with the upstream API:
// which endpoint serves the report and which columns are projected.
// The field lists are hand-curated and not configurable at runtime.
type KindConfig struct {
	Endpoint string
	Fields   []string
}

var kindConfigs = map[Kind]KindConfig{
	KindCDR: {
		Endpoint: "/reports/cdrs",
		Fields: []string{
			"call_id", "datetime", "timestamp", "caller_id_number",
			"caller_id_name", "callee_id_number", "duration_seconds",
			"hangup_cause", "media_recording_id",
		},
	},
	KindInboundQueue: {
		Endpoint: "/reports/queues_cdrs",
		Fields: []string{
			"call_id", "called_time", "answered_time", "hangup_time",
			"wait_duration", "talked_duration", "queue_name", "abandoned",
			"queue_history", "agent_history", "agent_extension",
			"caller_id_number", "caller_id_name", "disposition",
			"sub_disposition", "media_recording_id",
		},
	},
	KindOutboundQueue: {
		Endpoint: "/reports/queues_outbound_cdrs",
		Fields: []string{
			"call_id", "called_time", "answered_time", "hangup_time",
			"wait_duration", "talked_duration", "queue_name", "destination",
			"queue_history", "agent_history", "agent_extension",
			"agent_talk_time", "agent_disposition", "agent_subdisposition",
			"caller_id_number", "media_recording_id",
		},
	},
	KindCampaign: {
		Endpoint: "/reports/campaigns/leads/history",
		Fields: []string{
			"call_id", "campaign_name", "campaign_type", "lead_name",
			"lead_number", "agent_name", "agent_extension", "lead_history",
			"status", "disposition", "answered_time", "created_at",
		},
	},
}

// Config returns the upstream contract for a kind.
func Config(k Kind) KindConfig {
	return kindConfigs[k]
}

// Valid reports whether k names a known report kind.
func (k Kind) Valid() bool {
	_, ok := kindConfigs[k]
	return ok
}

// ParseKinds parses a comma-separated kind list. An empty input selects all
// kinds in merge-priority order. Duplicates collapse; order follows AllKinds.
func ParseKinds(csv string) ([]Kind, error) {
	if strings.TrimSpace(csv) == "" {
		return append([]Kind(nil), AllKinds...), nil
	}

	requested := make(map[Kind]bool)
	for _, part := range strings.Split(csv, ",") {
		k := Kind(strings.TrimSpace(part))
		if k == "" {
			continue
		}
		if !k.Valid() {
			return nil, &InvalidQueryError{Reason: fmt.Sprintf("unknown report kind %q", part)}
		}
		requested[k] = true
	}
	if len(requested) == 0 {
		return append([]Kind(nil), AllKinds...), nil
	}

	kinds := make([]Kind, 0, len(requested))
	for _, k := range AllKinds {
		if requested[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}
