package reports

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCDR(t *testing.T) {
	rec := Normalize(KindCDR, map[string]any{
		"call_id":            "cdr-1",
		"datetime":           float64(1700000000),
		"caller_id_number":   "0568334181",
		"callee_id_number":   "971501234567",
		"duration_seconds":   float64(42),
		"hangup_cause":       "NORMAL_CLEARING",
		"media_recording_id": "rec-1",
	})

	assert.Equal(t, "cdr-1", rec.CallID)
	assert.Equal(t, KindCDR, rec.Kind)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.EventTime)
	assert.Equal(t, int64(42), rec.TalkSeconds)
	assert.Equal(t, "NORMAL_CLEARING", rec.HangupCause)
	assert.Equal(t, "UAE", rec.Country)
	assert.Empty(t, rec.Extension, "cdr records never carry an extension")
}

func TestNormalizeGregorianTimestamp(t *testing.T) {
	// Kazoo-style seconds since year 1: 63867219200 - 62167219200 = 1700000000.
	rec := Normalize(KindCDR, map[string]any{
		"call_id":  "cdr-greg",
		"datetime": float64(63867219200),
	})
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.EventTime)
}

func TestNormalizeSynthesizesCallID(t *testing.T) {
	rec := Normalize(KindCDR, map[string]any{})
	require.NotEmpty(t, rec.CallID)
	assert.True(t, strings.HasPrefix(rec.CallID, "synthetic-"))
}

func TestNormalizeInboundAbandoned(t *testing.T) {
	t.Run("no agent history and no answer", func(t *testing.T) {
		rec := Normalize(KindInboundQueue, map[string]any{
			"call_id":     "in-1",
			"called_time": float64(1700000000),
		})
		assert.Equal(t, "YES", rec.Abandoned)
	})

	t.Run("connected leg", func(t *testing.T) {
		rec := Normalize(KindInboundQueue, map[string]any{
			"call_id":       "in-2",
			"called_time":   float64(1700000000),
			"answered_time": float64(1700000010),
			"agent_history": []any{
				map[string]any{"agent_name": "alice", "extension": "101", "connected": true},
			},
		})
		assert.Equal(t, "NO", rec.Abandoned)
	})

	t.Run("legs without answer evidence", func(t *testing.T) {
		rec := Normalize(KindInboundQueue, map[string]any{
			"call_id":       "in-3",
			"called_time":   float64(1700000000),
			"answered_time": float64(1700000010),
			"agent_history": []any{
				map[string]any{"agent_name": "alice", "event_type": "ring"},
				map[string]any{"agent_name": "bob", "event_type": "ring"},
			},
		})
		assert.Equal(t, "YES", rec.Abandoned)
	})

	t.Run("upstream flag is overridden", func(t *testing.T) {
		rec := Normalize(KindInboundQueue, map[string]any{
			"call_id":     "in-4",
			"called_time": float64(1700000000),
			"abandoned":   "NO",
		})
		assert.Equal(t, "YES", rec.Abandoned)
	})
}

func TestNormalizeInboundDerivedDurations(t *testing.T) {
	t.Run("explicit columns win", func(t *testing.T) {
		rec := Normalize(KindInboundQueue, map[string]any{
			"call_id":         "in-5",
			"called_time":     float64(1700000000),
			"talked_duration": float64(33),
			"wait_duration":   float64(7),
		})
		assert.Equal(t, int64(33), rec.TalkSeconds)
		assert.Equal(t, int64(7), rec.WaitSeconds)
	})

	t.Run("derived from timestamps", func(t *testing.T) {
		rec := Normalize(KindInboundQueue, map[string]any{
			"call_id":       "in-6",
			"called_time":   float64(1700000000),
			"answered_time": float64(1700000015),
			"hangup_time":   float64(1700000075),
		})
		assert.Equal(t, int64(60), rec.TalkSeconds)
		assert.Equal(t, int64(15), rec.WaitSeconds)
	})

	t.Run("never answered waits until hangup", func(t *testing.T) {
		rec := Normalize(KindInboundQueue, map[string]any{
			"call_id":     "in-7",
			"called_time": float64(1700000000),
			"hangup_time": float64(1700000020),
		})
		assert.Equal(t, int64(0), rec.TalkSeconds)
		assert.Equal(t, int64(20), rec.WaitSeconds)
	})
}

func TestNormalizeInboundExtension(t *testing.T) {
	rec := Normalize(KindInboundQueue, map[string]any{
		"call_id":         "in-8",
		"called_time":     float64(1700000000),
		"agent_extension": "999",
		"agent_history": []any{
			map[string]any{"agent_name": "alice", "extension": "101", "connected": true},
			map[string]any{"agent_name": "bob", "extension": "102", "connected": false},
		},
	})
	assert.Equal(t, "101", rec.Extension, "first agent-history entry wins over the flat column")
}

func TestNormalizeRowsDedupsInboundLegs(t *testing.T) {
	rows := []map[string]any{
		{"call_id": "shared", "called_time": float64(1700000300)},
		{"call_id": "shared", "called_time": float64(1700000200)},
		{"call_id": "shared", "called_time": float64(1700000100)},
		{"call_id": "other", "called_time": float64(1700000050)},
	}

	records := NormalizeRows(KindInboundQueue, rows)
	require.Len(t, records, 2)
	assert.Equal(t, "shared", records[0].CallID)
	assert.Equal(t, time.Unix(1700000300, 0).UTC(), records[0].EventTime, "first-seen leg is kept")
	assert.Equal(t, "other", records[1].CallID)
}

func TestNormalizeOutboundQueue(t *testing.T) {
	rec := Normalize(KindOutboundQueue, map[string]any{
		"call_id":         "out-1",
		"called_time":     float64(1700000000),
		"destination":     "971501234567",
		"agent_talk_time": float64(55),
		"queue_history": []any{
			map[string]any{"queue_name": "sales", "timestamp": float64(1700000000)},
			map[string]any{"queue_name": "sales", "timestamp": float64(1700000005)},
			map[string]any{"queue_name": "sales", "timestamp": float64(1700000010)},
		},
		"agent_disposition": "interested",
	})

	assert.Equal(t, int64(55), rec.TalkSeconds, "agent_talk_time overrides derived talk")
	require.Len(t, rec.QueueHistory, 1, "queue history keeps only the first hop")
	assert.Equal(t, "sales", rec.QueueHistory[0].QueueName)
	assert.Equal(t, "interested", rec.Disposition)
	assert.Equal(t, "UAE", rec.Country)
}

func TestNormalizeCampaign(t *testing.T) {
	rec := Normalize(KindCampaign, map[string]any{
		"call_id":         "camp-1",
		"answered_time":   float64(1700000000),
		"campaign_name":   "renewals",
		"campaign_type":   "progressive",
		"lead_number":     "971501234567",
		"agent_name":      "alice",
		"agent_extension": "101",
		"status":          "completed",
	})

	assert.Equal(t, "renewals", rec.CampaignName)
	assert.Equal(t, "101", rec.Extension)
	assert.Equal(t, "UAE", rec.Country)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.EventTime)
}

func TestNormalizeShortNumbersYieldNoCountry(t *testing.T) {
	rec := Normalize(KindInboundQueue, map[string]any{
		"call_id":          "in-ext",
		"called_time":      float64(1700000000),
		"caller_id_number": "1234",
	})
	assert.Empty(t, rec.Country, "short internal extensions never classify as a country")
}

func TestNormalizeMalformedFieldsDegrade(t *testing.T) {
	rec := Normalize(KindInboundQueue, map[string]any{
		"call_id":         "in-bad",
		"called_time":     "not a time",
		"talked_duration": "also not a number",
		"agent_history":   "{broken json",
	})

	assert.Equal(t, "in-bad", rec.CallID)
	assert.True(t, rec.EventTime.IsZero())
	assert.Equal(t, int64(0), rec.TalkSeconds)
	assert.Nil(t, rec.AgentHistory)
}

func TestParseKinds(t *testing.T) {
	t.Run("empty selects all in priority order", func(t *testing.T) {
		kinds, err := ParseKinds("")
		require.NoError(t, err)
		assert.Equal(t, AllKinds, kinds)
	})

	t.Run("subset follows priority order", func(t *testing.T) {
		kinds, err := ParseKinds("cdr, inbound-queue")
		require.NoError(t, err)
		assert.Equal(t, []Kind{KindInboundQueue, KindCDR}, kinds)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := ParseKinds("voicemail")
		var invalid *InvalidQueryError
		require.ErrorAs(t, err, &invalid)
	})
}
