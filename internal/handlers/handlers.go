package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"telegraph/internal/metrics"
	"telegraph/internal/reports"
	"telegraph/pkg/api/telegraph"
	"telegraph/pkg/clients/pbx"
	"telegraph/pkg/logging"
	"telegraph/pkg/pagination"
)

var (
	engine         *reports.Engine
	sessions       *reports.SessionStore
	logger         logging.Logger
	serviceMetrics *metrics.Metrics
)

// Init initializes the handlers package with the merge engine, session
// store, and metrics.
func Init(e *reports.Engine, store *reports.SessionStore, log logging.Logger, m *metrics.Metrics) {
	engine = e
	sessions = store
	logger = log
	serviceMetrics = m
}

// GetCallReports serves GET /reports/calls: one merged, deduplicated,
// descending-time batch of call activity across the requested report kinds.
// Without a cursor it opens a new reveal session; with one it continues the
// session the cursor names.
func GetCallReports(c *gin.Context) {
	start := time.Now()
	defer func() {
		if serviceMetrics != nil {
			serviceMetrics.QueryDuration.WithLabelValues("calls").Observe(time.Since(start).Seconds())
		}
	}()

	if serviceMetrics != nil {
		serviceMetrics.ReportQueries.WithLabelValues("calls", "requested").Inc()
	}

	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		badRequest(c, "Tenant context required")
		return
	}

	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	session, err := resolveSession(c, tenantID)
	if err != nil {
		var invalid *reports.InvalidQueryError
		if errors.As(err, &invalid) {
			badRequest(c, invalid.Error())
			return
		}
		internalError(c, err)
		return
	}

	batch, err := engine.NextBatch(c.Request.Context(), session, limit)
	if err != nil {
		internalError(c, err)
		return
	}

	if len(batch.Records) == 0 && session.RevealedCount() == 0 && batch.AllSourcesFailed(session.Kinds) {
		if serviceMetrics != nil {
			serviceMetrics.ReportQueries.WithLabelValues("calls", "upstream_error").Inc()
		}
		c.JSON(http.StatusBadGateway, telegraph.ErrorResponse{Error: mostSpecificFailure(batch.Failures)})
		return
	}

	resp := telegraph.QueryResponse{
		Rows:      batch.Records,
		Warnings:  batch.Warnings,
		Exhausted: batch.Exhausted,
	}
	if !batch.Exhausted {
		resp.NextCursor = pagination.EncodeCursor(session.ID, session.NextBatchSeq())
	} else {
		sessions.Delete(session.ID)
	}

	if serviceMetrics != nil {
		serviceMetrics.ReportQueries.WithLabelValues("calls", "success").Inc()
		serviceMetrics.RevealedRecords.WithLabelValues("calls").Observe(float64(len(batch.Records)))
	}
	c.JSON(http.StatusOK, resp)
}

// resolveSession returns the reveal session this request addresses: a fresh
// one for cursor-less requests, otherwise the stored session the cursor
// names, validated against replay and reordering.
func resolveSession(c *gin.Context, tenantID string) (*reports.Session, error) {
	encoded := c.Query("cursor")
	cursor, err := pagination.DecodeCursor(encoded)
	if err != nil {
		return nil, &reports.InvalidQueryError{Reason: err.Error()}
	}

	if cursor == nil {
		kinds, err := reports.ParseKinds(c.Query("kinds"))
		if err != nil {
			return nil, err
		}
		window, err := parseWindow(c.Query("start_time"), c.Query("end_time"))
		if err != nil {
			return nil, err
		}

		session := reports.NewSession(tenantID, kinds, window)
		sessions.Put(session)
		return session, nil
	}

	session := sessions.Get(cursor.SessionID)
	if session == nil {
		return nil, &reports.InvalidQueryError{Reason: "unknown or expired cursor"}
	}
	if session.Tenant != tenantID {
		return nil, &reports.InvalidQueryError{Reason: "cursor does not belong to this tenant"}
	}
	if cursor.Batch != session.NextBatchSeq() {
		return nil, &reports.InvalidQueryError{Reason: "stale cursor: batch already revealed"}
	}
	return session, nil
}

// parseWindow accepts RFC 3339 or epoch-second bounds; both are optional.
func parseWindow(startRaw, endRaw string) (reports.Window, error) {
	var w reports.Window

	start, err := parseTimeParam(startRaw)
	if err != nil {
		return w, &reports.InvalidQueryError{Reason: "invalid start_time: " + startRaw}
	}
	end, err := parseTimeParam(endRaw)
	if err != nil {
		return w, &reports.InvalidQueryError{Reason: "invalid end_time: " + endRaw}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return w, &reports.InvalidQueryError{Reason: "end_time precedes start_time"}
	}

	w.Start = start
	w.End = end
	return w, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, errors.New("unparseable time")
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return pagination.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &reports.InvalidQueryError{Reason: "invalid limit: " + raw}
	}
	return pagination.ClampLimit(n), nil
}

// mostSpecificFailure prefers an upstream-supplied structured message over a
// generic transport message.
func mostSpecificFailure(failures []*reports.SourceFailure) string {
	if len(failures) == 0 {
		return "all report sources failed"
	}
	for _, f := range failures {
		var statusErr *pbx.StatusError
		if errors.As(f.Err, &statusErr) && statusErr.Message != "" {
			return statusErr.Message
		}
	}
	return failures[0].Error()
}

func badRequest(c *gin.Context, msg string) {
	if serviceMetrics != nil {
		serviceMetrics.ReportQueries.WithLabelValues("calls", "error").Inc()
	}
	c.JSON(http.StatusBadRequest, telegraph.ErrorResponse{Error: msg})
}

func internalError(c *gin.Context, err error) {
	if serviceMetrics != nil {
		serviceMetrics.ReportQueries.WithLabelValues("calls", "error").Inc()
	}
	if logger != nil {
		logger.WithFields(logging.Fields{"error": err.Error()}).Error("Report query failed")
	}
	c.JSON(http.StatusInternalServerError, telegraph.ErrorResponse{Error: "internal error"})
}
