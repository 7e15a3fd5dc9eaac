package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/usecase"
)

// EventReader is the slice of the event log store the query surface needs.
type EventReader interface {
	ByID(ctx context.Context, eventID string) (*domain.Event, error)
	ByAggregateCode(ctx context.Context, aggregateCode string) ([]*domain.Event, error)
	ByAggregateType(ctx context.Context, aggregateType domain.AggregateType) ([]*domain.Event, error)
	ByEventType(ctx context.Context, eventType domain.EventType) ([]*domain.Event, error)
	ByCreatedAtRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error)
	VersionsAfter(ctx context.Context, aggregateCode string, version int64) ([]*domain.Event, error)
	MaxVersion(ctx context.Context, aggregateCode string) (int64, bool, error)
}

// GetEvents handles GET /api/v1/events. Exactly one filter is required:
// aggregate_code, aggregate_type, event_type, or from/to.
func (s *Server) GetEvents(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		events []*domain.Event
		err    error
	)
	switch {
	case c.Query("aggregate_code") != "":
		events, err = s.events.ByAggregateCode(ctx, c.Query("aggregate_code"))
	case c.Query("aggregate_type") != "":
		events, err = s.events.ByAggregateType(ctx, domain.AggregateType(c.Query("aggregate_type")))
	case c.Query("event_type") != "":
		events, err = s.events.ByEventType(ctx, domain.EventType(c.Query("event_type")))
	case c.Query("from") != "" || c.Query("to") != "":
		var from, to time.Time
		if from, to, err = parseTimeRange(c.Query("from"), c.Query("to")); err == nil {
			events, err = s.events.ByCreatedAtRange(ctx, from, to)
		}
	default:
		_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequestField,
			"one of aggregate_code, aggregate_type, event_type, or from/to is required"))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	if events == nil {
		events = []*domain.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// GetEvent handles GET /api/v1/events/:id.
func (s *Server) GetEvent(c *gin.Context) {
	event, err := s.events.ByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetAggregateVersion handles GET /api/v1/aggregates/:code/version.
func (s *Server) GetAggregateVersion(c *gin.Context) {
	code := c.Param("code")
	version, found, err := s.events.MaxVersion(c.Request.Context(), code)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"aggregate_code": code,
		"version":        version,
		"exists":         found,
	})
}

// GetAggregateEventsAfter handles GET /api/v1/aggregates/:code/events with
// an optional after_version watermark for incremental catch-up.
func (s *Server) GetAggregateEventsAfter(c *gin.Context) {
	code := c.Param("code")
	after := int64(0)
	if raw := c.Query("after_version"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequestField,
				"after_version must be an integer"))
			return
		}
		after = parsed
	}

	events, err := s.events.VersionsAfter(c.Request.Context(), code, after)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if events == nil {
		events = []*domain.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

type replayRequest struct {
	AggregateCode string `json:"aggregate_code"`
	AggregateType string `json:"aggregate_type"`
	EventType     string `json:"event_type"`
	From          string `json:"from"`
	To            string `json:"to"`
	DryRun        bool   `json:"dry_run"`
}

// PostReplay handles POST /api/v1/events/replay. The replay runs
// synchronously and returns per-record counts, so a dry run doubles as a
// consistency check of the selected log slice.
func (s *Server) PostReplay(c *gin.Context) {
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed,
			"invalid replay request", http.StatusBadRequest))
		return
	}

	filter := usecase.ReplayFilter{
		AggregateCode: req.AggregateCode,
		AggregateType: domain.AggregateType(req.AggregateType),
		EventType:     domain.EventType(req.EventType),
	}
	if req.From != "" || req.To != "" {
		from, to, err := parseTimeRange(req.From, req.To)
		if err != nil {
			_ = c.Error(err)
			return
		}
		filter.From, filter.To = from, to
	}

	result, err := s.replayEvents.Execute(c.Request.Context(), filter, req.DryRun)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseTimeRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromRaw != "" {
		if from, err = time.Parse(time.RFC3339, fromRaw); err != nil {
			return from, to, apperrors.BadRequest(apperrors.CodeInvalidRequestField,
				"from must be RFC 3339")
		}
	}
	to = time.Now().UTC()
	if toRaw != "" {
		if to, err = time.Parse(time.RFC3339, toRaw); err != nil {
			return from, to, apperrors.BadRequest(apperrors.CodeInvalidRequestField,
				"to must be RFC 3339")
		}
	}
	return from, to, nil
}
