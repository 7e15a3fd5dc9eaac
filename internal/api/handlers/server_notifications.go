package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/toloka-partners/featuretrack/internal/notification"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
)

// GetNotifications handles GET /api/v1/notifications/:recipient.
func (s *Server) GetNotifications(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidRequestField,
				"limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	notifications, err := s.notifications.ByRecipient(c.Request.Context(), c.Param("recipient"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if notifications == nil {
		notifications = []*notification.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "count": len(notifications)})
}

// GetEventNotification handles GET /api/v1/events/:id/notification. It
// reports whether fanout produced a notification for the event and who
// received it.
func (s *Server) GetEventNotification(c *gin.Context) {
	eventID := c.Param("id")

	exists, err := s.notifications.ExistsByEventID(c.Request.Context(), eventID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	recipients := []string{}
	if exists {
		recipients, err = s.notifications.RecipientsByEventID(c.Request.Context(), eventID)
		if err != nil {
			_ = c.Error(err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":   eventID,
		"notified":   exists,
		"recipients": recipients,
	})
}
