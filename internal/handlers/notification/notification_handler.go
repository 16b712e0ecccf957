// internal/handlers/notification/notification_handler.go
package notification

import (
	"net/http"
	"strconv"

	domain "sokoni-service/internal/domain/notification"
	"sokoni-service/internal/middleware"
	xerrors "sokoni-service/internal/pkg/errors"
	"sokoni-service/internal/pkg/response"
	service "sokoni-service/internal/service/notification"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService *service.Service
}

func NewNotificationHandler(notificationService *service.Service) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// ListNotifications retrieves the user's notifications with filters
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var filters domain.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.notificationService.List(c.Request.Context(), identityID, &filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list notifications", err)
		return
	}

	response.Success(c, http.StatusOK, "notifications retrieved", result)
}

// MarkRead marks one of the user's notifications read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid notification ID", err)
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), id, identityID); err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "notification not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to mark notification read", err)
		return
	}

	response.Success(c, http.StatusOK, "notification marked read", nil)
}

// GetUnreadCount returns the user's unread badge count
func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	count, err := h.notificationService.UnreadCount(c.Request.Context(), identityID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to count unread notifications", err)
		return
	}

	response.Success(c, http.StatusOK, "unread count retrieved", gin.H{"unread": count})
}
