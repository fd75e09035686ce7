package handlers

import (
	"net/http"
	"strconv"

	"engagement-service/internal/notify"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxNotificationPage = 100

type NotificationsHandler struct {
	notifier *notify.Notifier
	logger   *zap.Logger
}

func NewNotificationsHandler(notifier *notify.Notifier, logger *zap.Logger) *NotificationsHandler {
	return &NotificationsHandler{notifier: notifier, logger: logger}
}

func (h *NotificationsHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	list, err := h.notifier.List(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *NotificationsHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifier.MarkRead(c.Request.Context(), userID, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
