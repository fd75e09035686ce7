package handlers

import (
	"net/http"
	"strconv"

	"engagement-service/internal/feed"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FeedHandler struct {
	composer *feed.Composer
	logger   *zap.Logger
}

func NewFeedHandler(composer *feed.Composer, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{composer: composer, logger: logger}
}

// GetFeed serves GET /feed?cursor=&limit=.
func (h *FeedHandler) GetFeed(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	page, err := h.composer.Compose(c.Request.Context(), userID, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
