package handlers

import (
	"errors"
	"net/http"

	"engagement-service/internal/middleware"
	"engagement-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondError maps domain errors to status codes. Anything unrecognised is
// a server fault and is logged.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var partial *models.PartialFailure
	switch {
	case errors.As(err, &partial):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "action partially applied, counters will be reconciled",
			"post_id": partial.PostID,
		})
	case errors.Is(err, models.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrDuplicateAction):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	default:
		logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return userID, ok
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
