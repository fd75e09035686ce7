package handlers

import (
	"net/http"

	"engagement-service/internal/clock"
	"engagement-service/internal/directory"
	"engagement-service/internal/models"
	"engagement-service/internal/notify"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SocialHandler struct {
	dir      directory.Directory
	notifier *notify.Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

func NewSocialHandler(dir directory.Directory, notifier *notify.Notifier, clk clock.Clock, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{
		dir:      dir,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

func (h *SocialHandler) Follow(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	followeeID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	if userID == followeeID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot follow yourself"})
		return
	}

	created, err := h.dir.Follow(c.Request.Context(), userID, followeeID, h.clock.Now())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if created {
		h.notifier.Dispatch(c.Request.Context(), notify.Event{
			Kind:        models.KindFollow,
			ActorID:     userID,
			RecipientID: followeeID,
			Subject:     &models.Subject{Type: models.SubjectActor, ID: userID},
		})
	}

	h.logger.Info("user followed",
		zap.String("follower_id", userID.String()),
		zap.String("followee_id", followeeID.String()))

	c.JSON(http.StatusOK, gin.H{"message": "followed successfully"})
}

func (h *SocialHandler) Unfollow(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	followeeID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	if err := h.dir.Unfollow(c.Request.Context(), userID, followeeID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("user unfollowed",
		zap.String("follower_id", userID.String()),
		zap.String("followee_id", followeeID.String()))

	c.JSON(http.StatusOK, gin.H{"message": "unfollowed successfully"})
}
