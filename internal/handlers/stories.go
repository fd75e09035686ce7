package handlers

import (
	"net/http"

	"engagement-service/internal/models"
	"engagement-service/internal/stories"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StoriesHandler struct {
	mgr    *stories.Manager
	logger *zap.Logger
}

func NewStoriesHandler(mgr *stories.Manager, logger *zap.Logger) *StoriesHandler {
	return &StoriesHandler{mgr: mgr, logger: logger}
}

func (h *StoriesHandler) CreateStory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	story, err := h.mgr.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (h *StoriesHandler) GetStory(c *gin.Context) {
	storyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	story, err := h.mgr.Get(c.Request.Context(), storyID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoriesHandler) GetFeed(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	groups, err := h.mgr.ActiveForFollowing(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *StoriesHandler) ViewStory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	storyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	count, err := h.mgr.RecordView(c.Request.Context(), storyID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"story_id": storyID, "view_count": count})
}

func (h *StoriesHandler) DeactivateStory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	storyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.mgr.Deactivate(c.Request.Context(), userID, storyID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
