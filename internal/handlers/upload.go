package handlers

import (
	"net/http"

	"engagement-service/internal/models"
	"engagement-service/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UploadHandler struct {
	storage *storage.Storage
	logger  *zap.Logger
}

func NewUploadHandler(stor *storage.Storage, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		storage: stor,
		logger:  logger,
	}
}

func (h *UploadHandler) GetPresignedURL(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads are not configured"})
		return
	}

	var req models.PresignedUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	objectKey := storage.ObjectKey(userID, req.FileName)
	url, media, err := h.storage.PresignUpload(c.Request.Context(), objectKey, req.ContentType)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("presigned URL generated", zap.String("object_key", objectKey))

	c.JSON(http.StatusOK, models.PresignedUploadResponse{
		UploadURL: url,
		Media:     media,
	})
}
