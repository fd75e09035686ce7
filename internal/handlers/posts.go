package handlers

import (
	"net/http"
	"strconv"

	"engagement-service/internal/engagement"
	"engagement-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PostsHandler struct {
	svc    *engagement.Service
	logger *zap.Logger
}

func NewPostsHandler(svc *engagement.Service, logger *zap.Logger) *PostsHandler {
	return &PostsHandler{svc: svc, logger: logger}
}

func (h *PostsHandler) CreatePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.svc.CreatePost(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("post created",
		zap.String("post_id", post.ID.String()),
		zap.String("author_id", userID.String()),
		zap.String("visibility", string(post.Visibility)))
	c.JSON(http.StatusCreated, post)
}

func (h *PostsHandler) GetPost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	post, err := h.svc.GetPost(c.Request.Context(), userID, postID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *PostsHandler) DeletePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeletePost(c.Request.Context(), userID, postID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PostsHandler) Like(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	likes, err := h.svc.Like(c.Request.Context(), userID, postID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "likes_count": likes})
}

func (h *PostsHandler) Unlike(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	likes, err := h.svc.Unlike(c.Request.Context(), userID, postID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "likes_count": likes})
}

func (h *PostsHandler) AddComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comment, err := h.svc.AddComment(c.Request.Context(), userID, postID, req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *PostsHandler) ListComments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	comments, err := h.svc.ListComments(c.Request.Context(), userID, postID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *PostsHandler) DeleteComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	commentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteComment(c.Request.Context(), userID, commentID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PostsHandler) Share(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.ShareRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	shared, err := h.svc.Share(c.Request.Context(), userID, postID, req.Caption)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, shared)
}

func (h *PostsHandler) ListShares(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	shares, err := h.svc.ListShares(c.Request.Context(), userID, postID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shares": shares})
}

// SearchPosts serves GET /search/posts?sport=&author_id=&q=&cursor=&limit=.
func (h *PostsHandler) SearchPosts(c *gin.Context) {
	filter := models.PostSearch{Sport: c.Query("sport"), Text: c.Query("q")}
	if raw := c.Query("author_id"); raw != "" {
		authorID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid author_id"})
			return
		}
		filter.AuthorID = &authorID
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.svc.SearchPosts(c.Request.Context(), filter, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PostsHandler) Save(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Save(c.Request.Context(), userID, postID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "saved": true})
}

func (h *PostsHandler) Unsave(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Unsave(c.Request.Context(), userID, postID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "saved": false})
}

func (h *PostsHandler) Reconcile(c *gin.Context) {
	postID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	counters, err := h.svc.Reconcile(c.Request.Context(), postID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "counters": counters})
}
