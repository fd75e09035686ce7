package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Engagement Service API",
		"version": "1.0.0",
		"status":  "running",
		"endpoints": gin.H{
			"posts": []string{
				"POST /posts",
				"GET /posts/:id",
				"DELETE /posts/:id",
				"POST /posts/:id/like",
				"DELETE /posts/:id/like",
				"POST /posts/:id/comments",
				"GET /posts/:id/comments",
				"DELETE /comments/:id",
				"POST /posts/:id/share",
				"GET /posts/:id/shares",
				"GET /search/posts",
				"POST /posts/:id/save",
				"DELETE /posts/:id/save",
			},
			"feed": []string{
				"GET /feed",
			},
			"stories": []string{
				"POST /stories",
				"GET /stories/feed",
				"GET /stories/:id",
				"POST /stories/:id/view",
				"DELETE /stories/:id",
			},
			"social": []string{
				"POST /follow/:user_id",
				"DELETE /follow/:user_id",
			},
			"notifications": []string{
				"GET /notifications",
				"POST /notifications/:id/read",
			},
			"upload": []string{
				"POST /upload/presigned",
			},
			"websocket": []string{
				"GET /ws",
			},
			"system": []string{
				"GET /healthz",
				"GET /metrics",
				"POST /admin/posts/:id/reconcile",
			},
		},
	})
}
