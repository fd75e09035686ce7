package handlers

import (
	"net/http"

	"engagement-service/internal/clock"
	"engagement-service/internal/directory"
	"engagement-service/internal/engagement"
	"engagement-service/internal/feed"
	"engagement-service/internal/middleware"
	"engagement-service/internal/notify"
	"engagement-service/internal/storage"
	"engagement-service/internal/stories"
	"engagement-service/internal/websocket"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Deps struct {
	JWTSecret string
	Posts     *engagement.Service
	Feed      *feed.Composer
	Stories   *stories.Manager
	Notifier  *notify.Notifier
	Directory directory.Directory
	Storage   *storage.Storage
	Hub       *websocket.Hub
	Checks    map[string]Check
	Clock     clock.Clock
	Logger    *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORS())

	router.GET("/", RootHandler)
	router.GET("/healthz", NewHealthHandler(d.Checks).Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	posts := NewPostsHandler(d.Posts, d.Logger)
	feedHandler := NewFeedHandler(d.Feed, d.Logger)
	storiesHandler := NewStoriesHandler(d.Stories, d.Logger)
	socialHandler := NewSocialHandler(d.Directory, d.Notifier, d.Clock, d.Logger)
	notificationsHandler := NewNotificationsHandler(d.Notifier, d.Logger)
	uploadHandler := NewUploadHandler(d.Storage, d.Logger)

	authRoutes := router.Group("/")
	authRoutes.Use(middleware.AuthMiddleware(d.JWTSecret))
	{
		authRoutes.POST("/upload/presigned", uploadHandler.GetPresignedURL)

		authRoutes.POST("/posts", posts.CreatePost)
		authRoutes.GET("/posts/:id", posts.GetPost)
		authRoutes.DELETE("/posts/:id", posts.DeletePost)
		authRoutes.POST("/posts/:id/like", posts.Like)
		authRoutes.DELETE("/posts/:id/like", posts.Unlike)
		authRoutes.POST("/posts/:id/comments", posts.AddComment)
		authRoutes.GET("/posts/:id/comments", posts.ListComments)
		authRoutes.DELETE("/comments/:id", posts.DeleteComment)
		authRoutes.POST("/posts/:id/share", posts.Share)
		authRoutes.GET("/posts/:id/shares", posts.ListShares)
		authRoutes.GET("/search/posts", posts.SearchPosts)
		authRoutes.POST("/posts/:id/save", posts.Save)
		authRoutes.DELETE("/posts/:id/save", posts.Unsave)
		authRoutes.POST("/admin/posts/:id/reconcile", posts.Reconcile)

		authRoutes.GET("/feed", feedHandler.GetFeed)

		authRoutes.POST("/stories", storiesHandler.CreateStory)
		authRoutes.GET("/stories/feed", storiesHandler.GetFeed)
		authRoutes.GET("/stories/:id", storiesHandler.GetStory)
		authRoutes.POST("/stories/:id/view", storiesHandler.ViewStory)
		authRoutes.DELETE("/stories/:id", storiesHandler.DeactivateStory)

		authRoutes.POST("/follow/:user_id", socialHandler.Follow)
		authRoutes.DELETE("/follow/:user_id", socialHandler.Unfollow)

		authRoutes.GET("/notifications", notificationsHandler.List)
		authRoutes.POST("/notifications/:id/read", notificationsHandler.MarkRead)

		authRoutes.GET("/ws", func(c *gin.Context) {
			userID, ok := currentUser(c)
			if !ok {
				return
			}

			conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
			if err != nil {
				d.Logger.Error("websocket upgrade failed", zap.Error(err))
				return
			}

			client := websocket.NewClient(userID, d.Hub, conn)
			d.Hub.RegisterClient(client)

			go client.WritePump()
			go client.ReadPump()
		})
	}

	return router
}
