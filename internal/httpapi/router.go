package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mzhao28/medichat/internal/common"
	"github.com/mzhao28/medichat/internal/config"
	"github.com/mzhao28/medichat/internal/httpapi/handlers"
	"github.com/mzhao28/medichat/internal/httpapi/middleware"
	"github.com/mzhao28/medichat/internal/logger"
)

func NewRouter(db *gorm.DB, cfg config.Config, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, log)

	r.GET("/ping", h.Ping)

	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.SessionAuth(h.Auth))

	authGroup.POST("/auth/logout", h.Logout)
	authGroup.GET("/me", h.Me)

	authGroup.POST("/chat/conversations", h.CreateConversation)
	authGroup.GET("/chat/conversations", h.ListConversations)
	authGroup.GET("/chat/conversations/:conversation_id/messages", h.GetConversationHistory)
	authGroup.POST("/chat/conversations/:conversation_id/title", h.UpdateConversationTitle)
	authGroup.POST("/chat/conversations/:conversation_id/favorite", h.ToggleFavoriteConversation)

	authGroup.POST("/chat/messages", h.SendMessage)
	authGroup.POST("/chat/messages/stream", h.SendMessageStream)

	authGroup.POST("/documents", h.UploadDocument)

	authGroup.GET("/queries/recent", h.ListRecentQueries)
	authGroup.GET("/queries/favorites", h.ListFavoriteQueries)
	authGroup.POST("/queries/favorites", h.AddFavoriteQuery)
	authGroup.DELETE("/queries/favorites", h.RemoveFavoriteQuery)

	authGroup.GET("/stats", h.GetUserStats)

	return r
}
