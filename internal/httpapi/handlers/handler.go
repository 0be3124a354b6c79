package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mzhao28/medichat/internal/ai"
	"github.com/mzhao28/medichat/internal/auth"
	"github.com/mzhao28/medichat/internal/chat"
	"github.com/mzhao28/medichat/internal/config"
	"github.com/mzhao28/medichat/internal/httpapi/middleware"
	"github.com/mzhao28/medichat/internal/logger"
	"github.com/mzhao28/medichat/internal/rag"
	"github.com/mzhao28/medichat/internal/ratelimit"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	Log     *logger.Logger
	Auth    *auth.Service
	Limiter *ratelimit.Limiter
	ChatSvc *chat.Service
	Docs    *rag.Store
}

func NewHandler(db *gorm.DB, cfg config.Config, log *logger.Logger) *Handler {
	reg := ai.NewRegistry()
	reg.Register("groq", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		if model == "" {
			model = cfg.GroqModel
		}
		return ai.NewGroqProvider(cfg.GroqBaseURL, cfg.GroqAPIKey, model, cfg.GroqTemperature, cfg.GroqMaxTokens), nil
	})
	reg.Register("fallback", func(ctx context.Context, model string) (ai.Provider, error) {
		_, _ = ctx, model
		return ai.NewFallbackProvider(), nil
	})

	docs := rag.NewStore()

	repo := chat.NewRepo(db)
	chatSvc := chat.NewService(repo, reg, cfg.AIProvider, cfg.GroqModel, cfg.ChatContextWindow).
		WithRetriever(docs, cfg.RetrievalTopK)

	return &Handler{
		DB:      db,
		Cfg:     cfg,
		Log:     log,
		Auth:    auth.NewService(db),
		Limiter: ratelimit.NewLimiter(db, cfg.RateLimitRequests, time.Duration(cfg.RateLimitWindowSecs)*time.Second),
		ChatSvc: chatSvc,
		Docs:    docs,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
