package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mzhao28/medichat/internal/chat"
	"github.com/mzhao28/medichat/internal/common"
)

type createConversationReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createConversationReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	conv, err := h.ChatSvc.CreateConversation(c.Request.Context(), uid, req.Title)
	if err != nil {
		h.Log.Error("create conversation failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create conversation")
		return
	}

	common.OK(c, gin.H{
		"conversation_id": conv.ConversationID,
		"title":           conv.Title,
	})
}

func (h *Handler) ListConversations(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	var convs []chat.ConversationSummary
	var err error
	if c.Query("favorite") == "true" {
		convs, err = h.ChatSvc.ListFavoriteConversations(c.Request.Context(), uid, limit)
	} else {
		convs, err = h.ChatSvc.ListRecentConversations(c.Request.Context(), uid, limit)
	}
	if err != nil {
		h.Log.Error("list conversations failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list conversations")
		return
	}

	common.OK(c, gin.H{"conversations": convs})
}

func (h *Handler) GetConversationHistory(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conversationID := c.Param("conversation_id")
	msgs, err := h.ChatSvc.GetConversationHistory(c.Request.Context(), uid, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "conversation not found")
			return
		}
		h.Log.Error("get history failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to load history")
		return
	}

	common.OK(c, gin.H{"messages": msgs})
}

type updateTitleReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) UpdateConversationTitle(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conversationID := c.Param("conversation_id")
	if err := h.ChatSvc.ValidateConversationOwner(c.Request.Context(), uid, conversationID); err != nil {
		common.Fail(c, http.StatusNotFound, 40404, "conversation not found")
		return
	}

	var req updateTitleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	updated, err := h.ChatSvc.UpdateConversationTitle(c.Request.Context(), conversationID, req.Title)
	if err != nil {
		h.Log.Error("update title failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to update title")
		return
	}

	common.OK(c, gin.H{"updated": updated})
}

func (h *Handler) ToggleFavoriteConversation(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conversationID := c.Param("conversation_id")
	if err := h.ChatSvc.ValidateConversationOwner(c.Request.Context(), uid, conversationID); err != nil {
		common.Fail(c, http.StatusNotFound, 40404, "conversation not found")
		return
	}

	updated, err := h.ChatSvc.ToggleFavoriteConversation(c.Request.Context(), conversationID)
	if err != nil {
		h.Log.Error("toggle favorite failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to toggle favorite")
		return
	}

	common.OK(c, gin.H{"updated": updated})
}

type sendMessageReq struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	allowed, err := h.Limiter.Allow(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("rate limit check failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50006, "internal error")
		return
	}
	if !allowed {
		common.Fail(c, http.StatusTooManyRequests, 42901, "rate limit exceeded")
		return
	}

	conversationID, reply, err := h.ChatSvc.SendMessage(c.Request.Context(), uid, req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "conversation not found")
			return
		}
		h.Log.Error("send message failed", "err", err)
		common.Fail(c, http.StatusBadGateway, 50201, "failed to generate response")
		return
	}

	common.OK(c, gin.H{
		"conversation_id": conversationID,
		"reply":           reply,
	})
}

func (h *Handler) SendMessageStream(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	allowed, err := h.Limiter.Allow(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("rate limit check failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50006, "internal error")
		return
	}
	if !allowed {
		common.Fail(c, http.StatusTooManyRequests, 42901, "rate limit exceeded")
		return
	}

	conversationID, err := h.ChatSvc.EnsureConversation(c.Request.Context(), uid, req.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "conversation not found")
			return
		}
		h.Log.Error("ensure conversation failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50007, "internal error")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	chunks, done, errs := h.ChatSvc.SendMessageStream(ctx, uid, conversationID, req.Message)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	for {
		select {
		case ch, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeJSON("chunk", gin.H{
				"type":  "chunk",
				"delta": ch,
			})

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case err := <-errs:
			if err == nil {
				continue
			}
			msg := err.Error()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				msg = "conversation not found"
			}
			writeJSON("error", gin.H{
				"type":    "error",
				"message": msg,
			})
			return

		case <-done:
			writeJSON("done", gin.H{
				"type":            "done",
				"conversation_id": conversationID,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

type uploadDocumentReq struct {
	Name    string `json:"name"`
	Content string `json:"content" binding:"required"`
}

// UploadDocument indexes plain-text document content for retrieval grounding.
func (h *Handler) UploadDocument(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req uploadDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Name == "" {
		req.Name = "document"
	}

	n := h.Docs.AddDocument(uid, req.Name, req.Content)
	common.OK(c, gin.H{"chunks": n})
}
