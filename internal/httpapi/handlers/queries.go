package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mzhao28/medichat/internal/common"
)

func (h *Handler) ListRecentQueries(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	queries, err := h.ChatSvc.ListRecentQueries(c.Request.Context(), uid, limit)
	if err != nil {
		h.Log.Error("list recent queries failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50010, "failed to list recent queries")
		return
	}

	common.OK(c, gin.H{"queries": queries})
}

func (h *Handler) ListFavoriteQueries(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	queries, err := h.ChatSvc.ListFavoriteQueries(c.Request.Context(), uid, limit)
	if err != nil {
		h.Log.Error("list favorite queries failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to list favorites")
		return
	}

	common.OK(c, gin.H{"queries": queries})
}

type favoriteQueryReq struct {
	Query string `json:"query" binding:"required"`
}

func (h *Handler) AddFavoriteQuery(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req favoriteQueryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	added, err := h.ChatSvc.AddFavoriteQuery(c.Request.Context(), uid, req.Query)
	if err != nil {
		h.Log.Error("add favorite query failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50012, "failed to add favorite")
		return
	}

	common.OK(c, gin.H{"added": added})
}

func (h *Handler) RemoveFavoriteQuery(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req favoriteQueryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	removed, err := h.ChatSvc.RemoveFavoriteQuery(c.Request.Context(), uid, req.Query)
	if err != nil {
		h.Log.Error("remove favorite query failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50013, "failed to remove favorite")
		return
	}

	common.OK(c, gin.H{"removed": removed})
}

func (h *Handler) GetUserStats(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	stats, err := h.ChatSvc.GetUserStats(c.Request.Context(), uid)
	if err != nil {
		h.Log.Error("user stats failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50014, "failed to compute stats")
		return
	}

	common.OK(c, stats)
}
