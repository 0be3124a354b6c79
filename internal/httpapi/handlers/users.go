package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mzhao28/medichat/internal/auth"
	"github.com/mzhao28/medichat/internal/common"
)

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Username == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "username and password required")
		return
	}

	userID, err := h.Auth.CreateUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateUsername) {
			common.Fail(c, http.StatusConflict, 10003, "username already exists")
			return
		}
		h.Log.Error("create user failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 20001, "failed to create user")
		return
	}

	common.OK(c, gin.H{"user_id": userID})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	userID, err := h.Auth.VerifyUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
			return
		}
		h.Log.Error("verify user failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 20001, "login failed")
		return
	}

	duration := time.Duration(h.Cfg.SessionDurationSecs) * time.Second
	token, err := h.Auth.CreateSession(c.Request.Context(), userID, duration)
	if err != nil {
		h.Log.Error("create session failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to create session")
		return
	}

	common.OK(c, gin.H{
		"user_id":    userID,
		"session_id": token,
		"expires_at": time.Now().Add(duration),
	})
}

// Logout exists for the client flow; session rows are not deleted, the token
// simply stops being presented and eventually expires.
func (h *Handler) Logout(c *gin.Context) {
	common.OK(c, nil)
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	common.OK(c, gin.H{"user_id": uid})
}
