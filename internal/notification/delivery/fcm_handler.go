package delivery

import (
	"log"
	"net/http"

	authDelivery "mailwatch-backend/internal/auth/delivery"
	"mailwatch-backend/internal/notification/repository"

	"github.com/gin-gonic/gin"
)

type FCMHandler struct {
	fcmRepo repository.FCMTokenRepository
}

func NewFCMHandler(fcmRepo repository.FCMTokenRepository) *FCMHandler {
	return &FCMHandler{fcmRepo: fcmRepo}
}

type registerTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

// RegisterToken handles POST /api/fcm/register for the caller's mailbox.
func (h *FCMHandler) RegisterToken(c *gin.Context) {
	mailbox, ok := callerMailbox(c)
	if !ok {
		return
	}

	var req registerTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.fcmRepo.SaveToken(c.Request.Context(), mailbox, req.Token, req.DeviceInfo); err != nil {
		log.Printf("[FCM] Error saving token for %s: %v", mailbox, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnregisterToken handles DELETE /api/fcm/:token.
func (h *FCMHandler) UnregisterToken(c *gin.Context) {
	mailbox, ok := callerMailbox(c)
	if !ok {
		return
	}

	deleted, err := h.fcmRepo.DeleteTokenForMailbox(c.Request.Context(), mailbox, c.Param("token"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unregister token"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func callerMailbox(c *gin.Context) (string, bool) {
	p := authDelivery.GetPrincipal(c)
	if p == nil || p.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token has no email claim"})
		return "", false
	}
	return p.Email, true
}
