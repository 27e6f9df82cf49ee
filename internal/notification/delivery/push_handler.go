package delivery

import (
	"crypto/subtle"
	"log"
	"net/http"

	"mailwatch-backend/internal/notification"
	notificationdomain "mailwatch-backend/internal/notification/domain"

	"github.com/gin-gonic/gin"
)

// PushHandler receives Gmail notifications from a Pub/Sub push subscription.
type PushHandler struct {
	notifier          notification.Notifier
	verificationToken string
}

func NewPushHandler(notifier notification.Notifier, verificationToken string) *PushHandler {
	return &PushHandler{
		notifier:          notifier,
		verificationToken: verificationToken,
	}
}

// Receive handles POST /api/pubsub/push. Any 2xx acks the message, so
// payloads that can never be processed are acked too.
func (h *PushHandler) Receive(c *gin.Context) {
	token := c.Query("token")
	if h.verificationToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verificationToken)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification token"})
		return
	}

	var envelope notificationdomain.PushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Printf("[PubSub] Dropping push request: %v", err)
		c.Status(http.StatusNoContent)
		return
	}

	notification.HandlePayload(h.notifier, envelope.Message.Data)
	c.Status(http.StatusNoContent)
}
