package delivery

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authDelivery "mailwatch-backend/internal/auth/delivery"
	historyusecase "mailwatch-backend/internal/history/usecase"
	maildomain "mailwatch-backend/internal/mail/domain"
	watchdomain "mailwatch-backend/internal/watch/domain"
	"mailwatch-backend/internal/watch/scheduler"
	"mailwatch-backend/internal/watch/usecase"

	"github.com/gin-gonic/gin"
)

// SyncStateReader exposes the consumer state of a mailbox.
type SyncStateReader interface {
	State(mailbox string) historyusecase.MailboxState
}

// Renewer runs a renewal pass on demand.
type Renewer interface {
	RunRenewalPass(ctx context.Context) ([]scheduler.RenewalResult, error)
}

// MailLister reads the synced mail of a mailbox, newest first.
type MailLister interface {
	ListByMailbox(ctx context.Context, mailbox string, limit, offset int) ([]*maildomain.Mail, int64, error)
}

const recentMailLimit = 10

type WatchHandler struct {
	watchUsecase usecase.WatchUsecase
	syncState    SyncStateReader
	renewer      Renewer
	mails        MailLister
}

func NewWatchHandler(watchUsecase usecase.WatchUsecase, syncState SyncStateReader, renewer Renewer, mails MailLister) *WatchHandler {
	return &WatchHandler{
		watchUsecase: watchUsecase,
		syncState:    syncState,
		renewer:      renewer,
		mails:        mails,
	}
}

type watchRequest struct {
	Email string `json:"email"`
}

type storedWatch struct {
	HistoryID  uint64 `json:"historyId"`
	Expiration int64  `json:"expiration"`
}

type watchResponse struct {
	Success    bool        `json:"success"`
	Email      string      `json:"email"`
	HistoryID  uint64      `json:"historyId"`
	Expiration int64       `json:"expiration"`
	Stored     storedWatch `json:"stored"`
	Fresh      bool        `json:"fresh"`
	WasStale   bool        `json:"wasStale"`
}

type mailSummary struct {
	Total  int64              `json:"total"`
	Recent []*maildomain.Mail `json:"recent"`
}

type statusResponse struct {
	Subscription *watchdomain.Subscription   `json:"subscription"`
	Sync         historyusecase.MailboxState `json:"sync"`
	Mail         *mailSummary                `json:"mail,omitempty"`
}

// RegisterWatch handles POST /api/gmail/watch.
func (h *WatchHandler) RegisterWatch(c *gin.Context) {
	var req watchRequest
	_ = c.ShouldBindJSON(&req)
	email := strings.TrimSpace(req.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}
	if !canActOn(c, email) {
		return
	}

	result, err := h.watchUsecase.RegisterWatch(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := watchResponse{
		Success:    true,
		Email:      result.Mailbox,
		HistoryID:  result.HistoryID,
		Expiration: result.Expiration.UnixMilli(),
		Fresh:      result.Fresh,
		WasStale:   result.WasStale,
	}
	if result.Stored != nil {
		resp.Stored = storedWatch{
			HistoryID:  result.Stored.HistoryID,
			Expiration: result.Stored.Expiration.UnixMilli(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetWatch handles GET /api/gmail/watch/:email.
func (h *WatchHandler) GetWatch(c *gin.Context) {
	email := c.Param("email")
	if !canActOn(c, email) {
		return
	}

	sub, err := h.watchUsecase.GetSubscription(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := statusResponse{Subscription: sub}
	if h.syncState != nil {
		resp.Sync = h.syncState.State(sub.Email)
	}
	if h.mails != nil {
		recent, total, err := h.mails.ListByMailbox(c.Request.Context(), sub.Email, recentMailLimit, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.Mail = &mailSummary{Total: total, Recent: recent}
	}
	c.JSON(http.StatusOK, resp)
}

// ListWatches handles GET /api/gmail/watch.
func (h *WatchHandler) ListWatches(c *gin.Context) {
	subs, err := h.watchUsecase.ListSubscriptions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// DeleteWatch handles DELETE /api/gmail/watch/:email.
func (h *WatchHandler) DeleteWatch(c *gin.Context) {
	email := c.Param("email")
	if !canActOn(c, email) {
		return
	}

	if err := h.watchUsecase.Deregister(c.Request.Context(), email); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Renew handles POST /api/gmail/renew.
func (h *WatchHandler) Renew(c *gin.Context) {
	results, err := h.renewer.RunRenewalPass(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"renewed": len(results) - failed,
		"failed":  failed,
	})
}

func canActOn(c *gin.Context, email string) bool {
	p := authDelivery.GetPrincipal(c)
	if p == nil || !p.CanActOn(email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to manage this mailbox"})
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, watchdomain.ErrCredentialMissing):
		status = http.StatusUnauthorized
	case errors.Is(err, watchdomain.ErrSubscriptionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, watchdomain.ErrProviderRegistrationFailed):
		status = http.StatusBadGateway
	case errors.Is(err, watchdomain.ErrPersistenceVerificationFailed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"kind":  watchdomain.ErrorKind(err),
	})
}
