package notification

import (
	"context"
	"fmt"
	"log"

	"mailwatch-backend/internal/notification/repository"
	watchdomain "mailwatch-backend/internal/watch/domain"
	"mailwatch-backend/pkg/fcm"
)

// PushSender delivers an alert to device tokens and reports dead tokens.
type PushSender interface {
	SendToDevices(ctx context.Context, tokens []string, alert fcm.Alert) ([]string, error)
}

// DegradedNotifier tells the mailbox owner's devices that sync stopped.
type DegradedNotifier struct {
	fcmRepo repository.FCMTokenRepository
	sender  PushSender
}

func NewDegradedNotifier(fcmRepo repository.FCMTokenRepository, sender PushSender) *DegradedNotifier {
	return &DegradedNotifier{
		fcmRepo: fcmRepo,
		sender:  sender,
	}
}

func (n *DegradedNotifier) NotifyDegraded(ctx context.Context, sub *watchdomain.Subscription) error {
	if n.sender == nil {
		log.Printf("[FCM] Client not available, skipping degraded alert for %s", sub.Email)
		return nil
	}

	tokens, err := n.fcmRepo.GetTokensByMailbox(ctx, sub.Email)
	if err != nil {
		return fmt.Errorf("failed to load FCM tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Printf("[FCM] No tokens for %s, skipping degraded alert", sub.Email)
		return nil
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	stale, err := n.sender.SendToDevices(ctx, tokenStrings, fcm.Alert{
		Title: "Mail sync paused",
		Body:  fmt.Sprintf("We could not renew syncing for %s. Reconnect your account to resume.", sub.Email),
		Data: map[string]string{
			"type":          "sync_degraded",
			"email":         sub.Email,
			"failure_count": fmt.Sprintf("%d", sub.FailureCount),
		},
		ClickAction: "/settings",
	})
	if err != nil {
		return err
	}

	for _, token := range stale {
		if err := n.fcmRepo.DeleteToken(ctx, token); err != nil {
			log.Printf("[FCM] Error deleting stale token: %v", err)
		}
	}
	return nil
}
