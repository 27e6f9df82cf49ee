package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	notificationdomain "mailwatch-backend/internal/notification/domain"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Notifier receives mailbox change hints.
type Notifier interface {
	Notify(mailbox string, historyID uint64)
}

// Service pulls Gmail notifications from Pub/Sub and hands them to the sync
// consumer.
type Service struct {
	pubsubClient *pubsub.Client
	notifier     Notifier
	topicName    string
	subName      string
}

func NewService(ctx context.Context, projectID, topicName, credentialsFile string, notifier Notifier) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Service{
		pubsubClient: client,
		notifier:     notifier,
		topicName:    topicName,
		subName:      topicName + "-sub", // Convention: topic-sub
	}, nil
}

// Start blocks receiving messages until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		HandlePayload(s.notifier, msg.Data)
		// The consumer owns retries; redelivery would only add duplicates.
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("error receiving messages: %w", err)
	}
	return nil
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking subscription existence: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking topic existence: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist, cannot create subscription", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	log.Printf("[PubSub] Created subscription: %s", s.subName)
	return sub, nil
}

func (s *Service) Close() error {
	return s.pubsubClient.Close()
}

// HandlePayload decodes a Gmail notification and forwards it. Malformed
// payloads are logged and dropped.
func HandlePayload(notifier Notifier, data []byte) bool {
	n, err := notificationdomain.DecodeNotification(data)
	if err != nil {
		log.Printf("[PubSub] Dropping message: %v", err)
		return false
	}
	log.Printf("[PubSub] Received notification for: %s (historyId: %d)", n.EmailAddress, n.HistoryID)
	notifier.Notify(n.EmailAddress, uint64(n.HistoryID))
	return true
}
