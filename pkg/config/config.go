package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              string
	DatabaseURL       string
	SupabaseJWTSecret string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleProjectID    string
	GooglePubSubTopic  string
	GoogleCredentials  string

	FirebaseCredentials     string
	NatsURL                 string
	PubSubVerificationToken string

	RenewalInterval    time.Duration
	RenewalWindow      time.Duration
	RenewalConcurrency int
	ProviderTimeout    time.Duration
	DegradedAfter      int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:  getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GoogleCredentials:  getEnv("GOOGLE_CREDENTIALS", ""),

		FirebaseCredentials:     getEnv("FIREBASE_CREDENTIALS", ""),
		NatsURL:                 getEnv("NATS_URL", ""),
		PubSubVerificationToken: getEnv("PUBSUB_VERIFICATION_TOKEN", ""),

		RenewalInterval:    getDuration("RENEWAL_INTERVAL", time.Hour),
		RenewalWindow:      getDuration("RENEWAL_WINDOW", 24*time.Hour),
		RenewalConcurrency: getInt("RENEWAL_CONCURRENCY", 8),
		ProviderTimeout:    getDuration("PROVIDER_TIMEOUT", 30*time.Second),
		DegradedAfter:      getInt("DEGRADED_AFTER", 3),
	}
}

// WatchTopic returns the fully qualified topic name users.watch expects.
func (c *Config) WatchTopic() string {
	if c.GooglePubSubTopic == "" || strings.HasPrefix(c.GooglePubSubTopic, "projects/") {
		return c.GooglePubSubTopic
	}
	return fmt.Sprintf("projects/%s/topics/%s", c.GoogleProjectID, c.GooglePubSubTopic)
}

// TopicID returns the short topic name used by the Pub/Sub client.
func (c *Config) TopicID() string {
	parts := strings.Split(c.GooglePubSubTopic, "/")
	return parts[len(parts)-1]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
